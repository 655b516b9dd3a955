package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRoot(mt *mockTransport) *Node {
	return NewRootNode(BrowserwideNodeID, "ws://example.invalid/devtools/browser/1", mt)
}

func responseFrame(id int, result string) []byte {
	b, _ := json.Marshal(map[string]json.RawMessage{
		"id":     mustJSON(id),
		"result": json.RawMessage(result),
	})
	return b
}

func errorResponseFrame(id, code int, message string) []byte {
	b, _ := json.Marshal(map[string]any{
		"id": id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
	return b
}

func eventFrame(method, sessionID string) []byte {
	m := map[string]any{"method": method, "params": map[string]any{}}
	if sessionID != "" {
		m["sessionId"] = sessionID
	}
	b, _ := json.Marshal(m)
	return b
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestSendCommandRoundTrip(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	mt.push(responseFrame(1, `{"root":{"nodeId":1}}`))

	result, err := root.SendCommand(context.Background(), "DOM.getDocument", nil)
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if string(result) != `{"root":{"nodeId":1}}` {
		t.Fatalf("result = %s", result)
	}

	var decoded command
	if err := json.Unmarshal(mt.lastSent(), &decoded); err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	if decoded.ID != 1 || decoded.Method != "DOM.getDocument" {
		t.Fatalf("unexpected sent frame: %+v", decoded)
	}
}

func TestSendCommandErrorMapsToProtocolError(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	mt.push(errorResponseFrame(1, inspectorUnknownCommandCode, "'Foo.bar' wasn't found"))

	_, err := root.SendCommand(context.Background(), "Foo.bar", nil)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *ProtocolError, got %v (%T)", err, err)
	}
	if pe.Code != CodeUnknownCommand {
		t.Fatalf("Code = %v, want CodeUnknownCommand", pe.Code)
	}
}

func TestListenerReceivesEventsInOrder(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	var seen []string
	root.AddListener(ListenerFuncs{
		OnEventFunc: func(n *Node, method string, params json.RawMessage) error {
			seen = append(seen, method)
			return nil
		},
	})

	mt.push(eventFrame("Network.requestWillBeSent", ""))
	mt.push(eventFrame("Page.frameNavigated", ""))
	mt.push(eventFrame("Network.responseReceived", ""))

	if err := root.HandleReceivedEvents(context.Background()); err != nil {
		t.Fatalf("HandleReceivedEvents: %v", err)
	}

	want := []string{"Network.requestWillBeSent", "Page.frameNavigated", "Network.responseReceived"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestDomainFilteredListenerIgnoresOtherDomains(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	var networkEvents int
	root.AddListener(ListenerFuncs{
		OnEventFunc: func(n *Node, method string, params json.RawMessage) error {
			if strings.HasPrefix(method, "Network.") {
				networkEvents++
			}
			return nil
		},
	})

	mt.push(eventFrame("Network.requestWillBeSent", ""))
	mt.push(eventFrame("Page.frameNavigated", ""))
	mt.push(eventFrame("Network.loadingFinished", ""))

	if err := root.HandleReceivedEvents(context.Background()); err != nil {
		t.Fatalf("HandleReceivedEvents: %v", err)
	}
	if networkEvents != 2 {
		t.Fatalf("networkEvents = %d, want 2", networkEvents)
	}
}

func TestDialogBlocksInFlightCommand(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	// Arrives while root.SendCommand's own wait loop is pumping: the
	// dialog event itself, then the Inspector.enable round trip
	// handleDialogOpening issues to detect what got stuck. The original
	// command (id 1) never gets a response of its own.
	mt.push(eventFrame("Page.javascriptDialogOpening", ""))
	mt.push(responseFrame(2, `{}`))

	_, err := root.SendCommand(context.Background(), "Runtime.evaluate", nil)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *ProtocolError, got %v", err)
	}
	if pe.Code != CodeUnexpectedAlertOpen {
		t.Fatalf("Code = %v, want CodeUnexpectedAlertOpen", pe.Code)
	}
}

func TestSessionScopedNoSuchFrameResponseIsSwallowed(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	// A response for an id nothing is waiting on, carrying the
	// session-not-found code: this happens when a session detaches while
	// a command sent just before detach is still in flight. It must not
	// surface as an error.
	mt.push(errorResponseFrame(999, inspectorSessionNotFoundCode, "No session with given id"))
	mt.push(eventFrame("Page.frameNavigated", ""))

	var seen int
	root.AddListener(ListenerFuncs{
		OnEventFunc: func(n *Node, method string, params json.RawMessage) error {
			seen++
			return nil
		},
	})

	if err := root.HandleReceivedEvents(context.Background()); err != nil {
		t.Fatalf("HandleReceivedEvents: %v", err)
	}
	if seen != 1 {
		t.Fatalf("seen = %d, want 1", seen)
	}
}

func TestReentrantSendDuringListenerCallback(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	// The event whose callback triggers the nested command, then that
	// command's own response.
	mt.push(eventFrame("Page.loadEventFired", ""))
	mt.push(responseFrame(1, `{"result":{"value":true}}`))

	var nestedResult json.RawMessage
	var nestedErr error
	root.AddListener(ListenerFuncs{
		OnEventFunc: func(n *Node, method string, params json.RawMessage) error {
			if method == "Page.loadEventFired" {
				nestedResult, nestedErr = n.SendCommand(context.Background(), "Runtime.evaluate", nil)
			}
			return nil
		},
	})

	if err := root.HandleReceivedEvents(context.Background()); err != nil {
		t.Fatalf("HandleReceivedEvents: %v", err)
	}
	if nestedErr != nil {
		t.Fatalf("nested SendCommand: %v", nestedErr)
	}
	if string(nestedResult) != `{"result":{"value":true}}` {
		t.Fatalf("nestedResult = %s", nestedResult)
	}
}

func TestChildSessionRoutesEventsBySessionID(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)
	child := NewChildNode("target-1", "session-1")
	if err := child.Attach(context.Background(), root); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var rootEvents, childEvents int
	root.AddListener(ListenerFuncs{OnEventFunc: func(n *Node, method string, params json.RawMessage) error {
		rootEvents++
		return nil
	}})
	child.AddListener(ListenerFuncs{OnEventFunc: func(n *Node, method string, params json.RawMessage) error {
		childEvents++
		return nil
	}})

	mt.push(eventFrame("Page.frameNavigated", "session-1"))
	mt.push(eventFrame("Target.targetInfoChanged", ""))

	if err := root.HandleReceivedEvents(context.Background()); err != nil {
		t.Fatalf("HandleReceivedEvents: %v", err)
	}
	if childEvents != 1 || rootEvents != 1 {
		t.Fatalf("childEvents=%d rootEvents=%d, want 1 and 1", childEvents, rootEvents)
	}
}

func TestSendCommandFailsWhenDisconnected(t *testing.T) {
	mt := newMockTransport()
	mt.connected = false
	root := newTestRoot(mt)

	_, err := root.SendCommand(context.Background(), "DOM.getDocument", nil)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
}
