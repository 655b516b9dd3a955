package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeBidiIDRoundTrip(t *testing.T) {
	for userID := 0; userID < 5; userID++ {
		wireID, err := encodeBidiID(userID, reservedChannelCount)
		if err != nil {
			t.Fatalf("encodeBidiID(%d): %v", userID, err)
		}
		if got := decodeBidiID(wireID); got != userID {
			t.Fatalf("decodeBidiID(encodeBidiID(%d)) = %d", userID, got)
		}
	}
}

func TestEncodeBidiIDRejectsOutOfRangeChannel(t *testing.T) {
	if _, err := encodeBidiID(1, maxChannelCount); err == nil {
		t.Fatal("expected an error for a channel index at maxChannelCount")
	}
	if _, err := encodeBidiID(1, -1); err == nil {
		t.Fatal("expected an error for a negative channel index")
	}
}

func TestRewriteBidiPayloadUnwrapsTunnel(t *testing.T) {
	wireID, err := encodeBidiID(3, reservedChannelCount)
	if err != nil {
		t.Fatalf("encodeBidiID: %v", err)
	}

	payload := `{"id":` + itoa(wireID) + `,"type":"success","result":{}}`
	wrapper, err := json.Marshal(struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}{Name: "sendBidiResponse", Payload: payload})
	if err != nil {
		t.Fatalf("marshal wrapper: %v", err)
	}

	params := json.RawMessage(wrapper)
	if err := rewriteBidiPayload("Runtime.bindingCalled", &params); err != nil {
		t.Fatalf("rewriteBidiPayload: %v", err)
	}

	var rewritten struct {
		Payload struct {
			ID int `json:"id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(params, &rewritten); err != nil {
		t.Fatalf("unmarshal rewritten params: %v", err)
	}
	if rewritten.Payload.ID != 3 {
		t.Fatalf("rewritten payload id = %d, want 3", rewritten.Payload.ID)
	}
}

func TestRewriteBidiPayloadIgnoresOtherBindings(t *testing.T) {
	params := json.RawMessage(`{"name":"someOtherBinding","payload":"{}"}`)
	original := append(json.RawMessage(nil), params...)
	if err := rewriteBidiPayload("Runtime.bindingCalled", &params); err != nil {
		t.Fatalf("rewriteBidiPayload: %v", err)
	}
	if string(params) != string(original) {
		t.Fatalf("params mutated for a non-BiDi binding: %s", params)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestSendBidiCommandEncodesIDAndTunnelsThroughRuntimeEvaluate(t *testing.T) {
	mt := newMockTransport()
	root := newTestRoot(mt)

	err := root.SendBidiCommand(context.Background(), map[string]any{
		"id":     float64(5),
		"method": "session.status",
		"params": map[string]any{},
	})
	if err != nil {
		t.Fatalf("SendBidiCommand: %v", err)
	}

	var sent command
	if err := json.Unmarshal(mt.lastSent(), &sent); err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	if sent.Method != "Runtime.evaluate" {
		t.Fatalf("method = %s, want Runtime.evaluate", sent.Method)
	}

	var params struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(sent.Params, &params); err != nil {
		t.Fatalf("decode Runtime.evaluate params: %v", err)
	}

	wantPrefix := "onBidiMessage("
	if !strings.HasPrefix(params.Expression, wantPrefix) {
		t.Fatalf("expression = %q, want prefix %q", params.Expression, wantPrefix)
	}

	var arg string
	rawArg := params.Expression[len(wantPrefix) : len(params.Expression)-1]
	if err := json.Unmarshal([]byte(rawArg), &arg); err != nil {
		t.Fatalf("decode expression argument: %v", err)
	}

	var wireCommand struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal([]byte(arg), &wireCommand); err != nil {
		t.Fatalf("decode inner BiDi command: %v", err)
	}

	wantWireID, err := encodeBidiID(5, reservedChannelCount)
	if err != nil {
		t.Fatalf("encodeBidiID: %v", err)
	}
	if wireCommand.ID != wantWireID {
		t.Fatalf("wire id = %d, want %d", wireCommand.ID, wantWireID)
	}

	if len(root.pending) != 1 {
		t.Fatalf("pending = %d, want 1 (SendCommandAndIgnoreResponse still allocates a slot)", len(root.pending))
	}
}

func TestSendBidiCommandRejectsMissingID(t *testing.T) {
	root := newTestRoot(newMockTransport())
	err := root.SendBidiCommand(context.Background(), map[string]any{"method": "session.status"})
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Code != CodeInvalidArgument {
		t.Fatalf("err = %v, want a CodeInvalidArgument ProtocolError", err)
	}
}
