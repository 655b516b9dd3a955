package cdp

import (
	"encoding/json"
	"fmt"
)

// command is the outbound wire shape of every CDP request.
type command struct {
	ID        int             `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// wireMessage is used to sniff an inbound frame's shape: it has an id if
// it's a command response, a method if it's an event, never both.
type wireMessage struct {
	ID        *int            `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *wireError      `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// MessageKind tags a ParsedMessage as either an event or a command response.
type MessageKind int

const (
	KindEvent MessageKind = iota
	KindCommandResponse
)

// ParsedMessage is one decoded inbound frame, with the event/response
// fields it doesn't use left zero.
type ParsedMessage struct {
	Kind      MessageKind
	SessionID string

	Method string
	Params json.RawMessage

	ID     int
	Result json.RawMessage
	Err    *wireError
}

func serializeCommand(id int, method string, params json.RawMessage, sessionID string) ([]byte, error) {
	buf, err := json.Marshal(command{ID: id, Method: method, Params: params, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("serialize command %s: %w", method, err)
	}
	return buf, nil
}

// parseMessage decodes one inbound WebSocket text frame. Fields the codec
// doesn't understand pass through as json.RawMessage rather than being
// re-encoded, so values Go's json package can't round-trip losslessly
// (lone surrogates in inspector strings, for instance) are never touched.
func parseMessage(frame []byte) (*ParsedMessage, error) {
	var wm wireMessage
	if err := json.Unmarshal(frame, &wm); err != nil {
		return nil, fmt.Errorf("bad inspector message: %w", err)
	}

	if wm.ID != nil {
		result := wm.Result
		if result == nil && wm.Error == nil {
			// Commands like Tracing.start/end reply with no "result" key
			// at all on success; treat that as an empty result object
			// rather than a parse failure.
			result = json.RawMessage("{}")
		}
		return &ParsedMessage{
			Kind:      KindCommandResponse,
			SessionID: wm.SessionID,
			ID:        *wm.ID,
			Result:    result,
			Err:       wm.Error,
		}, nil
	}

	if wm.Method == "" {
		return nil, fmt.Errorf("bad inspector message: neither id nor method present")
	}

	params := wm.Params
	if params == nil {
		params = json.RawMessage("{}")
	}
	if err := rewriteBidiPayload(wm.Method, &params); err != nil {
		return nil, err
	}

	return &ParsedMessage{
		Kind:      KindEvent,
		SessionID: wm.SessionID,
		Method:    wm.Method,
		Params:    params,
	}, nil
}
