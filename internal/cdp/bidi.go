package cdp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Channel accounting for BiDi commands tunneled through a CDP binding.
// The wire only has one integer id space, so a BiDi command id and a
// small channel index are folded together: reservedChannelCount is set
// aside for BiDi's own internal bookkeeping channel, userChannelCount is
// the single channel this client hands out to callers.
const (
	reservedChannelCount = 1
	userChannelCount     = 1
	maxChannelCount      = reservedChannelCount + userChannelCount
)

// encodeBidiID folds a user-space BiDi command id and a channel index into
// one wire id.
func encodeBidiID(userID, channel int) (int, error) {
	if channel < 0 || channel >= maxChannelCount {
		return 0, newError(CodeUnknownError, "BiDi channel %d is out of range", channel)
	}
	return userID*maxChannelCount + channel, nil
}

// decodeBidiID recovers the user-space id from a wire id produced by
// encodeBidiID. The channel index itself is discarded: nothing downstream
// demultiplexes on it, since this client only ever hands out channel
// reservedChannelCount (1).
func decodeBidiID(wireID int) int {
	return wireID / maxChannelCount
}

// isBidiBindingCalled reports whether an inbound event is the
// Runtime.bindingCalled tunnel BiDi uses to smuggle its own message frames
// across the CDP wire.
func isBidiBindingCalled(method string, params json.RawMessage) (bool, error) {
	if method != "Runtime.bindingCalled" {
		return false, nil
	}
	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &head); err != nil {
		return false, fmt.Errorf("decode Runtime.bindingCalled params: %w", err)
	}
	if head.Name == "" {
		return false, newError(CodeUnknownError, "name is missing in the Runtime.bindingCalled params")
	}
	return head.Name == "sendBidiResponse", nil
}

// rewriteBidiPayload decodes a tunneled BiDi payload in place and rewrites
// its id back to user space, so a listener never has to know the wire
// encodes two id spaces into one.
func rewriteBidiPayload(method string, params *json.RawMessage) error {
	isBidi, err := isBidiBindingCalled(method, *params)
	if err != nil {
		return err
	}
	if !isBidi {
		return nil
	}

	var wrapper struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(*params, &wrapper); err != nil {
		return fmt.Errorf("decode Runtime.bindingCalled params: %w", err)
	}
	if wrapper.Payload == "" {
		return newError(CodeUnknownError, "payload is missing in the Runtime.bindingCalled params")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(wrapper.Payload), &payload); err != nil {
		return newError(CodeUnknownError, "unable to deserialize the BiDi payload")
	}

	if rawID, ok := payload["id"]; ok {
		if f, ok := rawID.(float64); ok {
			payload["id"] = decodeBidiID(int(f))
		}
	}

	decodedPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("re-encode BiDi payload: %w", err)
	}

	rewritten, err := json.Marshal(struct {
		Name    string          `json:"name"`
		Payload json.RawMessage `json:"payload"`
	}{Name: wrapper.Name, Payload: decodedPayload})
	if err != nil {
		return fmt.Errorf("re-encode Runtime.bindingCalled params: %w", err)
	}

	*params = rewritten
	return nil
}

// SendBidiCommand tunnels a WebDriver BiDi command over this session's CDP
// connection through the onBidiMessage bridge the browser's BiDi mapper
// installs. command must already carry its user-space "id" field; this
// rewrites that id onto the wire id space (always via reservedChannelCount,
// the first user channel) before sending. The BiDi reply travels back
// separately through the Runtime.bindingCalled tunnel rewriteBidiPayload
// unwraps, so Runtime.evaluate's own response is discarded here.
//
// The wire ids produced here share one integer space with the root's own
// command counter; nothing checks that the two never collide.
func (n *Node) SendBidiCommand(ctx context.Context, command map[string]any) error {
	rawID, ok := command["id"]
	if !ok {
		return newError(CodeInvalidArgument, "BiDi command id not found")
	}
	userID, ok := bidiCommandID(rawID)
	if !ok {
		return newError(CodeInvalidArgument, "BiDi command id is not a number")
	}

	wireID, err := encodeBidiID(userID, reservedChannelCount)
	if err != nil {
		return err
	}
	command["id"] = wireID

	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("marshal BiDi command: %w", err)
	}
	arg, err := json.Marshal(string(payload))
	if err != nil {
		return fmt.Errorf("marshal BiDi command argument: %w", err)
	}

	return n.SendCommandAndIgnoreResponse(ctx, "Runtime.evaluate", map[string]string{
		"expression": "onBidiMessage(" + string(arg) + ")",
	})
}

func bidiCommandID(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}
