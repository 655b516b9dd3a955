package cdp

import (
	"encoding/json"
	"fmt"
)

// Code classifies the outcome of a session or pump operation, mirroring
// the small taxonomy CDP's own inspector errors collapse onto.
type Code int

const (
	CodeOK Code = iota
	CodeDisconnected
	CodeTimeout
	CodeTabCrashed
	CodeTargetDetached
	CodeUnexpectedAlertOpen
	CodeUnknownCommand
	CodeNoSuchFrame
	CodeNoSuchWindow
	CodeInvalidArgument
	CodeUnknownError
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeDisconnected:
		return "disconnected"
	case CodeTimeout:
		return "timeout"
	case CodeTabCrashed:
		return "tab crashed"
	case CodeTargetDetached:
		return "target detached"
	case CodeUnexpectedAlertOpen:
		return "unexpected alert open"
	case CodeUnknownCommand:
		return "unknown command"
	case CodeNoSuchFrame:
		return "no such frame"
	case CodeNoSuchWindow:
		return "no such window"
	case CodeInvalidArgument:
		return "invalid argument"
	default:
		return "unknown error"
	}
}

// ProtocolError is the error type returned by every operation in this
// package that can fail against the browser end. Compare against the
// package-level sentinels with errors.Is; a bare Code check also works
// since Is only compares Code.
type ProtocolError struct {
	Code    Code
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrTimeout) etc. work regardless of message text.
func (e *ProtocolError) Is(target error) bool {
	other, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// Sentinels for the codes callers are expected to branch on directly.
var (
	ErrDisconnected        = &ProtocolError{Code: CodeDisconnected}
	ErrTimeout             = &ProtocolError{Code: CodeTimeout}
	ErrTabCrashed          = &ProtocolError{Code: CodeTabCrashed}
	ErrTargetDetached      = &ProtocolError{Code: CodeTargetDetached}
	ErrUnexpectedAlertOpen = &ProtocolError{Code: CodeUnexpectedAlertOpen}
)

func newError(code Code, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wireError is the {code,message} shape CDP embeds in a command response
// when the command failed.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// These string and code constants come straight off the inspector's own
// error text; there is no structured error taxonomy on the wire, so
// mapping to Code means matching on exactly these values.
const (
	inspectorUnknownCommandCode  = -32601
	inspectorSessionNotFoundCode = -32001
	inspectorInvalidParamsCode   = -32602

	inspectorDefaultContextError     = "Cannot find default execution context"
	inspectorContextError            = "Cannot find context with specified id"
	inspectorInvalidURL              = "Cannot navigate to invalid URL"
	inspectorInsecureContext         = "Permission can't be granted in current context."
	inspectorOpaqueOrigins           = "Permission can't be granted to opaque origins."
	inspectorPushPermissionError     = "Push Permission without userVisibleOnly:true isn't supported"
	inspectorNoSuchFrameError        = "Frame with the given id was not found."
	inspectorNoTargetWithGivenIDText = "No target with given id found"
)

// parseInspectorError maps a raw command-response error onto Code. The
// order matters: a couple of inspector codes are unambiguous on their own,
// everything else is disambiguated by exact message text before falling
// back to the code again.
func parseInspectorError(e *wireError) *ProtocolError {
	if e == nil {
		return newError(CodeUnknownError, "inspector error with no error message")
	}

	switch e.Code {
	case inspectorUnknownCommandCode:
		msg := e.Message
		if msg == "" {
			msg = "unknown command"
		}
		return newError(CodeUnknownCommand, "%s", msg)
	case inspectorSessionNotFoundCode:
		msg := e.Message
		if msg == "" {
			msg = "inspector detached"
		}
		return newError(CodeNoSuchFrame, "%s", msg)
	}

	switch e.Message {
	case inspectorDefaultContextError, inspectorContextError:
		return newError(CodeNoSuchWindow, "")
	case inspectorInvalidURL:
		return newError(CodeInvalidArgument, "")
	case inspectorInsecureContext:
		return newError(CodeInvalidArgument, "feature cannot be used in insecure context")
	case inspectorPushPermissionError, inspectorOpaqueOrigins:
		return newError(CodeInvalidArgument, "%s", e.Message)
	case inspectorNoSuchFrameError:
		return newError(CodeNoSuchFrame, "%s", e.Message)
	}

	if e.Code == inspectorInvalidParamsCode {
		if e.Message == inspectorNoTargetWithGivenIDText {
			return newError(CodeNoSuchWindow, "%s", e.Message)
		}
		return newError(CodeInvalidArgument, "%s", e.Message)
	}

	return newError(CodeUnknownError, "unhandled inspector error (code %d): %s", e.Code, e.Message)
}

// marshalParams normalizes a command's params argument: nil becomes an
// empty object, a json.RawMessage passes through untouched, anything else
// is marshaled.
func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage("{}"), nil
		}
		return raw, nil
	}
	buf, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal command params: %w", err)
	}
	return buf, nil
}
