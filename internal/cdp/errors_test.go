package cdp

import (
	"errors"
	"testing"
)

func TestParseInspectorErrorTable(t *testing.T) {
	cases := []struct {
		name string
		in   *wireError
		want Code
	}{
		{"nil error", nil, CodeUnknownError},
		{"unknown command", &wireError{Code: inspectorUnknownCommandCode, Message: "'Foo.bar' wasn't found"}, CodeUnknownCommand},
		{"session not found", &wireError{Code: inspectorSessionNotFoundCode, Message: "No session with given id"}, CodeNoSuchFrame},
		{"default context", &wireError{Message: inspectorDefaultContextError}, CodeNoSuchWindow},
		{"context error", &wireError{Message: inspectorContextError}, CodeNoSuchWindow},
		{"invalid url", &wireError{Message: inspectorInvalidURL}, CodeInvalidArgument},
		{"insecure context", &wireError{Message: inspectorInsecureContext}, CodeInvalidArgument},
		{"opaque origins", &wireError{Message: inspectorOpaqueOrigins}, CodeInvalidArgument},
		{"push permission", &wireError{Message: inspectorPushPermissionError}, CodeInvalidArgument},
		{"no such frame", &wireError{Message: inspectorNoSuchFrameError}, CodeNoSuchFrame},
		{"no target with given id", &wireError{Code: inspectorInvalidParamsCode, Message: inspectorNoTargetWithGivenIDText}, CodeNoSuchWindow},
		{"other invalid params", &wireError{Code: inspectorInvalidParamsCode, Message: "some other message"}, CodeInvalidArgument},
		{"totally unrecognized", &wireError{Code: -1, Message: "whatever"}, CodeUnknownError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := parseInspectorError(c.in)
			if got.Code != c.want {
				t.Fatalf("parseInspectorError(%+v).Code = %v, want %v", c.in, got.Code, c.want)
			}
		})
	}
}

func TestProtocolErrorIsMatchesOnCodeOnly(t *testing.T) {
	err := newError(CodeTimeout, "timed out after 30 seconds waiting for something specific")
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("errors.Is should match on Code regardless of Message")
	}
	if errors.Is(err, ErrDisconnected) {
		t.Fatal("errors.Is should not match a different Code")
	}
}

func TestMarshalParamsNilBecomesEmptyObject(t *testing.T) {
	raw, err := marshalParams(nil)
	if err != nil {
		t.Fatalf("marshalParams(nil): %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("marshalParams(nil) = %s, want {}", raw)
	}
}
