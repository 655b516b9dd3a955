package cdp

import (
	"encoding/json"
	"time"
)

// Listener receives connection, event, and command-response notifications
// from a Session Node, in the order they occurred, exactly once each.
type Listener interface {
	// ListensToConnections reports whether OnConnected should be queued
	// for this listener. Most listeners only care about events and can
	// return false here.
	ListensToConnections() bool
	OnConnected(n *Node) error
	OnEvent(n *Node, method string, params json.RawMessage) error
	OnCommandSuccess(n *Node, method string, result json.RawMessage, timeout time.Duration) error
}

// ListenerFuncs adapts individual callbacks into a Listener, the same way
// http.HandlerFunc adapts a function into a Handler. A listener that only
// cares about one kind of notification can leave the other fields nil.
type ListenerFuncs struct {
	ListenToConnections bool
	OnConnectedFunc      func(n *Node) error
	OnEventFunc          func(n *Node, method string, params json.RawMessage) error
	OnCommandSuccessFunc func(n *Node, method string, result json.RawMessage, timeout time.Duration) error
}

func (f ListenerFuncs) ListensToConnections() bool { return f.ListenToConnections }

func (f ListenerFuncs) OnConnected(n *Node) error {
	if f.OnConnectedFunc == nil {
		return nil
	}
	return f.OnConnectedFunc(n)
}

func (f ListenerFuncs) OnEvent(n *Node, method string, params json.RawMessage) error {
	if f.OnEventFunc == nil {
		return nil
	}
	return f.OnEventFunc(n, method, params)
}

func (f ListenerFuncs) OnCommandSuccess(n *Node, method string, result json.RawMessage, timeout time.Duration) error {
	if f.OnCommandSuccessFunc == nil {
		return nil
	}
	return f.OnCommandSuccessFunc(n, method, result, timeout)
}
