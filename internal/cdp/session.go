package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// BrowserwideNodeID is the id conventionally given to the root node that
// represents the browser target itself, as opposed to any page or worker
// target attached under it. Session setup is skipped for it, since there
// is no page in a browser-level session to inject globals into.
const BrowserwideNodeID = "browser"

// defaultCommandWaitTimeout bounds how long SendCommand will wait for a
// response when the caller didn't ask for a specific timeout. Chosen to
// be generous enough that it only ever fires on a genuinely wedged
// browser, not a slow command.
const defaultCommandWaitTimeout = 10 * time.Minute

// Node is one entry in a session tree: the root owns the Transport and the
// shared command-id counter, and zero or more child Nodes hang directly
// off it, one per attached page, frame, or worker session. All Node state
// is mutated only from the goroutine driving the pump; nothing here is
// safe to call concurrently from two goroutines at once, by design.
type Node struct {
	id        string
	sessionID string
	url       string

	parent   *Node
	children map[string]*Node

	owner     Owner
	listeners []Listener

	pending map[int]*responseSlot

	transport      Transport
	nextID         int
	frontendCloser FrontendCloser

	crashed  bool
	detached bool

	isRemoteEndConfigured bool
	isMainPage            bool

	stackCount int

	unnotifiedConnect     []Listener
	unnotifiedEvent       []Listener
	currentEvent          *ParsedMessage
	unnotifiedCmdResponse []Listener
	currentCmdResponse    *responseSlot
}

// NewRootNode creates the session tree's root, bound to a fresh Transport
// and a WebSocket debugger URL it has not yet connected to.
func NewRootNode(id, url string, transport Transport) *Node {
	return &Node{
		id:        id,
		url:       url,
		transport: transport,
		children:  make(map[string]*Node),
		pending:   make(map[int]*responseSlot),
		nextID:    1,
	}
}

// NewChildNode creates a session node for a page, frame, or worker target
// that has been auto-attached under some root. It is not usable until
// Attach is called.
func NewChildNode(id, sessionID string) *Node {
	return &Node{
		id:        id,
		sessionID: sessionID,
		pending:   make(map[int]*responseSlot),
	}
}

// ID returns the target id this node was constructed with.
func (n *Node) ID() string { return n.id }

// SessionID returns the CDP session id used to route wire messages to
// this node. Empty for the root node, which is addressed by omitting
// sessionId on the wire entirely.
func (n *Node) SessionID() string { return n.sessionID }

// Owner returns the collaborator this node was told about with SetOwner,
// or nil if none was set.
func (n *Node) Owner() Owner { return n.owner }

// SetOwner attaches the embedder-side object (a web view, typically) that
// owns this session. It may be queried again through DialogManager to
// resolve a dialog blocking a command.
func (n *Node) SetOwner(o Owner) { n.owner = o }

// SetMainPage marks this node as backing the tab's primary document frame,
// as opposed to an OOPIF or a devtools-only auxiliary target.
func (n *Node) SetMainPage(v bool) { n.isMainPage = v }

// IsMainPage reports whether SetMainPage(true) was called on this node.
func (n *Node) IsMainPage() bool { return n.isMainPage }

// SetFrontendCloser registers the hook ConnectIfNecessary calls, on the
// root node only, if the first connect attempt fails. Calling it on a
// non-root node is a no-op: only the root ever actually dials.
func (n *Node) SetFrontendCloser(fn FrontendCloser) {
	if n.parent != nil {
		return
	}
	n.frontendCloser = fn
}

// SetDetached marks the session as detached, e.g. because its target
// closed. Every subsequent pump on a detached session fails with
// ErrTargetDetached, so a send that waits for its response fails too. The
// command frame itself is still written to the transport first, and sends
// that do not wait (SendCommandAsync, SendCommandAndIgnoreResponse) return
// without error.
func (n *Node) SetDetached() { n.detached = true }

// IsDetached reports whether SetDetached has been called.
func (n *Node) IsDetached() bool { return n.detached }

// WasCrashed reports whether this session's renderer has crashed, as
// observed through an Inspector.targetCrashed event.
func (n *Node) WasCrashed() bool { return n.crashed }

// RootNode walks up to the root of this node's session tree.
func (n *Node) RootNode() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// ParentNode returns the immediate parent, or nil for the root.
func (n *Node) ParentNode() *Node { return n.parent }

// IsConnected reports whether the underlying Transport is connected. A
// child node delegates to its root, since only the root owns a Transport.
func (n *Node) IsConnected() bool {
	if n.parent != nil {
		return n.parent.IsConnected()
	}
	return n.transport != nil && n.transport.IsConnected()
}

// AddListener registers a listener to receive this node's future
// notifications. If the node is already connected and the listener wants
// connection notifications, it will never see OnConnected for the
// connection that already happened — only a fresh connect will queue one.
func (n *Node) AddListener(l Listener) {
	if n.IsConnected() && l.ListensToConnections() {
		fmt.Fprintf(os.Stderr, "cdp: listener registered after connect will miss the OnConnected notification for session %q\n", n.id)
	}
	n.listeners = append(n.listeners, l)
}

// Attach binds a freshly constructed child node under parent, which must
// itself be a root node. If the parent is already connected, the child is
// walked through its own listener reset and per-connection setup
// immediately, since it will never see a Connect event of its own.
func (n *Node) Attach(ctx context.Context, parent *Node) error {
	if n.parent != nil || n.transport != nil {
		return newError(CodeUnknownError, "attaching an already-attached node is not allowed")
	}
	if parent.parent != nil {
		return newError(CodeUnknownError, "a session node can only be attached to a root node")
	}

	n.parent = parent
	if parent.children == nil {
		parent.children = make(map[string]*Node)
	}
	parent.children[n.sessionID] = n

	if parent.IsConnected() {
		n.resetListeners()
		return n.onConnected(ctx)
	}
	return nil
}

func (n *Node) rootNode() *Node { return n.RootNode() }

func (n *Node) nextMessageID() int {
	return n.rootNode().nextID
}

func (n *Node) advanceNextMessageID() int {
	root := n.rootNode()
	id := root.nextID
	root.nextID++
	return id
}

// ConnectIfNecessary dials the browser if not already connected. It fails
// immediately if called re-entrantly from inside a pump. Non-root nodes
// forward the call to their root, since there is only ever one Transport
// per tree.
func (n *Node) ConnectIfNecessary(ctx context.Context) error {
	if n.stackCount > 0 {
		return newError(CodeUnknownError, "cannot connect while a message is being processed")
	}
	if n.parent != nil {
		return n.parent.ConnectIfNecessary(ctx)
	}
	if n.transport.IsConnected() {
		return nil
	}

	n.resetListeners()

	if err := n.transport.Connect(ctx, n.url); err != nil {
		if n.frontendCloser == nil {
			return newError(CodeDisconnected, "unable to connect to renderer: %v", err)
		}
		if closeErr := n.frontendCloser(); closeErr != nil {
			return newError(CodeDisconnected, "unable to connect to renderer: %v", closeErr)
		}
		if err := n.transport.Connect(ctx, n.url); err != nil {
			return newError(CodeDisconnected, "unable to connect to renderer: %v", err)
		}
	}

	return n.onConnected(ctx)
}

// resetListeners re-queues every connection-interested listener for an
// OnConnected notification and clears everything a stale connection left
// behind: buffered events, in-flight command bookkeeping, the
// per-connection setup flag. It recurses into every child, since one
// Transport reconnect invalidates all of them at once.
func (n *Node) resetListeners() {
	n.isRemoteEndConfigured = false
	n.unnotifiedConnect = nil
	for _, l := range n.listeners {
		if l.ListensToConnections() {
			n.unnotifiedConnect = append(n.unnotifiedConnect, l)
		}
	}
	n.unnotifiedEvent = nil
	n.pending = make(map[int]*responseSlot)

	for _, child := range n.children {
		child.resetListeners()
	}
}

func (n *Node) onConnected(ctx context.Context) error {
	if err := n.setUpDevTools(ctx); err != nil {
		return err
	}
	if err := n.ensureListenersNotifiedOfConnect(); err != nil {
		return err
	}
	for _, child := range n.children {
		if err := child.onConnected(ctx); err != nil {
			return err
		}
	}
	return nil
}

// canonicalGlobalsScript restores the identity of a handful of built-ins a
// page script might have overwritten, under names automation frameworks
// have historically used as a compatibility escape hatch. Injected both as
// a new-document script (for future navigations) and evaluated immediately
// (for the document already loaded when the session attaches).
const canonicalGlobalsScript = `(function() {
  window.cdc_adoQpoasnfa76pfcZLmcfl_Array = window.Array;
  window.cdc_adoQpoasnfa76pfcZLmcfl_Promise = window.Promise;
  window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol = window.Symbol;
})();`

func (n *Node) setUpDevTools(ctx context.Context) error {
	if n.isRemoteEndConfigured {
		return nil
	}

	skip := n.id == BrowserwideNodeID
	if !skip && n.owner != nil {
		skip = n.owner.IsServiceWorker()
	}

	if !skip {
		if err := n.SendCommandAndIgnoreResponse(ctx, "Page.addScriptToEvaluateOnNewDocument", map[string]string{
			"source": canonicalGlobalsScript,
		}); err != nil {
			return err
		}
		if err := n.SendCommandAndIgnoreResponse(ctx, "Runtime.evaluate", map[string]string{
			"expression": canonicalGlobalsScript,
		}); err != nil {
			return err
		}
	}

	n.isRemoteEndConfigured = true
	return nil
}

// sendCommandInternal implements every flavor of command send. A slot is
// always allocated, whether or not the caller waits on it: that's what lets
// a response delivered after the caller stopped watching (async, ignored,
// or dialog-blocked) still be consumed by processCommandResponse instead of
// showing up later as an unmatched response against some other command's
// id. wait controls only whether this call blocks for that slot's result.
func (n *Node) sendCommandInternal(ctx context.Context, method string, params any, wait bool, timeout time.Duration) (json.RawMessage, error) {
	if !n.IsConnected() {
		return nil, newError(CodeDisconnected, "not connected to DevTools")
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	root := n.rootNode()
	id := root.advanceNextMessageID()

	frame, err := serializeCommand(id, method, raw, n.sessionID)
	if err != nil {
		return nil, err
	}

	if err := root.transport.Send(ctx, frame); err != nil {
		return nil, newError(CodeDisconnected, "unable to send message to renderer: %v", err)
	}

	slot := &responseSlot{state: slotWaiting, method: method, commandTimeout: timeout}
	n.pending[id] = slot

	if !wait {
		return json.RawMessage("{}"), nil
	}

	effectiveTimeout := timeout
	if effectiveTimeout <= 0 {
		effectiveTimeout = defaultCommandWaitTimeout
	}

	for slot.state == slotWaiting {
		if err := n.pumpOne(ctx, id, effectiveTimeout, n); err != nil {
			return nil, err
		}
	}

	if slot.state == slotBlocked {
		slot.state = slotIgnored
		if text, dialogErr := n.dialogMessage(); dialogErr == nil {
			return nil, newError(CodeUnexpectedAlertOpen, "%s", text)
		}
		return nil, newError(CodeUnexpectedAlertOpen, "")
	}

	if slot.err != nil {
		return nil, slot.err
	}
	return slot.result, nil
}

func (n *Node) dialogMessage() (string, error) {
	if n.owner == nil {
		return "", newError(CodeUnknownError, "no owner to ask for the dialog message")
	}
	dm, ok := n.owner.(DialogManager)
	if !ok {
		return "", newError(CodeUnknownError, "owner has no dialog manager")
	}
	return dm.DialogMessage()
}

// SendCommand sends method with params and blocks until its response
// arrives, using the default wait timeout.
func (n *Node) SendCommand(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return n.SendCommandWithTimeout(ctx, method, params, 0)
}

// SendCommandWithTimeout is SendCommand with an explicit wait bound; a
// non-positive timeout means "use the default".
func (n *Node) SendCommandWithTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	return n.sendCommandInternal(ctx, method, params, true, timeout)
}

// SendCommandAsync sends method with params and returns as soon as the
// frame is written, without waiting for the response. The response is
// still tracked and will reach registered listeners' OnCommandSuccess
// when it eventually arrives.
func (n *Node) SendCommandAsync(ctx context.Context, method string, params any) error {
	_, err := n.sendCommandInternal(ctx, method, params, false, 0)
	return err
}

// SendCommandAndIgnoreResponse sends method with params without waiting for
// its response and discards the result. A slot is still allocated for it,
// the same as SendCommandAsync, so the eventual response is consumed by
// processCommandResponse instead of surfacing later as an unmatched
// response against a different command's id.
func (n *Node) SendCommandAndIgnoreResponse(ctx context.Context, method string, params any) error {
	_, err := n.sendCommandInternal(ctx, method, params, false, 0)
	return err
}

// HandleReceivedEvents drains every currently buffered inbound frame
// without blocking for more. Useful for giving listeners a chance to
// react to events that arrived asynchronously between commands.
func (n *Node) HandleReceivedEvents(ctx context.Context) error {
	return n.HandleEventsUntil(ctx, func() (bool, error) { return true, nil }, 0)
}

// HandleEventsUntil pumps messages until cond reports done, or timeout
// elapses. cond is only consulted when no frame is currently buffered, so
// it never misses a frame that was already waiting.
func (n *Node) HandleEventsUntil(ctx context.Context, cond func() (bool, error), timeout time.Duration) error {
	root := n.rootNode()
	if !root.transport.IsConnected() {
		return newError(CodeDisconnected, "not connected to DevTools")
	}

	deadline := time.Now().Add(timeout)
	expired := func() bool { return !time.Now().Before(deadline) }

	for {
		if !root.transport.HasNext() {
			done, err := cond()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		sub := 500 * time.Millisecond
		if remaining := time.Until(deadline); remaining < sub {
			sub = remaining
		}
		if sub < 0 {
			sub = 0
		}

		err := n.pumpOne(ctx, -1, sub, n)
		if err == nil {
			continue
		}

		if pe, ok := err.(*ProtocolError); ok && pe.Code == CodeTimeout {
			if expired() {
				return newError(CodeTimeout, "timed out receiving message from renderer: %.3f", timeout.Seconds())
			}
			continue
		}
		return err
	}
}
