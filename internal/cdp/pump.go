package cdp

import (
	"context"
	"time"
)

// pumpOne is the single re-entrant step at the center of this package: it
// flushes any notifications left over from a previous, still-unwinding
// call, checks whether the caller's own wait condition is already
// satisfied, and only then reads one more frame off the wire. Every
// blocking operation in this package — SendCommand's wait loop,
// HandleEventsUntil's poll loop — is built by calling this repeatedly.
//
// expectedID is the command id a waiter cares about, or -1 to mean "any
// progress will do". caller identifies which node's own wait loop is
// driving this call, so a nested pump triggered by a listener callback on
// a different node doesn't propagate that node's errors back up into the
// caller's loop.
func (n *Node) pumpOne(ctx context.Context, expectedID int, timeout time.Duration, caller *Node) error {
	n.stackCount++
	defer func() { n.stackCount-- }()

	if err := n.ensureListenersNotifiedOfConnect(); err != nil {
		return err
	}
	if err := n.ensureListenersNotifiedOfEvent(); err != nil {
		return err
	}
	if err := n.ensureListenersNotifiedOfCommandResponse(); err != nil {
		return err
	}

	if expectedID != -1 {
		slot, ok := n.pending[expectedID]
		if !ok || slot.state != slotWaiting {
			return nil
		}
	}

	if n.crashed {
		return newError(CodeTabCrashed, "")
	}
	if n.detached {
		return newError(CodeTargetDetached, "")
	}

	if n.parent != nil {
		return n.parent.pumpOne(ctx, -1, timeout, caller)
	}

	frame, status := n.transport.ReceiveNext(ctx, timeout)
	switch status {
	case ReceiveDisconnected:
		return newError(CodeDisconnected, "unable to receive message from renderer")
	case ReceiveTimeout:
		return newError(CodeTimeout, "timed out receiving message from renderer: %.3f", timeout.Seconds())
	}

	return n.handleMessage(ctx, frame, caller)
}

// handleMessage routes one already-received frame to the session node it
// belongs to and dispatches it. This is only ever reached on the root
// node, since a child's pumpOne always forwards to its parent before a
// frame is actually read.
func (n *Node) handleMessage(ctx context.Context, frame []byte, caller *Node) error {
	msg, err := parseMessage(frame)
	if err != nil {
		return newError(CodeUnknownError, "bad inspector message: %v", err)
	}

	client := n
	if msg.SessionID != n.sessionID {
		child, ok := n.children[msg.SessionID]
		if !ok {
			// A target we never auto-attached to; expected noise.
			return nil
		}
		client = child
	}

	holder := acquireOwnerHolder(client.owner)
	defer holder.release()

	var dispatchErr error
	if msg.Kind == KindEvent {
		dispatchErr = client.processEvent(ctx, msg)
	} else {
		dispatchErr = client.processCommandResponse(msg)
	}

	if caller == client || n == client {
		return dispatchErr
	}
	return nil
}

func (n *Node) processEvent(ctx context.Context, msg *ParsedMessage) error {
	n.unnotifiedEvent = append([]Listener(nil), n.listeners...)
	n.currentEvent = msg
	err := n.ensureListenersNotifiedOfEvent()
	n.currentEvent = nil
	if err != nil {
		return err
	}

	switch msg.Method {
	case "Inspector.detached":
		return newError(CodeDisconnected, "received Inspector.detached event")
	case "Inspector.targetCrashed":
		n.crashed = true
		return newError(CodeTabCrashed, "")
	case "Page.javascriptDialogOpening":
		return n.handleDialogOpening(ctx)
	}
	return nil
}

// handleDialogOpening marks every command already sent on this session as
// Blocked, since a JS dialog suspends the renderer's main thread and none
// of them will get a response until it's dismissed. Only commands sent
// before the dialog opened are marked: the Inspector.enable round trip
// used to detect the dialog also allocates an id, and anything sent after
// that point is assumed to know what it's doing.
func (n *Node) handleDialogOpening(ctx context.Context) error {
	maxID := n.nextMessageID()
	_, err := n.SendCommand(ctx, "Inspector.enable", map[string]string{
		"purpose": "detect if alert blocked any cmds",
	})
	for id, slot := range n.pending {
		if id >= maxID {
			continue
		}
		if slot.state == slotWaiting {
			slot.state = slotBlocked
		}
	}
	return err
}

func (n *Node) processCommandResponse(msg *ParsedMessage) error {
	slot, ok := n.pending[msg.ID]
	if !ok {
		if n.parent == nil && msg.Err != nil {
			if perr := parseInspectorError(msg.Err); perr.Code == CodeNoSuchFrame {
				return nil
			}
		}
		return newError(CodeUnknownError, "unexpected command response with id %d", msg.ID)
	}
	delete(n.pending, msg.ID)

	if slot.state == slotIgnored {
		return nil
	}

	slot.state = slotReceived
	if msg.Err != nil {
		slot.err = parseInspectorError(msg.Err)
	} else {
		slot.result = msg.Result
	}

	if msg.Err != nil {
		return nil
	}

	n.unnotifiedCmdResponse = append([]Listener(nil), n.listeners...)
	n.currentCmdResponse = slot
	err := n.ensureListenersNotifiedOfCommandResponse()
	n.currentCmdResponse = nil
	return err
}

func (n *Node) ensureListenersNotifiedOfConnect() error {
	for len(n.unnotifiedConnect) > 0 {
		l := n.unnotifiedConnect[0]
		n.unnotifiedConnect = n.unnotifiedConnect[1:]
		if err := l.OnConnected(n); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) ensureListenersNotifiedOfEvent() error {
	for len(n.unnotifiedEvent) > 0 {
		l := n.unnotifiedEvent[0]
		n.unnotifiedEvent = n.unnotifiedEvent[1:]
		if err := l.OnEvent(n, n.currentEvent.Method, n.currentEvent.Params); err != nil {
			n.unnotifiedEvent = nil
			return err
		}
	}
	return nil
}

func (n *Node) ensureListenersNotifiedOfCommandResponse() error {
	for len(n.unnotifiedCmdResponse) > 0 {
		l := n.unnotifiedCmdResponse[0]
		n.unnotifiedCmdResponse = n.unnotifiedCmdResponse[1:]
		slot := n.currentCmdResponse
		if err := l.OnCommandSuccess(n, slot.method, slot.result, slot.commandTimeout); err != nil {
			return err
		}
	}
	return nil
}
