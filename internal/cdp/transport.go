package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ReceiveStatus is the outcome of one Transport.ReceiveNext call.
type ReceiveStatus int

const (
	ReceiveOK ReceiveStatus = iota
	ReceiveTimeout
	ReceiveDisconnected
)

// Transport is a message-oriented duplex channel between a Session Node
// tree and a browser: connect once, send whole text frames, receive the
// next whole text frame with a bounded wait. Implementations must be safe
// for one background reader plus one foreground caller to use
// concurrently; nothing else in this package assumes more concurrency
// than that.
type Transport interface {
	Connect(ctx context.Context, url string) error
	IsConnected() bool
	Send(ctx context.Context, frame []byte) error
	ReceiveNext(ctx context.Context, timeout time.Duration) ([]byte, ReceiveStatus)
	HasNext() bool
	// SetNotification registers a callback invoked at least once for
	// every frame that arrives while the queue was empty. The callback
	// must not block or touch session state directly; its only job is
	// to schedule future drainage (e.g. wake a select loop).
	SetNotification(func())
	Close() error
}

// wsTransport is the default Transport, backed by a WebSocket connection.
// Grounded on chromedriver's SyncWebSocket::Core: a background reader
// drains the socket into a queue, and the foreground caller drains that
// queue on its own schedule rather than racing the reader for the socket.
type wsTransport struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	frames    chan []byte
	closed    chan struct{}
	closeErr  error
	notify    func()
}

func (t *wsTransport) SetNotification(handler func()) {
	t.mu.Lock()
	t.notify = handler
	t.mu.Unlock()
}

// NewTransport returns a Transport backed by github.com/coder/websocket.
func NewTransport() Transport {
	return &wsTransport{}
}

func (t *wsTransport) Connect(ctx context.Context, rawURL string) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, rawURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", rawURL, err)
	}
	conn.SetReadLimit(-1)

	frames := make(chan []byte, 4096)
	closed := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.frames = frames
	t.closed = closed
	t.closeErr = nil
	t.mu.Unlock()

	go t.recvLoop(conn, frames, closed)
	return nil
}

func (t *wsTransport) recvLoop(conn *websocket.Conn, frames chan []byte, closed chan struct{}) {
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			t.connected = false
			t.closeErr = err
			t.mu.Unlock()
			close(closed)
			return
		}

		wasEmpty := len(frames) == 0
		frames <- data

		if wasEmpty {
			t.mu.Lock()
			notify := t.notify
			t.mu.Unlock()
			if notify != nil {
				notify()
			}
		}
	}
}

func (t *wsTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *wsTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn, connected := t.conn, t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// HasNext reports whether a frame is already buffered. It is a hint only:
// the frame it observes may since have been consumed by the time
// ReceiveNext is called, since both are driven from the same cooperative
// pump loop and never called concurrently with each other.
func (t *wsTransport) HasNext() bool {
	t.mu.Lock()
	frames := t.frames
	t.mu.Unlock()
	if frames == nil {
		return false
	}
	return len(frames) > 0
}

func (t *wsTransport) ReceiveNext(ctx context.Context, timeout time.Duration) ([]byte, ReceiveStatus) {
	t.mu.Lock()
	frames, closed := t.frames, t.closed
	t.mu.Unlock()

	if frames == nil {
		return nil, ReceiveDisconnected
	}

	if timeout <= 0 {
		select {
		case data, ok := <-frames:
			if !ok {
				return nil, ReceiveDisconnected
			}
			return data, ReceiveOK
		default:
			return nil, ReceiveTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-frames:
		if !ok {
			return nil, ReceiveDisconnected
		}
		return data, ReceiveOK
	case <-closed:
		select {
		case data, ok := <-frames:
			if ok {
				return data, ReceiveOK
			}
		default:
		}
		return nil, ReceiveDisconnected
	case <-timer.C:
		return nil, ReceiveTimeout
	case <-ctx.Done():
		return nil, ReceiveTimeout
	}
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.connected = false
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}
