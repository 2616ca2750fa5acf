package signaling

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/datastream/internal/protocol"
)

const (
	maxMessageBytes = 64 * 1024       // inbound frame limit; SDP with many candidates stays well below
	writeWait       = 5 * time.Second // per-frame write deadline
)

type socketState int32

const (
	socketIdle socketState = iota
	socketConnecting
	socketOpen
	socketClosed
)

// WebSocket implements Socket on top of gorilla/websocket. Connecting and
// reading happen on a goroutine started by Open; handlers run on it.
type WebSocket struct {
	dialer *websocket.Dialer
	header http.Header

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	mu        sync.Mutex // guards conn and the handlers
	conn      *websocket.Conn
	onOpen    func()
	onClosed  func()
	onError   func(error)
	onMessage func(protocol.Payload)

	writeMu    sync.Mutex // gorilla allows one concurrent writer
	closedOnce sync.Once
}

// NewWebSocket returns an unopened socket. header is sent with the upgrade
// request and may be nil.
func NewWebSocket(header http.Header) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		dialer: websocket.DefaultDialer,
		header: header,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Open starts dialing url in the background. Only the first call has any
// effect.
func (w *WebSocket) Open(url string) {
	if !w.state.CompareAndSwap(int32(socketIdle), int32(socketConnecting)) {
		return
	}
	go w.run(url)
}

func (w *WebSocket) run(url string) {
	conn, err := dial(w.ctx, w.dialer, url, w.header)
	if err != nil {
		w.state.Store(int32(socketClosed))
		if fn := w.handlers().onError; fn != nil {
			fn(err)
		}
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	w.mu.Lock()
	if w.ctx.Err() != nil {
		// Close raced with the dial.
		w.mu.Unlock()
		conn.Close()
		w.state.Store(int32(socketClosed))
		if fn := w.handlers().onError; fn != nil {
			fn(w.ctx.Err())
		}
		return
	}
	w.conn = conn
	w.mu.Unlock()

	w.state.Store(int32(socketOpen))
	if fn := w.handlers().onOpen; fn != nil {
		fn()
	}

	w.readLoop(conn)
}

// readLoop forwards frames until the connection fails or is closed.
func (w *WebSocket) readLoop(conn *websocket.Conn) {
	defer func() {
		w.state.Store(int32(socketClosed))
		conn.Close()
		w.closedOnce.Do(func() {
			if fn := w.handlers().onClosed; fn != nil {
				fn()
			}
		})
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var p protocol.Payload
		switch typ {
		case websocket.TextMessage:
			p = protocol.Payload{Data: data, IsText: true}
		case websocket.BinaryMessage:
			p = protocol.Payload{Data: data}
		default:
			continue
		}

		if fn := w.handlers().onMessage; fn != nil {
			fn(p)
		}
	}
}

// Send writes p as a single frame. It returns false when the socket is not
// open or the write fails.
func (w *WebSocket) Send(p protocol.Payload) bool {
	if !w.IsOpen() {
		return false
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return false
	}

	typ := websocket.BinaryMessage
	if p.IsText {
		typ = websocket.TextMessage
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(typ, p.Data) == nil
}

func (w *WebSocket) IsOpen() bool   { return socketState(w.state.Load()) == socketOpen }
func (w *WebSocket) IsClosed() bool { return socketState(w.state.Load()) == socketClosed }

// Close sends a normal-closure frame and releases the connection. A dial in
// progress is aborted.
func (w *WebSocket) Close() error {
	w.cancel()

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		w.state.CompareAndSwap(int32(socketIdle), int32(socketClosed))
		return nil
	}

	w.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	w.writeMu.Unlock()

	w.state.Store(int32(socketClosed))
	return conn.Close()
}

func (w *WebSocket) OnOpen(fn func()) {
	w.mu.Lock()
	w.onOpen = fn
	w.mu.Unlock()
}

func (w *WebSocket) OnClosed(fn func()) {
	w.mu.Lock()
	w.onClosed = fn
	w.mu.Unlock()
}

func (w *WebSocket) OnError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

func (w *WebSocket) OnMessage(fn func(protocol.Payload)) {
	w.mu.Lock()
	w.onMessage = fn
	w.mu.Unlock()
}

type socketHandlers struct {
	onOpen    func()
	onClosed  func()
	onError   func(error)
	onMessage func(protocol.Payload)
}

// handlers snapshots the registered callbacks so they run without w.mu held.
func (w *WebSocket) handlers() socketHandlers {
	w.mu.Lock()
	defer w.mu.Unlock()
	return socketHandlers{
		onOpen:    w.onOpen,
		onClosed:  w.onClosed,
		onError:   w.onError,
		onMessage: w.onMessage,
	}
}

var _ Socket = (*WebSocket)(nil)
