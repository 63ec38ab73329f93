package wvc

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultSendQueueSize = 256

// WSPeer adapts a WebSocket connection into a Peer and a MessageSource.
// Writes go through a buffered queue drained by a single writer goroutine;
// inbound text frames are handed to listeners from the reader goroutine.
type WSPeer struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	hb     HeartbeatConfig
	logger zerolog.Logger

	writeMu sync.Mutex
	// sendMu orders enqueues against close so nothing lands after the drain.
	sendMu sync.RWMutex

	listeners listenerSet

	mu      sync.RWMutex
	onClose []func()

	started    atomic.Bool
	writerDone chan struct{}
	closeOnce  sync.Once
}

// NewWSPeer wraps ws. Call Start once listeners are attached so no inbound
// frame is read before anyone can receive it.
func NewWSPeer(ws *websocket.Conn, hb HeartbeatConfig, queueSize int, logger zerolog.Logger) *WSPeer {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	p := &WSPeer{
		ws:         ws,
		send:       make(chan []byte, queueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		hb:         hb,
		logger:     logger,
	}

	p.installPongHandler()
	return p
}

// Start launches the read and write loops. Later calls are no-ops.
func (p *WSPeer) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.writeLoop()
	go p.readLoop()
}

// Dial connects to a parent host, typically from the widget side. The peer is
// returned unstarted.
func Dial(ctx context.Context, url string, header http.Header) (*WSPeer, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewWSPeer(ws, defaultHeartbeatConfig(), defaultSendQueueSize, log.Logger), nil
}

// PostMessage implements Peer. It never blocks; a full queue is reported as
// a transport failure.
func (p *WSPeer) PostMessage(data string) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.send <- []byte(data):
		return nil
	default:
		return ErrSendQueueFull
	}
}

// AddListener implements MessageSource.
func (p *WSPeer) AddListener(fn func(raw any)) func() {
	return p.listeners.add(fn)
}

// OnClose registers fn to run once the connection is gone.
func (p *WSPeer) OnClose(fn func()) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

// Done is closed when the peer shuts down.
func (p *WSPeer) Done() <-chan struct{} { return p.done }

func (p *WSPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.sendMu.Lock()
		close(p.done)
		p.sendMu.Unlock()

		if p.started.Load() {
			<-p.writerDone
		} else {
			p.drain()
		}
		_ = p.writeFrame(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = p.ws.Close()

		p.mu.RLock()
		hooks := append([]func(){}, p.onClose...)
		p.mu.RUnlock()
		for _, hook := range hooks {
			hook()
		}
	})
	return err
}

func (p *WSPeer) readLoop() {
	defer func() { _ = p.Close() }()

	for {
		kind, msg, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		p.listeners.deliver(string(msg))
	}
}

func (p *WSPeer) writeLoop() {
	failed := false
	defer func() {
		close(p.writerDone)
		if failed {
			_ = p.Close()
		}
	}()

	var tick <-chan time.Time
	if p.hb.Interval > 0 {
		ticker := time.NewTicker(p.hb.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg := <-p.send:
			if err := p.writeFrame(websocket.TextMessage, msg); err != nil {
				p.logger.Warn().Err(err).Msg("websocket write failed")
				failed = true
				return
			}
		case <-tick:
			if err := p.ping(); err != nil {
				failed = true
				return
			}
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain flushes whatever is still queued so a close right after a send does
// not lose it.
func (p *WSPeer) drain() {
	for {
		select {
		case msg := <-p.send:
			if err := p.writeFrame(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *WSPeer) writeFrame(kind int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.hb.WriteWait > 0 {
		_ = p.ws.SetWriteDeadline(time.Now().Add(p.hb.WriteWait))
	}
	return p.ws.WriteMessage(kind, data)
}
