package wvc

import (
	"time"

	"github.com/gorilla/websocket"
)

// HeartbeatConfig controls ping/pong keepalive on WebSocket peers.
type HeartbeatConfig struct {
	Interval    time.Duration
	PongTimeout time.Duration
	WriteWait   time.Duration
	ReadLimit   int64
}

func (p *WSPeer) armReadDeadline() {
	if p.hb.PongTimeout <= 0 {
		return
	}
	_ = p.ws.SetReadDeadline(time.Now().Add(p.hb.PongTimeout))
}

func (p *WSPeer) installPongHandler() {
	if p.hb.ReadLimit > 0 {
		p.ws.SetReadLimit(p.hb.ReadLimit)
	}
	p.armReadDeadline()
	p.ws.SetPongHandler(func(string) error {
		p.armReadDeadline()
		return nil
	})
}

func (p *WSPeer) ping() error {
	return p.writeFrame(websocket.PingMessage, []byte("ping"))
}
