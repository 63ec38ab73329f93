package wvc

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FrameHook runs when a frame connects, before its socket is read.
type FrameHook func(id FrameID, ch *Channel)

// Server is the parent side over WebSocket: each upgraded connection is an
// embedded frame and gets its own parent channel.
type Server struct {
	registry *Registry
	frames   *FrameRegistry
	upgrader websocket.Upgrader

	heartbeat   HeartbeatConfig
	queueSize   int
	logger      zerolog.Logger
	channelOpts []Option

	hooksMu      sync.RWMutex
	onFrame      []FrameHook
	onFrameClose []func(id FrameID)
}

func NewServer(registry *Registry, opts ...ServerOption) *Server {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Server{
		registry:  registry,
		frames:    NewFrameRegistry(),
		heartbeat: defaultHeartbeatConfig(),
		queueSize: defaultSendQueueSize,
		logger:    log.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) Frames() *FrameRegistry { return s.frames }

// OnFrame registers a hook that wires callbacks on a new frame's channel.
func (s *Server) OnFrame(hook FrameHook) {
	if hook == nil {
		return
	}
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onFrame = append(s.onFrame, hook)
}

func (s *Server) OnFrameClose(hook func(id FrameID)) {
	if hook == nil {
		return
	}
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onFrameClose = append(s.onFrameClose, hook)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	id := NewFrameID()
	logger := s.logger.With().Str("frame_id", string(id)).Logger()
	peer := NewWSPeer(ws, s.heartbeat, s.queueSize, logger)

	opts := append(append([]Option{}, s.channelOpts...), WithSource(peer), WithLogger(logger))
	ch := s.registry.ParentChannel(peer, opts...)
	s.frames.Add(id, ch)

	peer.OnClose(func() {
		s.frames.Remove(id)
		_ = ch.Close()

		s.hooksMu.RLock()
		hooks := append([]func(FrameID){}, s.onFrameClose...)
		s.hooksMu.RUnlock()
		for _, hook := range hooks {
			hook(id)
		}
		logger.Debug().Msg("frame disconnected")
	})

	s.hooksMu.RLock()
	hooks := append([]FrameHook{}, s.onFrame...)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(id, ch)
	}

	logger.Debug().Msg("frame connected")
	peer.Start()
}

// Shutdown closes every frame connection.
func (s *Server) Shutdown() {
	s.frames.ForEach(func(_ FrameID, ch *Channel) {
		if p, ok := ch.peer.(*WSPeer); ok {
			_ = p.Close()
			return
		}
		_ = ch.Close()
	})
}
