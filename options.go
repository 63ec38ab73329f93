package wvc

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitDataPolicy decides how an incoming init data payload is folded into the
// stored snapshot.
type InitDataPolicy string

const (
	// InitDataMerge shallow-merges incoming keys over the stored snapshot.
	InitDataMerge InitDataPolicy = "merge"
	// InitDataReplace swaps the snapshot for the incoming payload.
	InitDataReplace InitDataPolicy = "replace"
)

type Option func(*config)

type config struct {
	namespace     string
	logger        zerolog.Logger
	hasQuery      bool
	query         string
	transport     Transport
	source        MessageSource
	policy        InitDataPolicy
	legacyAliases bool
	middlewares   []Middleware
}

func defaultConfig() config {
	return config{
		namespace:     DefaultNamespace,
		logger:        log.Logger,
		policy:        InitDataMerge,
		legacyAliases: true,
	}
}

func WithNamespace(ns string) Option {
	return func(c *config) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithQuery seeds init data from a location query string such as "?user=1".
func WithQuery(rawQuery string) Option {
	return func(c *config) {
		c.hasQuery = true
		c.query = rawQuery
	}
}

// WithTransport replaces the default peer transport from the start.
func WithTransport(t Transport) Option {
	return func(c *config) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithSource registers the channel's inbound listener on src.
func WithSource(src MessageSource) Option {
	return func(c *config) {
		c.source = src
	}
}

func WithInitDataPolicy(p InitDataPolicy) Option {
	return func(c *config) {
		if p == InitDataMerge || p == InitDataReplace {
			c.policy = p
		}
	}
}

// WithLegacyAliases controls whether fixed events are also sent under their
// legacy names.
func WithLegacyAliases(enabled bool) Option {
	return func(c *config) {
		c.legacyAliases = enabled
	}
}

func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) {
		c.middlewares = append(c.middlewares, mw...)
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func defaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval:    30 * time.Second,
		PongTimeout: 60 * time.Second,
		WriteWait:   10 * time.Second,
		ReadLimit:   1024 * 1024,
	}
}

func WithCheckOrigin(check func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		if check != nil {
			s.upgrader.CheckOrigin = check
		}
	}
}

func WithBufferSizes(read, write int) ServerOption {
	return func(s *Server) {
		if read > 0 {
			s.upgrader.ReadBufferSize = read
		}
		if write > 0 {
			s.upgrader.WriteBufferSize = write
		}
	}
}

func WithHeartbeat(cfg HeartbeatConfig) ServerOption {
	return func(s *Server) {
		def := defaultHeartbeatConfig()
		if cfg.Interval <= 0 {
			cfg.Interval = def.Interval
		}
		if cfg.PongTimeout <= 0 {
			cfg.PongTimeout = def.PongTimeout
		}
		if cfg.WriteWait <= 0 {
			cfg.WriteWait = def.WriteWait
		}
		if cfg.ReadLimit <= 0 {
			cfg.ReadLimit = def.ReadLimit
		}
		s.heartbeat = cfg
	}
}

func WithSendQueueSize(size int) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithChannelOptions applies opts to every parent channel the server creates.
func WithChannelOptions(opts ...Option) ServerOption {
	return func(s *Server) {
		s.channelOpts = append(s.channelOpts, opts...)
	}
}
