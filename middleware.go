package wvc

import (
	"time"

	"github.com/rs/zerolog"
)

// HandlerFunc handles one decoded inbound envelope.
type HandlerFunc func(env Envelope) error

// Middleware wraps inbound dispatch.
type Middleware func(next HandlerFunc) HandlerFunc

func Chain(m ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(m) - 1; i >= 0; i-- {
			next = m[i](next)
		}
		return next
	}
}

// RecoverMiddleware turns a panic raised while routing into an error so the
// inbound listener keeps running.
func RecoverMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(env Envelope) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Str("event", env.Event).Interface("panic", r).Msg("panic recovered in dispatch")
					err = ErrInvalidEnvelope
				}
			}()
			return next(env)
		}
	}
}

// LoggingMiddleware logs every inbound envelope at debug level.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(env Envelope) error {
			start := time.Now()
			err := next(env)
			ev := logger.Debug()
			if err != nil {
				ev = logger.Warn().Err(err)
			}
			ev.Str("event", env.Event).Dur("latency", time.Since(start)).Msg("inbound envelope")
			return err
		}
	}
}

// FilterMiddleware drops envelopes for which allow returns false.
func FilterMiddleware(allow func(env Envelope) bool) Middleware {
	if allow == nil {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(env Envelope) error {
			if !allow(env) {
				return nil
			}
			return next(env)
		}
	}
}

func safeCall(logger zerolog.Logger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("event", event).Interface("panic", r).Msg("callback panicked")
		}
	}()
	fn()
}
