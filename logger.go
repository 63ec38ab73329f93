package wvc

import (
	"github.com/rs/zerolog"
)

// NopLogger discards everything. Handy for tests and embedded hosts that do
// their own reporting.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func channelLogger(base zerolog.Logger, role Role, namespace string) zerolog.Logger {
	return base.With().
		Str("component", "wvc").
		Str("role", string(role)).
		Str("namespace", namespace).
		Logger()
}
