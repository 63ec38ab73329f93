package wvc

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ParseQuery turns a location query string into the flat mapping used to seed
// init data. Repeated keys become []string, single keys stay plain strings.
func ParseQuery(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimLeft(raw, "?#&")

	out := make(map[string]any)
	if raw == "" {
		return out, nil
	}

	values, err := url.ParseQuery(raw)
	for key, vals := range values {
		switch len(vals) {
		case 0:
			out[key] = nil
		case 1:
			out[key] = vals[0]
		default:
			out[key] = append([]string(nil), vals...)
		}
	}
	if err != nil {
		return out, errors.Wrap(err, "parse query")
	}
	return out, nil
}
