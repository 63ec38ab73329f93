package wvc

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the unit posted between the two sides of a channel.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

func newEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		env.Payload = raw
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "marshal payload for %q", event)
	}
	env.Payload = b
	return env, nil
}

// Encode serializes the envelope into the string form handed to a Peer.
func (e Envelope) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", errors.Wrap(err, "marshal envelope")
	}
	return string(b), nil
}

// DecodeEnvelope turns a raw inbound message into an Envelope. Strings and
// byte slices are parsed as JSON; already structured values are converted.
func DecodeEnvelope(raw any) (Envelope, error) {
	switch v := raw.(type) {
	case Envelope:
		return v, nil
	case *Envelope:
		if v == nil {
			return Envelope{}, ErrInvalidEnvelope
		}
		return *v, nil
	case string:
		return decodeBytes([]byte(v))
	case []byte:
		return decodeBytes(v)
	case json.RawMessage:
		return decodeBytes(v)
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, errors.Wrap(ErrInvalidEnvelope, err.Error())
		}
		return decodeBytes(b)
	default:
		return Envelope{}, errors.Wrapf(ErrInvalidEnvelope, "unsupported message type %T", raw)
	}
}

func decodeBytes(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, errors.Wrap(ErrInvalidEnvelope, err.Error())
	}
	if env.Event == "" {
		return Envelope{}, errors.Wrap(ErrInvalidEnvelope, "missing event")
	}
	return env, nil
}
