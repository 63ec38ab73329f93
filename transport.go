package wvc

import "github.com/pkg/errors"

// Peer posts serialized envelopes to the other side.
type Peer interface {
	PostMessage(data string) error
}

// MessageSource delivers raw inbound messages. The returned func removes the
// listener and must be safe to call more than once.
type MessageSource interface {
	AddListener(fn func(raw any)) (remove func())
}

// Transport delivers one envelope to the peer.
type Transport interface {
	Send(env Envelope) error
}

// SenderFunc receives the serialized envelope and delivers it. It is the hook
// for environments that bring their own delivery mechanism.
type SenderFunc func(data string) error

// Send implements Transport.
func (f SenderFunc) Send(env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return f(data)
}

type peerTransport struct {
	peer Peer
}

func (t peerTransport) Send(env Envelope) error {
	if t.peer == nil {
		return errors.Wrap(ErrTransportFailed, "no peer")
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return t.peer.PostMessage(data)
}
