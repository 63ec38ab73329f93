package wvc

import "sync/atomic"

// PipeEnd is one side of an in-process pipe. Posting on one end delivers the
// string synchronously to the listeners of the other end, in order.
type PipeEnd struct {
	listeners listenerSet
	other     *PipeEnd
	closed    atomic.Bool
	posted    atomic.Uint64
}

// NewPipe returns two connected ends. It is the environment used by tests and
// by hosts that run both sides in one process.
func NewPipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{}
	b := &PipeEnd{}
	a.other = b
	b.other = a
	return a, b
}

// PostMessage implements Peer.
func (p *PipeEnd) PostMessage(data string) error {
	if p.closed.Load() || p.other.closed.Load() {
		return ErrPeerClosed
	}
	p.posted.Add(1)
	p.other.listeners.deliver(data)
	return nil
}

// AddListener implements MessageSource.
func (p *PipeEnd) AddListener(fn func(raw any)) func() {
	return p.listeners.add(fn)
}

// Listeners returns how many inbound listeners are registered on this end.
func (p *PipeEnd) Listeners() int { return p.listeners.count() }

// Posted returns how many messages this end has sent.
func (p *PipeEnd) Posted() uint64 { return p.posted.Load() }

func (p *PipeEnd) Close() error {
	p.closed.Store(true)
	return nil
}
