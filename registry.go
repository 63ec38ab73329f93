package wvc

import "sync"

// Registry is the process-wide home for channels. The host constructs it once
// and passes it around; it owns the widget singleton, the latest channel
// handle used for interop, and the published version tags.
type Registry struct {
	mu       sync.Mutex
	opts     []Option
	widget   *Channel
	latest   *Channel
	versions map[string]string
}

// NewRegistry returns an empty registry. opts are applied to every channel it
// creates, before per-call options.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:     opts,
		versions: make(map[string]string),
	}
}

// WidgetChannel returns the widget channel, creating it bound to parent on
// first use. Later calls return the same instance and ignore their arguments.
func (r *Registry) WidgetChannel(parent Peer, opts ...Option) *Channel {
	r.mu.Lock()
	if r.widget != nil {
		ch := r.widget
		r.mu.Unlock()
		return ch
	}
	r.mu.Unlock()

	ch := NewWidgetChannel(parent, r.merge(opts)...)

	r.mu.Lock()
	if r.widget != nil {
		existing := r.widget
		r.mu.Unlock()
		_ = ch.Close()
		return existing
	}
	r.widget = ch
	r.publishLocked(ch)
	r.mu.Unlock()

	ch.onClose(r.Release)
	return ch
}

// ParentChannel creates a new parent channel bound to one embedded frame.
func (r *Registry) ParentChannel(frame Peer, opts ...Option) *Channel {
	ch := NewParentChannel(frame, r.merge(opts)...)

	r.mu.Lock()
	r.publishLocked(ch)
	r.mu.Unlock()

	ch.onClose(r.Release)
	return ch
}

func (r *Registry) merge(opts []Option) []Option {
	out := make([]Option, 0, len(r.opts)+len(opts))
	out = append(out, r.opts...)
	return append(out, opts...)
}

func (r *Registry) publishLocked(ch *Channel) {
	r.latest = ch
	r.versions["channel"] = VersionTag(ch.Role())
}

// Widget returns the widget singleton if one was created.
func (r *Registry) Widget() (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.widget, r.widget != nil
}

// Latest returns the most recently created live channel.
func (r *Registry) Latest() (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.latest != nil
}

// Versions returns a copy of the published version tags.
func (r *Registry) Versions() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.versions))
	for k, v := range r.versions {
		out[k] = v
	}
	return out
}

// SetTransport overrides the transport of the latest channel.
func (r *Registry) SetTransport(fn SenderFunc) error {
	ch, ok := r.Latest()
	if !ok {
		return ErrNoChannel
	}
	return ch.OverrideTransport(fn)
}

// PassMessage feeds a raw message to the latest channel, bypassing any
// registered MessageSource.
func (r *Registry) PassMessage(raw any) error {
	ch, ok := r.Latest()
	if !ok {
		return ErrNoChannel
	}
	ch.HandleMessage(raw)
	return nil
}

// Release drops the registry's references to ch. Channels call it on Close.
func (r *Registry) Release(ch *Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.widget == ch {
		r.widget = nil
	}
	if r.latest == ch {
		r.latest = nil
	}
}

// Close closes the channels the registry still holds.
func (r *Registry) Close() error {
	r.mu.Lock()
	held := []*Channel{r.widget, r.latest}
	r.mu.Unlock()

	for _, ch := range held {
		if ch != nil {
			_ = ch.Close()
		}
	}
	return nil
}
