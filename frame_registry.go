package wvc

import (
	"sync"

	"github.com/google/uuid"
)

// FrameID identifies one embedded frame connected to a host.
type FrameID string

func NewFrameID() FrameID {
	return FrameID(uuid.NewString())
}

// BroadcastReport summarises a fan-out to every frame.
type BroadcastReport struct {
	Total   int
	Success int
	Failed  int
	Errors  map[FrameID]error
}

// FrameRegistry tracks the parent channel of every live frame.
type FrameRegistry struct {
	mu   sync.RWMutex
	byID map[FrameID]*Channel
}

func NewFrameRegistry() *FrameRegistry {
	return &FrameRegistry{
		byID: make(map[FrameID]*Channel),
	}
}

func (r *FrameRegistry) Add(id FrameID, ch *Channel) {
	if id == "" || ch == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = ch
}

func (r *FrameRegistry) Remove(id FrameID) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	return ch, ok
}

func (r *FrameRegistry) ByID(id FrameID) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byID[id]
	return ch, ok
}

// IDs returns a copy of the registered frame ids.
func (r *FrameRegistry) IDs() []FrameID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FrameID, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}

// ForEach runs fn over a snapshot, outside the lock.
func (r *FrameRegistry) ForEach(fn func(id FrameID, ch *Channel)) {
	r.mu.RLock()
	snapshot := make(map[FrameID]*Channel, len(r.byID))
	for id, ch := range r.byID {
		snapshot[id] = ch
	}
	r.mu.RUnlock()

	for id, ch := range snapshot {
		fn(id, ch)
	}
}

func (r *FrameRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// BroadcastInitData sends payload as init data to every registered frame.
func (r *FrameRegistry) BroadcastInitData(payload any) BroadcastReport {
	report := BroadcastReport{Errors: make(map[FrameID]error)}
	r.ForEach(func(id FrameID, ch *Channel) {
		report.Total++
		if err := ch.SendInitData(payload); err != nil {
			report.Failed++
			report.Errors[id] = err
			return
		}
		report.Success++
	})
	return report
}
