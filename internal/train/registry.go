package train

import "sync"

// Registry is the process-wide index of live sessions. It guarantees a single
// live instance per id: Put returns the already-registered instance when the
// id is known, so repeated lookups never see divergent copies.
type Registry struct {
	mu        sync.RWMutex
	byID      map[int64]*Train
	byChannel map[int64]*Train
	byMessage map[int64]*Train
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[int64]*Train),
		byChannel: make(map[int64]*Train),
		byMessage: make(map[int64]*Train),
	}
}

// Put registers the train under all of its keys and returns the live instance
// for its id. Re-putting an already-known train refreshes its secondary keys.
func (r *Registry) Put(t *Train) *Train {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[t.ID]; ok {
		t = existing
	}
	r.byID[t.ID] = t
	r.byChannel[t.ChannelID] = t
	if t.SummaryMessageID != 0 {
		r.byMessage[t.SummaryMessageID] = t
	}
	return t
}

// ByID returns the live session for the id, if loaded.
func (r *Registry) ByID(id int64) (*Train, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// ByChannel returns the live session owning the session channel, if loaded.
func (r *Registry) ByChannel(channelID int64) (*Train, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byChannel[channelID]
	return t, ok
}

// BySummaryMessage returns the live session whose summary card is the given
// message, if loaded.
func (r *Registry) BySummaryMessage(messageID int64) (*Train, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byMessage[messageID]
	return t, ok
}

// Remove drops the train from every index.
func (r *Registry) Remove(t *Train) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, t.ID)
	delete(r.byChannel, t.ChannelID)
	delete(r.byMessage, t.SummaryMessageID)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
