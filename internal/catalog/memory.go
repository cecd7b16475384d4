package catalog

import (
	"context"
	"sync"

	"github.com/voyagerlabs/raidtrain/internal/platform"
)

// MemoryCatalog is an in-process Catalog used by the dev server and tests.
type MemoryCatalog struct {
	mu             sync.Mutex
	events         map[int64]EventView
	byReport       map[int64][]int64 // report channel -> event ids, report order
	cities         map[int64]string
	visits         map[int64][]int64 // event id -> visiting channel ids
	visitMessages  map[int64][]platform.MessageRef
	reportMessages map[platform.MessageRef]int64
}

// NewMemoryCatalog constructs an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		events:         make(map[int64]EventView),
		byReport:       make(map[int64][]int64),
		cities:         make(map[int64]string),
		visits:         make(map[int64][]int64),
		visitMessages:  make(map[int64][]platform.MessageRef),
		reportMessages: make(map[platform.MessageRef]int64),
	}
}

// PutEvent registers or replaces an event under the given report channel.
func (c *MemoryCatalog) PutEvent(reportChannelID int64, view EventView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, known := c.events[view.ID]; !known {
		c.byReport[reportChannelID] = append(c.byReport[reportChannelID], view.ID)
	}
	c.events[view.ID] = view
}

// SetStatus moves an event through its lifecycle.
func (c *MemoryCatalog) SetStatus(eventID int64, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.events[eventID]
	if !ok {
		return
	}
	view.Status = status
	c.events[eventID] = view
}

// Forget drops an event entirely, simulating catalog-side expiry cleanup.
func (c *MemoryCatalog) Forget(eventID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, eventID)
	for reportChannelID, ids := range c.byReport {
		c.byReport[reportChannelID] = removeID(ids, eventID)
	}
}

// SetCity names the locality of a report channel.
func (c *MemoryCatalog) SetCity(channelID int64, city string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cities[channelID] = city
}

func (c *MemoryCatalog) ListCandidates(_ context.Context, reportChannelID int64) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.byReport[reportChannelID]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, nil
}

func (c *MemoryCatalog) Event(id int64) (EventView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.events[id]
	return view, ok
}

func (c *MemoryCatalog) ChannelCity(channelID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if city, ok := c.cities[channelID]; ok {
		return city
	}
	return "local"
}

func (c *MemoryCatalog) RegisterVisit(eventID, channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visits[eventID] = append(removeID(c.visits[eventID], channelID), channelID)
}

func (c *MemoryCatalog) UnregisterVisit(eventID, channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visits[eventID] = removeID(c.visits[eventID], channelID)
}

// VisitingChannels lists the session channels currently visiting the event.
func (c *MemoryCatalog) VisitingChannels(eventID int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.visits[eventID]))
	copy(out, c.visits[eventID])
	return out
}

func (c *MemoryCatalog) AddVisitMessage(eventID int64, ref platform.MessageRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visitMessages[eventID] = append(c.visitMessages[eventID], ref)
}

func (c *MemoryCatalog) VisitMessages(eventID, channelID int64) []platform.MessageRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []platform.MessageRef
	for _, ref := range c.visitMessages[eventID] {
		if ref.ChannelID == channelID {
			out = append(out, ref)
		}
	}
	return out
}

func (c *MemoryCatalog) RemoveVisitMessages(eventID, channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.visitMessages[eventID][:0]
	for _, ref := range c.visitMessages[eventID] {
		if ref.ChannelID != channelID {
			kept = append(kept, ref)
		}
	}
	c.visitMessages[eventID] = kept
}

func (c *MemoryCatalog) TrackReportMessage(eventID int64, ref platform.MessageRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reportMessages[ref] = eventID
}

func (c *MemoryCatalog) EventByReportMessage(ref platform.MessageRef) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.reportMessages[ref]
	return id, ok
}

func removeID(ids []int64, id int64) []int64 {
	kept := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			kept = append(kept, candidate)
		}
	}
	return kept
}
