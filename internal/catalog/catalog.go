package catalog

import (
	"context"
	"time"

	"github.com/voyagerlabs/raidtrain/internal/platform"
)

// Status is the externally owned lifecycle state of a cataloged event.
type Status string

const (
	// StatusPending marks an event that has not opened yet (an unhatched egg).
	StatusPending Status = "pending"
	// StatusOpen marks an event currently accepting visitors.
	StatusOpen Status = "open"
	// StatusRevealed marks a pending event whose contents just became known.
	StatusRevealed Status = "revealed"
	// StatusExpired marks an event that is over and no longer selectable.
	StatusExpired Status = "expired"
)

// Selectable reports whether the status still allows the event to be offered
// as a next-visit choice.
func (s Status) Selectable() bool {
	return s != StatusExpired
}

// EventView is the read-only projection of a cataloged event that the
// coordinator renders from. Event data is owned by the catalog; the
// coordinator only ever holds ids.
type EventView struct {
	ID           int64
	Status       Status
	Title        string
	BossName     string
	Level        string
	LocationID   int64 // 0 when the location is not a known landmark
	LocationName string
	LocationURL  string
	ThumbnailURL string
	EndsAt       time.Time
	ReactList    []string
}

// Catalog is the read-mostly adapter over the external event store. Visit
// registration keeps the event's view of visiting session channels in step
// with the session's view of its current event; neither side owns the other.
type Catalog interface {
	// ListCandidates returns the ids of events currently reported to the
	// given report channel, in report order.
	ListCandidates(ctx context.Context, reportChannelID int64) ([]int64, error)

	// Event resolves an event id; ok is false when the catalog no longer
	// knows the id (a recovery gap).
	Event(id int64) (EventView, bool)

	// ChannelCity names the locality a report channel covers, used for
	// session channel naming.
	ChannelCity(channelID int64) string

	RegisterVisit(eventID, channelID int64)
	UnregisterVisit(eventID, channelID int64)

	// AddVisitMessage records a card the session posted for the event, so the
	// event side can clean it up or re-find it later.
	AddVisitMessage(eventID int64, ref platform.MessageRef)
	// VisitMessages lists the cards posted for the event inside one channel.
	VisitMessages(eventID, channelID int64) []platform.MessageRef
	// RemoveVisitMessages forgets the cards posted for the event inside one
	// channel. Removal of already-forgotten refs is a no-op.
	RemoveVisitMessages(eventID, channelID int64)

	// TrackReportMessage binds an interest-vote card to the event it
	// advertises; EventByReportMessage resolves the reverse direction.
	TrackReportMessage(eventID int64, ref platform.MessageRef)
	EventByReportMessage(ref platform.MessageRef) (int64, bool)
}
