package rsvp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RSVP statuses carried by cross-process notices.
const (
	StatusJoin   = "join"
	StatusCancel = "cancel"
)

// Notice is one cross-process RSVP notification for a train.
type Notice struct {
	TrainID   int64
	MemberID  int64
	Status    string
	Timestamp time.Time
}

// FormatNotice renders the wire payload "<trainID>/<memberID>/<status>".
func FormatNotice(n Notice) string {
	return fmt.Sprintf("%d/%d/%s", n.TrainID, n.MemberID, n.Status)
}

// ParseNotice parses the wire payload "<trainID>/<memberID>/<status>".
func ParseNotice(payload string) (Notice, error) {
	parts := strings.Split(strings.TrimSpace(payload), "/")
	if len(parts) != 3 {
		return Notice{}, fmt.Errorf("rsvp: malformed notice %q", payload)
	}
	trainID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Notice{}, fmt.Errorf("rsvp: malformed train id in notice %q", payload)
	}
	memberID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Notice{}, fmt.Errorf("rsvp: malformed member id in notice %q", payload)
	}
	status := parts[2]
	if status != StatusJoin && status != StatusCancel {
		return Notice{}, fmt.Errorf("rsvp: unknown status %q", status)
	}
	return Notice{TrainID: trainID, MemberID: memberID, Status: status}, nil
}

// Notifier fans RSVP notices out to in-process subscribers, keyed by train id.
// Publish never blocks; slow subscribers drop notices.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*noticeSubscriber
	nextID      int64
	bufferSize  int
}

type noticeSubscriber struct {
	id     int64
	stream chan Notice
}

// NewNotifier constructs an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[int64]map[int64]*noticeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers for notices about one train until ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, trainID int64) (<-chan Notice, func()) {
	if trainID == 0 {
		ch := make(chan Notice)
		close(ch)
		return ch, func() {}
	}
	subscriber := &noticeSubscriber{
		id:     n.nextSequence(),
		stream: make(chan Notice, n.bufferSize),
	}
	n.registerSubscriber(trainID, subscriber)
	cleanup := func() {
		n.unregisterSubscriber(trainID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers a notice to every subscriber of its train.
func (n *Notifier) Publish(notice Notice) {
	if notice.TrainID == 0 || notice.Status == "" {
		return
	}
	n.mu.RLock()
	subscribers := n.subscribers[notice.TrainID]
	if len(subscribers) == 0 {
		n.mu.RUnlock()
		return
	}
	copies := make([]*noticeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	n.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- notice:
		default:
		}
	}
}

func (n *Notifier) nextSequence() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	return n.nextID
}

func (n *Notifier) registerSubscriber(trainID int64, subscriber *noticeSubscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[trainID]; !ok {
		n.subscribers[trainID] = make(map[int64]*noticeSubscriber)
	}
	n.subscribers[trainID][subscriber.id] = subscriber
}

func (n *Notifier) unregisterSubscriber(trainID, subscriberID int64) {
	n.mu.Lock()
	subscribers := n.subscribers[trainID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(n.subscribers, trainID)
		}
	}
	n.mu.Unlock()
}
