package rsvp

import (
	"context"
	"testing"
	"time"
)

func TestNotifierDeliversToTrainSubscribers(t *testing.T) {
	notifier := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := notifier.Subscribe(ctx, 7)
	defer cleanup()

	notifier.Publish(Notice{TrainID: 7, MemberID: 42, Status: StatusJoin})

	select {
	case notice := <-stream:
		if notice.MemberID != 42 || notice.Status != StatusJoin {
			t.Fatalf("unexpected notice %+v", notice)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a notice")
	}
}

func TestNotifierIgnoresOtherTrains(t *testing.T) {
	notifier := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := notifier.Subscribe(ctx, 7)
	defer cleanup()

	notifier.Publish(Notice{TrainID: 8, MemberID: 42, Status: StatusCancel})

	select {
	case notice := <-stream:
		t.Fatalf("unexpected notice %+v", notice)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifierCleanupStopsDelivery(t *testing.T) {
	notifier := NewNotifier()
	stream, cleanup := notifier.Subscribe(context.Background(), 7)
	cleanup()

	notifier.Publish(Notice{TrainID: 7, MemberID: 1, Status: StatusJoin})

	select {
	case _, ok := <-stream:
		if ok {
			t.Fatalf("expected no delivery after cleanup")
		}
	case <-time.After(50 * time.Millisecond):
	}
}
