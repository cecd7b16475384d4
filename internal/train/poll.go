package train

import (
	"context"
	"sync"

	"github.com/voyagerlabs/raidtrain/internal/platform"
)

// round is the cancellable handle for one in-flight poll. It is owned by its
// Train; only that Train's methods touch it. Cancellation is a request to
// resolve now, not to discard progress: the platform poll is cancelled and
// awaited so its partial tally still feeds the decision.
type round struct {
	cancel context.CancelFunc
	done   chan struct{}

	winner int64
	err    error

	// Report cards announced while the round runs still count at resolution,
	// so the ref set lives behind its own lock instead of a launch snapshot.
	mu         sync.Mutex
	reportRefs []platform.MessageRef
}

func newRound() (*round, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &round{cancel: cancel, done: make(chan struct{})}, ctx
}

func (r *round) addReportRefs(refs []platform.MessageRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reportRefs = append(r.reportRefs, refs...)
}

func (r *round) currentReportRefs() []platform.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := make([]platform.MessageRef, len(r.reportRefs))
	copy(refs, r.reportRefs)
	return refs
}

func (r *round) finish(winner int64, err error) {
	r.winner = winner
	r.err = err
	close(r.done)
}

// await blocks until the round resolves.
func (r *round) await() (int64, error) {
	<-r.done
	return r.winner, r.err
}

// cancelAndAwait asks the round to resolve immediately and returns its
// (possibly partial) outcome.
func (r *round) cancelAndAwait() (int64, error) {
	r.cancel()
	return r.await()
}

func (r *round) running() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// reportVote is one externally reported event's upvote count.
type reportVote struct {
	EventID int64
	Count   int
}

// decide merges the two vote sources into a winner. The externally reported
// event with the highest upvote count wins whenever its count is non-zero and
// at least the direct poll's top count: the report channel aggregates opinions
// across all sessions, so at equal magnitude it outranks this session's own
// poll. Otherwise the direct poll winner is used if it received any vote.
func decide(tallies []platform.Tally, symbols []string, candidates []int64, reports []reportVote) (int64, bool) {
	pollSymbol := ""
	pollCount := 0
	for _, tally := range tallies {
		if tally.Count > pollCount {
			pollSymbol = tally.Symbol
			pollCount = tally.Count
		}
	}

	reportWinner := int64(0)
	reportMax := 0
	for _, vote := range reports {
		if vote.Count > reportMax {
			reportWinner = vote.EventID
			reportMax = vote.Count
		}
	}

	if reportMax > 0 && reportMax >= pollCount {
		return reportWinner, true
	}
	if pollCount > 0 {
		for i, symbol := range symbols {
			if symbol == pollSymbol && i < len(candidates) {
				return candidates[i], true
			}
		}
	}
	return 0, false
}
