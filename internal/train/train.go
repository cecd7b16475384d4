package train

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/voyagerlabs/raidtrain/internal/cards"
	"github.com/voyagerlabs/raidtrain/internal/platform"
	"github.com/voyagerlabs/raidtrain/internal/rsvp"
)

const (
	firstChoiceContent = "Select your first raid from the list below!"
	pollContent        = "Vote on the next raid from the list below!"
	alertContent       = "Use the reaction below to vote for this raid next!"
	endNoticeContent   = "This train is now empty! This channel will be deleted shortly."
)

func (t *Train) summaryRef() platform.MessageRef {
	return platform.MessageRef{ChannelID: t.ReportChannelID, MessageID: t.SummaryMessageID}
}

func (t *Train) channelMention() string {
	return fmt.Sprintf("<#%d>", t.ChannelID)
}

func (t *Train) upsert(ctx context.Context) error {
	return t.deps.trains.Upsert(ctx, t.toRow())
}

// currentSummary renders the current event's one-line summary for cards.
func (t *Train) currentSummary() string {
	if t.CurrentEventID == 0 {
		return "None"
	}
	view, ok := t.deps.catalog.Event(t.CurrentEventID)
	if !ok {
		return "None"
	}
	return view.Title
}

// candidateEvents lists selectable next-visit choices: everything the report
// channel currently offers minus the current event, prior history and expired
// or no-longer-known events.
func (t *Train) candidateEvents(ctx context.Context) ([]int64, error) {
	ids, err := t.deps.catalog.ListCandidates(ctx, t.ReportChannelID)
	if err != nil {
		return nil, err
	}
	visited := make(map[int64]bool, len(t.History)+1)
	for _, id := range t.History {
		visited[id] = true
	}
	visited[t.CurrentEventID] = true

	var candidates []int64
	for _, id := range ids {
		if visited[id] {
			continue
		}
		view, ok := t.deps.catalog.Event(id)
		if !ok || !view.Status.Selectable() {
			continue
		}
		candidates = append(candidates, id)
	}
	return candidates, nil
}

// choiceEntries renders candidate lines with travel times from the current
// event's location when both ends are known landmarks.
func (t *Train) choiceEntries(ctx context.Context, candidates []int64, symbols []string) []cards.ChoiceEntry {
	travelByLocation := make(map[int64]int)
	if t.CurrentEventID != 0 {
		if current, ok := t.deps.catalog.Event(t.CurrentEventID); ok && current.LocationID != 0 {
			var dests []int64
			for _, id := range candidates {
				if view, ok := t.deps.catalog.Event(id); ok && view.LocationID != 0 {
					dests = append(dests, view.LocationID)
				}
			}
			legs, err := t.deps.distance.TravelTimes(ctx, []int64{current.LocationID}, dests)
			if err != nil {
				t.deps.logger.Warn("travel time lookup failed",
					zap.Int64("train_id", t.ID), zap.Error(err))
			}
			for _, leg := range legs {
				if leg.OriginID == current.LocationID {
					travelByLocation[leg.DestID] = leg.Seconds
				}
			}
		}
	}

	entries := make([]cards.ChoiceEntry, 0, len(candidates))
	for i, id := range candidates {
		view, ok := t.deps.catalog.Event(id)
		if !ok {
			continue
		}
		seconds, known := travelByLocation[view.LocationID]
		entries = append(entries, cards.ChoiceEntry{
			EventID: id,
			Status:  view.Status,
			Summary: cards.ChoiceLine(symbols[i], view, seconds, known),
		})
	}
	return entries
}

// postChoiceCards sends the paginated choice card set into a channel and
// returns the posted refs. The lead content appears on the first card only.
func (t *Train) postChoiceCards(ctx context.Context, channelID int64, content string, entries []cards.ChoiceEntry) ([]platform.MessageRef, error) {
	pages := cards.ChoicePages(entries, t.deps.pageSize)
	refs := make([]platform.MessageRef, 0, len(pages))
	for _, page := range pages {
		embed := page
		messageID, err := t.deps.chat.SendMessage(ctx, channelID, content, &embed)
		if err != nil {
			return refs, err
		}
		content = ""
		refs = append(refs, platform.MessageRef{ChannelID: channelID, MessageID: messageID})
	}
	return refs, nil
}

// activate makes the event current: posts its card into the session channel,
// registers the visit on the event side, persists, and spawns the poll round
// deciding what comes after.
func (t *Train) activate(ctx context.Context, eventID int64) error {
	view, ok := t.deps.catalog.Event(eventID)
	if !ok {
		return newTrainError(opActivate, "unknown_event", fmt.Errorf("event %d not in catalog", eventID))
	}

	embed := cards.EventCard(view)
	messageID, err := t.deps.chat.SendMessage(ctx, t.ChannelID, "", &embed)
	if err != nil {
		return newTrainError(opActivate, "card_post_failed", err)
	}
	ref := platform.MessageRef{ChannelID: t.ChannelID, MessageID: messageID}
	for _, symbol := range view.ReactList {
		if err := t.deps.chat.AddReaction(ctx, ref, symbol); err != nil {
			t.deps.logger.Warn("react add failed",
				zap.Int64("train_id", t.ID), zap.String("symbol", symbol), zap.Error(err))
		}
	}

	t.deps.catalog.AddVisitMessage(eventID, ref)
	t.deps.catalog.RegisterVisit(eventID, t.ChannelID)
	t.CurrentEventID = eventID
	t.NextEventID = 0
	if err := t.upsert(ctx); err != nil {
		return newTrainError(opActivate, "persist_failed", err)
	}

	t.deps.logger.Info("event activated",
		zap.Int64("train_id", t.ID), zap.Int64("event_id", eventID))

	if err := t.startNextPoll(ctx); err != nil {
		t.deps.logger.Warn("next poll start failed",
			zap.Int64("train_id", t.ID), zap.Error(err))
	}
	return nil
}

// startNextPoll posts a fresh choice card set in the session channel and
// launches the concurrent round for the subsequent event.
func (t *Train) startNextPoll(ctx context.Context) error {
	candidates, err := t.candidateEvents(ctx)
	if err != nil {
		return newTrainError(opPollStart, "candidate_query_failed", err)
	}
	if len(candidates) == 0 {
		t.deps.logger.Info("no candidates to poll", zap.Int64("train_id", t.ID))
		return nil
	}

	symbols := platform.ChoiceSymbols(len(candidates))
	entries := t.choiceEntries(ctx, candidates, symbols)
	refs, err := t.postChoiceCards(ctx, t.ChannelID, pollContent, entries)
	if err != nil {
		return newTrainError(opPollStart, "card_post_failed", err)
	}
	t.PollMsgIDs = refsToStrings(refs)
	if err := t.upsert(ctx); err != nil {
		return newTrainError(opPollStart, "persist_failed", err)
	}

	t.launchRound(refs, candidates, symbols)
	return nil
}

// launchRound spawns the round goroutine over a snapshot of the vote inputs.
// The goroutine never touches train state; it only resolves the handle.
func (t *Train) launchRound(refs []platform.MessageRef, candidates []int64, symbols []string) {
	r, pollCtx := newRound()
	r.addReportRefs(parseRefs(t.ReportMsgIDs))
	t.round = r

	go func() {
		tallies, err := t.deps.chat.Poll(pollCtx, refs, symbols)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.finish(0, err)
			return
		}
		// Report cards are re-counted even after cancellation: resolving now
		// still uses every vote received so far.
		reports := t.collectReportVotes(context.Background(), r.currentReportRefs())
		winner, ok := decide(tallies, symbols, candidates, reports)
		if !ok {
			r.finish(0, ErrPollInterrupted)
			return
		}
		r.finish(winner, nil)
	}()
}

// collectReportVotes tallies the upvote reactions on every report card this
// session has posted. Stale cards count as zero.
func (t *Train) collectReportVotes(ctx context.Context, refs []platform.MessageRef) []reportVote {
	var votes []reportVote
	for _, ref := range refs {
		eventID, ok := t.deps.catalog.EventByReportMessage(ref)
		if !ok {
			continue
		}
		count, err := t.deps.chat.ReactionCount(ctx, ref, platform.SymbolUpvote)
		if err != nil {
			continue
		}
		votes = append(votes, reportVote{EventID: eventID, Count: count})
	}
	return votes
}

// advance retires the current event and activates the next one. Calling it
// with nothing active is a no-op.
func (t *Train) advance(ctx context.Context) error {
	if t.CurrentEventID == 0 {
		return nil
	}

	if t.round != nil {
		winner, err := t.round.cancelAndAwait()
		t.round = nil
		if err != nil {
			t.deps.logger.Info("poll resolved without a winner",
				zap.Int64("train_id", t.ID), zap.Error(err))
		} else {
			t.NextEventID = winner
		}
	}

	finished := t.CurrentEventID
	t.History = append(t.History, finished)
	t.CurrentEventID = 0
	t.deps.catalog.UnregisterVisit(finished, t.ChannelID)
	for _, ref := range t.deps.catalog.VisitMessages(finished, t.ChannelID) {
		t.deleteMessage(ctx, ref)
	}
	t.deps.catalog.RemoveVisitMessages(finished, t.ChannelID)

	if t.NextEventID == 0 {
		candidates, err := t.candidateEvents(ctx)
		if err != nil {
			return newTrainError(opAdvance, "candidate_query_failed", err)
		}
		if len(candidates) == 0 {
			if err := t.upsert(ctx); err != nil {
				t.deps.logger.Warn("persist failed", zap.Int64("train_id", t.ID), zap.Error(err))
			}
			return newTrainError(opAdvance, "no_candidates", ErrNoCandidateEvents)
		}
		t.NextEventID = candidates[0]
	}

	t.clearReportCards(ctx)
	t.clearPollCards(ctx)
	return t.activate(ctx, t.NextEventID)
}

// refreshRSVP reloads attendance, refreshes the summary card's team field,
// posts a join/leave alert, and ends the session when attendance is empty.
func (t *Train) refreshRSVP(ctx context.Context, memberID int64, status string) error {
	attendance, err := t.deps.rsvps.List(ctx, t.ID)
	if err != nil {
		return newTrainError(opRSVP, "attendance_query_failed", err)
	}
	totals := rsvp.TeamTotals(attendance)

	if t.SummaryMessageID != 0 {
		embed := cards.TrainCard(t.channelMention(), t.currentSummary(), totals)
		if err := t.deps.chat.EditMessage(ctx, t.summaryRef(), "", &embed); err != nil && !errors.Is(err, platform.ErrNotFound) {
			t.deps.logger.Warn("summary card refresh failed",
				zap.Int64("train_id", t.ID), zap.Error(err))
		}
	}

	name, err := t.deps.chat.DisplayName(ctx, t.GuildID, memberID)
	if err != nil {
		name = fmt.Sprintf("member %d", memberID)
	}
	verb := "joined"
	if status == rsvp.StatusCancel {
		verb = "left"
	}
	totalsEmbed := cards.TotalsCard(totals)
	messageID, err := t.deps.chat.SendMessage(ctx, t.ChannelID,
		fmt.Sprintf("%s has %s the train!", name, verb), &totalsEmbed)
	if err != nil {
		t.deps.logger.Warn("rsvp alert post failed",
			zap.Int64("train_id", t.ID), zap.Error(err))
	} else {
		ref := platform.MessageRef{ChannelID: t.ChannelID, MessageID: messageID}
		t.AlertMsgIDs = append(t.AlertMsgIDs, ref.String())
	}

	if len(attendance) == 0 {
		return t.end(ctx)
	}
	return nil
}

// end tears the session down: closing notice, grace delay, durable rows and
// registry entries removed, channel deleted, summary card finalized. Partial
// teardown failures on already-gone resources are treated as satisfied.
func (t *Train) end(ctx context.Context) error {
	if _, err := t.deps.chat.SendMessage(ctx, t.ChannelID, endNoticeContent, nil); err != nil {
		t.deps.logger.Warn("closing notice failed", zap.Int64("train_id", t.ID), zap.Error(err))
	}
	t.deps.sleep(ctx, t.deps.endGrace)

	if t.round != nil {
		_, _ = t.round.cancelAndAwait()
		t.round = nil
	}

	if err := t.deps.trains.Delete(ctx, t.ID); err != nil {
		return newTrainError(opEnd, "row_delete_failed", err)
	}
	if err := t.deps.rsvps.Purge(ctx, t.ID); err != nil {
		return newTrainError(opEnd, "rsvp_purge_failed", err)
	}
	t.deps.registry.Remove(t)

	if err := t.deps.chat.DeleteChannel(ctx, t.ChannelID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		t.deps.logger.Warn("channel delete failed", zap.Int64("train_id", t.ID), zap.Error(err))
	}
	if t.SummaryMessageID != 0 {
		ref := t.summaryRef()
		if err := t.deps.chat.ClearReactions(ctx, ref); err != nil && !errors.Is(err, platform.ErrNotFound) {
			t.deps.logger.Warn("reaction clear failed", zap.Int64("train_id", t.ID), zap.Error(err))
		}
		closed := cards.ClosedCard()
		if err := t.deps.chat.EditMessage(ctx, ref, "", &closed); err != nil && !errors.Is(err, platform.ErrNotFound) {
			t.deps.logger.Warn("summary card finalize failed", zap.Int64("train_id", t.ID), zap.Error(err))
		}
	}

	t.deps.logger.Info("train ended", zap.Int64("train_id", t.ID))
	return nil
}

func (t *Train) clearReportCards(ctx context.Context) {
	for _, ref := range parseRefs(t.ReportMsgIDs) {
		t.deleteMessage(ctx, ref)
	}
	t.ReportMsgIDs = nil
}

func (t *Train) clearPollCards(ctx context.Context) {
	for _, ref := range parseRefs(t.PollMsgIDs) {
		t.deleteMessage(ctx, ref)
	}
	t.PollMsgIDs = nil
}

// deleteMessage deletes a card, treating an already-gone message as done.
func (t *Train) deleteMessage(ctx context.Context, ref platform.MessageRef) {
	if err := t.deps.chat.DeleteMessage(ctx, ref); err != nil && !errors.Is(err, platform.ErrNotFound) {
		t.deps.logger.Warn("card delete failed",
			zap.Int64("train_id", t.ID), zap.String("ref", ref.String()), zap.Error(err))
	}
}

func refsToStrings(refs []platform.MessageRef) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.String())
	}
	return out
}

func parseRefs(raw []string) []platform.MessageRef {
	refs := make([]platform.MessageRef, 0, len(raw))
	for _, value := range raw {
		ref, err := platform.ParseRef(value)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}
