package train

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voyagerlabs/raidtrain/internal/cards"
	"github.com/voyagerlabs/raidtrain/internal/catalog"
	"github.com/voyagerlabs/raidtrain/internal/geo"
	"github.com/voyagerlabs/raidtrain/internal/platform"
	"github.com/voyagerlabs/raidtrain/internal/rsvp"
)

const defaultChoicePageSize = 3

type deps struct {
	chat     platform.Chat
	catalog  catalog.Catalog
	distance geo.DistanceService
	trains   *Store
	rsvps    *rsvp.Store
	notifier *rsvp.Notifier
	registry *Registry
	ids      IDProvider
	logger   *zap.Logger
	clock    func() time.Time
	sleep    func(context.Context, time.Duration)
	endGrace time.Duration
	pageSize int
}

// ServiceConfig describes the collaborators the coordinator consumes.
type ServiceConfig struct {
	Chat           platform.Chat
	Catalog        catalog.Catalog
	Distance       geo.DistanceService
	Trains         *Store
	RSVPs          *rsvp.Store
	Notifier       *rsvp.Notifier
	IDs            IDProvider
	Logger         *zap.Logger
	Clock          func() time.Time
	Sleep          func(context.Context, time.Duration)
	EndGrace       time.Duration
	ChoicePageSize int
}

// Service is the session coordinator's front door: it owns the live-session
// registry and routes commands, reactions and notices to the right session.
type Service struct {
	deps *deps
}

// NewService validates collaborators and constructs the coordinator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Chat == nil {
		return nil, newTrainError(opServiceNew, "missing_chat", fmt.Errorf("chat platform is required"))
	}
	if cfg.Catalog == nil {
		return nil, newTrainError(opServiceNew, "missing_catalog", fmt.Errorf("event catalog is required"))
	}
	if cfg.Trains == nil {
		return nil, newTrainError(opServiceNew, "missing_train_store", fmt.Errorf("train store is required"))
	}
	if cfg.RSVPs == nil {
		return nil, newTrainError(opServiceNew, "missing_rsvp_store", fmt.Errorf("rsvp store is required"))
	}
	if cfg.IDs == nil {
		return nil, newTrainError(opServiceNew, "missing_id_provider", fmt.Errorf("id provider is required"))
	}

	distance := cfg.Distance
	if distance == nil {
		distance = geo.NewStaticDistance()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = rsvp.NewNotifier()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	pageSize := cfg.ChoicePageSize
	if pageSize < 1 {
		pageSize = defaultChoicePageSize
	}

	return &Service{deps: &deps{
		chat:     cfg.Chat,
		catalog:  cfg.Catalog,
		distance: distance,
		trains:   cfg.Trains,
		rsvps:    cfg.RSVPs,
		notifier: notifier,
		registry: NewRegistry(),
		ids:      cfg.IDs,
		logger:   logger,
		clock:    clock,
		sleep:    sleep,
		endGrace: cfg.EndGrace,
		pageSize: pageSize,
	}}, nil
}

// Registry exposes the live-session index for lookups by the HTTP layer.
func (s *Service) Registry() *Registry {
	return s.deps.registry
}

// Notifier exposes the RSVP fan-out hub for streaming subscribers.
func (s *Service) Notifier() *rsvp.Notifier {
	return s.deps.notifier
}

// Start creates a session: a fresh channel and id, the initiator's first-event
// selection, the summary card, and persistence. The created channel is torn
// back down when first-event selection fails.
func (s *Service) Start(ctx context.Context, guildID, reportChannelID, initiatorID int64) (*Train, error) {
	city := s.deps.catalog.ChannelCity(reportChannelID)
	if fields := strings.Fields(city); len(fields) > 0 {
		city = fields[0]
	}
	channelName := fmt.Sprintf("%s-raid-train", strings.ToLower(city))
	channelID, err := s.deps.chat.CreateChannel(ctx, guildID, channelName)
	if err != nil {
		return nil, newTrainError(opStart, "channel_create_failed", err)
	}

	id, err := s.deps.ids.NewID()
	if err != nil {
		return nil, newTrainError(opStart, "id_generation_failed", err)
	}

	t := &Train{
		deps:            s.deps,
		ID:              id,
		GuildID:         guildID,
		ChannelID:       channelID,
		ReportChannelID: reportChannelID,
	}

	if err := s.selectFirstEvent(ctx, t, initiatorID); err != nil {
		if deleteErr := s.deps.chat.DeleteChannel(ctx, channelID); deleteErr != nil {
			s.deps.logger.Warn("channel cleanup failed", zap.Int64("channel_id", channelID), zap.Error(deleteErr))
		}
		return nil, err
	}

	name, err := s.deps.chat.DisplayName(ctx, guildID, initiatorID)
	if err != nil {
		name = fmt.Sprintf("member %d", initiatorID)
	}
	content := fmt.Sprintf(
		"%s has started a raid train! You can join by reacting to this message and coordinate in %s!",
		name, t.channelMention())
	embed := cards.TrainCard(t.channelMention(), t.currentSummary(), rsvp.Party{})
	messageID, err := s.deps.chat.SendMessage(ctx, reportChannelID, content, &embed)
	if err != nil {
		return nil, newTrainError(opStart, "summary_post_failed", err)
	}
	summaryRef := platform.MessageRef{ChannelID: reportChannelID, MessageID: messageID}
	for _, symbol := range []string{platform.SymbolJoin, platform.SymbolLeave} {
		if err := s.deps.chat.AddReaction(ctx, summaryRef, symbol); err != nil {
			s.deps.logger.Warn("summary react failed", zap.Int64("train_id", t.ID), zap.Error(err))
		}
	}
	t.SummaryMessageID = messageID
	if err := t.upsert(ctx); err != nil {
		return nil, newTrainError(opStart, "persist_failed", err)
	}
	s.deps.registry.Put(t)

	s.deps.logger.Info("train started",
		zap.Int64("train_id", t.ID),
		zap.Int64("guild_id", guildID),
		zap.Int64("channel_id", channelID))
	return t, nil
}

// selectFirstEvent runs the degenerate opening poll: the initiator alone picks
// from the full candidate list, posted in the report channel.
func (s *Service) selectFirstEvent(ctx context.Context, t *Train, initiatorID int64) error {
	candidates, err := t.candidateEvents(ctx)
	if err != nil {
		return newTrainError(opStart, "candidate_query_failed", err)
	}
	if len(candidates) == 0 {
		return newTrainError(opStart, "no_candidates", ErrNoCandidateEvents)
	}

	symbols := platform.ChoiceSymbols(len(candidates))
	entries := t.choiceEntries(ctx, candidates, symbols)
	refs, err := t.postChoiceCards(ctx, t.ReportChannelID, firstChoiceContent, entries)
	if err != nil {
		return newTrainError(opStart, "card_post_failed", err)
	}
	t.PollMsgIDs = refsToStrings(refs)

	answer, err := s.deps.chat.Ask(ctx, refs[len(refs)-1], []int64{initiatorID}, symbols)
	if err != nil {
		return newTrainError(opStart, "first_choice_failed", err)
	}
	choice := int64(0)
	for i, symbol := range symbols {
		if symbol == answer {
			choice = candidates[i]
			break
		}
	}
	if choice == 0 {
		return newTrainError(opStart, "first_choice_failed", fmt.Errorf("unrecognized choice symbol %q", answer))
	}

	t.clearPollCards(ctx)
	return t.activate(ctx, choice)
}

// Advance is the operator transition to the next event for the session owning
// the channel.
func (s *Service) Advance(ctx context.Context, channelID int64) error {
	t, ok := s.deps.registry.ByChannel(channelID)
	if !ok {
		return newTrainError(opAdvance, "unknown_train", ErrUnknownTrain)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advance(ctx)
}

// Join records the member's attendance with optional total/per-team overrides.
func (s *Service) Join(ctx context.Context, channelID, memberID int64, total int, perTeam []int) error {
	t, ok := s.deps.registry.ByChannel(channelID)
	if !ok {
		return newTrainError(opJoin, "unknown_train", ErrUnknownTrain)
	}
	party, err := rsvp.PartyFromOverrides(total, perTeam)
	if err != nil {
		return newTrainError(opJoin, "invalid_party", err)
	}
	return s.joinTrain(ctx, t, memberID, party)
}

func (s *Service) joinTrain(ctx context.Context, t *Train, memberID int64, party rsvp.Party) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := s.deps.rsvps.Upsert(ctx, t.ID, memberID, party); err != nil {
		return newTrainError(opJoin, "persist_failed", err)
	}
	if err := t.refreshRSVP(ctx, memberID, rsvp.StatusJoin); err != nil {
		return err
	}
	s.deps.notifier.Publish(rsvp.Notice{
		TrainID:   t.ID,
		MemberID:  memberID,
		Status:    rsvp.StatusJoin,
		Timestamp: s.deps.clock(),
	})
	return nil
}

// Leave removes the member's attendance; an empty train ends itself.
func (s *Service) Leave(ctx context.Context, channelID, memberID int64) error {
	t, ok := s.deps.registry.ByChannel(channelID)
	if !ok {
		return newTrainError(opLeave, "unknown_train", ErrUnknownTrain)
	}
	return s.leaveTrain(ctx, t, memberID)
}

func (s *Service) leaveTrain(ctx context.Context, t *Train, memberID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := s.deps.rsvps.Remove(ctx, t.ID, memberID); err != nil {
		return newTrainError(opLeave, "persist_failed", err)
	}
	if err := t.refreshRSVP(ctx, memberID, rsvp.StatusCancel); err != nil {
		return err
	}
	s.deps.notifier.Publish(rsvp.Notice{
		TrainID:   t.ID,
		MemberID:  memberID,
		Status:    rsvp.StatusCancel,
		Timestamp: s.deps.clock(),
	})
	return nil
}

// HandleReaction routes a recognized symbol on a summary card to join/leave
// and removes the member's reaction afterwards. Reactions on messages the
// coordinator does not own are ignored.
func (s *Service) HandleReaction(ctx context.Context, ref platform.MessageRef, memberID int64, symbol string) error {
	t, ok := s.deps.registry.BySummaryMessage(ref.MessageID)
	if !ok {
		return nil
	}

	var err error
	switch symbol {
	case platform.SymbolJoin:
		err = s.joinTrain(ctx, t, memberID, rsvp.DefaultParty())
	case platform.SymbolLeave:
		err = s.leaveTrain(ctx, t, memberID)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if removeErr := s.deps.chat.RemoveReaction(ctx, ref, symbol, memberID); removeErr != nil {
		s.deps.logger.Warn("reaction remove failed",
			zap.Int64("train_id", t.ID), zap.Error(removeErr))
	}
	return nil
}

// HandleNotice applies a cross-process RSVP notification. The attendance row
// was already written by the reporting process; here the session just
// refreshes its cards. Notices for unloaded sessions are no-ops.
func (s *Service) HandleNotice(ctx context.Context, payload string) error {
	notice, err := rsvp.ParseNotice(payload)
	if err != nil {
		return newTrainError(opRSVP, "malformed_payload", err)
	}
	t, ok := s.deps.registry.ByID(notice.TrainID)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshRSVP(ctx, notice.MemberID, notice.Status); err != nil {
		return err
	}
	notice.Timestamp = s.deps.clock()
	s.deps.notifier.Publish(notice)
	return nil
}

// AnnounceEvent posts a new-event alert card into the session channel with an
// upvote reaction, feeding the external vote source of future rounds.
func (s *Service) AnnounceEvent(ctx context.Context, channelID, eventID int64) error {
	t, ok := s.deps.registry.ByChannel(channelID)
	if !ok {
		return newTrainError(opAnnounce, "unknown_train", ErrUnknownTrain)
	}
	view, ok := s.deps.catalog.Event(eventID)
	if !ok {
		return newTrainError(opAnnounce, "unknown_event", fmt.Errorf("event %d not in catalog", eventID))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	travelSeconds, hasTravel := 0, false
	if t.CurrentEventID != 0 && view.LocationID != 0 {
		if current, ok := s.deps.catalog.Event(t.CurrentEventID); ok && current.LocationID != 0 {
			legs, err := s.deps.distance.TravelTimes(ctx, []int64{current.LocationID}, []int64{view.LocationID})
			if err == nil && len(legs) > 0 {
				travelSeconds, hasTravel = legs[0].Seconds, true
			}
		}
	}

	embed := cards.EventAlertCard(view, travelSeconds, hasTravel)
	messageID, err := s.deps.chat.SendMessage(ctx, t.ChannelID, alertContent, &embed)
	if err != nil {
		return newTrainError(opAnnounce, "card_post_failed", err)
	}
	ref := platform.MessageRef{ChannelID: t.ChannelID, MessageID: messageID}
	if err := s.deps.chat.AddReaction(ctx, ref, platform.SymbolUpvote); err != nil {
		s.deps.logger.Warn("upvote react failed", zap.Int64("train_id", t.ID), zap.Error(err))
	}
	t.ReportMsgIDs = append(t.ReportMsgIDs, ref.String())
	if t.round != nil {
		t.round.addReportRefs([]platform.MessageRef{ref})
	}
	s.deps.catalog.TrackReportMessage(eventID, ref)
	if err := t.upsert(ctx); err != nil {
		return newTrainError(opAnnounce, "persist_failed", err)
	}
	return nil
}

// Recover rebuilds every persisted session at process start. Failures on one
// row never stop recovery of the rest.
func (s *Service) Recover(ctx context.Context) error {
	rows, err := s.deps.trains.List(ctx)
	if err != nil {
		return newTrainError(opRecover, "row_query_failed", err)
	}
	for _, row := range rows {
		if err := s.recoverTrain(ctx, row); err != nil {
			s.deps.logger.Warn("train recovery failed",
				zap.Int64("train_id", row.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) recoverTrain(ctx context.Context, row Row) error {
	t, err := fromRow(row, s.deps)
	if err != nil {
		return newTrainError(opRecover, "row_decode_failed", err)
	}

	if t.CurrentEventID != 0 {
		if _, ok := s.deps.catalog.Event(t.CurrentEventID); !ok {
			s.deps.logger.Warn("recovery gap: current event unknown",
				zap.Int64("train_id", t.ID), zap.Int64("event_id", t.CurrentEventID))
			t.CurrentEventID = 0
		}
	}
	if t.NextEventID != 0 {
		if _, ok := s.deps.catalog.Event(t.NextEventID); !ok {
			s.deps.logger.Warn("recovery gap: next event unknown",
				zap.Int64("train_id", t.ID), zap.Int64("event_id", t.NextEventID))
			t.NextEventID = 0
		}
	}
	kept := t.History[:0]
	for _, id := range t.History {
		if _, ok := s.deps.catalog.Event(id); !ok {
			s.deps.logger.Warn("recovery gap: history event unknown",
				zap.Int64("train_id", t.ID), zap.Int64("event_id", id))
			continue
		}
		kept = append(kept, id)
	}
	t.History = kept

	live := s.deps.registry.Put(t)
	if live != t {
		return nil
	}

	candidates, err := t.candidateEvents(ctx)
	if err != nil {
		return newTrainError(opRecover, "candidate_query_failed", err)
	}
	if len(candidates) == 0 {
		return nil
	}
	symbols := platform.ChoiceSymbols(len(candidates))
	refs := parseRefs(t.PollMsgIDs)
	if len(refs) == 0 {
		if t.CurrentEventID != 0 {
			return t.startNextPoll(ctx)
		}
		return nil
	}
	t.launchRound(refs, candidates, symbols)

	s.deps.logger.Info("train recovered", zap.Int64("train_id", t.ID))
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
