package train

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voyagerlabs/raidtrain/internal/catalog"
	"github.com/voyagerlabs/raidtrain/internal/geo"
	"github.com/voyagerlabs/raidtrain/internal/platform"
	"github.com/voyagerlabs/raidtrain/internal/rsvp"
)

const (
	testGuildID       = int64(1)
	testReportChannel = int64(500)
	testInitiator     = int64(42)
)

type testEnv struct {
	svc      *Service
	chat     *platform.MemoryChat
	catalog  *catalog.MemoryCatalog
	distance *geo.StaticDistance
	trains   *Store
	rsvps    *rsvp.Store
	db       *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Row{}, &rsvp.Record{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		chat:     platform.NewMemoryChat(),
		catalog:  catalog.NewMemoryCatalog(),
		distance: geo.NewStaticDistance(),
		db:       db,
	}
	env.trains, err = NewStore(db)
	if err != nil {
		t.Fatalf("train store: %v", err)
	}
	env.rsvps, err = rsvp.NewStore(rsvp.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("rsvp store: %v", err)
	}
	env.svc = newServiceForEnv(t, env)
	env.catalog.SetCity(testReportChannel, "Springfield Downtown")
	return env
}

func newServiceForEnv(t *testing.T, env *testEnv) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Chat:     env.chat,
		Catalog:  env.catalog,
		Distance: env.distance,
		Trains:   env.trains,
		RSVPs:    env.rsvps,
		IDs:      NewSnowflakeProvider(1),
		Logger:   zap.NewNop(),
		Sleep:    func(context.Context, time.Duration) {},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func (e *testEnv) seedEvent(id int64, status catalog.Status) {
	e.catalog.PutEvent(testReportChannel, catalog.EventView{
		ID:           id,
		Status:       status,
		Title:        "Raid",
		BossName:     "Boss",
		Level:        "5",
		LocationID:   id * 10,
		LocationName: "Gym",
		LocationURL:  "https://maps.example/gym",
		EndsAt:       time.Unix(1700000000, 0),
		ReactList:    []string{"⚔"},
	})
}

func (e *testEnv) startTrain(t *testing.T, firstChoiceIndex int) *Train {
	t.Helper()
	e.chat.QueueAnswer(platform.ChoiceSymbols(8)[firstChoiceIndex])
	tr, err := e.svc.Start(context.Background(), testGuildID, testReportChannel, testInitiator)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return tr
}

func waitRound(t *testing.T, tr *Train) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.round == nil || !tr.round.running() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("poll round did not resolve")
}

func TestStartActivatesFirstChoiceAndRegisters(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)

	tr := env.startTrain(t, 0)

	if tr.CurrentEventID != 11 {
		t.Fatalf("expected event 11 current, got %d", tr.CurrentEventID)
	}
	if tr.NextEventID != 0 {
		t.Fatalf("next event should be unset, got %d", tr.NextEventID)
	}
	if tr.SummaryMessageID == 0 {
		t.Fatalf("summary card not posted")
	}
	if _, ok := env.svc.Registry().ByChannel(tr.ChannelID); !ok {
		t.Fatalf("train not registered by channel")
	}
	if _, ok := env.svc.Registry().BySummaryMessage(tr.SummaryMessageID); !ok {
		t.Fatalf("train not registered by summary message")
	}
	row, found, err := env.trains.Get(context.Background(), tr.ID)
	if err != nil || !found {
		t.Fatalf("row not persisted: found=%v err=%v", found, err)
	}
	if row.CurrentEventID != 11 {
		t.Fatalf("persisted current event mismatch: %d", row.CurrentEventID)
	}
	visiting := env.catalog.VisitingChannels(11)
	if len(visiting) != 1 || visiting[0] != tr.ChannelID {
		t.Fatalf("visit not registered on event side: %v", visiting)
	}
	if tr.round == nil {
		t.Fatalf("expected a poll round for the remaining candidate")
	}
}

func TestStartFailsWithEmptyCatalog(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Start(context.Background(), testGuildID, testReportChannel, testInitiator)
	if !errors.Is(err, ErrNoCandidateEvents) {
		t.Fatalf("expected ErrNoCandidateEvents, got %v", err)
	}
	if env.svc.Registry().Len() != 0 {
		t.Fatalf("no session should be registered")
	}
	if env.chat.HasChannel(1) {
		t.Fatalf("created channel should be cleaned up")
	}
}

func TestAdvanceWithoutCurrentIsIdempotentNoop(t *testing.T) {
	env := newTestEnv(t)
	tr := &Train{deps: env.svc.deps, ID: 1, ChannelID: 2, ReportChannelID: testReportChannel}

	for i := 0; i < 2; i++ {
		if err := tr.advance(context.Background()); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if tr.CurrentEventID != 0 || len(tr.History) != 0 {
		t.Fatalf("state should be unchanged: %+v", tr)
	}
}

func TestAdvanceUsesPollWinner(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	env.seedEvent(13, catalog.StatusPending)
	tr := env.startTrain(t, 0)

	// Candidates for the next round are 12 and 13; vote for the second.
	env.chat.ResolvePoll([]platform.Tally{{Symbol: platform.ChoiceSymbols(2)[1], Count: 2}})
	waitRound(t, tr)

	if err := env.svc.Advance(context.Background(), tr.ChannelID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if tr.CurrentEventID != 13 {
		t.Fatalf("expected event 13 current, got %d", tr.CurrentEventID)
	}
	if len(tr.History) != 1 || tr.History[0] != 11 {
		t.Fatalf("history mismatch: %v", tr.History)
	}
	if tr.NextEventID != 0 {
		t.Fatalf("next event should be cleared after activation")
	}
	if len(env.catalog.VisitingChannels(11)) != 0 {
		t.Fatalf("finished event should be unregistered")
	}
}

func TestAdvanceFallsBackWhenRoundInterrupted(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	tr := env.startTrain(t, 0)

	// No votes arrive; advancing cancels the round and re-queries the catalog.
	if err := env.svc.Advance(context.Background(), tr.ChannelID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if tr.CurrentEventID != 12 {
		t.Fatalf("expected fallback to event 12, got %d", tr.CurrentEventID)
	}
}

func TestAdvanceFailsWhenNothingLeft(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	tr := env.startTrain(t, 0)

	err := env.svc.Advance(context.Background(), tr.ChannelID)
	if !errors.Is(err, ErrNoCandidateEvents) {
		t.Fatalf("expected ErrNoCandidateEvents, got %v", err)
	}
}

func TestAdvancePrefersReportVotesOnTieOrBetter(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(10, catalog.StatusOpen) // first pick, becomes current
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	env.seedEvent(13, catalog.StatusPending)
	tr := env.startTrain(t, 0)

	// Announce event 12 so its report card collects interest votes.
	if err := env.svc.AnnounceEvent(context.Background(), tr.ChannelID, 12); err != nil {
		t.Fatalf("announce: %v", err)
	}
	reportRef, err := platform.ParseRef(tr.ReportMsgIDs[0])
	if err != nil {
		t.Fatalf("bad report ref: %v", err)
	}
	env.chat.React(reportRef, platform.SymbolUpvote, 4) // 5 with the seeded one

	// Direct poll: 3 votes for candidate 11.
	env.chat.ResolvePoll([]platform.Tally{{Symbol: platform.ChoiceSymbols(3)[0], Count: 3}})
	waitRound(t, tr)

	if err := env.svc.Advance(context.Background(), tr.ChannelID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if tr.CurrentEventID != 12 {
		t.Fatalf("externally reported event should win, got %d", tr.CurrentEventID)
	}
	if len(tr.ReportMsgIDs) != 0 {
		t.Fatalf("report cards should be cleared on advance")
	}
}

func TestJoinRefreshesSummaryAndPersists(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	tr := env.startTrain(t, 0)

	if err := env.svc.Join(context.Background(), tr.ChannelID, 42, 3, nil); err != nil {
		t.Fatalf("join: %v", err)
	}

	attendance, err := env.rsvps.List(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if attendance[42] != (rsvp.Party{0, 0, 0, 3}) {
		t.Fatalf("unexpected party %v", attendance[42])
	}

	_, embed, ok := env.chat.Message(tr.summaryRef())
	if !ok || embed == nil {
		t.Fatalf("summary card missing")
	}
	if embed.Fields[2].Value != "Mystic: 0 | Instinct: 0 | Valor: 0 | Unknown: 3" {
		t.Fatalf("summary team field not refreshed: %q", embed.Fields[2].Value)
	}
	if len(tr.AlertMsgIDs) != 1 {
		t.Fatalf("join alert not tracked: %v", tr.AlertMsgIDs)
	}
}

func TestLeaveLastMemberEndsTrain(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	tr := env.startTrain(t, 0)

	if err := env.svc.Join(context.Background(), tr.ChannelID, 42, 0, nil); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := env.svc.Leave(context.Background(), tr.ChannelID, 42); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if env.svc.Registry().Len() != 0 {
		t.Fatalf("registry should be empty after end")
	}
	if _, found, err := env.trains.Get(context.Background(), tr.ID); err != nil || found {
		t.Fatalf("train row should be deleted: found=%v err=%v", found, err)
	}
	attendance, err := env.rsvps.List(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attendance) != 0 {
		t.Fatalf("attendance rows should be purged")
	}
	if env.chat.HasChannel(tr.ChannelID) {
		t.Fatalf("session channel should be deleted")
	}
	_, embed, ok := env.chat.Message(tr.summaryRef())
	if !ok || embed == nil {
		t.Fatalf("summary card should survive in closed state")
	}
	if embed.Description != "This raid train has ended!" {
		t.Fatalf("summary card not finalized: %q", embed.Description)
	}
}

func TestHandleReactionRoutesJoinAndLeave(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	tr := env.startTrain(t, 0)

	if err := env.svc.HandleReaction(context.Background(), tr.summaryRef(), 42, platform.SymbolJoin); err != nil {
		t.Fatalf("join reaction: %v", err)
	}
	attendance, _ := env.rsvps.List(context.Background(), tr.ID)
	if attendance[42] != rsvp.DefaultParty() {
		t.Fatalf("expected default party, got %v", attendance[42])
	}

	// Unrecognized symbols and foreign messages are ignored.
	if err := env.svc.HandleReaction(context.Background(), tr.summaryRef(), 42, "??"); err != nil {
		t.Fatalf("unknown symbol: %v", err)
	}
	foreign := platform.MessageRef{ChannelID: 1, MessageID: 999999}
	if err := env.svc.HandleReaction(context.Background(), foreign, 42, platform.SymbolJoin); err != nil {
		t.Fatalf("foreign message: %v", err)
	}
}

func TestHandleNoticeRoutesToLoadedTrain(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	tr := env.startTrain(t, 0)
	if err := env.svc.Join(context.Background(), tr.ChannelID, 42, 0, nil); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Another process wrote the row; the notice just refreshes this one.
	if err := env.rsvps.Upsert(context.Background(), tr.ID, 43, rsvp.DefaultParty()); err != nil {
		t.Fatalf("cross-process upsert: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := env.svc.Notifier().Subscribe(ctx, tr.ID)
	defer cleanup()

	if err := env.svc.HandleNotice(context.Background(), rsvp.FormatNotice(rsvp.Notice{
		TrainID: tr.ID, MemberID: 43, Status: rsvp.StatusJoin,
	})); err != nil {
		t.Fatalf("handle notice: %v", err)
	}

	select {
	case notice := <-stream:
		if notice.MemberID != 43 {
			t.Fatalf("unexpected notice %+v", notice)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a fan-out notice")
	}

	_, embed, ok := env.chat.Message(tr.summaryRef())
	if !ok {
		t.Fatalf("summary card missing")
	}
	if embed.Fields[2].Value != "Mystic: 0 | Instinct: 0 | Valor: 0 | Unknown: 2" {
		t.Fatalf("summary not refreshed from notice: %q", embed.Fields[2].Value)
	}
}

func TestHandleNoticeUnloadedTrainIsNoop(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.HandleNotice(context.Background(), "12345/42/join"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if err := env.svc.HandleNotice(context.Background(), "garbage"); err == nil {
		t.Fatalf("malformed payload should error")
	}
}

func TestRecoverRebuildsSessionsAndSkipsGaps(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	tr := env.startTrain(t, 0)
	originalID := tr.ID

	// A second process comes up against the same durable state.
	restarted := newServiceForEnv(t, env)
	if err := restarted.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	recovered, ok := restarted.Registry().ByID(originalID)
	if !ok {
		t.Fatalf("train not recovered")
	}
	if recovered.CurrentEventID != tr.CurrentEventID {
		t.Fatalf("current event mismatch: %d != %d", recovered.CurrentEventID, tr.CurrentEventID)
	}
	if recovered.round == nil {
		t.Fatalf("poll round should be relaunched from the stored card set")
	}
}

func TestRecoverDropsUnknownEventReferences(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)

	row := (&Train{
		ID:               900,
		GuildID:          testGuildID,
		ChannelID:        70,
		ReportChannelID:  testReportChannel,
		CurrentEventID:   999, // gone from the catalog
		History:          []int64{11, 888},
		SummaryMessageID: 5,
	}).toRow()
	if err := env.trains.Upsert(context.Background(), row); err != nil {
		t.Fatalf("seed row: %v", err)
	}

	if err := env.svc.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	recovered, ok := env.svc.Registry().ByID(900)
	if !ok {
		t.Fatalf("train should recover despite gaps")
	}
	if recovered.CurrentEventID != 0 {
		t.Fatalf("unknown current event should be dropped, got %d", recovered.CurrentEventID)
	}
	if len(recovered.History) != 1 || recovered.History[0] != 11 {
		t.Fatalf("history should keep only known events: %v", recovered.History)
	}
}

func TestAnnounceEventTracksReportCard(t *testing.T) {
	env := newTestEnv(t)
	env.seedEvent(11, catalog.StatusOpen)
	env.seedEvent(12, catalog.StatusPending)
	tr := env.startTrain(t, 0)
	env.distance.SetTravelTime(11*10, 12*10, 600)

	if err := env.svc.AnnounceEvent(context.Background(), tr.ChannelID, 12); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if len(tr.ReportMsgIDs) != 1 {
		t.Fatalf("report card not tracked: %v", tr.ReportMsgIDs)
	}
	ref, err := platform.ParseRef(tr.ReportMsgIDs[0])
	if err != nil {
		t.Fatalf("bad ref: %v", err)
	}
	eventID, ok := env.catalog.EventByReportMessage(ref)
	if !ok || eventID != 12 {
		t.Fatalf("report message not bound to event: %d %v", eventID, ok)
	}
	count, err := env.chat.ReactionCount(context.Background(), ref, platform.SymbolUpvote)
	if err != nil || count != 1 {
		t.Fatalf("upvote reaction not seeded: %d %v", count, err)
	}
	_, embed, _ := env.chat.Message(ref)
	if embed.Fields[2].Value != "10 mins" {
		t.Fatalf("travel time not rendered: %q", embed.Fields[2].Value)
	}
}
