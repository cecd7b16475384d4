package cards

import (
	"strings"
	"testing"
	"time"

	"github.com/voyagerlabs/raidtrain/internal/catalog"
	"github.com/voyagerlabs/raidtrain/internal/rsvp"
)

func TestTrainCardCarriesTeamTotals(t *testing.T) {
	embed := TrainCard("#city-raid-train", "Lv5 raid at Central Plaza", rsvp.Party{2, 0, 1, 3})
	if embed.Title != "Raid Train" {
		t.Fatalf("unexpected title %q", embed.Title)
	}
	if len(embed.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(embed.Fields))
	}
	if embed.Fields[2].Value != "Mystic: 2 | Instinct: 0 | Valor: 1 | Unknown: 3" {
		t.Fatalf("unexpected team field %q", embed.Fields[2].Value)
	}
}

func TestSetTeamFieldEditsInPlace(t *testing.T) {
	embed := TrainCard("#chan", "summary", rsvp.Party{})
	SetTeamField(&embed, rsvp.Party{0, 1, 0, 0})
	if embed.Fields[2].Value != "Mystic: 0 | Instinct: 1 | Valor: 0 | Unknown: 0" {
		t.Fatalf("unexpected team field %q", embed.Fields[2].Value)
	}
	if embed.Fields[0].Value != "#chan" {
		t.Fatalf("channel field clobbered: %q", embed.Fields[0].Value)
	}
}

func TestEventCardRendersStatusVariants(t *testing.T) {
	base := catalog.EventView{
		ID:           1,
		Title:        "Raid at Central Plaza",
		BossName:     "Lugia",
		Level:        "5",
		LocationID:   10,
		LocationName: "Central Plaza",
		LocationURL:  "https://maps.example/10",
		EndsAt:       time.Unix(1700000000, 0),
	}

	tests := []struct {
		name      string
		status    catalog.Status
		wantField string
		wantValue string
	}{
		{name: "open-shows-boss", status: catalog.StatusOpen, wantField: "Boss", wantValue: "Lugia"},
		{name: "pending-shows-level", status: catalog.StatusPending, wantField: "Level", wantValue: "5"},
		{name: "revealed-shows-boss", status: catalog.StatusRevealed, wantField: "Boss", wantValue: "Lugia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := base
			view.Status = tt.status
			embed := EventCard(view)
			if embed.Fields[0].Name != tt.wantField || embed.Fields[0].Value != tt.wantValue {
				t.Fatalf("unexpected lead field %+v", embed.Fields[0])
			}
			if !strings.Contains(embed.Fields[1].Value, "Central Plaza") {
				t.Fatalf("expected gym link, got %q", embed.Fields[1].Value)
			}
		})
	}
}

func TestEventAlertCardMarksUnknownGymAndTravel(t *testing.T) {
	view := catalog.EventView{
		Status:       catalog.StatusOpen,
		BossName:     "Moltres",
		LocationName: "Side Street",
	}
	embed := EventAlertCard(view, 0, false)
	if !strings.Contains(embed.Fields[1].Value, "(Unknown Gym)") {
		t.Fatalf("expected unknown gym marker, got %q", embed.Fields[1].Value)
	}
	if embed.Fields[2].Value != "Unknown" {
		t.Fatalf("expected unknown travel time, got %q", embed.Fields[2].Value)
	}

	withTravel := EventAlertCard(view, 300, true)
	if withTravel.Fields[2].Value != "5 mins" {
		t.Fatalf("unexpected travel time %q", withTravel.Fields[2].Value)
	}
}

func entry(id int64, status catalog.Status) ChoiceEntry {
	return ChoiceEntry{EventID: id, Status: status, Summary: "event"}
}

func TestChoicePagesExhaustsActiveGroupFirst(t *testing.T) {
	entries := []ChoiceEntry{
		entry(1, catalog.StatusPending),
		entry(2, catalog.StatusOpen),
		entry(3, catalog.StatusOpen),
		entry(4, catalog.StatusRevealed),
		entry(5, catalog.StatusOpen),
	}
	pages := ChoicePages(entries, 3)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if len(pages[0].Fields) != 1 || pages[0].Fields[0].Name != "Active" {
		t.Fatalf("first page should be all active: %+v", pages[0].Fields)
	}
	if strings.Count(pages[0].Fields[0].Value, "event") != 3 {
		t.Fatalf("first page should hold 3 entries: %q", pages[0].Fields[0].Value)
	}
	if len(pages[1].Fields) != 2 {
		t.Fatalf("second page should hold trailing active plus eggs: %+v", pages[1].Fields)
	}
	if pages[1].Fields[0].Name != "Active" || pages[1].Fields[1].Name != "Eggs" {
		t.Fatalf("unexpected groups on second page: %+v", pages[1].Fields)
	}
}

func TestChoicePagesSinglePageHasPlainTitle(t *testing.T) {
	pages := ChoicePages([]ChoiceEntry{entry(1, catalog.StatusOpen), entry(2, catalog.StatusPending)}, 3)
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Title != "Raid Choices" {
		t.Fatalf("unexpected title %q", pages[0].Title)
	}
	if len(pages[0].Fields) != 2 {
		t.Fatalf("lone trailing group should share the card: %+v", pages[0].Fields)
	}
}

func TestChoicePagesMultiPageTitlesAreNumbered(t *testing.T) {
	var entries []ChoiceEntry
	for i := int64(0); i < 7; i++ {
		entries = append(entries, entry(i, catalog.StatusOpen))
	}
	pages := ChoicePages(entries, 3)
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[1].Title != "Raid Choices (Page 2 of 3)" {
		t.Fatalf("unexpected title %q", pages[1].Title)
	}
}

func TestChoicePagesEmptyYieldsNoCards(t *testing.T) {
	if pages := ChoicePages(nil, 3); len(pages) != 0 {
		t.Fatalf("expected no pages, got %d", len(pages))
	}
}
