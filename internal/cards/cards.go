package cards

import (
	"fmt"
	"strings"

	"github.com/voyagerlabs/raidtrain/internal/catalog"
	"github.com/voyagerlabs/raidtrain/internal/platform"
	"github.com/voyagerlabs/raidtrain/internal/rsvp"
)

const (
	trainCardTitle  = "Raid Train"
	totalsCardTitle = "Current Train Totals"
	alertCardTitle  = "Raid Report"
	choicesTitle    = "Raid Choices"

	fieldChannel  = "Channel"
	fieldCurrent  = "Current Raid"
	fieldTeamList = "Team List"
	fieldBoss     = "Boss"
	fieldLevel    = "Level"
	fieldGym      = "Gym"
	fieldTravel   = "Travel Time"

	groupActive = "Active"
	groupEggs   = "Eggs"
)

// Index of the team list field on the summary card, edited in place on RSVP.
const teamFieldIndex = 2

// TeamString renders aggregated sub-team totals for a card field.
func TeamString(totals rsvp.Party) string {
	return fmt.Sprintf("Mystic: %d | Instinct: %d | Valor: %d | Unknown: %d",
		totals[rsvp.TeamMystic], totals[rsvp.TeamInstinct],
		totals[rsvp.TeamValor], totals[rsvp.TeamUnknown])
}

// TrainCard builds the summary card members react to in order to join or leave.
func TrainCard(channelName, currentSummary string, totals rsvp.Party) platform.Embed {
	return platform.Embed{
		Title: trainCardTitle,
		Fields: []platform.EmbedField{
			{Name: fieldChannel, Value: channelName},
			{Name: fieldCurrent, Value: currentSummary},
			{Name: fieldTeamList, Value: TeamString(totals)},
		},
	}
}

// SetTeamField refreshes the team list field of an existing summary card.
func SetTeamField(embed *platform.Embed, totals rsvp.Party) {
	for len(embed.Fields) <= teamFieldIndex {
		embed.Fields = append(embed.Fields, platform.EmbedField{})
	}
	embed.Fields[teamFieldIndex] = platform.EmbedField{Name: fieldTeamList, Value: TeamString(totals)}
}

// TotalsCard builds the attendance totals card posted with join/leave alerts.
func TotalsCard(totals rsvp.Party) platform.Embed {
	return platform.Embed{
		Title: totalsCardTitle,
		Fields: []platform.EmbedField{
			{Name: fieldTeamList, Value: TeamString(totals)},
		},
	}
}

// ClosedCard is the terminal content the summary card is replaced with.
func ClosedCard() platform.Embed {
	return platform.Embed{Description: "This raid train has ended!"}
}

// EventCard builds the card posted into the session channel when an event is
// activated, rendered per status variant.
func EventCard(view catalog.EventView) platform.Embed {
	embed := platform.Embed{
		Title:     view.Title,
		Thumbnail: view.ThumbnailURL,
		Footer:    "Ending",
		Timestamp: view.EndsAt,
	}
	switch view.Status {
	case catalog.StatusPending:
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: fieldLevel, Value: view.Level})
	case catalog.StatusRevealed:
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: fieldBoss, Value: view.BossName})
		embed.Description = "This egg has hatched!"
	default:
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: fieldBoss, Value: view.BossName})
	}
	embed.Fields = append(embed.Fields, platform.EmbedField{
		Name:  fieldGym,
		Value: gymLink(view),
	})
	return embed
}

// EventAlertCard builds the new-event alert inviting interest votes, including
// travel time from the session's current event when known.
func EventAlertCard(view catalog.EventView, travelSeconds int, hasTravel bool) platform.Embed {
	embed := platform.Embed{
		Title:     alertCardTitle,
		Thumbnail: view.ThumbnailURL,
		Footer:    "Ending",
		Timestamp: view.EndsAt,
	}
	if view.Status == catalog.StatusPending {
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: fieldLevel, Value: view.Level})
	} else {
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: fieldBoss, Value: view.BossName})
	}
	embed.Fields = append(embed.Fields,
		platform.EmbedField{Name: fieldGym, Value: gymLink(view)},
		platform.EmbedField{Name: fieldTravel, Value: travelString(travelSeconds, hasTravel)},
	)
	return embed
}

func gymLink(view catalog.EventView) string {
	name := view.LocationName
	if view.LocationID == 0 {
		name += " (Unknown Gym)"
	}
	if view.LocationURL == "" {
		return name
	}
	return fmt.Sprintf("[%s](%s)", name, view.LocationURL)
}

func travelString(seconds int, known bool) string {
	if !known {
		return "Unknown"
	}
	return fmt.Sprintf("%d mins", seconds/60)
}

// ChoiceEntry is one candidate line on the choice card set.
type ChoiceEntry struct {
	EventID int64
	Status  catalog.Status
	Summary string
}

// ChoiceLine renders a candidate's summary with its vote symbol and a
// directions link carrying the travel time from the current event.
func ChoiceLine(symbol string, view catalog.EventView, travelSeconds int, hasTravel bool) string {
	travel := "Travel Time: Unknown"
	if hasTravel {
		travel = fmt.Sprintf("Travel Time: %d mins", travelSeconds/60)
	}
	directions := travel
	if view.LocationURL != "" {
		directions = fmt.Sprintf("[%s](%s)", travel, view.LocationURL)
	}
	return fmt.Sprintf("%s %s\n%s", symbol, view.Title, directions)
}

// ChoicePages partitions candidates into Active (open or revealed) and Eggs
// (pending) groups and lays them out pageSize entries per card. The Active
// group is exhausted first; a new card starts only when the current one is
// full, and a trailing group that still fits joins the current card.
func ChoicePages(entries []ChoiceEntry, pageSize int) []platform.Embed {
	if pageSize < 1 {
		pageSize = 3
	}
	var active, eggs []string
	for _, entry := range entries {
		switch entry.Status {
		case catalog.StatusPending:
			eggs = append(eggs, entry.Summary)
		case catalog.StatusOpen, catalog.StatusRevealed:
			active = append(active, entry.Summary)
		}
	}

	total := len(active) + len(eggs)
	pages := (total + pageSize - 1) / pageSize
	embeds := make([]platform.Embed, 0, pages)
	for i := 0; i < pages; i++ {
		title := choicesTitle
		if pages > 1 {
			title = fmt.Sprintf("%s (Page %d of %d)", choicesTitle, i+1, pages)
		}
		var fields []platform.EmbedField
		left := pageSize

		if len(active) > left {
			fields = append(fields, platform.EmbedField{Name: groupActive, Value: strings.Join(active[:left], "\n\n")})
			active = active[left:]
			embeds = append(embeds, platform.Embed{Title: title, Fields: fields})
			continue
		}
		if len(active) > 0 {
			fields = append(fields, platform.EmbedField{Name: groupActive, Value: strings.Join(active, "\n\n")})
			left -= len(active)
			active = nil
		}
		if left > 0 && len(eggs) > 0 {
			take := left
			if take > len(eggs) {
				take = len(eggs)
			}
			fields = append(fields, platform.EmbedField{Name: groupEggs, Value: strings.Join(eggs[:take], "\n\n")})
			eggs = eggs[take:]
		}
		embeds = append(embeds, platform.Embed{Title: title, Fields: fields})
	}
	return embeds
}
