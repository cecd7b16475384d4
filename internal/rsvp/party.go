package rsvp

import (
	"errors"
	"fmt"
)

// Sub-team indexes inside a Party vector.
const (
	TeamMystic = iota
	TeamInstinct
	TeamValor
	TeamUnknown
	teamCount
)

// ErrInvalidParty indicates a party vector with negative or inconsistent counts.
var ErrInvalidParty = errors.New("rsvp: invalid party")

// Party is a member's group composition: attendee counts per sub-team.
type Party [teamCount]int

// DefaultParty is a single unaffiliated attendee.
func DefaultParty() Party {
	return Party{0, 0, 0, 1}
}

// Total is the number of attendees the party brings.
func (p Party) Total() int {
	sum := 0
	for _, count := range p {
		sum += count
	}
	return sum
}

// Validate rejects negative counts.
func (p Party) Validate() error {
	for i, count := range p {
		if count < 0 {
			return fmt.Errorf("%w: negative count at index %d", ErrInvalidParty, i)
		}
	}
	return nil
}

// PartyFromOverrides builds a party from the join command's optional total and
// per-team overrides. Attendees not claimed by a sub-team land in the unknown
// slot. With no arguments at all the default single-attendee party is used.
func PartyFromOverrides(total int, perTeam []int) (Party, error) {
	if total == 0 && len(perTeam) == 0 {
		return DefaultParty(), nil
	}
	if total < 0 {
		return Party{}, fmt.Errorf("%w: negative total", ErrInvalidParty)
	}
	if len(perTeam) > teamCount-1 {
		return Party{}, fmt.Errorf("%w: more than %d sub-team counts", ErrInvalidParty, teamCount-1)
	}

	var party Party
	claimed := 0
	for i, count := range perTeam {
		if count < 0 {
			return Party{}, fmt.Errorf("%w: negative count at index %d", ErrInvalidParty, i)
		}
		party[i] = count
		claimed += count
	}
	if total == 0 {
		total = claimed
	}
	if claimed > total {
		return Party{}, fmt.Errorf("%w: sub-team counts %d exceed total %d", ErrInvalidParty, claimed, total)
	}
	party[TeamUnknown] += total - claimed
	return party, nil
}

// TeamTotals is the element-wise sum of all party vectors; zero for no records.
func TeamTotals(records map[int64]Party) Party {
	var totals Party
	for _, party := range records {
		for i, count := range party {
			totals[i] += count
		}
	}
	return totals
}
