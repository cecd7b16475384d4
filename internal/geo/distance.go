package geo

import (
	"context"
	"sync"
)

// Leg is one origin/destination travel time in seconds.
type Leg struct {
	OriginID int64
	DestID   int64
	Seconds  int
}

// DistanceService resolves travel times between known locations. It is an
// external collaborator; results for unknown pairs are simply omitted.
type DistanceService interface {
	TravelTimes(ctx context.Context, origins, dests []int64) ([]Leg, error)
}

// StaticDistance is a map-backed DistanceService for the dev server and tests.
type StaticDistance struct {
	mu    sync.Mutex
	times map[[2]int64]int
}

// NewStaticDistance constructs an empty static distance table.
func NewStaticDistance() *StaticDistance {
	return &StaticDistance{times: make(map[[2]int64]int)}
}

// SetTravelTime records the travel time for an origin/destination pair.
func (s *StaticDistance) SetTravelTime(originID, destID int64, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[[2]int64{originID, destID}] = seconds
}

func (s *StaticDistance) TravelTimes(_ context.Context, origins, dests []int64) ([]Leg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var legs []Leg
	for _, origin := range origins {
		for _, dest := range dests {
			if seconds, ok := s.times[[2]int64{origin, dest}]; ok {
				legs = append(legs, Leg{OriginID: origin, DestID: dest, Seconds: seconds})
			}
		}
	}
	return legs, nil
}
