package queue

import (
	"github.com/nstehr/vimy/vimy-builder/model"
)

// Spot is a metal extraction site. At most one order holds it at a time.
type Spot struct {
	ID         int
	Pos        model.Point
	Metal      float64
	EnemyOwned bool

	// Extractor is our finished extractor standing on the spot, 0 if none.
	Extractor int
	// BlockedUntil keeps a spot that refused placement out of rotation
	// until that frame; 0 when not blocked.
	BlockedUntil int

	Builder int
	Order   Handle
}

func (s Spot) Locked() bool { return s.Order.Valid() }

// Available reports a spot an extractor order could claim now.
func (s Spot) Available() bool {
	return !s.Locked() && !s.EnemyOwned && s.Extractor == 0 && s.BlockedUntil == 0
}

// SpotIndex holds every spot found by map analysis. Spot IDs are 1-based
// positions in the index so that 0 can mean "no spot".
type SpotIndex struct {
	spots []Spot
}

func NewSpotIndex(infos []model.SpotInfo) *SpotIndex {
	s := &SpotIndex{spots: make([]Spot, len(infos))}
	for i, info := range infos {
		s.spots[i] = Spot{ID: i + 1, Pos: info.Pos(), Metal: info.Metal}
	}
	return s
}

func (s *SpotIndex) Len() int { return len(s.spots) }

func (s *SpotIndex) Get(id int) (Spot, bool) {
	if id <= 0 || id > len(s.spots) {
		return Spot{}, false
	}
	return s.spots[id-1], true
}

func (s *SpotIndex) SetEnemyOwned(id int, owned bool) {
	if id > 0 && id <= len(s.spots) {
		s.spots[id-1].EnemyOwned = owned
	}
}

// Occupy records our extractor unit on the nearest spot within radius of
// p. Returns the spot id.
func (s *SpotIndex) Occupy(p model.Point, radius float64, unit int) (int, bool) {
	best, bestDist := -1, radius*radius
	for i, sp := range s.spots {
		if sp.Extractor != 0 {
			continue
		}
		if d := sp.Pos.DistSq(p); d <= bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, false
	}
	s.spots[best].Extractor = unit
	s.spots[best].BlockedUntil = 0
	return best + 1, true
}

// Vacate frees the spot held by a destroyed extractor.
func (s *SpotIndex) Vacate(unit int) bool {
	for i := range s.spots {
		if s.spots[i].Extractor == unit {
			s.spots[i].Extractor = 0
			return true
		}
	}
	return false
}

// Block takes a spot out of rotation until the given frame.
func (s *SpotIndex) Block(id, until int) {
	if id > 0 && id <= len(s.spots) {
		s.spots[id-1].BlockedUntil = until
	}
}

// ExpireBlocks returns spots whose block ran out by now to rotation.
func (s *SpotIndex) ExpireBlocks(now int) int {
	n := 0
	for i := range s.spots {
		if u := s.spots[i].BlockedUntil; u != 0 && u <= now {
			s.spots[i].BlockedUntil = 0
			n++
		}
	}
	return n
}

// Free returns the number of available spots.
func (s *SpotIndex) Free() int {
	n := 0
	for _, sp := range s.spots {
		if sp.Available() {
			n++
		}
	}
	return n
}

// Closest returns the nearest available spot passing ok (which may be nil).
func (s *SpotIndex) Closest(p model.Point, ok func(Spot) bool) (Spot, bool) {
	best, found := Spot{}, false
	bestDist := 0.0
	for _, sp := range s.spots {
		if !sp.Available() {
			continue
		}
		if ok != nil && !ok(sp) {
			continue
		}
		d := sp.Pos.DistSq(p)
		if !found || d < bestDist {
			best, bestDist, found = sp, d, true
		}
	}
	return best, found
}

func (s *SpotIndex) lock(id, builder int, h Handle) error {
	sp := &s.spots[id-1]
	if sp.Locked() && sp.Order != h {
		return ErrSpotLocked
	}
	sp.Builder = builder
	sp.Order = h
	return nil
}

func (s *SpotIndex) unlock(id int) {
	if id <= 0 || id > len(s.spots) {
		return
	}
	s.spots[id-1].Builder = 0
	s.spots[id-1].Order = Handle{}
}

// Each walks spots in index order.
func (s *SpotIndex) Each(fn func(Spot)) {
	for _, sp := range s.spots {
		fn(sp)
	}
}
