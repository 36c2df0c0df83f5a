package engine

import (
	"encoding/json"

	"trailhead/internal/domain"
)

// SeedManager tracks planted goals. The first active seed is primary
// and owns the authoritative goal tree.
type SeedManager struct {
	seeds []domain.Seed
}

func NewSeedManager() *SeedManager { return &SeedManager{} }

func (s *SeedManager) Key() string { return "seed_manager" }

func (s *SeedManager) ExportState() (json.RawMessage, error) {
	return json.Marshal(s.seeds)
}

func (s *SeedManager) ImportState(raw json.RawMessage) error {
	return json.Unmarshal(raw, &s.seeds)
}

// Plant registers a new seed as active.
func (s *SeedManager) Plant(seed domain.Seed) {
	seed.Status = "active"
	s.seeds = append(s.seeds, seed)
}

// Primary returns the first active seed.
func (s *SeedManager) Primary() (domain.Seed, bool) {
	for _, seed := range s.seeds {
		if seed.Status == "active" {
			return seed, true
		}
	}
	return domain.Seed{}, false
}

// All returns the planted seeds in order.
func (s *SeedManager) All() []domain.Seed {
	out := make([]domain.Seed, len(s.seeds))
	copy(out, s.seeds)
	return out
}

// Complete marks the seed with the given id completed.
func (s *SeedManager) Complete(id string) bool {
	for i := range s.seeds {
		if s.seeds[i].ID == id {
			s.seeds[i].Status = "completed"
			return true
		}
	}
	return false
}
