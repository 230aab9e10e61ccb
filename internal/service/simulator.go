package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/google/uuid"
)

// DefaultProfile is used for categories without their own profile.
const DefaultProfile = "default"

// Profile parameterizes the simulated signal of one equipment category.
type Profile struct {
	Metric               string
	Baseline             float64
	Noise                float64
	ExcursionProbability float64
	ExcursionMagnitude   float64
}

func (p Profile) validate() error {
	switch {
	case strings.TrimSpace(p.Metric) == "":
		return fmt.Errorf("profile has no metric")
	case p.Noise < 0:
		return fmt.Errorf("profile %s: negative noise", p.Metric)
	case p.ExcursionMagnitude < 0:
		return fmt.Errorf("profile %s: negative excursion magnitude", p.Metric)
	case p.ExcursionProbability < 0 || p.ExcursionProbability > 1:
		return fmt.Errorf("profile %s: excursion probability %v outside [0,1]", p.Metric, p.ExcursionProbability)
	default:
		return nil
	}
}

// Simulator produces one synthetic reading per call and never persists it.
//
// Sample n of equipment E is drawn from a PCG stream seeded by
// (seed ^ fnv64(E.ID), n), so a fixed seed reproduces the same per-equipment
// sequence whatever order the units run in.
type Simulator struct {
	seed     uint64
	profiles atomic.Pointer[map[string]Profile]
	now      func() time.Time

	mu  sync.Mutex
	seq map[string]uint64
}

func NewSimulator(seed uint64, profiles map[string]Profile) *Simulator {
	s := &Simulator{
		seed: seed,
		now:  func() time.Time { return time.Now().UTC() },
		seq:  make(map[string]uint64),
	}
	s.SetProfiles(profiles)
	return s
}

// SetProfiles swaps the profile table; keys are matched case-insensitively.
func (s *Simulator) SetProfiles(p map[string]Profile) {
	norm := make(map[string]Profile, len(p))
	for category, prof := range p {
		norm[normalizeCategory(category)] = prof
	}
	s.profiles.Store(&norm)
}

// ProfileFor returns the profile used for category.
func (s *Simulator) ProfileFor(category string) (Profile, bool) {
	table := *s.profiles.Load()
	if p, ok := table[normalizeCategory(category)]; ok {
		return p, true
	}
	p, ok := table[DefaultProfile]
	return p, ok
}

func (s *Simulator) Sample(ctx context.Context, eq models.Equipment) (models.SensorEvent, error) {
	if err := ctx.Err(); err != nil {
		return models.SensorEvent{}, fmt.Errorf("sample %s: %w", eq.ID, err)
	}
	p, ok := s.ProfileFor(eq.Category)
	if !ok {
		return models.SensorEvent{}, fmt.Errorf("sample %s: no profile for %q: %w", eq.ID, eq.Category, models.ErrEvaluationFailure)
	}
	if err := p.validate(); err != nil {
		return models.SensorEvent{}, fmt.Errorf("sample %s: %v: %w", eq.ID, err, models.ErrEvaluationFailure)
	}

	r := rand.New(rand.NewPCG(s.seed^hashID(eq.ID), s.next(eq.ID)))
	return models.SensorEvent{
		ID:          uuid.NewString(),
		EquipmentID: eq.ID,
		Metric:      normalizeMetric(p.Metric),
		Value:       draw(r, p),
		RecordedAt:  s.now(),
	}, nil
}

// draw returns baseline + U[-noise, noise], shifted by ±magnitude with the
// excursion probability.
func draw(r *rand.Rand, p Profile) float64 {
	v := p.Baseline + (r.Float64()*2-1)*p.Noise
	if p.ExcursionProbability > 0 && r.Float64() < p.ExcursionProbability {
		if r.IntN(2) == 0 {
			v -= p.ExcursionMagnitude
		} else {
			v += p.ExcursionMagnitude
		}
	}
	return v
}

func (s *Simulator) next(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.seq[id]
	s.seq[id] = n + 1
	return n
}

// forget drops the sequence counter of a deleted equipment.
func (s *Simulator) forget(id string) {
	s.mu.Lock()
	delete(s.seq, id)
	s.mu.Unlock()
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
