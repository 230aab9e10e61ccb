package service

import (
	"context"
	"testing"

	"github.com/phyn2-2/medasset-sentinel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simEquipment(id, category string) models.Equipment {
	return models.Equipment{ID: id, Category: category}
}

func samples(t *testing.T, s *Simulator, eq models.Equipment, n int) []float64 {
	t.Helper()
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		r, err := s.Sample(context.Background(), eq)
		require.NoError(t, err)
		out = append(out, r.Value)
	}
	return out
}

func TestSimulator_DeterministicPerEquipment(t *testing.T) {
	profiles := map[string]Profile{
		DefaultProfile: {Metric: "health_index", Baseline: 100, Noise: 5, ExcursionProbability: 0.2, ExcursionMagnitude: 40},
	}
	a := NewSimulator(42, profiles)
	b := NewSimulator(42, profiles)
	e1, e2 := simEquipment("e1", "x"), simEquipment("e2", "x")

	// interleaving with another equipment does not shift e1's sequence
	want := samples(t, a, e1, 20)
	var got []float64
	for i := 0; i < 20; i++ {
		samples(t, b, e2, 1)
		got = append(got, samples(t, b, e1, 1)...)
	}
	assert.Equal(t, want, got)

	c := NewSimulator(43, profiles)
	assert.NotEqual(t, want, samples(t, c, e1, 20), "another seed gives another sequence")
}

func TestSimulator_BoundsAndExcursions(t *testing.T) {
	s := NewSimulator(1, map[string]Profile{
		"calm":  {Metric: "flow", Baseline: 50, Noise: 2},
		"spiky": {Metric: "flow", Baseline: 50, ExcursionProbability: 1, ExcursionMagnitude: 30},
	})

	for _, v := range samples(t, s, simEquipment("c", "calm"), 200) {
		assert.InDelta(t, 50, v, 2)
	}
	for _, v := range samples(t, s, simEquipment("s", "spiky"), 50) {
		assert.True(t, v == 20 || v == 80, "value %v is not a full excursion", v)
	}
}

func TestSimulator_ProfileSelection(t *testing.T) {
	s := NewSimulator(1, map[string]Profile{
		DefaultProfile:  {Metric: "Health_Index", Baseline: 100},
		"infusion_pump": {Metric: "flow_rate_ml_h", Baseline: 120},
	})

	r, err := s.Sample(context.Background(), simEquipment("p", " Infusion_Pump "))
	require.NoError(t, err)
	assert.Equal(t, "flow_rate_ml_h", r.Metric)
	assert.Equal(t, "p", r.EquipmentID)
	assert.NotEmpty(t, r.ID)

	r, err = s.Sample(context.Background(), simEquipment("q", "unknown"))
	require.NoError(t, err)
	assert.Equal(t, "health_index", r.Metric, "falls back to the default profile")
}

func TestSimulator_Errors(t *testing.T) {
	s := NewSimulator(1, map[string]Profile{
		"broken": {Metric: "x", Noise: -1},
	})

	_, err := s.Sample(context.Background(), simEquipment("a", "broken"))
	assert.ErrorIs(t, err, models.ErrEvaluationFailure)

	_, err = s.Sample(context.Background(), simEquipment("b", "no_default"))
	assert.ErrorIs(t, err, models.ErrEvaluationFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sample(ctx, simEquipment("a", "broken"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulator_ForgetRestartsSequence(t *testing.T) {
	s := NewSimulator(9, map[string]Profile{
		DefaultProfile: {Metric: "m", Baseline: 0, Noise: 10},
	})
	eq := simEquipment("e", "any")

	first := samples(t, s, eq, 3)
	s.forget("e")
	assert.Equal(t, first, samples(t, s, eq, 3))
}
