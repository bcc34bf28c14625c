package matching

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

var cycleNow = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func veteran(id string) *participant.Participant {
	return &participant.Participant{
		ID:       participant.ID(id),
		Status:   participant.StatusActive,
		Role:     participant.RoleUser,
		JoinedAt: cycleNow.Add(-60 * 24 * time.Hour),
	}
}

func located(t *testing.T, p *participant.Participant, lat, lon float64) *participant.Participant {
	t.Helper()
	loc, err := participant.SomeLocation(lat, lon)
	require.NoError(t, err)
	p.Location = loc
	return p
}

func TestAdjuster_HistoryPenalty(t *testing.T) {
	adj := NewAdjuster(DefaultAdjustmentConfig())
	a, b := veteran("a"), veteran("b")

	history := NewHistorySet([]PairKey{{Low: "b", High: "a"}})

	got := adj.Adjust(0.8, PairContext{A: a, B: b, History: history, Now: cycleNow})
	assert.InDelta(t, 0.24, got, 1e-9)

	// Nothing else applies, so a pair without history keeps its raw score.
	got = adj.Adjust(0.8, PairContext{A: a, B: b, History: HistorySet{}, Now: cycleNow})
	assert.InDelta(t, 0.8, got, 1e-9)
}

func TestAdjuster_NewcomerBoostStacks(t *testing.T) {
	adj := NewAdjuster(DefaultAdjustmentConfig())
	a, b := veteran("a"), veteran("b")
	a.JoinedAt = cycleNow.Add(-2 * 24 * time.Hour)

	got := adj.Adjust(0.5, PairContext{A: a, B: b, Now: cycleNow})
	assert.InDelta(t, 0.575, got, 1e-9)

	b.JoinedAt = cycleNow.Add(-time.Hour)
	got = adj.Adjust(0.5, PairContext{A: a, B: b, Now: cycleNow})
	assert.InDelta(t, 0.5*1.15*1.15, got, 1e-9)
}

func TestAdjuster_NotClamped(t *testing.T) {
	adj := NewAdjuster(DefaultAdjustmentConfig())
	a, b := veteran("a"), veteran("b")
	a.JoinedAt = cycleNow.Add(-time.Hour)
	b.JoinedAt = cycleNow.Add(-time.Hour)

	got := adj.Adjust(1, PairContext{A: a, B: b, Now: cycleNow})
	assert.Greater(t, got, 1.0)
}

func TestAdjuster_Distance(t *testing.T) {
	adj := NewAdjuster(DefaultAdjustmentConfig())

	t.Run("far apart is floored", func(t *testing.T) {
		almaty := located(t, veteran("a"), 43.238949, 76.889709)
		astana := located(t, veteran("b"), 51.169392, 71.449074)

		km := adj.DistanceKm(almaty.Location, astana.Location)
		assert.InDelta(t, 970, km, 20)

		got := adj.Adjust(1, PairContext{A: almaty, B: astana, Now: cycleNow})
		assert.InDelta(t, 0.5, got, 1e-9)
	})

	t.Run("same city is untouched", func(t *testing.T) {
		a := located(t, veteran("a"), 43.238949, 76.889709)
		b := located(t, veteran("b"), 43.2567, 76.9286)

		got := adj.Adjust(0.6, PairContext{A: a, B: b, Now: cycleNow})
		assert.InDelta(t, 0.6, got, 1e-9)
	})

	t.Run("missing coordinate means zero distance", func(t *testing.T) {
		a := located(t, veteran("a"), 43.238949, 76.889709)
		b := veteran("b")

		assert.Zero(t, adj.DistanceKm(a.Location, b.Location))
		got := adj.Adjust(0.6, PairContext{A: a, B: b, Now: cycleNow})
		assert.InDelta(t, 0.6, got, 1e-9)
	})

	t.Run("antipodal points stay finite", func(t *testing.T) {
		for lat := -89.5; lat <= 89.5; lat += 1.5 {
			for lon := -179.5; lon < 0; lon += 7 {
				a := located(t, veteran("a"), lat, lon)
				b := located(t, veteran("b"), -lat, lon+180)

				km := adj.DistanceKm(a.Location, b.Location)
				require.False(t, math.IsNaN(km), "distance (%v,%v)", lat, lon)
				assert.InDelta(t, math.Pi*6371, km, 1)

				got := adj.Adjust(0.9, PairContext{A: a, B: b, Now: cycleNow})
				assert.InDelta(t, 0.45, got, 1e-9)
			}
		}

		a := located(t, veteran("a"), -88.5, -179.5)
		b := located(t, veteran("b"), 88.5, 0.5)
		assert.InDelta(t, 0.45, adj.Adjust(0.9, PairContext{A: a, B: b, Now: cycleNow}), 1e-9)
	})

	t.Run("linear decay between threshold and floor", func(t *testing.T) {
		assert.Equal(t, 1.0, adj.DistanceFactor(100))
		assert.InDelta(t, 0.7, adj.DistanceFactor(300), 1e-9)
		assert.InDelta(t, 0.5, adj.DistanceFactor(800), 1e-9)
	})
}

func TestAdjuster_Order(t *testing.T) {
	adj := NewAdjuster(DefaultAdjustmentConfig())
	a := located(t, veteran("a"), 0, 0)
	b := located(t, veteran("b"), 0, 2.7) // roughly 300 km along the equator
	a.JoinedAt = cycleNow.Add(-time.Hour)

	history := HistorySet{}
	history.Add("a", "b")

	factor := adj.DistanceFactor(adj.DistanceKm(a.Location, b.Location))
	got := adj.Adjust(0.8, PairContext{A: a, B: b, History: history, Now: cycleNow})

	assert.InDelta(t, 0.8*0.3*1.15*factor, got, 1e-9)
	assert.Less(t, factor, 1.0)
}
