package matching

import (
	"math"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/participant"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// AdjustmentConfig holds the multipliers applied to a raw compatibility score.
type AdjustmentConfig struct {
	// HistoryPenalty multiplies the score of a pair matched in any earlier week.
	HistoryPenalty float64

	// NewcomerWindow is how recently a participant must have joined to be boosted.
	NewcomerWindow time.Duration

	// NewcomerBoost is applied once per newly joined side, so it can stack.
	NewcomerBoost float64

	// DistanceThresholdKm is the distance above which the score decays.
	DistanceThresholdKm float64

	// DistanceDecayKm is the distance at which the decay would reach zero.
	DistanceDecayKm float64

	// DistanceFloor is the smallest distance factor ever applied.
	DistanceFloor float64

	// EarthRadiusKm is used by the haversine formula.
	EarthRadiusKm float64
}

// DefaultAdjustmentConfig returns the production constants.
func DefaultAdjustmentConfig() AdjustmentConfig {
	return AdjustmentConfig{
		HistoryPenalty:      0.3,
		NewcomerWindow:      7 * 24 * time.Hour,
		NewcomerBoost:       1.15,
		DistanceThresholdKm: 100,
		DistanceDecayKm:     1000,
		DistanceFloor:       0.5,
		EarthRadiusKm:       6371,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADJUSTER
// ══════════════════════════════════════════════════════════════════════════════

// PairContext carries what the adjuster needs to know about a pair.
type PairContext struct {
	A       *participant.Participant
	B       *participant.Participant
	History HistorySet

	// Now is the cycle run time used for the newcomer window.
	Now time.Time
}

// Adjuster applies history, newcomer and distance adjustments, in that order.
// The result is not clamped; boosted scores may exceed 1.
type Adjuster struct {
	config AdjustmentConfig
}

// NewAdjuster creates an adjuster with the given constants.
func NewAdjuster(config AdjustmentConfig) *Adjuster {
	return &Adjuster{config: config}
}

// Config returns the adjuster's constants.
func (a *Adjuster) Config() AdjustmentConfig {
	return a.config
}

// Adjust returns the adjusted score for a raw compatibility score.
func (a *Adjuster) Adjust(raw float64, pc PairContext) float64 {
	score := raw

	if pc.History.Contains(pc.A.ID, pc.B.ID) {
		score *= a.config.HistoryPenalty
	}

	if pc.A.JoinedWithin(a.config.NewcomerWindow, pc.Now) {
		score *= a.config.NewcomerBoost
	}
	if pc.B.JoinedWithin(a.config.NewcomerWindow, pc.Now) {
		score *= a.config.NewcomerBoost
	}

	score *= a.DistanceFactor(a.DistanceKm(pc.A.Location, pc.B.Location))

	return score
}

// DistanceFactor returns the multiplier for a distance in kilometres.
func (a *Adjuster) DistanceFactor(km float64) float64 {
	if km <= a.config.DistanceThresholdKm {
		return 1
	}
	return math.Max(a.config.DistanceFloor, 1-km/a.config.DistanceDecayKm)
}

// DistanceKm is the great-circle distance between two locations.
// If either location is unknown the distance is 0.
func (a *Adjuster) DistanceKm(from, to participant.Location) float64 {
	lat1, lon1, ok1 := from.Coordinates()
	lat2, lon2, ok2 := to.Coordinates()
	if !ok1 || !ok2 {
		return 0
	}
	return haversine(lat1, lon1, lat2, lon2, a.config.EarthRadiusKm)
}

func haversine(lat1, lon1, lat2, lon2, radius float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h past 1 for near-antipodal points.
	h = math.Min(1, math.Max(0, h))

	return radius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
