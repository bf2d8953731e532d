// Package points holds the drop-off accuracy scoring rules. Everything here is
// pure arithmetic over distances and ledger rows.
package points

import (
	"math"

	"github.com/example/rickshaw-rides/internal/models"
)

const (
	// Base is the full award for a perfect drop-off on the block.
	Base = 10.0
	// PenaltyPerMeter knocks one point off per 10 m of drop-off error.
	PenaltyPerMeter = 1.0 / 10.0

	// RewardLimitMeters is the full-reward band around a destination block.
	RewardLimitMeters = 50.0
	// ReviewLimitMeters is the outer band; past it the ride goes to manual review.
	ReviewLimitMeters = 100.0
)

// Award maps a drop-off distance (meters from the destination block) to the
// points earned: max(0, 10 - distance/10), rounded half-up to 1 decimal.
// The floor matters: anything past 100 m would otherwise go negative.
func Award(distanceMeters float64) float64 {
	v := Base - distanceMeters*PenaltyPerMeter
	if v < 0 {
		v = 0
	}
	return math.Round(v*10) / 10
}

// Classification is the review outcome for a completed ride.
type Classification struct {
	Status  models.PointsStatus
	Award   float64
	Reduced bool
}

// Classify applies the band policy around a destination block:
// within 50 m full reward, within 100 m reduced reward (same formula,
// flagged for the audit description), past 100 m the award is withheld and an
// administrator must adjust manually.
func Classify(distanceMeters float64) Classification {
	switch {
	case distanceMeters <= RewardLimitMeters:
		return Classification{Status: models.PointsRewarded, Award: Award(distanceMeters)}
	case distanceMeters <= ReviewLimitMeters:
		return Classification{Status: models.PointsRewarded, Award: Award(distanceMeters), Reduced: true}
	default:
		return Classification{Status: models.PointsUnderReview, Award: 0}
	}
}

// LedgerBalance replays ledger entries in the given order and sums their
// deltas. With entries in creation order this reconstructs the puller's
// current balance; the ledger is authoritative for every point movement.
func LedgerBalance(entries []models.PointsEntry) float64 {
	var sum float64
	for _, e := range entries {
		sum += e.Points
	}
	return sum
}
