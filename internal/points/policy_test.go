package points

import (
	"testing"
	"time"

	"github.com/example/rickshaw-rides/internal/models"
)

func TestAward(t *testing.T) {
	cases := []struct {
		dist float64
		want float64
	}{
		{0, 10.0},
		{10, 9.0},
		{25, 7.5},
		{45, 5.5},
		{50, 5.0},
		{75, 2.5},
		{99, 0.1},
		{100, 0},
		{150, 0},
		{1000, 0},
		{24.5, 7.6}, // half rounds up
	}
	for _, tc := range cases {
		if got := Award(tc.dist); got != tc.want {
			t.Errorf("Award(%v) = %v, want %v", tc.dist, got, tc.want)
		}
	}
}

func TestAwardProperties(t *testing.T) {
	prev := Award(0)
	for d := 0.0; d <= 200; d += 0.5 {
		got := Award(d)
		if got < 0 || got > Base {
			t.Fatalf("Award(%v) = %v out of [0, %v]", d, got, Base)
		}
		if got > prev {
			t.Fatalf("Award not monotonic: Award(%v)=%v > previous %v", d, got, prev)
		}
		prev = got
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		dist    float64
		status  models.PointsStatus
		award   float64
		reduced bool
	}{
		{0, models.PointsRewarded, 10.0, false},
		{50, models.PointsRewarded, 5.0, false},
		{50.1, models.PointsRewarded, 5.0, true},
		{100, models.PointsRewarded, 0, true},
		{100.1, models.PointsUnderReview, 0, false},
		{500, models.PointsUnderReview, 0, false},
	}
	for _, tc := range cases {
		got := Classify(tc.dist)
		if got.Status != tc.status || got.Award != tc.award || got.Reduced != tc.reduced {
			t.Errorf("Classify(%v) = %+v, want {%s %v %v}", tc.dist, got, tc.status, tc.award, tc.reduced)
		}
	}
}

func TestLedgerBalance(t *testing.T) {
	now := time.Now()
	entries := []models.PointsEntry{
		{Points: 10, Kind: models.PointsEarned, CreatedAt: now},
		{Points: 2.5, Kind: models.PointsEarned, CreatedAt: now},
		{Points: -4, Kind: models.PointsRedeemed, CreatedAt: now},
		{Points: 1.5, Kind: models.PointsAdjusted, CreatedAt: now},
	}
	if got := LedgerBalance(entries); got != 10.0 {
		t.Fatalf("LedgerBalance = %v, want 10.0", got)
	}
	if got := LedgerBalance(nil); got != 0 {
		t.Fatalf("LedgerBalance(nil) = %v, want 0", got)
	}
}
