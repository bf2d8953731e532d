// Package stats derives the dashboard feed from the full ride/puller/user
// collections. Everything is recomputed per query; there is no cached derived
// state to invalidate.
package stats

import (
	"context"
	"math"
	"sort"

	"github.com/example/rickshaw-rides/internal/models"
	"github.com/example/rickshaw-rides/internal/storage"
)

type Overview struct {
	TotalUsers          int `json:"totalUsers"`
	TotalPullers        int `json:"totalPullers"`
	ActiveUsersOnBlocks int `json:"activeUsersOnBlocks"`
	OnlinePullers       int `json:"onlinePullers"`
	ActiveRides         int `json:"activeRides"`
	PendingRequests     int `json:"pendingRequests"`
	TotalRides          int `json:"totalRides"`
	CompletedRides      int `json:"completedRides"`
}

type DestinationCount struct {
	LocationID   string `json:"locationId"`
	LocationName string `json:"locationName"`
	Count        int    `json:"count"`
}

type LeaderboardRow struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Points     float64 `json:"points"`
	TotalRides int     `json:"totalRides"`
}

type Analytics struct {
	MostRequestedDestinations []DestinationCount `json:"mostRequestedDestinations"`
	AvgWaitTimeSeconds        float64            `json:"avgWaitTime"`
	AvgCompletionTimeMinutes  float64            `json:"avgCompletionTime"`
	PullerLeaderboard         []LeaderboardRow   `json:"pullerLeaderboard"`
	PendingReviews            int                `json:"pendingReviews"`
}

type Snapshot struct {
	Overview  Overview  `json:"overview"`
	Analytics Analytics `json:"analytics"`
}

const (
	topDestinations = 5
	leaderboardSize = 10
)

type Aggregator struct {
	store storage.Store
}

func NewAggregator(store storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Compute runs every reducer over a fresh read of the collections. Staleness
// between the three list calls is acceptable; this feeds dashboards, not
// authorization.
func (a *Aggregator) Compute(ctx context.Context) (*Snapshot, error) {
	rides, err := a.store.ListRides(ctx)
	if err != nil {
		return nil, err
	}
	pullers, err := a.store.ListPullers(ctx)
	if err != nil {
		return nil, err
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	locations, err := a.store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Overview:  reduceOverview(rides, pullers, users),
		Analytics: reduceAnalytics(rides, pullers, locations),
	}
	return snap, nil
}

func reduceOverview(rides []*models.Ride, pullers []*models.Puller, users []*models.User) Overview {
	o := Overview{
		TotalUsers:   len(users),
		TotalPullers: len(pullers),
		TotalRides:   len(rides),
	}
	activeUsers := make(map[string]struct{})
	for _, r := range rides {
		switch r.Status {
		case models.RidePending:
			o.PendingRequests++
		case models.RideAccepted, models.RidePickupConfirmed, models.RideInProgress:
			o.ActiveRides++
		case models.RideCompleted:
			o.CompletedRides++
		}
		if !r.Status.Terminal() {
			activeUsers[r.UserID] = struct{}{}
		}
	}
	o.ActiveUsersOnBlocks = len(activeUsers)
	for _, p := range pullers {
		if p.IsOnline {
			o.OnlinePullers++
		}
	}
	return o
}

func reduceAnalytics(rides []*models.Ride, pullers []*models.Puller, locations []*models.Location) Analytics {
	return Analytics{
		MostRequestedDestinations: topRequestedDestinations(rides, locations),
		AvgWaitTimeSeconds:        avgWaitSeconds(rides),
		AvgCompletionTimeMinutes:  avgCompletionMinutes(rides),
		PullerLeaderboard:         leaderboard(pullers),
		PendingReviews:            pendingReviews(rides),
	}
}

// topRequestedDestinations groups completed and pending rides only; cancelled
// and rejected requests say nothing about real demand.
func topRequestedDestinations(rides []*models.Ride, locations []*models.Location) []DestinationCount {
	names := make(map[string]string, len(locations))
	for _, l := range locations {
		names[l.ID] = l.Name
	}
	counts := make(map[string]int)
	var order []string // first-seen order keeps equal counts stable
	for _, r := range rides {
		if r.Status != models.RideCompleted && r.Status != models.RidePending {
			continue
		}
		if _, seen := counts[r.DestLocationID]; !seen {
			order = append(order, r.DestLocationID)
		}
		counts[r.DestLocationID]++
	}
	out := make([]DestinationCount, 0, len(order))
	for _, id := range order {
		name := names[id]
		if name == "" {
			name = "Unknown"
		}
		out = append(out, DestinationCount{LocationID: id, LocationName: name, Count: counts[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topDestinations {
		out = out[:topDestinations]
	}
	return out
}

// avgWaitSeconds is the mean request-to-acceptance delay over rides that have
// been accepted, in whole seconds. Empty input yields 0, never a division.
func avgWaitSeconds(rides []*models.Ride) float64 {
	var sum float64
	var n int
	for _, r := range rides {
		if r.AcceptedAt == nil {
			continue
		}
		sum += r.AcceptedAt.Sub(r.CreatedAt).Seconds()
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum / float64(n))
}

// avgCompletionMinutes is the mean request-to-completion span over completed
// rides, in minutes rounded to 1 decimal.
func avgCompletionMinutes(rides []*models.Ride) float64 {
	var sum float64
	var n int
	for _, r := range rides {
		if r.CompletedAt == nil {
			continue
		}
		sum += r.CompletedAt.Sub(r.CreatedAt).Minutes()
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*10) / 10
}

func leaderboard(pullers []*models.Puller) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(pullers))
	for _, p := range pullers {
		rows = append(rows, LeaderboardRow{ID: p.ID, Name: p.Name, Points: p.Points, TotalRides: p.TotalRides})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Points > rows[j].Points })
	if len(rows) > leaderboardSize {
		rows = rows[:leaderboardSize]
	}
	return rows
}

func pendingReviews(rides []*models.Ride) int {
	var n int
	for _, r := range rides {
		if r.PointsStatus == models.PointsUnderReview {
			n++
		}
	}
	return n
}
