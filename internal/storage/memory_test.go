package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/rickshaw-rides/internal/models"
)

func seedRide(t *testing.T, m *MemoryStore, id string) {
	t.Helper()
	ctx := context.Background()
	if err := m.CreatePuller(ctx, &models.Puller{ID: "p1", Name: "Karim", Phone: "+880"}); err != nil {
		t.Fatal(err)
	}
	r := &models.Ride{ID: id, UserID: "u1", Status: models.RidePending, PointsStatus: models.PointsPending, CreatedAt: time.Now()}
	if err := m.CreateRide(ctx, r); err != nil {
		t.Fatal(err)
	}
}

func TestTransitionRideAppliesEffects(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedRide(t, m, "r1")

	got, err := m.TransitionRide(ctx, "r1", func(r *models.Ride) (*Effects, error) {
		r.Status = models.RideCompleted
		return &Effects{
			PullerID:          "p1",
			PullerPointsDelta: 7.5,
			PullerRidesDelta:  1,
			Ledger: &models.PointsEntry{PullerID: "p1", RideID: r.ID, Points: 7.5, Kind: models.PointsEarned, Description: "x"},
		}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RideCompleted {
		t.Fatalf("returned ride not updated: %s", got.Status)
	}
	p, _ := m.GetPuller(ctx, "p1")
	if p.Points != 7.5 || p.TotalRides != 1 {
		t.Fatalf("effects not applied: %+v", p)
	}
	entries, _ := m.ListPointsByPuller(ctx, "p1")
	if len(entries) != 1 || entries[0].ID == "" || entries[0].Points != 7.5 {
		t.Fatalf("ledger not appended: %+v", entries)
	}
}

func TestTransitionRideRollsBackOnApplyError(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedRide(t, m, "r1")

	boom := errors.New("boom")
	_, err := m.TransitionRide(ctx, "r1", func(r *models.Ride) (*Effects, error) {
		r.Status = models.RideCompleted // must not leak
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want apply error back, got %v", err)
	}
	r, _ := m.GetRide(ctx, "r1")
	if r.Status != models.RidePending {
		t.Fatalf("failed transition leaked: %s", r.Status)
	}
}

func TestTransitionRideUnknown(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.TransitionRide(context.Background(), "nope", func(r *models.Ride) (*Effects, error) { return nil, nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTransitionRideSerializes(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedRide(t, m, "r1")

	// many writers race one pending->accepted transition; exactly one wins
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.TransitionRide(ctx, "r1", func(r *models.Ride) (*Effects, error) {
				if r.Status != models.RidePending {
					return nil, errors.New("taken")
				}
				r.Status = models.RideAccepted
				return nil, nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("want exactly one winner, got %d", wins)
	}
}

func TestConcurrentEffectsAccumulate(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreatePuller(ctx, &models.Puller{ID: "p1", Name: "Karim"}); err != nil {
		t.Fatal(err)
	}
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ApplyPointsChange(ctx, "p1", 1.5, &models.PointsEntry{PullerID: "p1", Points: 1.5, Kind: models.PointsEarned}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	p, _ := m.GetPuller(ctx, "p1")
	if p.Points != n*1.5 {
		t.Fatalf("points = %v, want %v", p.Points, n*1.5)
	}
	entries, _ := m.ListPointsByPuller(ctx, "p1")
	if len(entries) != n {
		t.Fatalf("ledger entries = %d, want %d", len(entries), n)
	}
	seen := make(map[string]bool, n)
	for _, e := range entries {
		if seen[e.ID] {
			t.Fatalf("duplicate ledger id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestApplyPointsChangeRejectsOverdraft(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreatePuller(ctx, &models.Puller{ID: "p1", Points: 5}); err != nil {
		t.Fatal(err)
	}
	_, err := m.ApplyPointsChange(ctx, "p1", -6, &models.PointsEntry{PullerID: "p1", Points: -6, Kind: models.PointsRedeemed})
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("want ErrInsufficientPoints, got %v", err)
	}
	p, _ := m.GetPuller(ctx, "p1")
	if p.Points != 5 {
		t.Fatalf("rejected debit moved the balance: %v", p.Points)
	}
	if entries, _ := m.ListPointsByPuller(ctx, "p1"); len(entries) != 0 {
		t.Fatalf("rejected debit wrote the ledger: %+v", entries)
	}

	// draining to exactly zero is allowed
	if _, err := m.ApplyPointsChange(ctx, "p1", -5, nil); err != nil {
		t.Fatalf("exact drain rejected: %v", err)
	}
}

func TestApplyPointsChangeUnknownPuller(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.ApplyPointsChange(context.Background(), "ghost", 1, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListRidesByPullerNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	pid := "p1"
	if err := m.CreatePuller(ctx, &models.Puller{ID: pid}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		r := &models.Ride{ID: id, UserID: "u1", PullerID: &pid, Status: models.RideCompleted, CreatedAt: time.Now()}
		if err := m.CreateRide(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	// one ride for someone else mixed in
	other := "p2"
	if err := m.CreateRide(ctx, &models.Ride{ID: "rx", UserID: "u1", PullerID: &other, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	got, err := m.ListRidesByPuller(ctx, pid, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "r4" || got[1].ID != "r3" || got[2].ID != "r2" {
		ids := make([]string, len(got))
		for i, r := range got {
			ids[i] = r.ID
		}
		t.Fatalf("want [r4 r3 r2], got %v", ids)
	}
}

func TestClonesAreIsolated(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	seedRide(t, m, "r1")

	r, _ := m.GetRide(ctx, "r1")
	r.Status = models.RideCancelled
	again, _ := m.GetRide(ctx, "r1")
	if again.Status != models.RidePending {
		t.Fatal("GetRide leaked internal state")
	}

	p, _ := m.GetPuller(ctx, "p1")
	p.Points = 999
	again2, _ := m.GetPuller(ctx, "p1")
	if again2.Points != 0 {
		t.Fatal("GetPuller leaked internal state")
	}
}

func TestUpdatePullerPresence(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreatePuller(ctx, &models.Puller{ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	on := true
	lat, lon := 22.4633, 91.9714
	p, err := m.UpdatePullerPresence(ctx, "p1", &on, &lat, &lon)
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsOnline || !p.HasCoord() || *p.CurrentLat != lat {
		t.Fatalf("presence not applied: %+v", p)
	}

	// partial update: nil online keeps the flag, nil coords keep the position
	p, err = m.UpdatePullerPresence(ctx, "p1", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsOnline || !p.HasCoord() {
		t.Fatalf("partial update clobbered fields: %+v", p)
	}

	if _, err := m.UpdatePullerPresence(ctx, "ghost", &on, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatal("unknown puller must be ErrNotFound")
	}
}
