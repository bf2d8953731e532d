package geo

import (
	"math"
	"testing"

	"github.com/example/rickshaw-rides/internal/models"
)

func TestHaversine(t *testing.T) {
	if d := Haversine(22.4633, 91.9714, 22.4633, 91.9714); d != 0 {
		t.Fatalf("distance to self = %v, want 0", d)
	}

	a := Haversine(22.4633, 91.9714, 22.4725, 91.9845)
	b := Haversine(22.4725, 91.9845, 22.4633, 91.9714)
	if math.Abs(a-b) > 1e-6 {
		t.Fatalf("not symmetric: %v vs %v", a, b)
	}
	// CUET campus to Pahartoli is roughly 1.7 km
	if a < 1500 || a > 1900 {
		t.Fatalf("campus-to-Pahartoli distance %v outside plausible range", a)
	}

	// one degree of latitude is ~111.2 km
	d := Haversine(0, 0, 1, 0)
	if math.Abs(d-111195) > 100 {
		t.Fatalf("1 degree latitude = %v m, want ~111195", d)
	}
}

func TestEstimateArrivalSeconds(t *testing.T) {
	if got := EstimateArrivalSeconds(100, 2.0); got != 50 {
		t.Fatalf("100m at 2 m/s = %v, want 50", got)
	}
	if got := EstimateArrivalSeconds(100, 0); got != 100/DefaultRickshawSpeedMps {
		t.Fatalf("default speed fallback gave %v", got)
	}
}

func f64(v float64) *float64 { return &v }

func puller(id string, lat, lon float64, online bool) models.Puller {
	return models.Puller{ID: id, Name: id, IsOnline: online, CurrentLat: f64(lat), CurrentLon: f64(lon)}
}

func TestIndexNearby(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(puller("far", 22.48, 91.99, true))
	idx.Upsert(puller("near", 22.4634, 91.9715, true))
	idx.Upsert(puller("offline", 22.4633, 91.9714, false))
	idx.Upsert(models.Puller{ID: "no_coord", IsOnline: true})
	idx.Upsert(puller("mid", 22.466, 91.974, true))

	got := idx.Nearby(22.4633, 91.9714, 5)
	if len(got) != 3 {
		t.Fatalf("want 3 eligible pullers, got %d", len(got))
	}
	order := []string{"near", "mid", "far"}
	for i, want := range order {
		if got[i].Puller.ID != want {
			t.Fatalf("rank %d = %s, want %s", i, got[i].Puller.ID, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceMeters < got[i-1].DistanceMeters {
			t.Fatal("results not sorted by distance")
		}
	}
	if got[0].ArrivalSeconds != got[0].DistanceMeters/DefaultRickshawSpeedMps {
		t.Fatal("arrival estimate does not match distance at default speed")
	}
}

func TestIndexNearbyLimit(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(puller("a", 22.4634, 91.9714, true))
	idx.Upsert(puller("b", 22.4640, 91.9714, true))
	idx.Upsert(puller("c", 22.4650, 91.9714, true))

	got := idx.Nearby(22.4633, 91.9714, 2)
	if len(got) != 2 {
		t.Fatalf("limit not honored: got %d", len(got))
	}
	if got[0].Puller.ID != "a" || got[1].Puller.ID != "b" {
		t.Fatalf("unexpected top-2: %s, %s", got[0].Puller.ID, got[1].Puller.ID)
	}
}

func TestIndexUpsertReplaces(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(puller("a", 22.4634, 91.9714, true))
	idx.Upsert(puller("a", 22.48, 91.99, true)) // moved away

	got := idx.Nearby(22.4633, 91.9714, 5)
	if len(got) != 1 {
		t.Fatalf("upsert duplicated the puller: %d entries", len(got))
	}
	if got[0].DistanceMeters < 1000 {
		t.Fatalf("stale coordinate served: %v m", got[0].DistanceMeters)
	}
}

func TestIndexNearbyEmpty(t *testing.T) {
	if got := NewIndex().Nearby(22.4633, 91.9714, 5); len(got) != 0 {
		t.Fatalf("empty index returned %d results", len(got))
	}
}

func TestIndexNearbyNonPositiveLimit(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(puller("a", 22.4634, 91.9714, true))
	if got := idx.Nearby(22.4633, 91.9714, 0); len(got) != 0 {
		t.Fatalf("limit 0 returned %d results", len(got))
	}
	if got := idx.Nearby(22.4633, 91.9714, -3); len(got) != 0 {
		t.Fatalf("negative limit returned %d results", len(got))
	}
}
