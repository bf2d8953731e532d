package geo

import (
	"math"
	"sync"

	"github.com/example/rickshaw-rides/internal/models"
)

// Directory is the minimal interface the handlers need to rank online pullers
// around a pickup point.
type Directory interface {
	Nearby(lat, lon float64, limit int) []NearbyPuller
	Upsert(p models.Puller)
}

// NearbyPuller is one ranked candidate for a pickup.
type NearbyPuller struct {
	Puller         models.Puller `json:"puller"`
	DistanceMeters float64       `json:"distanceMeters"`
	ArrivalSeconds float64       `json:"arrivalSeconds"`
}

// Index is an in-memory puller directory fed by location reports.
type Index struct {
	mu      sync.RWMutex
	pullers map[string]models.Puller
	order   []string // insertion order, keeps ties stable
}

func NewIndex() *Index {
	return &Index{pullers: make(map[string]models.Puller)}
}

func (g *Index) Upsert(p models.Puller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.pullers[p.ID]; !seen {
		g.order = append(g.order, p.ID)
	}
	g.pullers[p.ID] = p
}

// Nearby scans every eligible puller and keeps the limit closest. Pullers that
// are offline or have never reported a coordinate are excluded outright. The
// naive scan is fine at campus scale; swap in the Redis directory beyond that.
func (g *Index) Nearby(lat, lon float64, limit int) []NearbyPuller {
	g.mu.RLock()
	defer g.mu.RUnlock()
	arr := make([]NearbyPuller, 0, len(g.pullers))
	for _, id := range g.order {
		p := g.pullers[id]
		if !p.IsOnline || !p.HasCoord() {
			continue
		}
		dist := Haversine(lat, lon, *p.CurrentLat, *p.CurrentLon)
		arr = append(arr, NearbyPuller{
			Puller:         p,
			DistanceMeters: dist,
			ArrivalSeconds: EstimateArrivalSeconds(dist, 0),
		})
	}
	// partial selection sort for top-N; stable for equal distances because the
	// scan follows insertion order
	n := limit
	if n < 0 {
		n = 0
	}
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].DistanceMeters < arr[minIdx].DistanceMeters {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	return arr[:n]
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// DefaultRickshawSpeedMps is a conservative hand-pulled pace (~7 km/h).
const DefaultRickshawSpeedMps = 2.0

// EstimateArrivalSeconds gives a straight-line arrival estimate for a puller
// that is dist meters away. Advisory only; never used for scoring.
func EstimateArrivalSeconds(dist, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = DefaultRickshawSpeedMps
	}
	return dist / speedMps
}
