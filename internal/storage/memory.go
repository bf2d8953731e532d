package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/example/rickshaw-rides/internal/models"
)

// MemoryStore keeps everything in maps behind one mutex. The single lock is
// what makes TransitionRide trivially atomic: ride update, puller increments
// and ledger append all land before anyone else can observe the ride.
type MemoryStore struct {
	mu        sync.RWMutex
	locations map[string]*models.Location
	users     map[string]*models.User
	pullers   map[string]*models.Puller
	rides     map[string]*models.Ride
	rideOrder []string
	ledger    []*models.PointsEntry
	ledgerSeq int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations: make(map[string]*models.Location),
		users:     make(map[string]*models.User),
		pullers:   make(map[string]*models.Puller),
		rides:     make(map[string]*models.Ride),
	}
}

func (m *MemoryStore) CreateLocation(ctx context.Context, l *models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.locations[l.ID] = &cp
	return nil
}

func (m *MemoryStore) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Location, 0, len(m.locations))
	for _, l := range m.locations {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CreatePuller(ctx context.Context, p *models.Puller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := clonePuller(p)
	m.pullers[p.ID] = cp
	return nil
}

func (m *MemoryStore) GetPuller(ctx context.Context, id string) (*models.Puller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pullers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePuller(p), nil
}

func (m *MemoryStore) FindPullerByPhone(ctx context.Context, phone string) (*models.Puller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pullers {
		if p.Phone == phone {
			return clonePuller(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindPullerByName(ctx context.Context, name string) (*models.Puller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pullers {
		if p.Name == name {
			return clonePuller(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListPullers(ctx context.Context) ([]*models.Puller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Puller, 0, len(m.pullers))
	for _, p := range m.pullers {
		out = append(out, clonePuller(p))
	}
	return out, nil
}

func (m *MemoryStore) UpdatePullerPresence(ctx context.Context, id string, online *bool, lat, lon *float64) (*models.Puller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pullers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if online != nil {
		p.IsOnline = *online
	}
	if lat != nil && lon != nil {
		la, lo := *lat, *lon
		p.CurrentLat, p.CurrentLon = &la, &lo
	}
	return clonePuller(p), nil
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneRide(r)
	m.rides[r.ID] = cp
	m.rideOrder = append(m.rideOrder, r.ID)
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) ListRides(ctx context.Context) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, len(m.rideOrder))
	for _, id := range m.rideOrder {
		out = append(out, cloneRide(m.rides[id]))
	}
	return out, nil
}

func (m *MemoryStore) ListRidesByPuller(ctx context.Context, pullerID string, limit int) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, limit)
	// newest first
	for i := len(m.rideOrder) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.rides[m.rideOrder[i]]
		if r.PullerID != nil && *r.PullerID == pullerID {
			out = append(out, cloneRide(r))
		}
	}
	return out, nil
}

func (m *MemoryStore) TransitionRide(ctx context.Context, rideID string, apply func(r *models.Ride) (*Effects, error)) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneRide(cur)
	eff, err := apply(next)
	if err != nil {
		return nil, err
	}
	if eff != nil && eff.PullerID != "" {
		p, ok := m.pullers[eff.PullerID]
		if !ok {
			return nil, ErrNotFound
		}
		p.Points += eff.PullerPointsDelta
		p.TotalRides += eff.PullerRidesDelta
	}
	if eff != nil && eff.Ledger != nil {
		m.appendLedgerLocked(eff.Ledger)
	}
	m.rides[rideID] = next
	return cloneRide(next), nil
}

func (m *MemoryStore) ApplyPointsChange(ctx context.Context, pullerID string, delta float64, entry *models.PointsEntry) (*models.Puller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pullers[pullerID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Points+delta < 0 {
		return nil, ErrInsufficientPoints
	}
	p.Points += delta
	if entry != nil {
		m.appendLedgerLocked(entry)
	}
	return clonePuller(p), nil
}

func (m *MemoryStore) ListPointsByPuller(ctx context.Context, pullerID string) ([]*models.PointsEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.PointsEntry
	for _, e := range m.ledger {
		if e.PullerID == pullerID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) appendLedgerLocked(entry *models.PointsEntry) {
	cp := *entry
	m.ledgerSeq++
	if cp.ID == "" {
		cp.ID = "ple_" + strconv.Itoa(m.ledgerSeq)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.ledger = append(m.ledger, &cp)
}

func clonePuller(p *models.Puller) *models.Puller {
	cp := *p
	if p.CurrentLat != nil {
		v := *p.CurrentLat
		cp.CurrentLat = &v
	}
	if p.CurrentLon != nil {
		v := *p.CurrentLon
		cp.CurrentLon = &v
	}
	return &cp
}

func cloneRide(r *models.Ride) *models.Ride {
	cp := *r
	cp.PullerID = cloneStr(r.PullerID)
	cp.DropoffLat = cloneF64(r.DropoffLat)
	cp.DropoffLon = cloneF64(r.DropoffLon)
	cp.DistanceFromBlock = cloneF64(r.DistanceFromBlock)
	cp.AcceptedAt = cloneTime(r.AcceptedAt)
	cp.PickupConfirmedAt = cloneTime(r.PickupConfirmedAt)
	cp.CompletedAt = cloneTime(r.CompletedAt)
	return &cp
}

func cloneStr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneF64(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
