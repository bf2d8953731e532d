package storage

import (
	"context"
	"errors"

	"github.com/example/rickshaw-rides/internal/models"
)

// ErrNotFound is returned whenever a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInsufficientPoints is returned by ApplyPointsChange when the delta would
// take a puller's balance below zero.
var ErrInsufficientPoints = errors.New("insufficient points")

// Effects are the side effects a ride transition must apply atomically with
// the ride update: puller counters move by increment-in-place (never
// read-modify-write at the caller) and the ledger entry lands in the same unit
// of work. A completed ride must never exist without its earned entry.
type Effects struct {
	PullerID          string // empty means no puller mutation
	PullerPointsDelta float64
	PullerRidesDelta  int
	Ledger            *models.PointsEntry
}

// Store is the repository capability set the core is modeled against,
// independent of backing store. MemoryStore serves tests and local runs;
// PostgresStore is the durable variant.
type Store interface {
	CreateLocation(ctx context.Context, l *models.Location) error
	GetLocation(ctx context.Context, id string) (*models.Location, error)
	ListLocations(ctx context.Context) ([]*models.Location, error)

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	CreatePuller(ctx context.Context, p *models.Puller) error
	GetPuller(ctx context.Context, id string) (*models.Puller, error)
	FindPullerByPhone(ctx context.Context, phone string) (*models.Puller, error)
	FindPullerByName(ctx context.Context, name string) (*models.Puller, error)
	ListPullers(ctx context.Context) ([]*models.Puller, error)
	// UpdatePullerPresence applies a location/online report. Nil fields are
	// left untouched.
	UpdatePullerPresence(ctx context.Context, id string, online *bool, lat, lon *float64) (*models.Puller, error)

	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	ListRides(ctx context.Context) ([]*models.Ride, error)
	ListRidesByPuller(ctx context.Context, pullerID string, limit int) ([]*models.Ride, error)

	// TransitionRide loads the ride, hands a private copy to apply, and on
	// success persists the mutated ride together with the returned effects.
	// Calls for the same ride are serialized; an error from apply leaves
	// every record untouched.
	TransitionRide(ctx context.Context, rideID string, apply func(r *models.Ride) (*Effects, error)) (*models.Ride, error)

	// ApplyPointsChange moves a puller's balance and appends the matching
	// ledger entry in one unit of work (redemptions, expiry sweeps). The
	// balance check happens inside that unit: a delta that would leave the
	// balance negative fails with ErrInsufficientPoints and changes nothing,
	// so concurrent debits can never overdraw.
	ApplyPointsChange(ctx context.Context, pullerID string, delta float64, entry *models.PointsEntry) (*models.Puller, error)

	// ListPointsByPuller returns ledger entries in creation order.
	ListPointsByPuller(ctx context.Context, pullerID string) ([]*models.PointsEntry, error)
}
