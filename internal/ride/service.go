// Package ride implements the ride lifecycle state machine: creation,
// acceptance, pickup confirmation, completion with geofenced points award,
// cancellation/rejection, and administrative point adjustment.
package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/rickshaw-rides/internal/geo"
	"github.com/example/rickshaw-rides/internal/models"
	"github.com/example/rickshaw-rides/internal/points"
	"github.com/example/rickshaw-rides/internal/storage"
)

// PayoutClient pays a puller out-of-band when points are redeemed.
type PayoutClient interface {
	Payout(ctx context.Context, pullerID string, amount int64, currency string) (string, error)
}

type Service struct {
	store    storage.Store
	resolver *Resolver
	payout   PayoutClient // optional
	logger   *slog.Logger

	// PayoutPerPoint is the smallest-currency-unit value of one point when
	// redeemed (default 100 = 1 BDT).
	PayoutPerPoint int64
	PayoutCurrency string
}

func NewService(store storage.Store, payout PayoutClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:          store,
		resolver:       NewResolver(store),
		payout:         payout,
		logger:         logger,
		PayoutPerPoint: 100,
		PayoutCurrency: "bdt",
	}
}

func (s *Service) Resolver() *Resolver { return s.resolver }

type CreateCommand struct {
	UserRef        string
	PickupRef      string
	DestinationRef string
}

// Create opens a ride request: rider and both locations must resolve, the
// pickup coordinate is captured from the pickup block at creation time, and
// the ride starts pending with pointsStatus pending.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Ride, error) {
	if cmd.UserRef == "" || cmd.PickupRef == "" || cmd.DestinationRef == "" {
		return nil, fmt.Errorf("%w: userId, pickupLocationId and destinationLocationId are required", ErrMissingField)
	}
	user, err := s.store.GetUser(ctx, cmd.UserRef)
	if err != nil {
		return nil, wrapNotFound(err, "rider")
	}
	pickup, err := s.store.GetLocation(ctx, cmd.PickupRef)
	if err != nil {
		return nil, wrapNotFound(err, "pickup location")
	}
	dest, err := s.store.GetLocation(ctx, cmd.DestinationRef)
	if err != nil {
		return nil, wrapNotFound(err, "destination location")
	}

	r := &models.Ride{
		ID:               newID(),
		UserID:           user.ID,
		PickupLocationID: pickup.ID,
		DestLocationID:   dest.ID,
		PickupLat:        pickup.Lat,
		PickupLon:        pickup.Lon,
		Status:           models.RidePending,
		PointsStatus:     models.PointsPending,
		CreatedAt:        time.Now(),
	}
	if err := s.store.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("ride created", "ride_id", r.ID, "user_id", user.ID, "destination", dest.Name)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Ride, error) {
	r, err := s.store.GetRide(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "ride")
	}
	return r, nil
}

// TransitionRequest carries one lifecycle event from a collaborator.
type TransitionRequest struct {
	Action    string
	PullerRef string
	Latitude  *float64
	Longitude *float64
	Points    *float64
}

// Transition dispatches a lifecycle event against a ride.
func (s *Service) Transition(ctx context.Context, rideID string, req TransitionRequest) (*models.Ride, error) {
	switch req.Action {
	case "accept":
		return s.Accept(ctx, rideID, req.PullerRef)
	case "reject":
		return s.Reject(ctx, rideID)
	case "confirm_pickup":
		return s.ConfirmPickup(ctx, rideID, req.PullerRef)
	case "complete":
		return s.Complete(ctx, rideID, req.PullerRef, req.Latitude, req.Longitude)
	case "cancel":
		return s.Cancel(ctx, rideID)
	case "adjust_points":
		return s.AdjustPoints(ctx, rideID, req.Points)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidValue, req.Action)
	}
}

// Accept binds a puller to a pending ride. Exactly one of several concurrent
// accepts wins; the rest see ErrRideTaken.
func (s *Service) Accept(ctx context.Context, rideID, pullerRef string) (*models.Ride, error) {
	if pullerRef == "" {
		return nil, fmt.Errorf("%w: pullerId is required", ErrMissingField)
	}
	p, err := s.resolver.ResolvePuller(ctx, pullerRef)
	if err != nil {
		return nil, wrapNotFound(err, "puller")
	}
	r, err := s.store.TransitionRide(ctx, rideID, func(r *models.Ride) (*storage.Effects, error) {
		if r.Status != models.RidePending {
			if r.Status == models.RideAccepted || r.Status == models.RidePickupConfirmed {
				return nil, ErrRideTaken
			}
			return nil, fmt.Errorf("%w: cannot accept a %s ride", ErrInvalidTransition, r.Status)
		}
		now := time.Now()
		r.Status = models.RideAccepted
		r.PullerID = &p.ID
		r.AcceptedAt = &now
		return nil, nil
	})
	if err != nil {
		return nil, wrapNotFound(err, "ride")
	}
	s.logger.Info("ride accepted", "ride_id", rideID, "puller_id", p.ID)
	return r, nil
}

// Reject marks a pending request as declined. The pending-only precondition is
// deliberately not enforced, matching the long-standing behavior the operator
// tools rely on.
func (s *Service) Reject(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.store.TransitionRide(ctx, rideID, func(r *models.Ride) (*storage.Effects, error) {
		r.Status = models.RideRejected
		return nil, nil
	})
	return r, wrapNotFound(err, "ride")
}

// ConfirmPickup stamps the pickup once the bound puller reports the rider
// aboard. Only the bound puller may confirm; anyone else is unauthorized no
// matter the ride's status.
func (s *Service) ConfirmPickup(ctx context.Context, rideID, pullerRef string) (*models.Ride, error) {
	actor, err := s.resolveActor(ctx, pullerRef)
	if err != nil {
		return nil, err
	}
	r, err := s.store.TransitionRide(ctx, rideID, func(r *models.Ride) (*storage.Effects, error) {
		if r.PullerID == nil || *r.PullerID != actor.ID {
			return nil, ErrUnauthorized
		}
		now := time.Now()
		r.Status = models.RidePickupConfirmed
		r.PickupConfirmedAt = &now
		return nil, nil
	})
	return r, wrapNotFound(err, "ride")
}

// Complete closes the ride at the reported drop-off, scores the drop against
// the destination block and applies the award atomically with the ride update:
// puller points and ride count move in the same unit of work as the earned
// ledger entry. Past the review band nothing is awarded and no entry is
// written; an administrator settles it via adjust_points.
func (s *Service) Complete(ctx context.Context, rideID, pullerRef string, lat, lon *float64) (*models.Ride, error) {
	actor, err := s.resolveActor(ctx, pullerRef)
	if err != nil {
		return nil, err
	}
	// destination id is immutable after creation, so reading it outside the
	// transition is safe
	cur, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, wrapNotFound(err, "ride")
	}
	dest, err := s.store.GetLocation(ctx, cur.DestLocationID)
	if err != nil {
		return nil, wrapNotFound(err, "destination location")
	}

	r, err := s.store.TransitionRide(ctx, rideID, func(r *models.Ride) (*storage.Effects, error) {
		if r.PullerID == nil || *r.PullerID != actor.ID {
			return nil, ErrUnauthorized
		}
		if r.Status.Terminal() {
			return nil, fmt.Errorf("%w: cannot complete a %s ride", ErrInvalidTransition, r.Status)
		}
		if lat == nil || lon == nil {
			return nil, fmt.Errorf("%w: drop-off location required", ErrMissingField)
		}

		dist := geo.Haversine(*lat, *lon, dest.Lat, dest.Lon)
		cls := points.Classify(dist)

		now := time.Now()
		r.Status = models.RideCompleted
		r.CompletedAt = &now
		r.DropoffLat, r.DropoffLon = lat, lon
		r.DistanceFromBlock = &dist
		r.PointsAwarded = cls.Award
		r.PointsStatus = cls.Status

		if cls.Status != models.PointsRewarded {
			return nil, nil
		}
		desc := fmt.Sprintf("Ride completed - %g points", cls.Award)
		if cls.Reduced {
			desc = fmt.Sprintf("Ride completed (reduced points) - %g points", cls.Award)
		}
		return &storage.Effects{
			PullerID:          actor.ID,
			PullerPointsDelta: cls.Award,
			PullerRidesDelta:  1,
			Ledger: &models.PointsEntry{
				PullerID:    actor.ID,
				RideID:      r.ID,
				Points:      cls.Award,
				Kind:        models.PointsEarned,
				Description: desc,
				CreatedAt:   now,
			},
		}, nil
	})
	if err != nil {
		return nil, wrapNotFound(err, "ride")
	}
	s.logger.Info("ride completed",
		"ride_id", rideID, "puller_id", actor.ID,
		"distance_from_block_m", ptrF64(r.DistanceFromBlock),
		"points_awarded", r.PointsAwarded, "points_status", r.PointsStatus)
	return r, nil
}

// Cancel aborts any non-terminal ride.
func (s *Service) Cancel(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.store.TransitionRide(ctx, rideID, func(r *models.Ride) (*storage.Effects, error) {
		if r.Status.Terminal() {
			return nil, fmt.Errorf("%w: cannot cancel a %s ride", ErrInvalidTransition, r.Status)
		}
		r.Status = models.RideCancelled
		return nil, nil
	})
	return r, wrapNotFound(err, "ride")
}

// AdjustPoints is the administrative override for under-review rides (and any
// other correction). The ride's award is replaced, the delta is applied to the
// bound puller in place, and an adjusted ledger entry records before and
// after. Rides that never had a puller only get the ride-side update.
func (s *Service) AdjustPoints(ctx context.Context, rideID string, newPoints *float64) (*models.Ride, error) {
	if newPoints == nil {
		return nil, fmt.Errorf("%w: points value required", ErrInvalidValue)
	}
	if *newPoints < 0 {
		return nil, fmt.Errorf("%w: points must not be negative", ErrInvalidValue)
	}
	r, err := s.store.TransitionRide(ctx, rideID, func(r *models.Ride) (*storage.Effects, error) {
		old := r.PointsAwarded
		delta := *newPoints - old
		r.PointsAwarded = *newPoints
		r.PointsStatus = models.PointsRewarded
		if r.PullerID == nil {
			return nil, nil
		}
		return &storage.Effects{
			PullerID:          *r.PullerID,
			PullerPointsDelta: delta,
			Ledger: &models.PointsEntry{
				PullerID:    *r.PullerID,
				RideID:      r.ID,
				Points:      delta,
				Kind:        models.PointsAdjusted,
				Description: fmt.Sprintf("Admin adjusted points: %g → %g", old, *newPoints),
				CreatedAt:   time.Now(),
			},
		}, nil
	})
	if err != nil {
		return nil, wrapNotFound(err, "ride")
	}
	s.logger.Info("points adjusted", "ride_id", rideID, "new_points", *newPoints)
	return r, nil
}

// Redeem converts part of a puller's balance into a payout. The balance
// decrement and the redeemed ledger entry land atomically, and the store
// enforces sufficiency inside that same unit, so racing redemptions can never
// overdraw the balance. The cash transfer itself is best-effort and logged,
// since the ledger already records the redemption for reconciliation.
func (s *Service) Redeem(ctx context.Context, pullerRef string, pts float64) (*models.Puller, error) {
	p, err := s.resolver.ResolvePuller(ctx, pullerRef)
	if err != nil {
		return nil, wrapNotFound(err, "puller")
	}
	if pts <= 0 {
		return nil, fmt.Errorf("%w: redemption must be positive", ErrInvalidValue)
	}
	updated, err := s.store.ApplyPointsChange(ctx, p.ID, -pts, &models.PointsEntry{
		PullerID:    p.ID,
		Points:      -pts,
		Kind:        models.PointsRedeemed,
		Description: fmt.Sprintf("Points redeemed - %g points", pts),
		CreatedAt:   time.Now(),
	})
	if errors.Is(err, storage.ErrInsufficientPoints) {
		return nil, fmt.Errorf("%w: balance below %g points", ErrInvalidValue, pts)
	}
	if err != nil {
		return nil, wrapNotFound(err, "puller")
	}
	if s.payout != nil {
		amount := int64(pts * float64(s.PayoutPerPoint))
		if ref, err := s.payout.Payout(ctx, p.ID, amount, s.PayoutCurrency); err != nil {
			s.logger.Error("payout failed, redemption kept on ledger", "puller_id", p.ID, "error", err)
		} else {
			s.logger.Info("payout sent", "puller_id", p.ID, "amount", amount, "transfer", ref)
		}
	}
	return updated, nil
}

// History returns a puller's ledger in creation order.
func (s *Service) History(ctx context.Context, pullerID string) ([]*models.PointsEntry, error) {
	return s.store.ListPointsByPuller(ctx, pullerID)
}

// resolveActor maps a puller reference for confirm/complete. A reference that
// does not resolve is an authorization failure, not a lookup miss: the caller
// is by definition not the bound puller.
func (s *Service) resolveActor(ctx context.Context, pullerRef string) (*models.Puller, error) {
	if pullerRef == "" {
		return nil, ErrUnauthorized
	}
	p, err := s.resolver.ResolvePuller(ctx, pullerRef)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func wrapNotFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func ptrF64(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
