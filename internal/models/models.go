package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a named destination block on the campus. Reference data:
// created by seeding, never mutated by runtime requests.
type Location struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"latitude"`
	Lon     float64 `json:"longitude"`
	BlockID string  `json:"blockId"`
}

type UserType string

const (
	UserSenior       UserType = "senior"
	UserSpecialNeeds UserType = "special_needs"
)

type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Age               int       `json:"age"`
	UserType          UserType  `json:"userType"`
	PrivilegeVerified bool      `json:"privilegeVerified"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Puller is the human operator fulfilling rides. CurrentLat/CurrentLon stay
// nil until the first location report.
type Puller struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	CurrentLat *float64  `json:"currentLatitude"`
	CurrentLon *float64  `json:"currentLongitude"`
	IsOnline   bool      `json:"isOnline"`
	Points     float64   `json:"points"`
	TotalRides int       `json:"totalRides"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (p *Puller) HasCoord() bool {
	return p.CurrentLat != nil && p.CurrentLon != nil
}

type RideStatus string

const (
	RidePending         RideStatus = "pending"
	RideAccepted        RideStatus = "accepted"
	RidePickupConfirmed RideStatus = "pickup_confirmed"
	// RideInProgress is recognized by statistics but no transition produces it
	// yet; kept for forward compatibility with richer ride tracking.
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
	RideRejected   RideStatus = "rejected"
)

func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled || s == RideRejected
}

type PointsStatus string

const (
	PointsPending     PointsStatus = "pending"
	PointsRewarded    PointsStatus = "rewarded"
	PointsUnderReview PointsStatus = "under_review"
)

type Ride struct {
	ID                string       `json:"id"`
	UserID            string       `json:"userId"`
	PullerID          *string      `json:"pullerId"`
	PickupLocationID  string       `json:"pickupLocationId"`
	DestLocationID    string       `json:"destinationLocationId"`
	PickupLat         float64      `json:"pickupLatitude"`
	PickupLon         float64      `json:"pickupLongitude"`
	DropoffLat        *float64     `json:"dropoffLatitude"`
	DropoffLon        *float64     `json:"dropoffLongitude"`
	Status            RideStatus   `json:"status"`
	DistanceFromBlock *float64     `json:"distanceFromBlock"`
	PointsAwarded     float64      `json:"pointsAwarded"`
	PointsStatus      PointsStatus `json:"pointsStatus"`
	CreatedAt         time.Time    `json:"createdAt"`
	AcceptedAt        *time.Time   `json:"acceptedAt"`
	PickupConfirmedAt *time.Time   `json:"pickupConfirmedAt"`
	CompletedAt       *time.Time   `json:"completedAt"`
}

type PointsKind string

const (
	PointsEarned   PointsKind = "earned"
	PointsAdjusted PointsKind = "adjusted"
	PointsRedeemed PointsKind = "redeemed"
	PointsExpired  PointsKind = "expired"
)

// PointsEntry is one row of the append-only points ledger. Entries are never
// mutated or deleted; replaying them in creation order reconstructs a puller's
// balance.
type PointsEntry struct {
	ID          string     `json:"id"`
	PullerID    string     `json:"pullerId"`
	RideID      string     `json:"rideId"`
	Points      float64    `json:"points"`
	Kind        PointsKind `json:"type"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
}
