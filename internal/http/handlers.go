package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/rickshaw-rides/internal/geo"
	"github.com/example/rickshaw-rides/internal/models"
	"github.com/example/rickshaw-rides/internal/observability"
	"github.com/example/rickshaw-rides/internal/ride"
	"github.com/example/rickshaw-rides/internal/seed"
	"github.com/example/rickshaw-rides/internal/storage"
)

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string `json:"userId"`
		PickupID      string `json:"pickupLocationId"`
		DestinationID string `json:"destinationLocationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rd, err := s.rides.Create(r.Context(), ride.CreateCommand{
		UserRef:        req.UserID,
		PickupRef:      req.PickupID,
		DestinationRef: req.DestinationID,
	})
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	observability.RidesCreated.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"ride": rd})
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.URL.Query().Get("type") == "active" {
		all, err := s.store.ListRides(ctx)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to fetch rides")
			return
		}
		pending := make([]*models.Ride, 0)
		for _, rd := range all {
			if rd.Status == models.RidePending {
				pending = append(pending, rd)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"rides": pending})
		return
	}
	if ref := r.URL.Query().Get("pullerId"); ref != "" {
		p, err := s.rides.Resolver().ResolvePuller(ctx, ref)
		if err != nil {
			s.writeRideError(w, err)
			return
		}
		rides, err := s.store.ListRidesByPuller(ctx, p.ID, 10)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to fetch rides")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rides": rides})
		return
	}
	all, err := s.store.ListRides(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch rides")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rides": all})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	rd, err := s.rides.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": rd})
}

func (s *Server) handleRideAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action    string   `json:"action"`
		PullerID  string   `json:"pullerId"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Points    *float64 `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rd, err := s.rides.Transition(r.Context(), mux.Vars(r)["id"], ride.TransitionRequest{
		Action:    req.Action,
		PullerRef: req.PullerID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Points:    req.Points,
	})
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	if req.Action == "complete" {
		observability.RidesCompleted.Inc()
		if rd.PointsStatus == models.PointsUnderReview {
			observability.RidesUnderReview.Inc()
		} else {
			observability.PointsAwarded.Add(rd.PointsAwarded)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": rd})
}

func (s *Server) handleListPullers(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.ListPullers(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch pullers")
		return
	}
	if r.URL.Query().Get("online") == "true" {
		online := make([]*models.Puller, 0)
		for _, p := range all {
			if p.IsOnline {
				online = append(online, p)
			}
		}
		all = online
	}
	writeJSON(w, http.StatusOK, map[string]any{"pullers": all})
}

func (s *Server) handleCreatePuller(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Phone == "" {
		writeJSONError(w, http.StatusBadRequest, "name and phone are required")
		return
	}
	p := &models.Puller{
		ID:        newID(),
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreatePuller(r.Context(), p); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create puller")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"puller": p})
}

func (s *Server) handleGetPuller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.rides.Resolver().ResolvePuller(ctx, mux.Vars(r)["ref"])
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	history, err := s.rides.History(ctx, p.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch puller")
		return
	}
	// ledger is stored oldest first; show the latest 10
	recent := make([]*models.PointsEntry, 0, 10)
	for i := len(history) - 1; i >= 0 && len(recent) < 10; i-- {
		recent = append(recent, history[i])
	}
	rides, err := s.store.ListRidesByPuller(ctx, p.ID, 10)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch puller")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"puller":        p,
		"pointsHistory": recent,
		"recentRides":   rides,
	})
}

func (s *Server) handleUpdatePuller(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsOnline  *bool    `json:"isOnline"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	ctx := r.Context()
	p, err := s.rides.Resolver().ResolvePuller(ctx, mux.Vars(r)["ref"])
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	wasOnline := p.IsOnline
	updated, err := s.store.UpdatePullerPresence(ctx, p.ID, req.IsOnline, req.Latitude, req.Longitude)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	if updated.IsOnline && !wasOnline {
		observability.PullersOnline.Inc()
	} else if !updated.IsOnline && wasOnline {
		observability.PullersOnline.Dec()
	}
	s.dir.Upsert(*updated)
	if s.kafka != nil {
		if err := s.kafka.PublishLocation(*updated); err != nil {
			s.logger.Warn("location publish failed", "puller_id", updated.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"puller": updated})
}

func (s *Server) handleNearbyPullers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("longitude"), 64)
	if errLat != nil || errLon != nil {
		writeJSONError(w, http.StatusBadRequest, "latitude and longitude required")
		return
	}
	limit := s.nearbyLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	list := s.dir.Nearby(lat, lon, limit)
	for i := range list {
		list[i].ArrivalSeconds = geo.EstimateArrivalSeconds(list[i].DistanceMeters, s.speedMps)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pullers": list,
		"rideId":  q.Get("rideId"),
	})
}

func (s *Server) handleRedeemPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points float64 `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := s.rides.Redeem(r.Context(), mux.Vars(r)["ref"], req.Points)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"puller": p})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string `json:"name"`
		Age               int    `json:"age"`
		UserType          string `json:"userType"`
		PrivilegeVerified bool   `json:"privilegeVerified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	ut := models.UserType(req.UserType)
	if ut != models.UserSenior && ut != models.UserSpecialNeeds {
		writeJSONError(w, http.StatusBadRequest, "userType must be senior or special_needs")
		return
	}
	u := &models.User{
		ID:                newID(),
		Name:              req.Name,
		Age:               req.Age,
		UserType:          ut,
		PrivilegeVerified: req.PrivilegeVerified,
		CreatedAt:         time.Now(),
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.ListLocations(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch locations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.stats.Compute(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	if err := seed.Load(r.Context(), s.store, s.dir); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "seed failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seeded": true})
}

// writeRideError maps the service error taxonomy onto status codes. The
// conflict check runs before the general invalid-transition one because
// ErrRideTaken matches both.
func (s *Server) writeRideError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, ride.ErrRideTaken):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrInvalidTransition):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrMissingField), errors.Is(err, ride.ErrInvalidValue):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
