package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/rickshaw-rides/internal/geo"
	"github.com/example/rickshaw-rides/internal/ride"
	"github.com/example/rickshaw-rides/internal/stats"
	"github.com/example/rickshaw-rides/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Options{
		Logger:    logger,
		Store:     st,
		Directory: geo.NewIndex(),
		Rides:     ride.NewService(st, nil, logger),
		Stats:     stats.NewAggregator(st),
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	out := map[string]json.RawMessage{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: invalid json response %q", method, path, w.Body.String())
		}
	}
	return w, out
}

func rideField(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRideFlowOverAPI(t *testing.T) {
	s := newTestServer(t)

	if w, _ := doJSON(t, s, "POST", "/api/seed", nil); w.Code != http.StatusOK {
		t.Fatalf("seed: %d %s", w.Code, w.Body.String())
	}

	w, resp := doJSON(t, s, "POST", "/api/rides", map[string]string{
		"userId":                "user_1",
		"pickupLocationId":      "loc_1",
		"destinationLocationId": "loc_2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create ride: %d %s", w.Code, w.Body.String())
	}
	created := rideField(t, resp["ride"])
	rideID := created["id"].(string)
	if created["status"] != "pending" {
		t.Fatalf("new ride status %v", created["status"])
	}

	patch := func(body map[string]any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
		return doJSON(t, s, "PATCH", "/api/rides/"+rideID, body)
	}

	if w, _ := patch(map[string]any{"action": "accept", "pullerId": "puller_1"}); w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	// a second accept conflicts
	if w, _ := patch(map[string]any{"action": "accept", "pullerId": "puller_2"}); w.Code != http.StatusConflict {
		t.Fatalf("second accept: want 409, got %d", w.Code)
	}
	if w, _ := patch(map[string]any{"action": "confirm_pickup", "pullerId": "puller_1"}); w.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}
	// wrong puller completing is forbidden
	lat, lon := 22.4725, 91.9845
	if w, resp := patch(map[string]any{"action": "complete", "pullerId": "puller_2", "latitude": lat, "longitude": lon}); w.Code != http.StatusForbidden {
		t.Fatalf("complete by stranger: want 403, got %d %v", w.Code, resp)
	}

	w, resp = patch(map[string]any{"action": "complete", "pullerId": "puller_1", "latitude": lat, "longitude": lon})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}
	done := rideField(t, resp["ride"])
	if done["status"] != "completed" || done["pointsStatus"] != "rewarded" {
		t.Fatalf("completion state: %v/%v", done["status"], done["pointsStatus"])
	}
	if done["pointsAwarded"].(float64) != 10.0 {
		t.Fatalf("award %v, want 10", done["pointsAwarded"])
	}

	// puller detail reflects the award and the ledger entry
	w, resp = doJSON(t, s, "GET", "/api/pullers/puller_1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get puller: %d", w.Code)
	}
	p := rideField(t, resp["puller"])
	if p["points"].(float64) != 10.0 || p["totalRides"].(float64) != 1 {
		t.Fatalf("puller not credited: %v/%v", p["points"], p["totalRides"])
	}
	var history []map[string]any
	if err := json.Unmarshal(resp["pointsHistory"], &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0]["type"] != "earned" {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestRideErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, "POST", "/api/seed", nil)

	if w, _ := doJSON(t, s, "GET", "/api/rides/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown ride: want 404, got %d", w.Code)
	}
	if w, _ := doJSON(t, s, "POST", "/api/rides", map[string]string{"userId": "user_1"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: want 400, got %d", w.Code)
	}
	if w, _ := doJSON(t, s, "POST", "/api/rides", map[string]string{
		"userId": "ghost", "pickupLocationId": "loc_1", "destinationLocationId": "loc_2",
	}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown rider: want 404, got %d", w.Code)
	}

	w, resp := doJSON(t, s, "POST", "/api/rides", map[string]string{
		"userId": "user_1", "pickupLocationId": "loc_1", "destinationLocationId": "loc_2",
	})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	id := rideField(t, resp["ride"])["id"].(string)

	if w, _ := doJSON(t, s, "PATCH", "/api/rides/"+id, map[string]any{"action": "warp"}); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: want 400, got %d", w.Code)
	}
	if w, _ := doJSON(t, s, "PATCH", "/api/rides/"+id, map[string]any{"action": "cancel"}); w.Code != http.StatusOK {
		t.Fatal("cancel failed")
	}
	if w, _ := doJSON(t, s, "PATCH", "/api/rides/"+id, map[string]any{"action": "cancel"}); w.Code != http.StatusConflict {
		t.Fatalf("cancel terminal: want 409, got %d", w.Code)
	}
}

func TestNearbyPullers(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, "POST", "/api/seed", nil)

	w, resp := doJSON(t, s, "GET",
		fmt.Sprintf("/api/pullers/puller_1/nearby?latitude=%v&longitude=%v", 22.4633, 91.9714), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("nearby: %d %s", w.Code, w.Body.String())
	}
	var list []map[string]any
	if err := json.Unmarshal(resp["pullers"], &list); err != nil {
		t.Fatal(err)
	}
	// seed has two online pullers; the offline one never shows up
	if len(list) != 2 {
		t.Fatalf("want 2 online pullers, got %d", len(list))
	}
	first := list[0]["puller"].(map[string]any)
	if first["id"] != "puller_1" {
		t.Fatalf("closest should be puller_1, got %v", first["id"])
	}

	if w, _ := doJSON(t, s, "GET", "/api/pullers/puller_1/nearby", nil); w.Code != http.StatusBadRequest {
		t.Fatal("missing coordinates must be 400")
	}
}

func TestUpdatePullerPresence(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, "POST", "/api/seed", nil)

	w, resp := doJSON(t, s, "PATCH", "/api/pullers/+8801734567890", map[string]any{
		"isOnline": true, "latitude": 22.4581, "longitude": 91.9921,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("presence update: %d %s", w.Code, w.Body.String())
	}
	p := rideField(t, resp["puller"])
	if p["id"] != "puller_3" || p["isOnline"] != true {
		t.Fatalf("phone lookup or update failed: %v", p)
	}

	// the directory sees the update immediately
	w, resp = doJSON(t, s, "GET",
		fmt.Sprintf("/api/pullers/puller_3/nearby?latitude=%v&longitude=%v", 22.4580, 91.9920), nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	var list []map[string]any
	if err := json.Unmarshal(resp["pullers"], &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("want 3 online pullers after update, got %d", len(list))
	}
	if list[0]["puller"].(map[string]any)["id"] != "puller_3" {
		t.Fatal("puller_3 should now rank closest to Noapara")
	}
}

func TestRedeemOverAPI(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, "POST", "/api/seed", nil)

	// earn 10 points first
	_, resp := doJSON(t, s, "POST", "/api/rides", map[string]string{
		"userId": "user_1", "pickupLocationId": "loc_1", "destinationLocationId": "loc_2",
	})
	id := rideField(t, resp["ride"])["id"].(string)
	doJSON(t, s, "PATCH", "/api/rides/"+id, map[string]any{"action": "accept", "pullerId": "puller_1"})
	doJSON(t, s, "PATCH", "/api/rides/"+id, map[string]any{
		"action": "complete", "pullerId": "puller_1", "latitude": 22.4725, "longitude": 91.9845,
	})

	w, resp := doJSON(t, s, "POST", "/api/pullers/puller_1/redeem", map[string]any{"points": 4})
	if w.Code != http.StatusOK {
		t.Fatalf("redeem: %d %s", w.Code, w.Body.String())
	}
	if rideField(t, resp["puller"])["points"].(float64) != 6.0 {
		t.Fatal("balance not decremented")
	}
	if w, _ := doJSON(t, s, "POST", "/api/pullers/puller_1/redeem", map[string]any{"points": 100}); w.Code != http.StatusBadRequest {
		t.Fatalf("over-balance redeem: want 400, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, "POST", "/api/seed", nil)

	w, resp := doJSON(t, s, "GET", "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: %d", w.Code)
	}
	ov := rideField(t, resp["overview"])
	if ov["totalUsers"].(float64) != 3 || ov["totalPullers"].(float64) != 3 || ov["onlinePullers"].(float64) != 2 {
		t.Fatalf("unexpected overview: %v", ov)
	}
	if _, ok := resp["analytics"]; !ok {
		t.Fatal("analytics section missing")
	}
}
