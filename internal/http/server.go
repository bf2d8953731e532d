// Package httpapi exposes the ride lifecycle, puller directory and stats feed
// over HTTP. Routes mirror the public API the rider/puller apps already speak.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/rickshaw-rides/internal/geo"
	"github.com/example/rickshaw-rides/internal/ingest"
	"github.com/example/rickshaw-rides/internal/ride"
	"github.com/example/rickshaw-rides/internal/stats"
	"github.com/example/rickshaw-rides/internal/storage"
)

type Server struct {
	logger *slog.Logger
	store  storage.Store
	dir    geo.Directory
	rides  *ride.Service
	stats  *stats.Aggregator
	kafka  *ingest.KafkaProducer // optional, nil when no brokers configured

	nearbyLimit int
	speedMps    float64

	mux *mux.Router
}

type Options struct {
	Logger      *slog.Logger
	Store       storage.Store
	Directory   geo.Directory
	Rides       *ride.Service
	Stats       *stats.Aggregator
	Kafka       *ingest.KafkaProducer
	NearbyLimit int
	SpeedMps    float64
}

func New(o Options) *Server {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.NearbyLimit <= 0 {
		o.NearbyLimit = 5
	}
	s := &Server{
		logger:      o.Logger,
		store:       o.Store,
		dir:         o.Directory,
		rides:       o.Rides,
		stats:       o.Stats,
		kafka:       o.Kafka,
		nearbyLimit: o.NearbyLimit,
		speedMps:    o.SpeedMps,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()

	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides", s.handleListRides).Methods("GET")
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{id}", s.handleRideAction).Methods("PATCH")

	api.HandleFunc("/pullers", s.handleListPullers).Methods("GET")
	api.HandleFunc("/pullers", s.handleCreatePuller).Methods("POST")
	api.HandleFunc("/pullers/{ref}", s.handleGetPuller).Methods("GET")
	api.HandleFunc("/pullers/{ref}", s.handleUpdatePuller).Methods("PATCH")
	api.HandleFunc("/pullers/{ref}/nearby", s.handleNearbyPullers).Methods("GET")
	api.HandleFunc("/pullers/{ref}/redeem", s.handleRedeemPoints).Methods("POST")

	api.HandleFunc("/users", s.handleListUsers).Methods("GET")
	api.HandleFunc("/users", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/locations", s.handleListLocations).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/seed", s.handleSeed).Methods("POST")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
