package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/rickshaw-rides/internal/ingest"
)

type fakeRedis struct {
	geoFails  int
	hsetFails int
	geoCalls  []*redis.GeoLocation
	hsetKeys  []string
	hsetMeta  map[string]interface{}
}

func (f *fakeRedis) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	if f.geoFails > 0 {
		f.geoFails--
		return errors.New("geoadd down")
	}
	f.geoCalls = append(f.geoCalls, loc)
	return nil
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	if f.hsetFails > 0 {
		f.hsetFails--
		return errors.New("hset down")
	}
	f.hsetKeys = append(f.hsetKeys, key)
	f.hsetMeta = values
	return nil
}

func report() *ingest.LocationReport {
	return &ingest.LocationReport{
		PullerID: "puller_1",
		Name:     "Karim Uddin",
		Phone:    "+8801712345678",
		Lat:      22.4633,
		Lon:      91.9714,
		Online:   true,
		Points:   12.5,
		Reported: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestUpdateRedisWritesGeoAndMeta(t *testing.T) {
	f := &fakeRedis{}
	if err := updateRedisWithRetry(context.Background(), f, "pullers_geo", report(), 3, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(f.geoCalls) != 1 {
		t.Fatalf("want 1 geo write, got %d", len(f.geoCalls))
	}
	loc := f.geoCalls[0]
	if loc.Name != "puller_1" || loc.Latitude != 22.4633 || loc.Longitude != 91.9714 {
		t.Fatalf("bad geo point: %+v", loc)
	}
	if len(f.hsetKeys) != 1 || f.hsetKeys[0] != "puller:meta:puller_1" {
		t.Fatalf("bad meta key: %v", f.hsetKeys)
	}
	if f.hsetMeta["online"] != "true" || f.hsetMeta["points"] != "12.5" {
		t.Fatalf("bad meta: %v", f.hsetMeta)
	}
}

func TestUpdateRedisRetriesTransientFailures(t *testing.T) {
	f := &fakeRedis{geoFails: 1, hsetFails: 1}
	if err := updateRedisWithRetry(context.Background(), f, "pullers_geo", report(), 3, time.Millisecond); err != nil {
		t.Fatalf("transient failures should be retried: %v", err)
	}
	if len(f.geoCalls) == 0 || len(f.hsetKeys) == 0 {
		t.Fatal("writes never landed")
	}
}

func TestUpdateRedisGivesUpAfterAttempts(t *testing.T) {
	f := &fakeRedis{geoFails: 5}
	if err := updateRedisWithRetry(context.Background(), f, "pullers_geo", report(), 3, time.Millisecond); err == nil {
		t.Fatal("want error after exhausting attempts")
	}
}
