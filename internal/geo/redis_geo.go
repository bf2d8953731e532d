package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/rickshaw-rides/internal/models"
)

// RedisDirectory implements Directory using Redis GEO commands. Coordinates go
// into a geo set keyed by puller id; name/phone/online ride along in a hash so
// Nearby can rebuild full records without touching the primary store.
type RedisDirectory struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisDirectory(addr, password, key string) *RedisDirectory {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisDirectory{client: c, key: key, ctx: context.Background()}
}

func (r *RedisDirectory) Upsert(p models.Puller) {
	if !p.HasCoord() {
		// nothing to index until the first location report; metadata alone
		// would produce a candidate with no distance
		_ = r.client.HSet(r.ctx, metaKey(p.ID), metaFields(p)).Err()
		return
	}
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{
		Longitude: *p.CurrentLon,
		Latitude:  *p.CurrentLat,
		Name:      p.ID,
	}).Result()
	_ = r.client.HSet(r.ctx, metaKey(p.ID), metaFields(p)).Err()
}

func (r *RedisDirectory) Nearby(lat, lon float64, limit int) []NearbyPuller {
	if limit <= 0 {
		return nil
	}
	res, err := r.client.GeoRadius(r.ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: 5000, Unit: "m", WithCoord: true, WithDist: true, Count: limit * 2, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]NearbyPuller, 0, limit)
	for _, g := range res {
		if len(out) == limit {
			break
		}
		p := models.Puller{ID: g.Name}
		clat, clon := g.Latitude, g.Longitude
		p.CurrentLat, p.CurrentLon = &clat, &clon
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			p.Name = m["name"]
			p.Phone = m["phone"]
			p.IsOnline = m["online"] == "true"
			if v, ok := m["points"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					p.Points = f
				}
			}
		}
		if !p.IsOnline {
			continue
		}
		dist := g.Dist
		out = append(out, NearbyPuller{
			Puller:         p,
			DistanceMeters: dist,
			ArrivalSeconds: EstimateArrivalSeconds(dist, 0),
		})
	}
	return out
}

func metaFields(p models.Puller) map[string]interface{} {
	return map[string]interface{}{
		"name":    p.Name,
		"phone":   p.Phone,
		"online":  strconv.FormatBool(p.IsOnline),
		"points":  strconv.FormatFloat(p.Points, 'f', -1, 64),
		"updated": time.Now().Format(time.RFC3339),
	}
}

func metaKey(id string) string { return "puller:meta:" + id }
