// The consumer folds puller location reports from Kafka into the Redis GEO
// index the API's nearby lookups read. Running it separately keeps the write
// path off the API's request loop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/rickshaw-rides/internal/ingest"
	"github.com/example/rickshaw-rides/internal/logging"
)

var (
	reportsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "consumer_reports_total",
		Help: "Puller location reports consumed"})
	reportsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "consumer_reports_invalid_total",
		Help: "Reports that failed to decode"})
	indexWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "consumer_index_writes_total",
		Help: "Successful geo index updates"})
	indexErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rickshaw", Name: "consumer_index_errors_total",
		Help: "Geo index updates that exhausted retries"})
)

type consumerConfig struct {
	brokers     []string
	topic       string
	group       string
	redisAddr   string
	geoKey      string
	metricsAddr string
}

func loadConsumerConfig() consumerConfig {
	cfg := consumerConfig{
		topic:     envOr("KAFKA_TOPIC", "puller-locations"),
		group:     envOr("KAFKA_GROUP", "rickshaw-location-consumer"),
		redisAddr: envOr("REDIS_ADDR", "localhost:6379"),
	}
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.StringVar(&cfg.geoKey, "geo-key", "pullers_geo", "redis geo set the directory reads")
	flag.Parse()

	for _, b := range strings.Split(envOr("KAFKA_BROKERS", "localhost:9092"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.brokers = append(cfg.brokers, b)
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConsumerConfig()
	logger := logging.NewLogger("rickshaw-consumer", envOr("LOG_LEVEL", "info"))

	rc := redis.NewClient(&redis.Options{Addr: cfg.redisAddr, Password: os.Getenv("REDIS_PASSWORD")})
	defer rc.Close()

	go serveMetrics(cfg.metricsAddr, rc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.brokers,
		Topic:    cfg.topic,
		GroupID:  cfg.group,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	logger.Info("consumer started", "topic", cfg.topic, "brokers", cfg.brokers, "group", cfg.group, "geo_key", cfg.geoKey)
	run(ctx, reader, &redisAdapter{c: rc}, cfg.geoKey, logger)
	logger.Info("consumer stopped")
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type slogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func run(ctx context.Context, reader messageReader, rc RedisUpdater, geoKey string, logger slogger) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read failed", "error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		reportsConsumed.Inc()

		var rep ingest.LocationReport
		if err := json.Unmarshal(msg.Value, &rep); err != nil || rep.PullerID == "" {
			reportsInvalid.Inc()
			logger.Warn("dropping undecodable report", "error", err, "offset", msg.Offset)
			continue
		}
		if err := updateRedisWithRetry(ctx, rc, geoKey, &rep, 3, 200*time.Millisecond); err != nil {
			indexErrors.Inc()
			logger.Error("geo index update failed", "puller_id", rep.PullerID, "error", err)
			continue
		}
		indexWrites.Inc()
	}
}

func serveMetrics(addr string, rc *redis.Client, logger slogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// RedisUpdater is the subset of redis operations the index write path needs.
type RedisUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	return r.c.GeoAdd(ctx, key, loc).Err()
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return r.c.HSet(ctx, key, values).Err()
}

// updateRedisWithRetry indexes a location report with retry/backoff. The geo
// point and the metadata hash are written separately; a torn pair self-heals
// on the puller's next report.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, geoKey string, rep *ingest.LocationReport, attempts int, delay time.Duration) error {
	meta := map[string]interface{}{
		"name":    rep.Name,
		"phone":   rep.Phone,
		"online":  strconv.FormatBool(rep.Online),
		"points":  strconv.FormatFloat(rep.Points, 'f', -1, 64),
		"updated": rep.Reported.Format(time.RFC3339),
	}
	point := &redis.GeoLocation{Longitude: rep.Lon, Latitude: rep.Lat, Name: rep.PullerID}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		if lastErr = rc.GeoAdd(ctx, geoKey, point); lastErr != nil {
			continue
		}
		if lastErr = rc.HSet(ctx, "puller:meta:"+rep.PullerID, meta); lastErr != nil {
			continue
		}
		return nil
	}
	return lastErr
}
