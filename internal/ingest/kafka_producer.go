package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/rickshaw-rides/internal/models"
)

// LocationReport is the wire form of a puller presence update on the
// puller-locations topic. Keyed by puller id so reports for one puller stay
// ordered within a partition.
type LocationReport struct {
	PullerID  string    `json:"puller_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Online    bool      `json:"online"`
	Points    float64   `json:"points"`
	Reported  time.Time `json:"reported"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

// PublishLocation sends a presence report for the consumer to fold into the
// Redis directory. Requires a reported coordinate.
func (k *KafkaProducer) PublishLocation(p models.Puller) error {
	if !p.HasCoord() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rep := LocationReport{
		PullerID: p.ID,
		Name:     p.Name,
		Phone:    p.Phone,
		Lat:      *p.CurrentLat,
		Lon:      *p.CurrentLon,
		Online:   p.IsOnline,
		Points:   p.Points,
		Reported: time.Now(),
	}
	b, _ := json.Marshal(rep)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(p.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
