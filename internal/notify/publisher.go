package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nao1215/leadcrawler/internal/model"
)

// EventDomainCrawled is the type of the event sent for every written artifact.
const EventDomainCrawled = "domain.crawled"

// ErrNoBrokers is returned when a Kafka publisher has no broker addresses.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// DomainCrawled is the JSON payload of a crawl event.
type DomainCrawled struct {
	Type            string        `json:"type"`
	RunID           int64         `json:"run_id,omitempty"`
	Domain          string        `json:"domain"`
	InstitutionID   string        `json:"institution_id,omitempty"`
	InstitutionName string        `json:"institution_name,omitempty"`
	Pass            model.Pass    `json:"pass"`
	Outcome         model.Outcome `json:"outcome"`
	RouteCount      int           `json:"route_count"`
	Digest          string        `json:"digest,omitempty"`
	OutputFile      string        `json:"output_file"`
	CrawledAt       time.Time     `json:"crawled_at"`
}

// NewDomainCrawled builds the event for a result.
func NewDomainCrawled(runID int64, r *model.CrawlResult) DomainCrawled {
	return DomainCrawled{
		Type:            EventDomainCrawled,
		RunID:           runID,
		Domain:          r.Domain,
		InstitutionID:   r.InstitutionID,
		InstitutionName: r.InstitutionName,
		Pass:            r.Pass,
		Outcome:         r.Outcome,
		RouteCount:      r.RouteCount,
		Digest:          r.Digest,
		OutputFile:      r.OutputFile,
		CrawledAt:       r.StartedAt.UTC(),
	}
}

// Publisher sends crawl events.
type Publisher interface {
	Publish(ctx context.Context, event DomainCrawled) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: false,
		},
	}, nil
}

// newKafkaPublisherWithWriter builds a publisher on top of a custom writer.
func newKafkaPublisherWithWriter(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish sends one event keyed by its domain.
func (p *KafkaPublisher) Publish(ctx context.Context, event DomainCrawled) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", event.Domain, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Domain),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event for %s: %w", event.Domain, err)
	}
	return nil
}

// Close flushes pending messages and shuts down the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, DomainCrawled) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
