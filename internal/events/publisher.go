// Package events publishes transcript lines and suggestions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
)

// Publisher writes transcript and suggestion events to separate Kafka topics.
type Publisher struct {
	writerPartial    *kafka.Writer
	writerFinal      *kafka.Writer
	writerSuggestion *kafka.Writer
	principal        string
	topicPartial     string
	topicFinal       string
	topicSuggestion  string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicPartial    string
	TopicFinal      string
	TopicSuggestion string
	Principal       string
	Enabled         bool
}

// New creates a publisher. Without brokers, or when disabled, events are
// only logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	p := &Publisher{
		principal:       cfg.Principal,
		topicPartial:    cfg.TopicPartial,
		topicFinal:      cfg.TopicFinal,
		topicSuggestion: cfg.TopicSuggestion,
		metrics:         m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerPartial = newWriter(cfg.Brokers, cfg.TopicPartial, transport)
	p.writerFinal = newWriter(cfg.Brokers, cfg.TopicFinal, transport)
	p.writerSuggestion = newWriter(cfg.Brokers, cfg.TopicSuggestion, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("topicSuggestion", cfg.TopicSuggestion).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishLine publishes a changed transcript line, keyed by session, to the
// partial or final topic.
func (p *Publisher) PublishLine(ctx context.Context, sessionID string, line models.TranscriptLine) error {
	eventType := models.EventTranscriptPartial
	writer, topic := p.writerPartial, p.topicPartial
	if line.IsFinal {
		eventType = models.EventTranscriptFinal
		writer, topic = p.writerFinal, p.topicFinal
	}

	ev := models.TranscriptLineEvent{
		EventType: eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Line:      line,
	}
	return p.publish(ctx, writer, topic, eventType, sessionID, ev)
}

// PublishSuggestion publishes a suggestion keyed by session.
func (p *Publisher) PublishSuggestion(ctx context.Context, sessionID string, s models.Suggestion) error {
	ev := models.SuggestionEvent{
		EventType:  models.EventSuggestion,
		SessionID:  sessionID,
		Timestamp:  time.Now().UnixMilli(),
		Suggestion: s,
	}
	return p.publish(ctx, p.writerSuggestion, p.topicSuggestion, models.EventSuggestion, sessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"partial":    p.writerPartial,
		"final":      p.writerFinal,
		"suggestion": p.writerSuggestion,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
