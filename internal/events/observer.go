package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-conversation-assist-service/internal/models"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// Observer publishes one session's output through a Publisher. Writes run
// on a single goroutine in notification order so a slow broker never
// blocks the session; when the queue is full the event is dropped.
type Observer struct {
	publisher *Publisher
	sessionID string
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan func(context.Context) error
	done   chan struct{}
}

// NewObserver starts the publishing goroutine. Call Close to drain it.
func NewObserver(p *Publisher, sessionID string) *Observer {
	o := &Observer{
		publisher: p,
		sessionID: sessionID,
		timeout:   defaultWriteTimeout,
		queue:     make(chan func(context.Context) error, defaultQueueSize),
		done:      make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Observer) run() {
	defer close(o.done)
	for write := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		if err := write(ctx); err != nil {
			log.Warn().Err(err).Str("sessionId", o.sessionID).Msg("Dropped event after Kafka failure")
		}
		cancel()
	}
}

func (o *Observer) enqueue(write func(context.Context) error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return
	}
	select {
	case o.queue <- write:
	default:
		o.publisher.metrics.RecordEventDropped("kafka_queue_full")
	}
}

func (o *Observer) OnTranscriptLine(line models.TranscriptLine) {
	o.enqueue(func(ctx context.Context) error {
		return o.publisher.PublishLine(ctx, o.sessionID, line)
	})
}

func (o *Observer) OnSuggestion(s models.Suggestion) {
	o.enqueue(func(ctx context.Context) error {
		return o.publisher.PublishSuggestion(ctx, o.sessionID, s)
	})
}

// OnError is not published; errors reach the operator through the session
// websocket and logs.
func (o *Observer) OnError(models.ErrorKind, string) {}

// Close stops accepting events and waits for queued writes.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	<-o.done
}
