// Package dispatch turns detected conversation turns into suggestion calls,
// allowing at most one outstanding call and suppressing duplicates.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
	"ai-conversation-assist-service/internal/service/suggest"
)

// DefaultDebounce is the delay between the last turn and the backend call.
const DefaultDebounce = 500 * time.Millisecond

// Suppression reasons reported to metrics.
const (
	reasonDuplicate = "duplicate"
	reasonHalted    = "halted"
	reasonClosed    = "closed"
)

// Generator produces a suggestion for a request.
type Generator interface {
	Generate(ctx context.Context, req models.SuggestionRequest) (models.Suggestion, error)
}

// Observer receives dispatch outcomes. Callbacks run on the goroutine that
// completed the backend call and must not block for long.
type Observer interface {
	OnSuggestion(models.Suggestion)
	OnError(kind models.ErrorKind, message string)
}

// Config configures a Dispatcher.
type Config struct {
	Debounce      time.Duration
	ModelSelector string
	Context       string
}

// Dispatcher is the suggestion state machine. It is safe for concurrent use.
type Dispatcher struct {
	cfg     Config
	gen     Generator
	obs     Observer
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	state      State
	pending    *models.Turn // set while Debouncing
	queued     *models.Turn // set while InFlight
	timer      *time.Timer
	timerGen   uint64
	generation uint64
	lastKey    string
	halted     bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a dispatcher in the Idle state.
func New(cfg Config, gen Generator, obs Observer, logger zerolog.Logger) *Dispatcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:     cfg,
		gen:     gen,
		obs:     obs,
		logger:  logger.With().Str("component", "dispatch").Logger(),
		metrics: metrics.DefaultMetrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch offers a turn. While Idle or Debouncing the turn becomes the
// pending one and the debounce timer restarts. While InFlight it replaces
// any queued turn.
func (d *Dispatcher) Dispatch(turn models.Turn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		d.metrics.RecordSuppressed(reasonClosed)
		return
	case d.halted:
		d.metrics.RecordSuppressed(reasonHalted)
		return
	}

	switch d.state {
	case Idle, Debouncing:
		d.pending = &turn
		d.transition(Debouncing)
		d.arm()
	case InFlight:
		d.queued = &turn
		d.logger.Debug().Str("lineId", turn.Line.ID).Msg("Turn queued behind in-flight call")
	}
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastKey returns the key of the most recently resolved call.
func (d *Dispatcher) LastKey() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastKey
}

// Close stops the timer, cancels any in-flight call and waits for it to
// return. The result of a cancelled call is discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.generation++
	d.pending = nil
	d.queued = nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.transition(Idle)
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// arm restarts the debounce timer. Callers hold mu.
func (d *Dispatcher) arm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timerGen++
	tg := d.timerGen
	d.timer = time.AfterFunc(d.cfg.Debounce, func() { d.fire(tg) })
}

func (d *Dispatcher) fire(tg uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A restarted or stopped timer may still fire once.
	if d.closed || tg != d.timerGen || d.state != Debouncing || d.pending == nil {
		return
	}

	turn := *d.pending
	d.pending = nil
	key := turn.Key()
	if key == d.lastKey {
		d.metrics.RecordSuppressed(reasonDuplicate)
		d.logger.Debug().Str("key", key).Msg("Duplicate turn suppressed")
		d.transition(Idle)
		return
	}

	d.transition(InFlight)
	d.generation++
	req := models.NewSuggestionRequest(turn, d.cfg.ModelSelector, d.cfg.Context)

	d.wg.Add(1)
	go d.call(d.generation, req)
}

func (d *Dispatcher) call(gen uint64, req models.SuggestionRequest) {
	defer d.wg.Done()

	s, err := d.gen.Generate(d.ctx, req)
	d.resolve(gen, req.Key, s, err)
}

func (d *Dispatcher) resolve(gen uint64, key string, s models.Suggestion, err error) {
	d.mu.Lock()
	if d.closed || gen != d.generation {
		d.mu.Unlock()
		d.metrics.RecordStaleResult()
		return
	}

	d.lastKey = key
	d.transition(Idle)

	var kind models.ErrorKind
	if err != nil {
		kind = suggest.KindOf(err)
		if kind == models.ErrorAuth {
			d.halted = true
			d.queued = nil
		}
	}
	if d.queued != nil {
		d.pending = d.queued
		d.queued = nil
		d.transition(Debouncing)
		d.arm()
	}
	d.mu.Unlock()

	if err != nil {
		d.metrics.RecordSuggestionError(string(kind))
		d.logger.Error().Err(err).Str("kind", string(kind)).Str("key", key).Msg("Suggestion failed")
		if d.obs != nil {
			d.obs.OnError(kind, suggest.UserMessage(kind))
		}
		return
	}

	d.metrics.RecordSuggestion()
	d.logger.Info().
		Str("lineId", s.LineID).
		Int("attempts", s.Attempts).
		Bool("fallback", s.Fallback).
		Msg("Suggestion ready")
	if d.obs != nil {
		d.obs.OnSuggestion(s)
	}
}

// transition moves to next and records it. Callers hold mu.
func (d *Dispatcher) transition(next State) {
	if d.state == next {
		return
	}
	d.metrics.RecordTransition(d.state.String(), next.String())
	d.state = next
}
