// Package session owns one live conversation: its speech sources, transcript,
// turn detection and suggestion dispatch, torn down together on Stop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
	"ai-conversation-assist-service/internal/observer"
	"ai-conversation-assist-service/internal/service/dispatch"
	"ai-conversation-assist-service/internal/service/speaker"
	"ai-conversation-assist-service/internal/service/stt"
	"ai-conversation-assist-service/internal/service/transcript"
	"ai-conversation-assist-service/internal/service/turn"
)

// SuggestionHistory is the number of suggestions kept per session.
const SuggestionHistory = 10

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSessionStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
	ErrNoSources      = errors.New("session needs at least one source")
	ErrDuplicateID    = errors.New("duplicate source id")
	ErrUnknownSource  = errors.New("unknown source")
	ErrNotSupported   = errors.New("source does not accept this input")
	ErrLimitExceeded  = errors.New("session limit exceeded")
)

// Limits are guardrails against unbounded resource use. Zero disables a limit.
type Limits struct {
	MaxAudioBytes int64         // total audio accepted
	MaxDuration   time.Duration // wall time from Start
}

// DefaultLimits allows two hours of 16 kHz 16-bit mono audio.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 2 * 60 * 60 * 32000,
		MaxDuration:   2 * time.Hour,
	}
}

// Config configures a session.
type Config struct {
	ID          string // generated when empty
	Transcript  transcript.Config
	Turn        turn.Config
	Dispatch    dispatch.Config
	Limits      Limits
	EventBuffer int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Transcript:  transcript.DefaultConfig(),
		Dispatch:    dispatch.Config{Debounce: dispatch.DefaultDebounce},
		Limits:      DefaultLimits(),
		EventBuffer: 256,
	}
}

// Deps are the collaborators a session drives.
type Deps struct {
	Adapters  []stt.Adapter
	Generator dispatch.Generator
	Observer  observer.Observer
	Logger    zerolog.Logger
}

type state int

const (
	stateCreated state = iota
	stateRunning
	stateStopped
)

// notice is an observer notification routed through the event loop.
type notice func(observer.Observer)

// Session is the context object for one conversation. All recognition
// events and observer notifications are serialized on one event loop.
type Session struct {
	id      string
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	adapters []stt.Adapter
	bySource map[string]stt.Adapter

	reconciler *transcript.Reconciler
	detector   *turn.Detector
	dispatcher *dispatch.Dispatcher
	obs        observer.Observer

	events  chan models.RecognitionEvent
	notices chan notice

	mu          sync.RWMutex
	state       state
	startedAt   time.Time
	suggestions *transcript.Ring[models.Suggestion]
	cancel      context.CancelFunc
	loopDone    chan struct{}

	audioBytes atomic.Int64
	stopOnce   sync.Once
}

// New builds a session and its pipeline. Nothing runs until Start.
func New(cfg Config, deps Deps) (*Session, error) {
	if len(deps.Adapters) == 0 {
		return nil, ErrNoSources
	}
	if deps.Generator == nil {
		return nil, errors.New("session needs a suggestion generator")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}

	s := &Session{
		id:          cfg.ID,
		cfg:         cfg,
		logger:      deps.Logger.With().Str("sessionId", cfg.ID).Logger(),
		metrics:     metrics.DefaultMetrics,
		bySource:    make(map[string]stt.Adapter, len(deps.Adapters)),
		obs:         deps.Observer,
		events:      make(chan models.RecognitionEvent, cfg.EventBuffer),
		notices:     make(chan notice, cfg.EventBuffer),
		suggestions: transcript.NewRing[models.Suggestion](SuggestionHistory),
		loopDone:    make(chan struct{}),
	}
	if s.obs == nil {
		s.obs = observer.Multi{}
	}

	mapper := speaker.NewMapper()
	for _, a := range deps.Adapters {
		src := a.Source()
		if _, dup := s.bySource[src.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, src.ID)
		}
		s.bySource[src.ID] = a
		s.adapters = append(s.adapters, a)
		mapper.Register(src)
	}

	s.reconciler = transcript.NewReconciler(cfg.Transcript, mapper, transcript.NewIDGenerator(cfg.ID), s.logger)
	s.detector = turn.NewDetector(cfg.Turn)
	s.dispatcher = dispatch.New(cfg.Dispatch, deps.Generator, (*dispatchObserver)(s), s.logger)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Sources returns the registered sources.
func (s *Session) Sources() []models.Source {
	out := make([]models.Source, 0, len(s.adapters))
	for _, a := range s.adapters {
		out = append(out, a.Source())
	}
	return out
}

// Start launches the event loop and every adapter. If an adapter fails to
// start, the adapters already started are stopped and the session is closed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateRunning:
		s.mu.Unlock()
		return ErrSessionStarted
	case stateStopped:
		s.mu.Unlock()
		return ErrSessionClosed
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = stateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.run(loopCtx)

	sink := stt.SinkFunc(s.emit)
	for i, a := range s.adapters {
		if err := a.Start(ctx, sink); err != nil {
			src := a.Source()
			s.logger.Error().Err(err).Str("sourceId", src.ID).Msg("Failed to start source")
			for _, started := range s.adapters[:i] {
				_ = started.Stop()
			}
			s.stop(false)
			return fmt.Errorf("start source %s: %w", src.ID, err)
		}
	}

	s.metrics.RecordSessionStart()
	s.logger.Info().Int("sources", len(s.adapters)).Msg("Session started")
	return nil
}

// Stop stops the adapters, cancels any in-flight suggestion and waits for
// the event loop. It is safe to call more than once.
func (s *Session) Stop() {
	s.stop(true)
}

func (s *Session) stop(stopAdapters bool) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasRunning := s.state == stateRunning
		s.state = stateStopped
		cancel := s.cancel
		started := s.startedAt
		s.mu.Unlock()

		if stopAdapters {
			for _, a := range s.adapters {
				if err := a.Stop(); err != nil {
					s.logger.Warn().Err(err).Str("sourceId", a.Source().ID).Msg("Error stopping source")
				}
			}
		}

		// Closing the dispatcher first lets a result that already passed its
		// stale check reach the loop before it exits.
		s.dispatcher.Close()
		if cancel != nil {
			cancel()
			<-s.loopDone
		} else {
			close(s.loopDone)
		}

		if wasRunning {
			s.metrics.RecordSessionEnd(time.Since(started).Seconds())
			s.logger.Info().
				Int64("audioBytes", s.audioBytes.Load()).
				Dur("duration", time.Since(started)).
				Msg("Session stopped")
		}
	})
}

// Done is closed when the event loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

func (s *Session) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case stateCreated:
		return ErrNotStarted
	case stateStopped:
		return ErrSessionClosed
	}
	if s.cfg.Limits.MaxDuration > 0 && time.Since(s.startedAt) > s.cfg.Limits.MaxDuration {
		return fmt.Errorf("%w: duration over %v", ErrLimitExceeded, s.cfg.Limits.MaxDuration)
	}
	return nil
}

// SendAudio forwards a PCM frame to every source that accepts audio.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	if err := s.running(); err != nil {
		return err
	}

	total := s.audioBytes.Add(int64(len(audio)))
	if limit := s.cfg.Limits.MaxAudioBytes; limit > 0 && total > limit {
		return fmt.Errorf("%w: audio bytes %d > %d", ErrLimitExceeded, total, limit)
	}
	s.metrics.RecordAudioReceived(len(audio))

	var errs []error
	accepted := false
	for _, a := range s.adapters {
		r, ok := a.(stt.AudioReceiver)
		if !ok {
			continue
		}
		accepted = true
		if err := r.SendAudio(ctx, audio); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", a.Source().ID, err))
		}
	}
	if !accepted {
		return ErrNotSupported
	}
	return errors.Join(errs...)
}

// Receive routes a client-relayed message to the source registered as
// sourceID.
func (s *Session) Receive(sourceID string, raw []byte) error {
	if err := s.running(); err != nil {
		return err
	}

	a, ok := s.bySource[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	r, ok := a.(stt.MessageReceiver)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupported, sourceID)
	}
	return r.Receive(raw)
}

// Transcript returns the finalized lines in the rolling window followed by
// the interim lines still in progress.
func (s *Session) Transcript() []models.TranscriptLine {
	return append(s.reconciler.Lines(), s.reconciler.Active()...)
}

// Suggestions returns recent suggestions, newest first.
func (s *Session) Suggestions() []models.Suggestion {
	s.mu.RLock()
	items := s.suggestions.Items()
	s.mu.RUnlock()

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// DispatcherState exposes the dispatcher state for diagnostics.
func (s *Session) DispatcherState() dispatch.State {
	return s.dispatcher.State()
}

// emit is the adapters' sink. Events arriving after the loop exits are dropped.
func (s *Session) emit(ev models.RecognitionEvent) {
	select {
	case s.events <- ev:
	case <-s.loopDone:
		s.metrics.RecordEventDropped("session_closed")
	}
}

// run is the event loop.
func (s *Session) run(ctx context.Context) {
	defer close(s.loopDone)

	gate := time.NewTimer(time.Hour)
	gate.Stop()
	defer gate.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		case n := <-s.notices:
			n(s.obs)
		case now := <-gate.C:
			if t, ok := s.detector.Flush(now); ok {
				s.dispatcher.Dispatch(t)
			}
		}

		if deadline, held := s.detector.Deadline(); held {
			gate.Reset(time.Until(deadline))
		} else {
			gate.Stop()
		}
	}
}

// handle runs one event through reconciliation and turn detection.
func (s *Session) handle(ev models.RecognitionEvent) {
	upd, changed := s.reconciler.Ingest(ev)
	if !changed {
		return
	}

	if upd.Abandoned != nil {
		s.obs.OnTranscriptLine(*upd.Abandoned)
	}
	now := time.Now()
	s.detector.OnActivity(upd.Line.Speaker, now)
	s.obs.OnTranscriptLine(upd.Line)

	if !upd.Finalized {
		return
	}
	if t, ok := s.detector.OnFinalLine(upd.Line, upd.History, now); ok {
		s.dispatcher.Dispatch(t)
	}
}

// post hands a notification to the loop.
func (s *Session) post(n notice) {
	select {
	case s.notices <- n:
	case <-s.loopDone:
	}
}

// dispatchObserver receives dispatcher outcomes on the dispatcher's goroutine
// and forwards them to the loop.
type dispatchObserver Session

func (d *dispatchObserver) OnSuggestion(sg models.Suggestion) {
	s := (*Session)(d)
	s.mu.Lock()
	s.suggestions.Push(sg)
	s.mu.Unlock()
	s.post(func(o observer.Observer) { o.OnSuggestion(sg) })
}

func (d *dispatchObserver) OnError(kind models.ErrorKind, message string) {
	s := (*Session)(d)
	s.post(func(o observer.Observer) { o.OnError(kind, message) })
}
