package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/config"
	"ai-conversation-assist-service/internal/events"
	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/logging"
	"ai-conversation-assist-service/internal/observer"
	"ai-conversation-assist-service/internal/service/dispatch"
	"ai-conversation-assist-service/internal/service/session"
	"ai-conversation-assist-service/internal/service/stt"
	"ai-conversation-assist-service/internal/service/stt/deepgram"
	"ai-conversation-assist-service/internal/service/stt/google"
	"ai-conversation-assist-service/internal/service/stt/mock"
	"ai-conversation-assist-service/internal/service/stt/push"
	"ai-conversation-assist-service/internal/service/stt/relay"
	"ai-conversation-assist-service/internal/service/stt/soniox"
	"ai-conversation-assist-service/internal/service/suggest"
	"ai-conversation-assist-service/internal/service/suggest/gemini"
	"ai-conversation-assist-service/internal/service/suggest/openai"
	"ai-conversation-assist-service/internal/service/transcript"
	"ai-conversation-assist-service/internal/service/turn"
)

var (
	ErrNotReady        = errors.New("application not ready")
	ErrTooManySessions = errors.New("too many active sessions")
)

// AdapterFactory builds the speech sources for one session.
type AdapterFactory func(ctx context.Context, sessionID string) ([]stt.Adapter, error)

// Option customizes an Application.
type Option func(*Application)

// WithGenerator replaces the suggestion backend client.
func WithGenerator(g dispatch.Generator) Option {
	return func(a *Application) { a.generator = g }
}

// WithAdapterFactory replaces the configured speech sources.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(a *Application) { a.adapters = f }
}

// WithPublisher replaces the Kafka publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(a *Application) { a.publisher = p }
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Sessions    *Registry

	generator dispatch.Generator
	adapters  AdapterFactory
	publisher *events.Publisher
	ready     atomic.Bool
}

// New builds the suggestion backends and the Kafka publisher from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	a := &Application{
		Cfg:      cfg,
		Logger:   logging.WithComponent("application"),
		Sessions: NewRegistry(),
	}
	a.adapters = a.buildAdapters
	for _, opt := range opts {
		opt(a)
	}

	if a.generator == nil {
		client, err := newSuggestClient(ctx, cfg.Suggest)
		if err != nil {
			return nil, fmt.Errorf("suggestion backend: %w", err)
		}
		a.generator = client
	}

	if a.publisher == nil {
		a.publisher = events.New(&events.Config{
			Enabled:         cfg.Kafka.Enabled,
			Brokers:         cfg.Kafka.Brokers,
			TopicPartial:    cfg.Kafka.TopicPartial,
			TopicFinal:      cfg.Kafka.TopicFinal,
			TopicSuggestion: cfg.Kafka.TopicSuggestion,
			Principal:       cfg.Kafka.Principal,
		})
	}

	a.Logger.Info().
		Strs("sources", cfg.Session.Sources).
		Str("model", cfg.Suggest.Model).
		Bool("kafka", a.publisher.Enabled()).
		Msg("Conversation assist application created")
	return a, nil
}

func newSuggestClient(ctx context.Context, cfg config.SuggestConfig) (*suggest.Client, error) {
	router := suggest.Router{
		OpenAI: openai.New(openai.Config{
			Name:    "openai",
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
		}, nil),
		OpenAIModel: cfg.OpenAIModel,
		GroqModel:   cfg.GroqModel,
		GeminiModel: cfg.GeminiModel,
	}
	if cfg.GroqAPIKey != "" {
		router.Groq = openai.New(openai.Config{
			Name:    "groq",
			BaseURL: cfg.GroqBaseURL,
			APIKey:  cfg.GroqAPIKey,
		}, nil)
	}
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, nil)
		if err != nil {
			return nil, err
		}
		router.Gemini = g
	}

	prompt := suggest.DefaultPromptConfig()
	if cfg.SystemPrompt != "" {
		prompt.SystemPrompt = cfg.SystemPrompt
	}
	prompt.MaxTokens = cfg.MaxTokens
	prompt.Temperature = cfg.Temperature

	return suggest.NewClient(suggest.Config{
		Retry: suggest.RetryPolicy{
			MaxAttempts:   cfg.MaxAttempts,
			RateLimitStep: cfg.RateLimitStep,
			TransientStep: cfg.TransientStep,
		},
		Prompt:        prompt,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
	}, router, logging.WithComponent("suggest")), nil
}

// buildAdapters creates one adapter per configured source.
func (a *Application) buildAdapters(ctx context.Context, sessionID string) ([]stt.Adapter, error) {
	sc := a.Cfg.STT

	var out []stt.Adapter
	for _, name := range a.Cfg.Session.Sources {
		var ad stt.Adapter
		logger := logging.WithSource(sessionID, name, name)
		switch name {
		case config.SourceMock:
			ad = mock.New(mock.Config{ID: name})
		case config.SourceGoogle:
			g, err := google.New(ctx, name, google.Config{
				LanguageCode:   sc.LanguageCode,
				SampleRateHz:   int32(sc.SampleRateHz),
				InterimResults: sc.InterimResults,
				AudioEncoding:  sc.AudioEncoding,
				MinSpeakers:    2,
				MaxSpeakers:    2,
			}, logger)
			if err != nil {
				stopAll(out)
				return nil, fmt.Errorf("google source: %w", err)
			}
			ad = g
		case config.SourceDeepgram:
			ad = deepgram.New(deepgram.Config{
				ID:          name,
				URL:         sc.DeepgramURL,
				APIKey:      sc.DeepgramAPIKey,
				SampleRate:  sc.SampleRateHz,
				Endpointing: sc.DeepgramEndpointing,
			}, logger)
		case config.SourceSoniox:
			scfg := soniox.DefaultConfig()
			scfg.ID = name
			scfg.URL = sc.SonioxURL
			scfg.APIKey = sc.SonioxAPIKey
			scfg.Model = sc.SonioxModel
			scfg.SampleRate = sc.SampleRateHz
			ad = soniox.New(scfg, logger)
		case config.SourceRelay:
			ad = relay.New(name)
		case config.SourcePush:
			ad = push.New(name, models.SourceKind(a.Cfg.Session.PushSourceKind))
		default:
			stopAll(out)
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out = append(out, ad)
	}
	return out, nil
}

func stopAll(adapters []stt.Adapter) {
	for _, ad := range adapters {
		_ = ad.Stop()
	}
}

// SessionOptions are per-session overrides of the configured defaults.
type SessionOptions struct {
	Model    string            // model selector; empty uses SUGGEST_MODEL
	Context  string            // operator notes added to every request
	Observer observer.Observer // extra observer, e.g. the websocket writer
}

// StartSession builds, registers and starts a session. It is removed from
// the registry once it stops.
func (a *Application) StartSession(ctx context.Context, opts SessionOptions) (*session.Session, error) {
	if !a.Ready() {
		return nil, ErrNotReady
	}
	if limit := a.Cfg.Session.MaxSessions; limit > 0 && a.Sessions.Len() >= limit {
		return nil, ErrTooManySessions
	}

	id := uuid.NewString()
	logger := logging.WithSession(id)

	adapters, err := a.adapters(ctx, id)
	if err != nil {
		return nil, err
	}

	kafkaObs := events.NewObserver(a.publisher, id)
	obs := observer.Multi{observer.NewLog(logger), kafkaObs}
	if opts.Observer != nil {
		obs = append(obs, opts.Observer)
	}

	s, err := session.New(a.sessionConfig(id, opts), session.Deps{
		Adapters:  adapters,
		Generator: a.generator,
		Observer:  obs,
		Logger:    logging.WithComponent("session"),
	})
	if err != nil {
		stopAll(adapters)
		kafkaObs.Close()
		return nil, err
	}

	if err := s.Start(ctx); err != nil {
		stopAll(adapters)
		kafkaObs.Close()
		return nil, err
	}
	a.Sessions.Add(s)

	go func() {
		<-s.Done()
		a.Sessions.Remove(id)
		kafkaObs.Close()
	}()
	return s, nil
}

func (a *Application) sessionConfig(id string, opts SessionOptions) session.Config {
	sc := a.Cfg.Session

	model := opts.Model
	if model == "" {
		model = a.Cfg.Suggest.Model
	}
	notes := opts.Context
	if notes == "" {
		notes = sc.Context
	}

	cfg := session.DefaultConfig()
	cfg.ID = id
	cfg.Transcript = transcript.Config{WindowSize: sc.WindowSize, HistorySize: sc.HistorySize}
	cfg.Turn = turn.Config{SoloMode: sc.SoloMode, MinSilence: sc.MinSilence}
	cfg.Dispatch = dispatch.Config{Debounce: sc.Debounce, ModelSelector: model, Context: notes}
	cfg.Limits = session.Limits{MaxAudioBytes: sc.MaxAudioBytes, MaxDuration: sc.MaxDuration}
	return cfg
}

// Start marks the application ready for sessions.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Conversation assist service starting")
	return nil
}

// Ready reports whether new sessions are accepted.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown stops accepting sessions, stops every active session and closes
// the publisher.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	sessions := a.Sessions.All()
	for _, s := range sessions {
		s.Stop()
	}
	if err := a.publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Closing Kafka publisher")
	}
	a.Logger.Info().Int("sessions", len(sessions)).Msg("Conversation assist service shut down")
}
