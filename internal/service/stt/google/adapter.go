// Package google provides a diarizing speech source backed by Google Cloud
// Speech-to-Text streaming recognition.
package google

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
	"ai-conversation-assist-service/internal/service/stt"
)

const providerName = "google"

// Config holds Google STT configuration.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	MinSpeakers    int32
	MaxSpeakers    int32
}

// DefaultConfig returns a two-speaker 16 kHz LINEAR16 configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
		MinSpeakers:    2,
		MaxSpeakers:    2,
	}
}

// Adapter implements stt.Adapter and stt.AudioReceiver.
type Adapter struct {
	id     string
	cfg    Config
	client *speech.Client
	logger zerolog.Logger

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New creates a Google source. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, id string, cfg Config, logger zerolog.Logger) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		id:     id,
		cfg:    cfg,
		client: c,
		logger: logger,
	}, nil
}

// Source reports a diarizing source.
func (a *Adapter) Source() models.Source {
	return models.Source{ID: a.id, Kind: models.SourceDiarizing}
}

// Start opens the stream, sends the recognition config and starts reading
// results.
func (a *Adapter) Start(ctx context.Context, sink stt.Sink) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		return stt.ErrAdapterStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return err
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: a.streamingConfig(),
		},
	}); err != nil {
		cancel()
		return err
	}

	a.stream = stream
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.listen(stream, sink)
	return nil
}

func (a *Adapter) streamingConfig() *speechpb.StreamingRecognitionConfig {
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:            a.cfg.SampleRateHz,
			LanguageCode:               a.cfg.LanguageCode,
			EnableAutomaticPunctuation: true,
			DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          a.cfg.MinSpeakers,
				MaxSpeakerCount:          a.cfg.MaxSpeakers,
			},
		},
		InterimResults: a.cfg.InterimResults,
	}
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream == nil {
		return stt.ErrNotStarted
	}
	if a.closed {
		return nil
	}
	return a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream, waits for the reader and closes the client.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	stream, done, cancel := a.stream, a.done, a.cancel
	a.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.CloseSend()
		cancel()
		<-done
	}
	if cerr := a.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// listen forwards results until the stream ends.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, sink stt.Sink) {
	defer close(a.done)

	for {
		resp, err := stream.Recv()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			if !errors.Is(err, io.EOF) && !closed {
				metrics.DefaultMetrics.RecordSTTError(providerName, "stream")
				a.logger.Error().Err(err).Msg("Google STT stream ended")
			}
			return
		}

		for _, ev := range eventsFromResponse(a.id, resp) {
			sink.Emit(ev)
		}
	}
}

// eventsFromResponse converts one streaming response. The speaker tag of the
// last word is used as the raw speaker id; results without words carry none.
func eventsFromResponse(sourceID string, resp *speechpb.StreamingRecognizeResponse) []models.RecognitionEvent {
	var out []models.RecognitionEvent
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		if alt.GetTranscript() == "" {
			continue
		}

		raw := ""
		if words := alt.GetWords(); len(words) > 0 {
			if tag := words[len(words)-1].GetSpeakerTag(); tag > 0 {
				raw = strconv.Itoa(int(tag))
			}
		}
		out = append(out, stt.NewEvent(sourceID, raw, alt.GetTranscript(), r.GetIsFinal()))
	}
	return out
}

// parseAudioEncoding converts a string encoding name to the speechpb enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
