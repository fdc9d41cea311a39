package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/app"
	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/logging"
	"ai-conversation-assist-service/internal/observability/metrics"
	"ai-conversation-assist-service/internal/service/session"
	"ai-conversation-assist-service/internal/service/stt"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// frameWriter serializes writes to one websocket connection. It also
// observes the session so transcript lines and suggestions are pushed to the
// client as they happen.
type frameWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	broken bool
	logger zerolog.Logger
}

func (f *frameWriter) write(frame models.ServerFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return
	}
	_ = f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := f.conn.WriteJSON(frame); err != nil {
		f.broken = true
		f.logger.Debug().Err(err).Msg("Websocket write failed")
	}
}

func (f *frameWriter) setLogger(l zerolog.Logger) {
	f.mu.Lock()
	f.logger = l
	f.mu.Unlock()
}

func (f *frameWriter) OnTranscriptLine(line models.TranscriptLine) {
	f.write(models.ServerFrame{Type: models.FrameTranscript, Line: &line})
}

func (f *frameWriter) OnSuggestion(s models.Suggestion) {
	f.write(models.ServerFrame{Type: models.FrameSuggestion, Suggestion: &s})
}

func (f *frameWriter) OnError(kind models.ErrorKind, message string) {
	f.write(models.ServerFrame{Type: models.FrameError, Kind: kind, Message: message})
}

// streamHandler runs one session per websocket connection. Binary frames
// carry PCM audio for every audio source; text frames are ClientFrames
// routed to a message source. The session stops when the connection closes.
func streamHandler(application *app.Application) http.HandlerFunc {
	m := metrics.DefaultMetrics

	return func(w http.ResponseWriter, r *http.Request) {
		if !application.Ready() {
			writeError(w, http.StatusServiceUnavailable, app.ErrNotReady.Error())
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			application.Logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessageSize)

		m.RecordWebsocketConnect()
		defer m.RecordWebsocketDisconnect()

		writer := &frameWriter{conn: conn, logger: application.Logger}

		q := r.URL.Query()
		s, err := application.StartSession(r.Context(), app.SessionOptions{
			Model:    q.Get("model"),
			Context:  q.Get("context"),
			Observer: writer,
		})
		if err != nil {
			writer.OnError(models.ErrorBadRequest, err.Error())
			return
		}
		defer s.Stop()

		logger := logging.WithSession(s.ID())
		writer.setLogger(logger)
		writer.write(models.ServerFrame{Type: models.FrameSession, SessionID: s.ID()})

		go func() {
			<-s.Done()
			_ = conn.Close()
		}()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn().Err(err).Msg("Websocket closed unexpectedly")
				}
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				err = s.SendAudio(r.Context(), data)
			case websocket.TextMessage:
				err = receiveFrame(s, data)
			default:
				continue
			}

			switch {
			case err == nil:
			case errors.Is(err, session.ErrLimitExceeded), errors.Is(err, session.ErrSessionClosed):
				writer.OnError(models.ErrorBadRequest, err.Error())
				return
			case errors.Is(err, stt.ErrMalformed):
				writer.OnError(models.ErrorParse, err.Error())
			default:
				writer.OnError(models.ErrorBadRequest, err.Error())
			}
		}
	}
}

func receiveFrame(s *session.Session, data []byte) error {
	var frame models.ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return stt.ErrMalformed
	}
	if frame.Type != models.FrameMessage {
		return errors.New("unsupported frame type " + frame.Type)
	}
	return s.Receive(frame.Source, frame.Payload)
}
