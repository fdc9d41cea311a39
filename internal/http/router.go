package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ai-conversation-assist-service/internal/app"
	"ai-conversation-assist-service/internal/models"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"sessions": application.Sessions.IDs()})
		})
		r.Get("/stream", streamHandler(application))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/transcript", func(w http.ResponseWriter, r *http.Request) {
				s, ok := application.Sessions.Get(chi.URLParam(r, "id"))
				if !ok {
					writeError(w, http.StatusNotFound, "session not found")
					return
				}
				writeJSON(w, http.StatusOK, transcriptResponse{SessionID: s.ID(), Lines: s.Transcript()})
			})
			r.Get("/suggestions", func(w http.ResponseWriter, r *http.Request) {
				s, ok := application.Sessions.Get(chi.URLParam(r, "id"))
				if !ok {
					writeError(w, http.StatusNotFound, "session not found")
					return
				}
				writeJSON(w, http.StatusOK, suggestionsResponse{
					SessionID:   s.ID(),
					State:       s.DispatcherState().String(),
					Suggestions: s.Suggestions(),
				})
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				s, ok := application.Sessions.Get(chi.URLParam(r, "id"))
				if !ok {
					writeError(w, http.StatusNotFound, "session not found")
					return
				}
				s.Stop()
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})

	return r
}

type transcriptResponse struct {
	SessionID string                  `json:"sessionId"`
	Lines     []models.TranscriptLine `json:"lines"`
}

type suggestionsResponse struct {
	SessionID   string              `json:"sessionId"`
	State       string              `json:"state"`
	Suggestions []models.Suggestion `json:"suggestions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
