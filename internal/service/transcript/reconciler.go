// Package transcript merges recognition events from one or more speech
// sources into an ordered transcript with a bounded rolling window.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
	"ai-conversation-assist-service/internal/schema"
	"ai-conversation-assist-service/internal/service/speaker"
)

// Default sizes.
const (
	DefaultWindow  = 200
	DefaultHistory = 10
)

// Drop reasons reported to metrics.
const (
	dropInvalid    = "invalid"
	dropUnknown    = "unknown_source"
	dropUnattrib   = "unattributed"
	dropNonAuthor  = "non_authoritative"
	dropOutOfOrder = "out_of_order"
	dropEmpty      = "empty"
)

var selfPriority = []models.SourceKind{models.SourceLocal, models.SourceRelay, models.SourceDiarizing}

// Config sizes the reconciler.
type Config struct {
	WindowSize  int // finalized lines kept
	HistorySize int // lines attached to a finalized line
}

// DefaultConfig returns the default window and history sizes.
func DefaultConfig() Config {
	return Config{WindowSize: DefaultWindow, HistorySize: DefaultHistory}
}

// Update describes what one event changed.
type Update struct {
	// Line is the line that changed.
	Line models.TranscriptLine
	// Finalized is true when Line just became immutable.
	Finalized bool
	// History holds the finalized lines that preceded Line, oldest first.
	// Set only when Finalized is true.
	History []models.TranscriptLine
	// Abandoned is an interim line of the same speaker that this event superseded.
	Abandoned *models.TranscriptLine
}

type activeLine struct {
	line      models.TranscriptLine
	lifecycle Lifecycle
	lastEvent time.Time
	// otherFinals is the other speaker's finalized-line count when this line
	// started. A change means the utterance was interrupted.
	otherFinals uint64
}

// Reconciler owns the transcript of one session. Ingest is called from the
// session event loop only; snapshot readers may call Lines and Active from
// any goroutine.
type Reconciler struct {
	mu          sync.RWMutex
	mapper      *speaker.Mapper
	validator   *schema.Validator
	ids         *IDGenerator
	window      *Ring[models.TranscriptLine]
	active      map[models.Speaker]*activeLine
	finals      map[models.Speaker]uint64
	historySize int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewReconciler returns a reconciler attributing speakers with mapper.
func NewReconciler(cfg Config, mapper *speaker.Mapper, ids *IDGenerator, logger zerolog.Logger) *Reconciler {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindow
	}
	if cfg.HistorySize < 0 {
		cfg.HistorySize = 0
	}
	return &Reconciler{
		mapper:      mapper,
		validator:   schema.New(),
		ids:         ids,
		window:      NewRing[models.TranscriptLine](cfg.WindowSize),
		active:      make(map[models.Speaker]*activeLine),
		finals:      make(map[models.Speaker]uint64),
		historySize: cfg.HistorySize,
		logger:      logger.With().Str("component", "reconciler").Logger(),
		metrics:     metrics.DefaultMetrics,
	}
}

// Ingest applies one event. It returns false when the event changed nothing;
// malformed events are dropped without error.
func (r *Reconciler) Ingest(ev models.RecognitionEvent) (Update, bool) {
	if err := r.validator.Validate(ev); err != nil {
		return r.drop(dropInvalid, ev, err)
	}

	role, attributed, err := r.mapper.Map(ev.SourceID, ev.RawSpeakerID)
	if err != nil {
		return r.drop(dropUnknown, ev, err)
	}
	if !attributed {
		return r.drop(dropUnattrib, ev, nil)
	}

	kind, _ := r.mapper.Kind(ev.SourceID)
	if !r.authoritative(role, kind) {
		return r.drop(dropNonAuthor, ev, nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	empty := strings.TrimSpace(ev.Text) == ""
	cur := r.active[role]
	same := cur != nil &&
		cur.line.SourceID == ev.SourceID &&
		cur.otherFinals == r.finals[role.Other()]

	if same {
		if ev.Timestamp.Before(cur.lastEvent) {
			return r.drop(dropOutOfOrder, ev, nil)
		}
		if empty {
			if !ev.IsFinal {
				return r.drop(dropEmpty, ev, nil)
			}
			// A final without text ends the utterance with nothing to keep.
			return Update{Line: r.abandon(role)}, true
		}
		if err := cur.lifecycle.Update(); err != nil {
			return r.drop(dropInvalid, ev, err)
		}
		cur.line.Text = ev.Text
		cur.line.UpdatedAt = ev.Timestamp
		cur.lastEvent = ev.Timestamp
		r.metrics.RecordEventIngested(ev.SourceID, ev.IsFinal)
		if ev.IsFinal {
			return r.finalize(role, cur), true
		}
		return Update{Line: cur.line}, true
	}

	if empty {
		return r.drop(dropEmpty, ev, nil)
	}

	var abandoned *models.TranscriptLine
	if cur != nil {
		line := r.abandon(role)
		abandoned = &line
	}

	next := &activeLine{
		line: models.TranscriptLine{
			ID:        r.ids.Next(),
			Speaker:   role,
			Text:      ev.Text,
			SourceID:  ev.SourceID,
			CreatedAt: ev.Timestamp,
			UpdatedAt: ev.Timestamp,
		},
		lastEvent:   ev.Timestamp,
		otherFinals: r.finals[role.Other()],
	}
	r.metrics.RecordEventIngested(ev.SourceID, ev.IsFinal)

	var upd Update
	if ev.IsFinal {
		upd = r.finalize(role, next)
	} else {
		r.active[role] = next
		upd = Update{Line: next.line}
	}
	upd.Abandoned = abandoned
	return upd, true
}

// authoritative applies source priority. Self lines belong to the
// highest-ranked registered self source: local, then relay, then diarizing.
// Diarizing sockets own counterparty lines.
func (r *Reconciler) authoritative(role models.Speaker, kind models.SourceKind) bool {
	switch role {
	case models.SpeakerSelf:
		for _, k := range selfPriority {
			if r.mapper.HasKind(k) {
				return kind == k
			}
		}
		return false
	case models.SpeakerCounterparty:
		return kind == models.SourceDiarizing || !r.mapper.HasKind(models.SourceDiarizing)
	default:
		return false
	}
}

// finalize freezes a line and pushes it to the window. Caller holds mu.
func (r *Reconciler) finalize(role models.Speaker, a *activeLine) Update {
	if err := a.lifecycle.Finalize(); err != nil {
		r.logger.Warn().
			Err(err).
			Str("lineId", a.line.ID).
			Str("state", a.lifecycle.State().String()).
			Msg("Finalizing line in unexpected state")
	}
	a.line.IsFinal = true

	history := r.window.Last(r.historySize)
	r.window.Push(a.line)
	r.finals[role]++
	delete(r.active, role)
	r.metrics.RecordLineFinalized(string(role))

	r.logger.Debug().
		Str("lineId", a.line.ID).
		Str("speaker", string(role)).
		Int("historyLines", len(history)).
		Msg("Line finalized")

	return Update{Line: a.line, Finalized: true, History: history}
}

// abandon drops the active line of role. Caller holds mu.
func (r *Reconciler) abandon(role models.Speaker) models.TranscriptLine {
	a := r.active[role]
	a.lifecycle.Abandon()
	a.line.Abandoned = true
	delete(r.active, role)
	r.metrics.RecordLineAbandoned()

	r.logger.Debug().
		Str("lineId", a.line.ID).
		Str("speaker", string(role)).
		Msg("Interim line abandoned")
	return a.line
}

func (r *Reconciler) drop(reason string, ev models.RecognitionEvent, err error) (Update, bool) {
	r.metrics.RecordEventDropped(reason)
	r.logger.Debug().
		Err(err).
		Str("reason", reason).
		Str("sourceId", ev.SourceID).
		Bool("isFinal", ev.IsFinal).
		Msg("Recognition event dropped")
	return Update{}, false
}

// Lines returns the finalized lines in the window, oldest first.
func (r *Reconciler) Lines() []models.TranscriptLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.window.Items()
}

// Active returns the interim lines still being updated, oldest first.
func (r *Reconciler) Active() []models.TranscriptLine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.TranscriptLine, 0, len(r.active))
	for _, a := range r.active {
		out = append(out, a.line)
	}
	if len(out) == 2 && out[1].CreatedAt.Before(out[0].CreatedAt) {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

// Reset discards the transcript. Used when a session is torn down.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.window = NewRing[models.TranscriptLine](r.window.Cap())
	r.active = make(map[models.Speaker]*activeLine)
	r.finals = make(map[models.Speaker]uint64)
}
