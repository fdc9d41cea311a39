// Package turn decides when a finalized transcript line completes a turn
// that should be answered with a suggestion.
package turn

import (
	"time"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
)

// Config tunes turn detection.
type Config struct {
	// SoloMode also emits turns for the operator's own lines.
	SoloMode bool
	// MinSilence holds a turn until its speaker has been quiet this long.
	// Consecutive final lines inside the hold are merged. Zero emits on
	// every final line.
	MinSilence time.Duration
}

// Detector is not safe for concurrent use; the session event loop owns it.
type Detector struct {
	cfg          Config
	held         *models.Turn
	lastActivity time.Time
	metrics      *metrics.Metrics
}

// NewDetector returns a detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, metrics: metrics.DefaultMetrics}
}

// Eligible reports whether a line of this speaker and text can form a turn.
func (d *Detector) Eligible(speaker models.Speaker, text string) bool {
	if models.NormalizeText(text) == "" {
		return false
	}
	return speaker == models.SpeakerCounterparty || (d.cfg.SoloMode && speaker == models.SpeakerSelf)
}

// OnFinalLine is called for every finalized line. now is the time the line
// was finalized. It returns the turn that is ready for dispatch, if any.
func (d *Detector) OnFinalLine(line models.TranscriptLine, history []models.TranscriptLine, now time.Time) (models.Turn, bool) {
	if !line.IsFinal || !d.Eligible(line.Speaker, line.Text) {
		return models.Turn{}, false
	}

	next := models.Turn{Line: line, History: history}
	if d.cfg.MinSilence <= 0 {
		d.metrics.RecordTurn()
		return next, true
	}

	d.lastActivity = now
	if d.held == nil {
		d.held = &next
		return models.Turn{}, false
	}

	if d.held.Line.Speaker != line.Speaker {
		ready := *d.held
		d.held = &next
		d.metrics.RecordTurn()
		return ready, true
	}

	d.held.Line.ID = line.ID
	d.held.Line.Text = models.NormalizeText(d.held.Line.Text + " " + line.Text)
	d.held.Line.UpdatedAt = line.UpdatedAt
	d.metrics.RecordTurnMerged()
	return models.Turn{}, false
}

// OnActivity records speech from speaker at now. Activity from the speaker
// of a held turn extends the hold.
func (d *Detector) OnActivity(speaker models.Speaker, now time.Time) {
	if d.held != nil && d.held.Line.Speaker == speaker {
		d.lastActivity = now
	}
}

// Deadline returns when the held turn becomes ready.
func (d *Detector) Deadline() (time.Time, bool) {
	if d.held == nil {
		return time.Time{}, false
	}
	return d.lastActivity.Add(d.cfg.MinSilence), true
}

// Flush releases the held turn once the silence period has elapsed at now.
func (d *Detector) Flush(now time.Time) (models.Turn, bool) {
	deadline, ok := d.Deadline()
	if !ok || now.Before(deadline) {
		return models.Turn{}, false
	}
	ready := *d.held
	d.held = nil
	d.metrics.RecordTurn()
	return ready, true
}

// Discard drops any held turn.
func (d *Detector) Discard() {
	d.held = nil
}
