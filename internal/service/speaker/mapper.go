// Package speaker maps provider-specific speaker ids onto the two canonical
// conversation roles.
package speaker

import (
	"errors"
	"fmt"

	"ai-conversation-assist-service/internal/models"
)

// ErrUnknownSource is returned for events from a source that was never registered.
var ErrUnknownSource = errors.New("unknown source")

// Mapper attributes raw speaker ids to roles for one session.
//
// Local recognizers always map to self. Relay channels map inbound audio to
// self and drop model output. Diarizing sources map the first distinct raw id
// they report to self and every other id to counterparty; the assignment is
// cached for the lifetime of the session.
//
// Mapper is not safe for concurrent use; the session event loop owns it.
type Mapper struct {
	kinds    map[string]models.SourceKind
	assigned map[string]map[string]models.Speaker
}

// NewMapper returns an empty mapper.
func NewMapper() *Mapper {
	return &Mapper{
		kinds:    make(map[string]models.SourceKind),
		assigned: make(map[string]map[string]models.Speaker),
	}
}

// Register declares a source and its kind.
func (m *Mapper) Register(src models.Source) {
	m.kinds[src.ID] = src.Kind
}

// Kind returns the registered kind of a source.
func (m *Mapper) Kind(sourceID string) (models.SourceKind, bool) {
	k, ok := m.kinds[sourceID]
	return k, ok
}

// HasKind reports whether any registered source is of the given kind.
func (m *Mapper) HasKind(kind models.SourceKind) bool {
	for _, k := range m.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Map returns the role for a raw speaker id. The boolean is false when the
// event is not part of transcript attribution (relay model output).
func (m *Mapper) Map(sourceID, rawSpeakerID string) (models.Speaker, bool, error) {
	kind, ok := m.kinds[sourceID]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	switch kind {
	case models.SourceLocal:
		return models.SpeakerSelf, true, nil
	case models.SourceRelay:
		if rawSpeakerID == models.RawSpeakerAssistant {
			return "", false, nil
		}
		return models.SpeakerSelf, true, nil
	case models.SourceDiarizing:
		return m.diarized(sourceID, rawSpeakerID), true, nil
	default:
		return "", false, fmt.Errorf("%w: %s has kind %q", ErrUnknownSource, sourceID, kind)
	}
}

func (m *Mapper) diarized(sourceID, raw string) models.Speaker {
	if raw == "" {
		return models.SpeakerSelf
	}

	seen := m.assigned[sourceID]
	if seen == nil {
		seen = make(map[string]models.Speaker)
		m.assigned[sourceID] = seen
	}
	if role, ok := seen[raw]; ok {
		return role
	}

	role := models.SpeakerCounterparty
	if len(seen) == 0 {
		role = models.SpeakerSelf
	}
	seen[raw] = role
	return role
}
