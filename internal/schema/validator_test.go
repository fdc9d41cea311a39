package schema

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ai-conversation-assist-service/internal/models"
)

func TestValidate_RecognitionEvent(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		event   models.RecognitionEvent
		wantErr string
	}{
		{
			name:  "valid",
			event: models.RecognitionEvent{SourceID: "deepgram", Text: "hello", Timestamp: time.Now()},
		},
		{
			name:  "empty text is allowed",
			event: models.RecognitionEvent{SourceID: "deepgram", Timestamp: time.Now()},
		},
		{
			name:    "missing source",
			event:   models.RecognitionEvent{Text: "hello", Timestamp: time.Now()},
			wantErr: "sourceId",
		},
		{
			name:    "missing timestamp",
			event:   models.RecognitionEvent{SourceID: "deepgram", Text: "hello"},
			wantErr: "timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.event)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error to mention %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	type limits struct {
		Attempts int    `json:"attempts" validate:"gt=0"`
		Mode     string `json:"mode" validate:"oneof=json console"`
	}

	err := New().Validate(limits{Attempts: 0, Mode: "xml"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(verr.Fields))
	}
	if verr.Fields[0].Message != "must be greater than 0" {
		t.Errorf("unexpected message: %s", verr.Fields[0].Message)
	}
	if verr.Fields[1].Message != "must be one of: json console" {
		t.Errorf("unexpected message: %s", verr.Fields[1].Message)
	}
}
