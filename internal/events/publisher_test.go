package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ezcommon/apply-portal/internal/model"
)

func TestNewPayload(t *testing.T) {
	t.Parallel()

	before := time.Now().UnixMilli()
	payload := NewPayload("user-1", "org_abc", model.ActivityParse, "education", "doc_user-1_transcript", 7)
	after := time.Now().UnixMilli()

	if payload.UserID != "user-1" || payload.Kind != "parse" {
		t.Errorf("payload = %+v", payload)
	}
	if payload.ChunkCount != 7 {
		t.Errorf("chunk_count = %d, want 7", payload.ChunkCount)
	}
	if payload.OccurredAt < before || payload.OccurredAt > after {
		t.Errorf("occurred_at = %d, want between %d and %d", payload.OccurredAt, before, after)
	}
}

func TestNewPayload_TruncatesSubject(t *testing.T) {
	t.Parallel()

	payload := NewPayload("u", "", model.ActivityUpload, "profile", strings.Repeat("k", 600), 0)
	if len(payload.Subject) != 500 {
		t.Errorf("subject length = %d, want 500", len(payload.Subject))
	}
}

func TestTruncateSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{"short subject", "user-uploads/u1/profile/a.pdf", 29},
		{"exact 500", strings.Repeat("x", 500), 500},
		{"over 500", strings.Repeat("x", 600), 500},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := TruncateSubject(tt.input)
			if len(result) != tt.wantLen {
				t.Errorf("TruncateSubject length = %d, want %d", len(result), tt.wantLen)
			}
		})
	}
}

func TestPayloadWireFormat(t *testing.T) {
	t.Parallel()

	payload := ActivityEventPayload{
		UserID:     "user-1",
		Kind:       "upload",
		Section:    "testing",
		Subject:    "user-uploads/user-1/testing/scores.pdf",
		OccurredAt: 1700000000000,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Compact keys keep stream entries small.
	for _, key := range []string{`"uid"`, `"k"`, `"s"`, `"sub"`, `"t"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("wire format missing key %s: %s", key, data)
		}
	}
	// Zero-value optional fields stay off the wire.
	if strings.Contains(string(data), `"org"`) || strings.Contains(string(data), `"cc"`) {
		t.Errorf("wire format carries empty optional fields: %s", data)
	}

	var decoded ActivityEventPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != payload {
		t.Errorf("round trip = %+v, want %+v", decoded, payload)
	}
}

func TestNewConsumerID_Unique(t *testing.T) {
	t.Parallel()

	id1 := NewConsumerID()
	id2 := NewConsumerID()

	if id1 == "" || id1 == id2 {
		t.Errorf("consumer IDs should be unique and non-empty: %q %q", id1, id2)
	}
}
