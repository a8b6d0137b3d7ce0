package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ezcommon/apply-portal/internal/model"
)

func streamMessage(t *testing.T, id string, payload ActivityEventPayload) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return redis.XMessage{ID: id, Values: map[string]interface{}{"payload": string(data)}}
}

func TestDecodeMessage(t *testing.T) {
	occurred := time.Now().Add(-2 * time.Second).UnixMilli()
	msg := streamMessage(t, "1700000000000-0", ActivityEventPayload{
		UserID:     "user-1",
		OrgID:      "org_abc",
		Kind:       "parse",
		Section:    "education",
		Subject:    "doc_user-1_transcript_20260115_120000_000001",
		ChunkCount: 12,
		OccurredAt: occurred,
	})

	event, err := decodeMessage(msg)
	if err != nil {
		t.Fatalf("decodeMessage failed: %v", err)
	}

	// The stream ID is the idempotency key for the insert.
	if event.EventID != "1700000000000-0" {
		t.Errorf("EventID = %q, want the stream ID", event.EventID)
	}
	if event.ID == "" || event.ID == event.EventID {
		t.Errorf("ID = %q, want a fresh ULID distinct from the stream ID", event.ID)
	}
	if event.UserID != "user-1" || event.OrgID != "org_abc" {
		t.Errorf("identity = %q/%q, want user-1/org_abc", event.UserID, event.OrgID)
	}
	if event.Kind != model.ActivityParse {
		t.Errorf("Kind = %q, want parse", event.Kind)
	}
	if !event.OccurredAt.Equal(time.UnixMilli(occurred)) {
		t.Errorf("OccurredAt = %v, want %v", event.OccurredAt, time.UnixMilli(occurred))
	}
	if event.Detail["chunk_count"] != 12 {
		t.Errorf("Detail = %v, want chunk_count 12", event.Detail)
	}
}

func TestDecodeMessage_NoChunkCountDetail(t *testing.T) {
	msg := streamMessage(t, "1-0", ActivityEventPayload{
		UserID:     "user-1",
		Kind:       "upload",
		OccurredAt: time.Now().UnixMilli(),
	})

	event, err := decodeMessage(msg)
	if err != nil {
		t.Fatalf("decodeMessage failed: %v", err)
	}
	if event.Detail != nil {
		t.Errorf("Detail = %v, want nil for zero chunk count", event.Detail)
	}
}

func TestDecodeBatch_SplitsPoison(t *testing.T) {
	good := streamMessage(t, "10-0", ActivityEventPayload{
		UserID:     "user-1",
		Kind:       "form_fill",
		OccurredAt: time.Now().UnixMilli(),
	})
	missingPayload := redis.XMessage{ID: "11-0", Values: map[string]interface{}{"other": "x"}}
	badJSON := redis.XMessage{ID: "12-0", Values: map[string]interface{}{"payload": "{not json"}}
	unknownKind := streamMessage(t, "13-0", ActivityEventPayload{
		UserID:     "user-1",
		Kind:       "login",
		OccurredAt: time.Now().UnixMilli(),
	})

	events, poison := decodeBatch([]redis.XMessage{good, missingPayload, badJSON, unknownKind})

	if len(events) != 1 || events[0].EventID != "10-0" {
		t.Fatalf("events = %+v, want only the well-formed message", events)
	}
	if len(poison) != 3 {
		t.Fatalf("poison = %d messages, want 3", len(poison))
	}

	wantReasons := map[string]string{
		"11-0": "invalid_format",
		"12-0": "unmarshal_error",
		"13-0": "validation_error",
	}
	for _, p := range poison {
		if want := wantReasons[p.msg.ID]; p.reason != want {
			t.Errorf("message %s: reason = %q, want %q", p.msg.ID, p.reason, want)
		}
		if p.detail == "" {
			t.Errorf("message %s: detail missing", p.msg.ID)
		}
	}
}

func TestDecodeBatch_AllPoison(t *testing.T) {
	events, poison := decodeBatch([]redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{}},
		{ID: "2-0", Values: map[string]interface{}{"payload": 42}},
	})
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
	if len(poison) != 2 {
		t.Errorf("poison = %d messages, want 2", len(poison))
	}
}

func TestIsConsumerGroupExistsError(t *testing.T) {
	if isConsumerGroupExistsError(nil) {
		t.Error("nil error must not match")
	}
	if !isConsumerGroupExistsError(redisError("BUSYGROUP Consumer Group name already exists")) {
		t.Error("BUSYGROUP reply must match")
	}
	if isConsumerGroupExistsError(redisError("ERR no such key")) {
		t.Error("unrelated error must not match")
	}
}

type redisError string

func (e redisError) Error() string { return string(e) }
