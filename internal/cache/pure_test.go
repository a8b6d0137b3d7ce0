package cache

import (
	"encoding/json"
	"testing"
)

func TestProgressUpdate_MarshalShape(t *testing.T) {
	t.Parallel()

	update := ProgressUpdate{
		JobID:    "job-1",
		Progress: 40,
		Message:  "Extracting text from document...",
		Stage:    "extract",
	}

	data, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if decoded["progress"] != float64(40) {
		t.Errorf("expected progress 40, got %v", decoded["progress"])
	}

	// Omitted fields must not appear in SSE frames
	for _, absent := range []string{"done", "error", "result"} {
		if _, ok := decoded[absent]; ok {
			t.Errorf("expected %q to be omitted when zero", absent)
		}
	}
}

func TestProgressUpdate_TerminalFrame(t *testing.T) {
	t.Parallel()

	update := ProgressUpdate{
		JobID:    "job-1",
		Progress: 100,
		Message:  "Parse complete",
		Done:     true,
		Result:   json.RawMessage(`{"chunk_count":12}`),
	}

	data, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var decoded ProgressUpdate
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !decoded.Done {
		t.Error("expected done frame to round-trip")
	}
	if string(decoded.Result) != `{"chunk_count":12}` {
		t.Errorf("unexpected result payload: %s", decoded.Result)
	}
}
