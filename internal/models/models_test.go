package models

import (
	"encoding/json"
	"testing"
)

func TestBatchStatus(t *testing.T) {
	statuses := []BatchStatus{
		BatchStatusUploaded,
		BatchStatusAnalyzing,
		BatchStatusReady,
		BatchStatusGenerating,
		BatchStatusCompleted,
		BatchStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestClipStatusIsTerminal(t *testing.T) {
	cases := map[ClipStatus]bool{
		ClipStatusPending:    false,
		ClipStatusGenerating: false,
		ClipStatusCompleted:  true,
		ClipStatusFailed:     true,
	}

	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestSegmentJSONShape(t *testing.T) {
	// The analysis model is prompted for these exact field names
	data := []byte(`{"start_time_seconds":2.5,"end_time_seconds":7,"description":"a scene","product_visible":true}`)

	var seg Segment
	if err := json.Unmarshal(data, &seg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if seg.StartSeconds != 2.5 || seg.EndSeconds != 7 {
		t.Errorf("window fields not mapped: %+v", seg)
	}
	if !seg.ProductVisible {
		t.Error("product_visible not mapped")
	}
}

func TestClipOmitsEmptyOptionalFields(t *testing.T) {
	clip := Clip{Status: ClipStatusPending}

	data, err := json.Marshal(clip)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	for _, field := range []string{"segment_url", "result_url", "error_message"} {
		if jsonHasKey(t, data, field) {
			t.Errorf("nil %s should be omitted from JSON", field)
		}
	}
}

func jsonHasKey(t *testing.T, data []byte, key string) bool {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	_, ok := m[key]
	return ok
}
