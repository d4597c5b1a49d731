package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestListResponseJSON(t *testing.T) {
	lr := ListResponse{
		Resource: []string{"admin", "user"},
		Meta:     &ResponseMeta{Count: 2, TookMs: 1.5},
	}

	b, err := json.Marshal(lr)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	resource, ok := m["resource"].([]interface{})
	if !ok {
		t.Fatal("resource should be an array")
	}
	if len(resource) != 2 {
		t.Errorf("resource length = %d, want 2", len(resource))
	}

	meta, ok := m["meta"].(map[string]interface{})
	if !ok {
		t.Fatal("meta should be an object")
	}
	if meta["count"] != float64(2) {
		t.Errorf("meta.count = %v, want 2", meta["count"])
	}

	// Meta is omitted when nil
	b2, err := json.Marshal(ListResponse{Resource: []string{}})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(b2) != `{"resource":[]}` {
		t.Errorf("got %s", b2)
	}
}

func TestErrorResponseJSON(t *testing.T) {
	er := ErrorResponse{
		Error: ErrorDetail{
			Code:    502,
			Message: "failed to export metadata: 401 unauthorized",
			Context: map[string]any{
				"upstream_status": 401,
			},
		},
	}

	b, err := json.Marshal(er)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	errObj, ok := m["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected 'error' key to be an object")
	}
	if errObj["code"] != float64(502) {
		t.Errorf("error.code = %v, want 502", errObj["code"])
	}
	ctx, ok := errObj["context"].(map[string]interface{})
	if !ok {
		t.Fatal("expected 'context' key to be an object")
	}
	if ctx["upstream_status"] != float64(401) {
		t.Errorf("error.context.upstream_status = %v", ctx["upstream_status"])
	}

	// Context should be omitted when nil
	b2, _ := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: 500, Message: "Internal error"}})
	var m2 map[string]interface{}
	if err := json.Unmarshal(b2, &m2); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if _, ok := m2["error"].(map[string]interface{})["context"]; ok {
		t.Error("context should be omitted when nil")
	}
}

func TestActivityJSON(t *testing.T) {
	a := Activity{
		ID:        7,
		Action:    ActionLoad,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"id":7,"action":"load","created_at":"2026-01-02T03:04:05Z"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}
