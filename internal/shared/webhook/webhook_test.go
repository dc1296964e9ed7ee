package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyPostsJSON(t *testing.T) {
	var received Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Notify(context.Background(), Notification{
		Event:      "task.expired",
		Message:    "任务已过期",
		Recipients: []string{"u-1", "u-2"},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if received.Event != "task.expired" {
		t.Errorf("event = %q", received.Event)
	}
	if len(received.Recipients) != 2 {
		t.Errorf("recipients = %v", received.Recipients)
	}
	if received.SentAt.IsZero() {
		t.Error("sent_at should be filled in")
	}
}

func TestNotifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.Notify(context.Background(), Notification{Event: "x"}); err == nil {
		t.Error("5xx response should surface as error")
	}
}

func TestDisabledClient(t *testing.T) {
	client := NewClient("")
	if client.Enabled() {
		t.Error("empty url client must be disabled")
	}
	if err := client.Notify(context.Background(), Notification{Event: "x"}); err != nil {
		t.Errorf("disabled client should no-op, got %v", err)
	}
}
