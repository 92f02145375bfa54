package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	xerrors "WalletChat/internal/errors"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Channel() Channel { return "test" }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func TestReportOnlyAlertingErrors(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewFanout(rec)

	Report(context.Background(), d, "transfer", "42", xerrors.New(xerrors.CodeUpstreamRejected, "insufficient balance"))
	if len(rec.events) != 0 {
		t.Fatalf("rejections should not alert")
	}

	Report(context.Background(), d, "transfer", "42",
		xerrors.Wrap(xerrors.CodeUpstreamUnavailable, errors.New("dial tcp"), "wallet api down", xerrors.WithMetadata("path", "api/v1/transfer/tokens/execute")))
	if len(rec.events) != 1 {
		t.Fatalf("expected one alert, got %d", len(rec.events))
	}
	event := rec.events[0]
	if event.Code != xerrors.CodeUpstreamUnavailable || event.UserID != "42" || event.Metadata["path"] == "" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	err := n.Notify(context.Background(), Event{
		Code:       xerrors.CodeTimeout,
		Severity:   xerrors.SeverityWarning,
		Operation:  "classify",
		Message:    "llm timed out",
		Metadata:   map[string]string{"b": "2", "a": "1"},
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	text := body["text"]
	if !strings.HasPrefix(text, "[warning] TIMEOUT classify") || !strings.Contains(text, "- a: 1\n- b: 2") {
		t.Fatalf("unexpected webhook text: %q", text)
	}
}

func TestWebhookNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL, time.Second).Notify(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error on 500")
	}
	if err := (&WebhookNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unconfigured notifier should be a no-op: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	_ = n.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure, Operation: "history"})
	if !strings.Contains(buf.String(), `"code":"STORAGE_FAILURE"`) {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}
