package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	w, err := newRotatingWriter(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("newRotatingWriter: %v", err)
	}
	w.maxSize = 16
	defer w.Close()

	for _, line := range []string{"aaaaaaaaaa\n", "bbbbbbbbbb\n", "cccccccccc\n", "dddddddddd\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	current, _ := os.ReadFile(path)
	if string(current) != "dddddddddd\n" {
		t.Fatalf("unexpected active file: %q", current)
	}
	first, _ := os.ReadFile(path + ".1")
	if string(first) != "cccccccccc\n" {
		t.Fatalf("unexpected first backup: %q", first)
	}
	second, _ := os.ReadFile(path + ".2")
	if string(second) != "bbbbbbbbbb\n" {
		t.Fatalf("unexpected second backup: %q", second)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("expected backups beyond the limit to be dropped")
	}
}

func TestInitWritesAuditToSeparateFile(t *testing.T) {
	dir := t.TempDir()
	appLog := filepath.Join(dir, "app.log")
	auditLog := filepath.Join(dir, "audit", "audit.log")
	if err := Init(Config{Level: "debug", OutputPaths: []string{appLog}, Audit: AuditConfig{Enabled: true, Path: auditLog}}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		_ = Sync()
		Use(nil, nil)
	})

	Named("flow").Debug("stage advanced", "stage", "otp")
	Audit().Info("login succeeded", "user_id", "42")
	if err := Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	appData, _ := os.ReadFile(appLog)
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(appData), &entry); err != nil {
		t.Fatalf("app log is not json: %v (%q)", err, appData)
	}
	if entry["component"] != "flow" || entry["stage"] != "otp" {
		t.Fatalf("unexpected app entry: %v", entry)
	}
	auditData, _ := os.ReadFile(auditLog)
	if !strings.Contains(string(auditData), `"stream":"audit"`) || !strings.Contains(string(auditData), "login succeeded") {
		t.Fatalf("unexpected audit entry: %q", auditData)
	}
}

func TestUseInstallsCaptureLogger(t *testing.T) {
	var buf bytes.Buffer
	capture := slog.New(slog.NewTextHandler(&buf, nil))
	Use(capture, nil)
	t.Cleanup(func() { Use(nil, nil) })

	Audit().Info("logout")
	if !strings.Contains(buf.String(), "logout") {
		t.Fatalf("audit should fall back to the default logger, got %q", buf.String())
	}
}

func TestMasking(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "a***@example.com",
		"not-an-email":      "***",
		"@example.com":      "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
	if got := MaskAddress("0x52908400098527886E0F7030069857D2E4169EE7"); got != "0x5290...9EE7" {
		t.Fatalf("MaskAddress = %q", got)
	}
}
