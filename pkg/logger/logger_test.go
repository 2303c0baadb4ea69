package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "app.log")
	audit := filepath.Join(dir, "audit", "audit.log")

	if err := Init(Config{Level: "debug", OutputPaths: []string{out}, Audit: AuditConfig{Enabled: true, Path: audit}}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() {
		_ = Sync()
		_ = Init(Config{})
	})

	Named("supervisor").Info("状态切换", "state", "STREAMING")
	Audit().Info("回复已发布", "mention_id", "t1")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, content)
	}
	if entry["component"] != "supervisor" || entry["state"] != "STREAMING" {
		t.Fatalf("unexpected entry: %v", entry)
	}

	auditContent, err := os.ReadFile(audit)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if !strings.Contains(string(auditContent), `"mention_id":"t1"`) {
		t.Fatalf("audit log missing outcome: %s", auditContent)
	}
}

func TestAuditRequiresPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING").String() != "WARN" {
		t.Fatalf("unexpected level for WARNING")
	}
	if parseLevel("").String() != "INFO" {
		t.Fatalf("empty level should default to INFO")
	}
}
