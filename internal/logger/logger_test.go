package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	log := New("release", Options{Dir: dir, Filename: "contentvs.log"})
	log.Sugar().Infow("content_published", "content_id", 4)
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "contentvs.log"))
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"message":"content_published"`) || !strings.Contains(line, `"content_id":4`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

func TestResolveLogFilePathCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	got, err := resolveLogFilePath(Options{Dir: dir})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("unexpected file name %s", got)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected dir to exist: %v", err)
	}
}

func TestZFallsBackBeforeInit(t *testing.T) {
	old := L
	L = nil
	t.Cleanup(func() { L = old })
	if Z() == nil {
		t.Fatalf("expected a fallback logger")
	}
}
