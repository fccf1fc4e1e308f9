package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweep_RemovesOnlyOldFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	oldFile := filepath.Join(dir, "stale.wav")
	if err := os.WriteFile(oldFile, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, past, past); err != nil {
		t.Fatal(err)
	}

	freshFile := filepath.Join(dir, "fresh.wav")
	if err := os.WriteFile(freshFile, []byte("fresh"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(dir, time.Minute, time.Hour)
	s.Sweep()

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("stale file should be removed")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Errorf("fresh file should survive: %v", err)
	}
}

func TestSweep_KeepsDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(sub, past, past); err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(dir, time.Minute, time.Hour)
	s.Sweep()

	if _, err := os.Stat(sub); err != nil {
		t.Errorf("directories should never be swept: %v", err)
	}
}
