package ai

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/kindcoach/kindcoach/internal/types"
)

func newTestStore(t *testing.T) *PromptStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewPromptStore(filepath.Join(dir, "prompts.json"), filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("NewPromptStore: %v", err)
	}
	return s
}

func TestPromptStore_SeedsDefaults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	for _, kind := range types.AnalysisKinds {
		tmpl, ok := s.Template(kind)
		if !ok {
			t.Errorf("no default template for %q", kind)
			continue
		}
		if !strings.Contains(tmpl, "{transcript}") {
			t.Errorf("default %q template lacks {transcript}", kind)
		}
	}
}

func TestPromptStore_UpdateAndBackup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	newTemplate := "Just read this:\n{transcript}"
	if err := s.Update("quick_feedback", newTemplate, "tester"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Template("quick_feedback")
	if got != newTemplate {
		t.Errorf("template after update = %q, want %q", got, newTemplate)
	}

	info, _ := s.Info("quick_feedback")
	if info.ModifiedBy != "tester" {
		t.Errorf("ModifiedBy = %q, want tester", info.ModifiedBy)
	}

	backups, err := s.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("backups = %d, want 1", len(backups))
	}
}

func TestPromptStore_UpdateRejectsMissingVariable(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	err := s.Update("coaching_tips", "no variables here", "tester")
	if err == nil {
		t.Fatal("Update should reject a template missing required variables")
	}
	if !strings.Contains(err.Error(), "{situation}") {
		t.Errorf("error %q should name the missing variable", err)
	}
}

func TestPromptStore_Restore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	original, _ := s.Template("quick_feedback")
	if err := s.Update("quick_feedback", "changed {transcript}", "tester"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	backups, err := s.Backups()
	if err != nil || len(backups) == 0 {
		t.Fatalf("Backups: %v (%d entries)", err, len(backups))
	}

	if err := s.Restore(backups[len(backups)-1].Filename); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, _ := s.Template("quick_feedback")
	if got != original {
		t.Errorf("template after restore = %q, want original", got)
	}
}

func TestPromptStore_ReloadsExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.json")
	backups := filepath.Join(dir, "backups")

	first, err := NewPromptStore(path, backups)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Update("quick_feedback", "persisted {transcript}", "tester"); err != nil {
		t.Fatal(err)
	}

	second, err := NewPromptStore(path, backups)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := second.Template("quick_feedback")
	if got != "persisted {transcript}" {
		t.Errorf("template from reopened store = %q, want persisted version", got)
	}
}
