package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := NewIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndex_SaveGet(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t)
	rec := sampleRecord(t, "conv_ix", "admin", "Mina")

	if err := ix.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entry, err := ix.Get("conv_ix")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.ChildName != "Mina" || entry.DurationMs != 3500 || entry.WordCount != 8 {
		t.Errorf("entry = %+v", entry)
	}

	// Saving again must update, not duplicate.
	rec.Metadata.ChildName = "Mina K."
	if err := ix.Save(rec); err != nil {
		t.Fatalf("Save (update): %v", err)
	}
	entry, err = ix.Get("conv_ix")
	if err != nil {
		t.Fatal(err)
	}
	if entry.ChildName != "Mina K." {
		t.Errorf("child name after upsert = %q", entry.ChildName)
	}
}

func TestIndex_ListPerUserNewestFirst(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t)

	older := sampleRecord(t, "conv_1", "admin", "Mina")
	older.CreatedAt = time.Now().Add(-2 * time.Hour)
	newer := sampleRecord(t, "conv_2", "admin", "Juno")
	other := sampleRecord(t, "conv_3", "someone_else", "Ha-eun")

	if err := ix.Save(older); err != nil {
		t.Fatal(err)
	}
	if err := ix.Save(newer); err != nil {
		t.Fatal(err)
	}
	if err := ix.Save(other); err != nil {
		t.Fatal(err)
	}

	entries, err := ix.List("admin", 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ConversationID != "conv_2" {
		t.Errorf("first entry = %s, want conv_2", entries[0].ConversationID)
	}
}

func TestIndex_Delete(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t)
	if err := ix.Save(sampleRecord(t, "conv_del", "admin", "Mina")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Delete("conv_del"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ix.Get("conv_del"); err == nil {
		t.Error("Get after Delete should fail")
	}
}
