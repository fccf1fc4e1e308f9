package storage

import (
	"io"
	"os"
	"testing"
)

func TestStageMedia_CleansUp(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"conversation_id":"conv_1"}`)
	f, cleanup, err := stageMedia(payload)
	if err != nil {
		t.Fatalf("stageMedia: %v", err)
	}
	name := f.Name()

	// The file is positioned at the start, ready for the uploader.
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("staged content = %q, want %q", got, payload)
	}

	cleanup()
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("staged temp file %s not removed", name)
	}
	if _, err := f.Write([]byte("x")); err == nil {
		t.Error("staged file still writable after cleanup")
	}
}
