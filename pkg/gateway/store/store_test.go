package store

import (
	"context"
	"testing"
	"time"
)

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}

	if err := r.Start(context.Background(), CallRecord{SessionID: "s1"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.End(context.Background(), "s1", time.Now(), "normal", 2); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	r.Close()
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}
}
