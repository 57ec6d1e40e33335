package sessions

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager()

	s := m.Create("telephony-stream", func() {})
	if s.ID == "" {
		t.Fatal("empty session id")
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}

	got, ok := m.Get(s.ID)
	if !ok || got != s {
		t.Fatalf("Get(%q) = %v, %v", s.ID, got, ok)
	}

	other := m.Create("webrtc", func() {})
	if other.ID == s.ID {
		t.Fatal("duplicate session ids")
	}
	if m.Count() != 2 {
		t.Fatalf("Count = %d, want 2", m.Count())
	}
}

func TestDestroy_IdempotentCancel(t *testing.T) {
	m := NewManager()
	var cancels int
	var mu sync.Mutex

	s := m.Create("telephony-stream", func() {
		mu.Lock()
		cancels++
		mu.Unlock()
	})

	m.Destroy(s.ID)
	m.Destroy(s.ID)
	m.Destroy("unknown")

	mu.Lock()
	defer mu.Unlock()
	if cancels != 1 {
		t.Fatalf("cancel ran %d times, want 1", cancels)
	}
	if m.Count() != 0 {
		t.Fatalf("Count = %d, want 0", m.Count())
	}
}

func TestSetStreamSID(t *testing.T) {
	m := NewManager()
	s := m.Create("telephony-stream", nil)

	m.SetStreamSID(s.ID, "MZ42")
	m.SetStreamSID("unknown", "MZ99")

	got, _ := m.Get(s.ID)
	if got.StreamSID != "MZ42" {
		t.Fatalf("StreamSID = %q, want MZ42", got.StreamSID)
	}
}

func TestCancelAll(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	canceled := map[string]bool{}

	for _, kind := range []string{"webrtc", "telephony-stream", "telephony-stream"} {
		s := m.Create(kind, nil)
		id := s.ID
		s.cancel = func() {
			mu.Lock()
			canceled[id] = true
			mu.Unlock()
		}
	}

	if got := m.CancelAll(); got != 3 {
		t.Fatalf("CancelAll = %d, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(canceled) != 3 {
		t.Fatalf("canceled %d sessions, want 3", len(canceled))
	}
	// Cancellation does not remove entries; each call still unwinds itself.
	if m.Count() != 3 {
		t.Fatalf("Count = %d, want 3", m.Count())
	}
}

func TestWait_DrainsAfterDestroy(t *testing.T) {
	m := NewManager()
	a := m.Create("telephony-stream", nil)
	b := m.Create("webrtc", nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Destroy(a.ID)
		m.Destroy(b.ID)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !m.Wait(ctx) {
		t.Fatal("Wait returned false with all sessions destroyed")
	}
}

func TestWait_TimesOutWithLiveSessions(t *testing.T) {
	m := NewManager()
	s := m.Create("telephony-stream", nil)
	defer m.Destroy(s.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if m.Wait(ctx) {
		t.Fatal("Wait returned true with a live session")
	}
}

func TestConcurrentCreateDestroy(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Create("telephony-stream", func() {})
			m.Destroy(s.ID)
			m.Destroy(s.ID)
		}()
	}
	wg.Wait()

	if m.Count() != 0 {
		t.Fatalf("Count = %d, want 0", m.Count())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !m.Wait(ctx) {
		t.Fatal("Wait blocked after all sessions destroyed")
	}
}
