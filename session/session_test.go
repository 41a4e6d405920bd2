package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	st := NewStore()
	a := st.GetOrCreate("U1")
	b := st.GetOrCreate("U1")
	if a != b {
		t.Errorf("repeated GetOrCreate returned different sessions")
	}
	if st.GetOrCreate("U2") == a {
		t.Errorf("distinct users share a session")
	}
	if st.Count() != 2 {
		t.Errorf("Count() = %d, want 2", st.Count())
	}
}

func TestStartRecordingResetsBuffer(t *testing.T) {
	s := &Session{UserID: "U1"}
	s.StartRecording()
	s.AddMessage("a")
	s.AddMessage("b")
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	// Restarting while already recording clears the buffer.
	s.StartRecording()
	if s.Len() != 0 {
		t.Errorf("buffer not reset on restart, Len() = %d", s.Len())
	}
	if !s.Recording() {
		t.Errorf("session not recording after restart")
	}
}

func TestStopRetainsBuffer(t *testing.T) {
	s := &Session{UserID: "U1"}
	s.StartRecording()
	s.AddMessage("a")
	s.StopRecording()
	if s.Recording() {
		t.Errorf("still recording after stop")
	}
	if s.Len() != 1 {
		t.Errorf("buffer cleared on stop, Len() = %d", s.Len())
	}
}

func TestConversationText(t *testing.T) {
	s := &Session{UserID: "U1"}
	s.StartRecording()
	s.AddMessage("a")
	s.AddMessage("b")
	if got := s.ConversationText(); got != "a\nb" {
		t.Errorf("ConversationText() = %q, want %q", got, "a\nb")
	}
}

func TestRecordingCount(t *testing.T) {
	st := NewStore()
	st.GetOrCreate("idle")
	rec := st.GetOrCreate("rec")
	rec.StartRecording()
	if got := st.RecordingCount(); got != 1 {
		t.Errorf("RecordingCount() = %d, want 1", got)
	}
	rec.StopRecording()
	if got := st.RecordingCount(); got != 0 {
		t.Errorf("RecordingCount() after stop = %d, want 0", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := st.GetOrCreate(fmt.Sprintf("U%d", i%4))
			s.StartRecording()
			s.AddMessage("m")
			_ = s.ConversationText()
			_ = st.RecordingCount()
		}(i)
	}
	wg.Wait()
	if st.Count() != 4 {
		t.Errorf("Count() = %d, want 4", st.Count())
	}
}
