// Package session tracks per-user recording state for the meeting-record flow.
// A Store owns all sessions behind a mutex; handlers receive the store explicitly
// rather than touching shared globals, since webhook deliveries for different
// users (or rapid messages from one user) can run concurrently.
package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Fragment is one buffered piece of conversation content.
type Fragment struct {
	Time time.Time
	Text string
}

// Session holds one user's transient recording state. All methods are safe for
// concurrent use.
type Session struct {
	UserID string

	mu        sync.Mutex
	recording bool
	buffer    []Fragment
	createdAt time.Time
}

// StartRecording enables recording mode and resets the buffer, even when the
// session is already recording.
func (s *Session) StartRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = true
	s.buffer = nil
	slog.Info("recording started", slog.String("user_id", s.UserID))
}

// StopRecording disables recording mode. The buffer is kept until the next start
// so a late /status can still show what was captured.
func (s *Session) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = false
	slog.Info("recording stopped", slog.String("user_id", s.UserID))
}

// Recording reports whether the session is in recording mode.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// AddMessage appends a fragment stamped with the current time.
func (s *Session) AddMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, Fragment{Time: time.Now(), Text: text})
}

// Len returns the number of buffered fragments.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// ConversationText joins all buffered fragments with newlines, in insertion order.
func (s *Session) ConversationText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, len(s.buffer))
	for i, f := range s.buffer {
		parts[i] = f.Text
	}
	return strings.Join(parts, "\n")
}

// Store maps user IDs to sessions. Sessions are created lazily on first contact
// and live for the process lifetime.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for userID, creating it on first contact.
// Repeated calls for the same user return the same session.
func (st *Store) GetOrCreate(userID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[userID]; ok {
		return s
	}
	s := &Session{UserID: userID, createdAt: time.Now()}
	st.sessions[userID] = s
	return s
}

// RecordingCount returns how many sessions are currently in recording mode.
func (st *Store) RecordingCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for _, s := range st.sessions {
		if s.Recording() {
			n++
		}
	}
	return n
}

// Count returns the total number of sessions ever created.
func (st *Store) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
