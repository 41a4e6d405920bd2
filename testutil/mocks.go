package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockLineServer creates a test server that mocks LINE Messaging API responses.
type MockLineServer struct {
	*httptest.Server
	Handlers   map[string]http.HandlerFunc
	Replies    []map[string]any
	Pushes     []map[string]any
	Auths      []string
	FailStatus int // when non-zero, reply and push fail with this status
}

// NewMockLineServer creates a new mock LINE API server. Reply and push bodies
// are recorded for assertions; everything else falls through to Handlers.
func NewMockLineServer(t *testing.T) *MockLineServer {
	t.Helper()
	m := &MockLineServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/bot/message/reply":
			m.recordMessage(w, r, &m.Replies)
			return
		case "/v2/bot/message/push":
			m.recordMessage(w, r, &m.Pushes)
			return
		}
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockLineServer) recordMessage(w http.ResponseWriter, r *http.Request, into *[]map[string]any) {
	m.Auths = append(m.Auths, r.Header.Get("Authorization"))
	if m.FailStatus != 0 {
		http.Error(w, `{"message":"mock failure"}`, m.FailStatus)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test mock
	*into = append(*into, body)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{}`))
}

// MockProfile adds a handler for the user profile endpoint.
func (m *MockLineServer) MockProfile(userID, displayName string) {
	m.Handlers["/v2/bot/profile/"+userID] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck // test mock response
			"userId":      userID,
			"displayName": displayName,
		})
	}
}

// MockContent adds a handler serving the binary payload of a message id.
func (m *MockLineServer) MockContent(messageID string, data []byte) {
	m.Handlers["/v2/bot/message/"+messageID+"/content"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	}
}

// MockGroqServer creates a test server that mocks the Groq OpenAI-compatible
// API: chat completions and audio transcriptions. The Authorization header,
// requested model, and any uploaded file of each call are recorded.
type MockGroqServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	Auths    []string
	Models   []string
	Files    [][]byte
}

// NewMockGroqServer creates a new mock Groq API server.
func NewMockGroqServer(t *testing.T) *MockGroqServer {
	t.Helper()
	m := &MockGroqServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockChatCompletion adds a handler returning a fixed completion text.
func (m *MockGroqServer) MockChatCompletion(content string) {
	m.Handlers["/chat/completions"] = func(w http.ResponseWriter, r *http.Request) {
		m.Auths = append(m.Auths, r.Header.Get("Authorization"))
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.Models = append(m.Models, req.Model)
		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockTranscription adds a handler returning a fixed plain-text transcript for
// multipart audio uploads.
func (m *MockGroqServer) MockTranscription(text string) {
	m.Handlers["/audio/transcriptions"] = func(w http.ResponseWriter, r *http.Request) {
		m.Auths = append(m.Auths, r.Header.Get("Authorization"))
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.Models = append(m.Models, r.FormValue("model"))
		if f, _, err := r.FormFile("file"); err == nil {
			b, _ := io.ReadAll(f)
			_ = f.Close()
			m.Files = append(m.Files, b)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(text))
	}
}

// MockNotionServer creates a test server that mocks the Notion pages endpoint
// and records created pages along with their request headers.
type MockNotionServer struct {
	*httptest.Server
	Pages      []map[string]any
	Headers    []http.Header
	FailStatus int // when non-zero, page creation fails with this status
}

// NewMockNotionServer creates a new mock Notion API server.
func NewMockNotionServer(t *testing.T) *MockNotionServer {
	t.Helper()
	m := &MockNotionServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pages" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if m.FailStatus != 0 {
			http.Error(w, `{"object":"error"}`, m.FailStatus)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // test mock
		m.Pages = append(m.Pages, body)
		m.Headers = append(m.Headers, r.Header.Clone())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"page","id":"mock-page"}`))
	}))
	t.Cleanup(m.Close)
	return m
}
