package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/yctsai/notetender/telemetry"
	"github.com/yctsai/notetender/testutil"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestDispatcherShortCircuit(t *testing.T) {
	telemetry.Init()
	a := &stubProvider{name: "a", text: "hello"}
	b := &stubProvider{name: "b", text: "unused"}
	c := &stubProvider{name: "c", text: "unused"}
	d := NewDispatcher(a, b, c)

	text, provider, ok := d.Transcribe(context.Background(), []byte("audio"))
	if !ok || text != "hello" || provider != "a" {
		t.Fatalf("got (%q, %q, %v), want (hello, a, true)", text, provider, ok)
	}
	if b.calls != 0 || c.calls != 0 {
		t.Errorf("lower-priority providers invoked: b=%d c=%d", b.calls, c.calls)
	}
}

func TestDispatcherFallsThroughOnErrorAndEmpty(t *testing.T) {
	telemetry.Init()
	a := &stubProvider{name: "a", err: fmt.Errorf("quota exhausted")}
	b := &stubProvider{name: "b", text: "   "} // whitespace-only is no result
	c := &stubProvider{name: "c", text: "  final  "}
	d := NewDispatcher(a, b, c)

	text, provider, ok := d.Transcribe(context.Background(), []byte("audio"))
	if !ok || text != "final" || provider != "c" {
		t.Fatalf("got (%q, %q, %v), want (final, c, true)", text, provider, ok)
	}
}

func TestDispatcherAllFail(t *testing.T) {
	telemetry.Init()
	d := NewDispatcher(
		&stubProvider{name: "a", err: fmt.Errorf("down")},
		&stubProvider{name: "b", text: ""},
	)
	if _, _, ok := d.Transcribe(context.Background(), []byte("audio")); ok {
		t.Errorf("expected no result when every provider fails")
	}
}

func TestDispatcherObservesDuration(t *testing.T) {
	telemetry.Init()
	hist, ok := telemetry.TranscribeDuration.(prometheus.Histogram)
	if !ok {
		t.Fatalf("TranscribeDuration is %T, want prometheus.Histogram", telemetry.TranscribeDuration)
	}
	before := histogramSamples(t, hist)

	d := NewDispatcher(&stubProvider{name: "a", text: "hi"})
	if _, _, ok := d.Transcribe(context.Background(), []byte("audio")); !ok {
		t.Fatalf("dispatch failed")
	}

	if got := histogramSamples(t, hist); got != before+1 {
		t.Errorf("histogram samples = %d, want %d", got, before+1)
	}
}

func histogramSamples(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.Histogram.GetSampleCount()
}

func TestDispatcherSkipsNilProviders(t *testing.T) {
	telemetry.Init()
	// Conditionally-constructed providers may be nil (missing API key).
	var missing *WhisperAPI
	c := &stubProvider{name: "c", text: "ok"}
	d := NewDispatcher(missingProvider(missing), c)
	text, _, ok := d.Transcribe(context.Background(), []byte("audio"))
	if !ok || text != "ok" {
		t.Errorf("dispatcher did not skip nil provider")
	}
}

// missingProvider converts a typed-nil WhisperAPI into a nil Provider the way
// callers do at wiring time.
func missingProvider(w *WhisperAPI) Provider {
	if w == nil {
		return nil
	}
	return w
}

func TestWhisperAPITranscribe(t *testing.T) {
	srv := testutil.NewMockGroqServer(t)
	srv.MockTranscription("transcribed text\n")

	p := NewGroqWhisper("key-123", "zh").WithBaseURL(srv.URL)
	text, err := p.Transcribe(context.Background(), []byte("fake-mp3"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "transcribed text\n" {
		t.Errorf("text = %q", text)
	}
	if len(srv.Auths) != 1 || srv.Auths[0] != "Bearer key-123" {
		t.Errorf("auths = %v", srv.Auths)
	}
	if len(srv.Models) != 1 || srv.Models[0] != "whisper-large-v3" {
		t.Errorf("models = %v", srv.Models)
	}
	if len(srv.Files) != 1 || string(srv.Files[0]) != "fake-mp3" {
		t.Errorf("uploaded files = %v", srv.Files)
	}
}

func TestWhisperAPIErrorStatus(t *testing.T) {
	srv := testutil.NewMockGroqServer(t)
	srv.Handlers["/audio/transcriptions"] = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate_limit_exceeded"}`, http.StatusTooManyRequests)
	}

	p := NewOpenAIWhisper("key", "zh").WithBaseURL(srv.URL)
	if _, err := p.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Errorf("expected error for non-200 status")
	}
}

func TestLocalWhisperTrimsTranscript(t *testing.T) {
	lw := &LocalWhisper{ChunkMB: 15}
	lw.run = func(ctx context.Context, chunk []byte) (string, error) {
		return " first \n", nil
	}
	text, err := lw.Transcribe(context.Background(), []byte("tiny"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "first" {
		t.Errorf("text = %q, want %q", text, "first")
	}
}

func TestLocalWhisperAllChunksFail(t *testing.T) {
	lw := &LocalWhisper{ChunkMB: 15}
	lw.run = func(ctx context.Context, chunk []byte) (string, error) {
		return "", fmt.Errorf("model not loaded")
	}
	if _, err := lw.Transcribe(context.Background(), []byte("tiny")); err == nil {
		t.Errorf("expected error when every chunk fails")
	}
}
