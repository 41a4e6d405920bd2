// Package transcribe turns audio blobs into text by trying speech-to-text providers
// in a fixed priority order: hosted Whisper on Groq (fast, free tier), hosted Whisper
// on OpenAI (accurate, paid), then a local whisper binary as last resort. The chain
// is an ordered list behind one interface so priority and short-circuit behavior are
// testable on their own.
package transcribe

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yctsai/notetender/telemetry"
)

// Provider is one speech-to-text backend.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Dispatcher tries providers in order and returns the first non-empty transcript.
type Dispatcher struct {
	providers []Provider
}

// NewDispatcher builds a dispatcher over the given providers in priority order.
// Nil entries are skipped so callers can pass conditionally-constructed providers.
func NewDispatcher(providers ...Provider) *Dispatcher {
	d := &Dispatcher{}
	for _, p := range providers {
		if p != nil {
			d.providers = append(d.providers, p)
		}
	}
	return d
}

// Transcribe returns the first provider's non-empty trimmed transcript along with the
// provider name. A provider error is logged and treated as "no result", not fatal to
// the dispatch. When every provider fails, ok is false.
func (d *Dispatcher) Transcribe(ctx context.Context, audio []byte) (text, providerName string, ok bool) {
	for _, p := range d.providers {
		var result string
		var err error
		telemetry.TimeFunc(telemetry.TranscribeDuration, func() {
			result, err = p.Transcribe(ctx, audio)
		})
		if err != nil {
			slog.Warn("transcription provider failed", slog.String("provider", p.Name()), slog.Any("err", err))
			continue
		}
		result = strings.TrimSpace(result)
		if result == "" {
			continue
		}
		if telemetry.TranscriptionsOK != nil {
			telemetry.TranscriptionsOK.WithLabelValues(p.Name()).Inc()
		}
		return result, p.Name(), true
	}
	if telemetry.TranscriptionsFailed != nil {
		telemetry.TranscriptionsFailed.Inc()
	}
	return "", "", false
}
