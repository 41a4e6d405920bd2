// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsReceived        *prometheus.CounterVec
	TranscriptionsOK      *prometheus.CounterVec
	TranscriptionsFailed  prometheus.Counter
	SummariesGenerated    prometheus.Counter
	SummaryFallbacks      prometheus.Counter
	NotesSaved            prometheus.Counter
	NotesFailed           prometheus.Counter
	SheetRowsAppended     prometheus.Counter
	DriveUploadsSucceeded prometheus.Counter
	DriveUploadsFailed    prometheus.Counter
	RepliesSent           prometheus.Counter
	PushesSent            prometheus.Counter

	// Histograms (seconds)
	TranscribeDuration prometheus.Observer
	SummarizeDuration  prometheus.Observer
	VisionDuration     prometheus.Observer

	// Gauges
	ActiveSessionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_events_received_total", Help: "Webhook events received by message kind"}, []string{"kind"})
		TranscriptionsOK = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_transcriptions_total", Help: "Successful transcriptions by provider"}, []string{"provider"})
		TranscriptionsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_transcriptions_failed_total", Help: "Audio events where every provider failed"})
		SummariesGenerated = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_summaries_total", Help: "AI summaries generated"})
		SummaryFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_summary_fallbacks_total", Help: "Summaries degraded to local truncation"})
		NotesSaved = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_notes_saved_total", Help: "Notes persisted to the note database"})
		NotesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_notes_failed_total", Help: "Note persistence failures"})
		SheetRowsAppended = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_sheet_rows_appended_total", Help: "Rows appended to the spreadsheet"})
		DriveUploadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_drive_uploads_succeeded_total", Help: "Drive uploads succeeded"})
		DriveUploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_drive_uploads_failed_total", Help: "Drive uploads failed"})
		RepliesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_replies_sent_total", Help: "Reply-token responses sent"})
		PushesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_pushes_sent_total", Help: "Push messages sent"})
		TranscribeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_transcribe_duration_seconds", Help: "Transcription duration seconds", Buckets: prometheus.DefBuckets})
		SummarizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_summarize_duration_seconds", Help: "Summarization duration seconds", Buckets: prometheus.DefBuckets})
		VisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_vision_duration_seconds", Help: "Image analysis duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_recording_sessions", Help: "Sessions currently in recording mode"})
	})
}

// SetActiveSessions records the number of sessions currently recording.
func SetActiveSessions(n int) {
	if ActiveSessionsGauge != nil {
		ActiveSessionsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
