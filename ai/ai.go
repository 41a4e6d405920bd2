// Package ai turns raw note content into titles and summaries. Providers are
// chained in priority order and every public entry point degrades to a local
// fallback instead of failing: the caller always gets usable text.
package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yctsai/notetender/telemetry"
)

// Summarizer produces an abstractive summary of note text.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, text string) (string, error)
}

// ImageDescriber classifies an image into a note title and summary.
type ImageDescriber interface {
	Name() string
	DescribeImage(ctx context.Context, image []byte) (title, summary string, err error)
}

const (
	fallbackImageTitle = "圖片筆記"
	summaryTruncateAt  = 50
	errExcerptLen      = 100
)

// Assistant dispatches summarization and image classification across a
// provider chain.
type Assistant struct {
	summarizers []Summarizer
	describers  []ImageDescriber
}

// NewAssistant builds the chain in the given priority order, skipping nil
// providers so callers can pass conditionally-constructed ones directly.
func NewAssistant(summarizers []Summarizer, describers []ImageDescriber) *Assistant {
	a := &Assistant{}
	for _, s := range summarizers {
		if s != nil {
			a.summarizers = append(a.summarizers, s)
		}
	}
	for _, d := range describers {
		if d != nil {
			a.describers = append(a.describers, d)
		}
	}
	return a
}

// Summarize returns the first provider's summary, falling back to a local
// truncation of the input when every provider fails. It never errors.
func (a *Assistant) Summarize(ctx context.Context, text string) string {
	var summary string
	telemetry.TimeFunc(telemetry.SummarizeDuration, func() {
		for _, s := range a.summarizers {
			out, err := s.Summarize(ctx, text)
			if err != nil {
				slog.Error("summary generation failed", slog.String("provider", s.Name()), slog.Any("err", err))
				continue
			}
			if out != "" {
				slog.Info("summary generated", slog.String("provider", s.Name()))
				telemetry.SummariesGenerated.Inc()
				summary = out
				return
			}
		}
		telemetry.SummaryFallbacks.Inc()
		summary = truncateSummary(text)
	})
	return summary
}

// DescribeImage returns the first provider's (title, summary), falling back to
// a fixed title plus an excerpt of the last error when every provider fails.
func (a *Assistant) DescribeImage(ctx context.Context, image []byte) (string, string) {
	var title, summary string
	telemetry.TimeFunc(telemetry.VisionDuration, func() {
		var lastErr error
		for _, d := range a.describers {
			t, s, err := d.DescribeImage(ctx, image)
			if err != nil {
				slog.Error("image analysis failed", slog.String("provider", d.Name()), slog.Any("err", err))
				lastErr = err
				continue
			}
			title, summary = t, s
			return
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no vision providers configured")
		}
		title = fallbackImageTitle
		summary = "圖片分析發生錯誤: " + truncateRunes(lastErr.Error(), errExcerptLen)
	})
	return title, summary
}

// truncateSummary is the local degrade path: first 50 characters plus an
// ellipsis marker, or the input unchanged when already short enough.
func truncateSummary(text string) string {
	r := []rune(text)
	if len(r) > summaryTruncateAt {
		return string(r[:summaryTruncateAt]) + "..."
	}
	return text
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
