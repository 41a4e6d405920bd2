// Package audio splits oversized audio blobs into size-bounded mp3 chunks so the
// local transcription path can feed them to the model one at a time. Decoding and
// re-encoding shell out to ffmpeg/ffprobe, the same way the VOD tooling this grew
// out of drives external media binaries.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Codec abstracts media probing and segment extraction (for tests/mocks).
type Codec interface {
	// Duration returns the track length of the media file at path.
	Duration(ctx context.Context, path string) (time.Duration, error)
	// Extract re-encodes the [start, end) window of the file at path as mp3.
	Extract(ctx context.Context, path string, start, end time.Duration) ([]byte, error)
}

// configurable for tests
var codec Codec = ffmpegCodec{}

// Split slices data into size-bounded chunks. A blob at or under maxMB is returned
// unchanged as a single chunk. Larger blobs are cut into floor(sizeMB/maxMB)+1
// contiguous equal-duration segments; the final segment runs to the end of the
// track so the concatenated durations cover it exactly. Any probe/extract failure
// degrades to returning the original blob as a single chunk.
func Split(ctx context.Context, data []byte, maxMB int) [][]byte {
	sizeMB := float64(len(data)) / (1024 * 1024)
	if sizeMB <= float64(maxMB) {
		return [][]byte{data}
	}

	tmp, err := os.CreateTemp("", "notetender-audio-*")
	if err != nil {
		slog.Error("audio split: temp file", slog.Any("err", err))
		return [][]byte{data}
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		slog.Error("audio split: write temp", slog.Any("err", err))
		return [][]byte{data}
	}

	total, err := codec.Duration(ctx, tmp.Name())
	if err != nil || total <= 0 {
		slog.Error("audio split: probe duration", slog.Any("err", err))
		return [][]byte{data}
	}

	numChunks := int(sizeMB/float64(maxMB)) + 1
	// Equal-duration segments with millisecond floor; the remainder lands in the
	// last segment.
	chunkDur := time.Duration(total.Milliseconds()/int64(numChunks)) * time.Millisecond

	chunks := make([][]byte, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		start := time.Duration(i) * chunkDur
		end := start + chunkDur
		if i == numChunks-1 {
			end = total
		}
		seg, err := codec.Extract(ctx, tmp.Name(), start, end)
		if err != nil {
			slog.Error("audio split: extract segment", slog.Int("segment", i), slog.Any("err", err))
			return [][]byte{data}
		}
		chunks = append(chunks, seg)
	}
	slog.Info("audio split", slog.Int("chunks", len(chunks)), slog.Duration("total", total))
	return chunks
}

// ffmpegCodec drives the ffmpeg/ffprobe binaries on PATH.
type ffmpegCodec struct{}

func (ffmpegCodec) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (ffmpegCodec) Extract(ctx context.Context, path string, start, end time.Duration) ([]byte, error) {
	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("notetender-seg-%d-%d.mp3", start.Milliseconds(), end.Milliseconds()))
	defer os.Remove(outPath)
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-y",
		"-i", path,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-vn",
		"-acodec", "libmp3lame",
		outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return os.ReadFile(outPath)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
