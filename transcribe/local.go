package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yctsai/notetender/audio"
)

// LocalWhisper runs the whisper CLI on disk-local chunks. It is the last resort in
// the provider chain: free, slow, and bounded by host memory, so oversized blobs
// are split first and each chunk is transcribed independently.
type LocalWhisper struct {
	Bin       string // whisper executable, default "whisper"
	ModelSize string // tiny/base/small/...
	Language  string
	ChunkMB   int

	// run is swapped in tests to avoid invoking the real binary.
	run func(ctx context.Context, chunk []byte) (string, error)
}

// NewLocalWhisper returns the local fallback provider, or nil when the binary is
// not on PATH.
func NewLocalWhisper(bin, modelSize, language string, chunkMB int) *LocalWhisper {
	if bin == "" {
		bin = "whisper"
	}
	if _, err := exec.LookPath(bin); err != nil {
		slog.Warn("local whisper binary not found; local transcription disabled", slog.String("bin", bin))
		return nil
	}
	lw := &LocalWhisper{Bin: bin, ModelSize: modelSize, Language: language, ChunkMB: chunkMB}
	lw.run = lw.runCLI
	return lw
}

func (l *LocalWhisper) Name() string { return "local-whisper" }

// Transcribe splits the audio, transcribes chunks independently, and joins the
// non-empty fragments with a single space. A failed chunk is skipped, not retried;
// all chunks failing yields an overall no-result error.
func (l *LocalWhisper) Transcribe(ctx context.Context, data []byte) (string, error) {
	chunkMB := l.ChunkMB
	if chunkMB <= 0 {
		chunkMB = 15
	}
	chunks := audio.Split(ctx, data, chunkMB)

	var parts []string
	for i, chunk := range chunks {
		slog.Info("transcribing chunk", slog.Int("chunk", i+1), slog.Int("total", len(chunks)))
		text, err := l.run(ctx, chunk)
		if err != nil {
			slog.Warn("chunk transcription failed", slog.Int("chunk", i+1), slog.Any("err", err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("local whisper produced no text for %d chunk(s)", len(chunks))
	}
	return strings.Join(parts, " "), nil
}

// runCLI writes the chunk to a temp file and invokes the whisper CLI, which drops a
// .txt transcript next to its output dir.
func (l *LocalWhisper) runCLI(ctx context.Context, chunk []byte) (string, error) {
	dir, err := os.MkdirTemp("", "notetender-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "chunk.mp3")
	if err := os.WriteFile(inPath, chunk, 0o600); err != nil {
		return "", err
	}

	args := []string{inPath, "--output_format", "txt", "--output_dir", dir, "--fp16", "False"}
	if l.ModelSize != "" {
		args = append(args, "--model", l.ModelSize)
	}
	if l.Language != "" {
		args = append(args, "--language", l.Language)
	}
	cmd := exec.CommandContext(ctx, l.Bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("whisper: %w: %s", err, strings.TrimSpace(string(out)))
	}

	txt, err := os.ReadFile(filepath.Join(dir, "chunk.txt"))
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(txt), nil
}
