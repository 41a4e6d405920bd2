package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
)

// WhisperAPI calls an OpenAI-compatible audio transcription endpoint. Groq and
// OpenAI expose the same contract, so both hosted providers are configurations of
// this one client rather than separate implementations.
type WhisperAPI struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	language   string
	HTTPClient *http.Client
}

// NewGroqWhisper returns the Groq-hosted Whisper provider, or nil when no API key
// is configured.
func NewGroqWhisper(apiKey, language string) *WhisperAPI {
	if apiKey == "" {
		slog.Warn("GROQ_API_KEY not set; Groq transcription disabled")
		return nil
	}
	return &WhisperAPI{
		name:     "groq-whisper",
		baseURL:  "https://api.groq.com/openai/v1",
		apiKey:   apiKey,
		model:    "whisper-large-v3",
		language: language,
	}
}

// NewOpenAIWhisper returns the OpenAI-hosted Whisper provider, or nil when no API
// key is configured.
func NewOpenAIWhisper(apiKey, language string) *WhisperAPI {
	if apiKey == "" {
		return nil
	}
	return &WhisperAPI{
		name:     "openai-whisper",
		baseURL:  "https://api.openai.com/v1",
		apiKey:   apiKey,
		model:    "whisper-1",
		language: language,
	}
}

// WithBaseURL overrides the API endpoint (tests point this at a mock server).
func (w *WhisperAPI) WithBaseURL(base string) *WhisperAPI {
	w.baseURL = base
	return w
}

func (w *WhisperAPI) Name() string { return w.name }

// Transcribe uploads the audio as a multipart form and returns the plain-text
// transcript. Hosted providers receive the blob unchunked; their own size ceiling
// applies.
func (w *WhisperAPI) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio payload")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio.mp3")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", w.model)
	_ = mw.WriteField("response_format", "text")
	if w.language != "" {
		_ = mw.WriteField("language", w.language)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	hc := w.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s transcription failed: %s: %s", w.name, resp.Status, string(b))
	}
	return string(b), nil
}
