package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// summaryModel is the chat model used for text summaries.
const summaryModel = "llama-3.3-70b-versatile"

// visionModels are tried in order for image classification. Advancing through
// the list on failure is the retry policy; there is no backoff.
var visionModels = []string{
	"llama-3.2-11b-vision-preview",
	"llama-3.2-90b-vision-preview",
}

const (
	summarySystemPrompt = "你是一個專業的筆記秘書，擅長精簡歸納重點。"
	summaryUserPrompt   = "請將以下這段筆記內容歸納成一段精簡的摘要（大約 30-50 字），並以第一人稱或重點條列方式呈現。只需回覆摘要文字，不要有額外的問候語：\n\n內容：%s"
	visionPrompt        = "請幫我分析這張圖片內容。請回覆一個簡單的 json 格式，包含兩個欄位：'title' (適合作為筆記標題，15字以內) 與 'summary' (一段詳細的內容摘要，約 100 字以內)。請只回覆 JSON 字串，不要有其他文字。"
)

// GroqChat is a minimal chat-completions client for the Groq API.
type GroqChat struct {
	apiKey     string
	baseURL    string
	HTTPClient *http.Client
}

// NewGroqChat returns a Groq client, or nil when no API key is configured.
func NewGroqChat(apiKey string) *GroqChat {
	if apiKey == "" {
		slog.Warn("GROQ_API_KEY not set; Groq summarization and vision disabled")
		return nil
	}
	return &GroqChat{apiKey: apiKey, baseURL: defaultGroqBaseURL}
}

// WithBaseURL overrides the API endpoint (tests point this at a mock server).
func (g *GroqChat) WithBaseURL(base string) *GroqChat {
	g.baseURL = base
	return g
}

func (g *GroqChat) Name() string { return "groq" }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize asks the chat model for a 30-50 character abstractive summary.
func (g *GroqChat) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := g.complete(ctx, chatRequest{
		Model: summaryModel,
		Messages: []chatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: fmt.Sprintf(summaryUserPrompt, text)},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// DescribeImage sends the image to each vision model in turn and parses the
// two-field JSON reply. Returns the last model's error when all fail.
func (g *GroqChat) DescribeImage(ctx context.Context, image []byte) (title, summary string, err error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	var lastErr error
	for _, model := range visionModels {
		slog.Info("analyzing image", slog.String("model", model))
		resp, err := g.complete(ctx, chatRequest{
			Model: model,
			Messages: []chatMessage{
				{Role: "user", Content: []contentPart{
					{Type: "text", Text: visionPrompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				}},
			},
			Temperature: 0.1,
		})
		if err == nil {
			title, summary, err = parseImageReply(resp)
			if err == nil {
				return title, summary, nil
			}
		}
		slog.Warn("vision model failed", slog.String("model", model), slog.Any("err", err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no vision models configured")
	}
	return "", "", lastErr
}

// parseImageReply strips optional Markdown code fences and decodes the
// {title, summary} object.
func parseImageReply(raw string) (string, string, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	var reply struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return "", "", fmt.Errorf("parse vision reply: %w", err)
	}
	if reply.Title == "" {
		reply.Title = "新圖片筆記"
	}
	if reply.Summary == "" {
		reply.Summary = "無摘要"
	}
	return reply.Title, reply.Summary, nil
}

func stripCodeFence(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	return s
}

func (g *GroqChat) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	hc := g.HTTPClient
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
		return "", fmt.Errorf("groq chat completion failed: %s: %s", resp.Status, string(b))
	}
	var out chatResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
