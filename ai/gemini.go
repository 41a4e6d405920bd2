package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// Gemini is an optional secondary provider for summaries and image
// classification, appended to the chain when GEMINI_API_KEY is set.
type Gemini struct {
	client *genai.Client
}

// NewGemini returns a Gemini provider, or nil when no API key is configured.
func NewGemini(ctx context.Context, apiKey string) *Gemini {
	if apiKey == "" {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		slog.Warn("gemini client init failed; provider disabled", slog.Any("err", err))
		return nil
	}
	return &Gemini{client: client}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, geminiModel,
		genai.Text(fmt.Sprintf(summaryUserPrompt, text)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(summarySystemPrompt, ""),
			Temperature:       genai.Ptr(float32(0.7)),
		})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (g *Gemini) DescribeImage(ctx context.Context, image []byte) (string, string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(visionPrompt),
			genai.NewPartFromBytes(image, "image/jpeg"),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, geminiModel, contents,
		&genai.GenerateContentConfig{Temperature: genai.Ptr(float32(0.1))})
	if err != nil {
		return "", "", err
	}
	return parseImageReply(resp.Text())
}
