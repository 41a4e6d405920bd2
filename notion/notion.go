// Package notion creates one database page per saved note via the Notion REST
// API. A failed save is logged and reported through the error return; it never
// takes the bot down.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/yctsai/notetender/telemetry"
)

const (
	defaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"

	// Notion caps a title rich-text element at 2000 characters.
	titleLimit = 2000
)

// Note is the record destined for one database page.
type Note struct {
	Content  string // page title
	Summary  string
	Category string // select value, e.g. 文字筆記 / 語音筆記 / 圖片筆記
	URL      string // optional attachment link
}

// Client talks to the Notion pages endpoint for a single database.
type Client struct {
	token      string
	databaseID string
	baseURL    string
	HTTPClient *http.Client
}

// New returns a client, or nil when the integration is not configured.
func New(token, databaseID string) *Client {
	if token == "" || databaseID == "" {
		slog.Warn("notion not configured; note persistence disabled")
		return nil
	}
	return &Client{token: token, databaseID: databaseID, baseURL: defaultBaseURL}
}

// WithBaseURL overrides the API endpoint (tests point this at a mock server).
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

type richText struct {
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

func text(s string) []richText {
	var rt richText
	rt.Text.Content = s
	return []richText{rt}
}

// SaveNote creates one page with title, summary, and category properties, plus
// a URL property when the note carries one.
func (c *Client) SaveNote(ctx context.Context, note Note) error {
	if c == nil {
		return fmt.Errorf("notion not configured")
	}

	title := note.Content
	if r := []rune(title); len(r) > titleLimit {
		title = string(r[:titleLimit])
	}

	properties := map[string]any{
		"名稱": map[string]any{"title": text(title)},
		"摘要": map[string]any{"rich_text": text(note.Summary)},
		"類型": map[string]any{"select": map[string]string{"name": note.Category}},
	}
	if note.URL != "" {
		properties["URL"] = map[string]string{"url": note.URL}
	}

	payload, err := json.Marshal(map[string]any{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": properties,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", apiVersion)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		telemetry.NotesFailed.Inc()
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		telemetry.NotesFailed.Inc()
		return fmt.Errorf("notion save failed: %s: %s", resp.Status, string(b))
	}

	telemetry.NotesSaved.Inc()
	slog.Info("note saved to notion", slog.String("category", note.Category))
	return nil
}
