// Package lineapi contains minimal helpers to interact with the LINE Messaging
// API: webhook signature validation and parsing, reply/push delivery, user
// profile lookup, and binary content download.
package lineapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/yctsai/notetender/telemetry"
)

const (
	defaultAPIBase  = "https://api.line.me"
	defaultDataBase = "https://api-data.line.me"
)

// Client provides the minimal LINE Messaging API surface the bot needs.
type Client struct {
	channelSecret string
	channelToken  string
	apiBase       string
	dataBase      string
	HTTPClient    *http.Client
}

// New builds a client. apiBase and dataBase fall back to the production
// endpoints when empty.
func New(channelSecret, channelToken, apiBase, dataBase string) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if dataBase == "" {
		dataBase = defaultDataBase
	}
	return &Client{
		channelSecret: channelSecret,
		channelToken:  channelToken,
		apiBase:       apiBase,
		dataBase:      dataBase,
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// ValidateSignature checks the X-Line-Signature header value against the raw
// request body: base64(HMAC-SHA256(channel secret, body)).
func (c *Client) ValidateSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MessageKind classifies the inbound message payload.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindAudio MessageKind = "audio"
	KindImage MessageKind = "image"
	KindOther MessageKind = "other"
)

// Event is one inbound webhook event, reduced to the fields the bot routes on.
type Event struct {
	ReplyToken string
	UserID     string
	Kind       MessageKind
	Text       string // populated for text messages
	MessageID  string // populated for audio/image, used to fetch content
}

// ParseWebhook decodes the webhook body into routable events. Non-message
// events (follow, join, ...) are dropped.
func ParseWebhook(body []byte) ([]Event, error) {
	var payload struct {
		Events []struct {
			Type       string `json:"type"`
			ReplyToken string `json:"replyToken"`
			Source     struct {
				UserID string `json:"userId"`
			} `json:"source"`
			Message struct {
				ID   string `json:"id"`
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}

	var events []Event
	for _, e := range payload.Events {
		if e.Type != "message" {
			continue
		}
		ev := Event{
			ReplyToken: e.ReplyToken,
			UserID:     e.Source.UserID,
			MessageID:  e.Message.ID,
		}
		switch e.Message.Type {
		case "text":
			ev.Kind = KindText
			ev.Text = e.Message.Text
		case "audio":
			ev.Kind = KindAudio
		case "image":
			ev.Kind = KindImage
		default:
			ev.Kind = KindOther
		}
		events = append(events, ev)
	}
	return events, nil
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReplyMessage consumes the single-use reply token with one text message.
func (c *Client) ReplyMessage(ctx context.Context, replyToken, text string) error {
	payload := struct {
		ReplyToken string        `json:"replyToken"`
		Messages   []textMessage `json:"messages"`
	}{ReplyToken: replyToken, Messages: []textMessage{{Type: "text", Text: text}}}

	if err := c.post(ctx, c.apiBase+"/v2/bot/message/reply", payload); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	telemetry.RepliesSent.Inc()
	return nil
}

// PushMessage delivers one text message addressed to a user id, independent of
// any inbound event.
func (c *Client) PushMessage(ctx context.Context, userID, text string) error {
	payload := struct {
		To       string        `json:"to"`
		Messages []textMessage `json:"messages"`
	}{To: userID, Messages: []textMessage{{Type: "text", Text: text}}}

	if err := c.post(ctx, c.apiBase+"/v2/bot/message/push", payload); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	telemetry.PushesSent.Inc()
	return nil
}

// GetProfile resolves a user's display name, degrading to a placeholder when
// the lookup fails so a profile outage never blocks a save.
func (c *Client) GetProfile(ctx context.Context, userID string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return "未知用戶"
	}
	req.Header.Set("Authorization", "Bearer "+c.channelToken)
	resp, err := c.http().Do(req)
	if err != nil {
		slog.Warn("profile lookup failed", slog.Any("err", err))
		return "未知用戶"
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("profile lookup failed", slog.Int("status", resp.StatusCode))
		return "未知用戶"
	}
	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil || profile.DisplayName == "" {
		return "未知用戶"
	}
	return profile.DisplayName
}

// GetContent downloads the binary payload (audio, image) of a message from the
// data API host.
func (c *Client) GetContent(ctx context.Context, messageID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataBase+"/v2/bot/message/"+messageID+"/content", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.channelToken)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch content: %s: %s", resp.Status, string(b))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.channelToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return nil
}
