// Package bot routes inbound messaging events to the recording session store,
// the transcription and AI chains, and the persistence adapters. The delivery
// rule throughout: the single-use reply token acknowledges fast, anything that
// needed slow work afterwards goes out as a push.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/yctsai/notetender/drive"
	"github.com/yctsai/notetender/lineapi"
	"github.com/yctsai/notetender/notion"
	"github.com/yctsai/notetender/session"
	"github.com/yctsai/notetender/telemetry"
)

// Messenger is the outbound messaging surface of lineapi.Client.
type Messenger interface {
	ReplyMessage(ctx context.Context, replyToken, text string) error
	PushMessage(ctx context.Context, userID, text string) error
	GetProfile(ctx context.Context, userID string) string
	GetContent(ctx context.Context, messageID string) ([]byte, error)
}

// SheetWriter appends one saved conversation row.
type SheetWriter interface {
	SaveMessage(ctx context.Context, userID, userName, content string) error
}

// Uploader stores an attachment and manages the interactive OAuth flow.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name string) (string, error)
	AuthCodeURL() string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// NoteWriter persists one note record.
type NoteWriter interface {
	SaveNote(ctx context.Context, note notion.Note) error
}

// Transcriber runs the provider chain over an audio blob.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (text, provider string, ok bool)
}

// Assistant produces summaries and image classifications, degrading internally.
type Assistant interface {
	Summarize(ctx context.Context, text string) string
	DescribeImage(ctx context.Context, image []byte) (title, summary string)
}

type Bot struct {
	sessions    *session.Store
	line        Messenger
	sheets      SheetWriter
	drive       Uploader
	notes       NoteWriter
	assist      Assistant
	transcriber Transcriber

	now func() time.Time
}

func New(sessions *session.Store, line Messenger, sheets SheetWriter, uploader Uploader, notes NoteWriter, assist Assistant, transcriber Transcriber) *Bot {
	return &Bot{
		sessions:    sessions,
		line:        line,
		sheets:      sheets,
		drive:       uploader,
		notes:       notes,
		assist:      assist,
		transcriber: transcriber,
		now:         time.Now,
	}
}

// replySender enforces at-most-one use of the reply token per event.
type replySender struct {
	line       Messenger
	replyToken string
	used       bool
}

func (r *replySender) reply(ctx context.Context, text string) error {
	if r.used {
		return fmt.Errorf("reply token already used")
	}
	r.used = true
	return r.line.ReplyMessage(ctx, r.replyToken, text)
}

// HandleEvent dispatches one inbound event. Unexpected faults are caught here
// and converted to an apology on the best still-available channel.
func (b *Bot) HandleEvent(ctx context.Context, ev lineapi.Event) {
	telemetry.EventsReceived.WithLabelValues(string(ev.Kind)).Inc()
	rs := &replySender{line: b.line, replyToken: ev.ReplyToken}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", slog.Any("panic", r), slog.String("user", ev.UserID))
			b.apologize(ctx, rs, ev.UserID)
		}
	}()

	switch ev.Kind {
	case lineapi.KindText:
		b.handleText(ctx, rs, ev)
	case lineapi.KindAudio:
		b.handleAudio(ctx, rs, ev)
	case lineapi.KindImage:
		b.handleImage(ctx, rs, ev)
	default:
		if err := rs.reply(ctx, unsupportedReply); err != nil {
			slog.Error("unsupported-kind reply failed", slog.Any("err", err))
		}
	}

	telemetry.SetActiveSessions(b.sessions.RecordingCount())
}

func (b *Bot) apologize(ctx context.Context, rs *replySender, userID string) {
	if !rs.used {
		if err := rs.reply(ctx, "❌ 系統發生錯誤，請稍後再試。"); err == nil {
			return
		}
	}
	if err := b.line.PushMessage(ctx, userID, "❌ 系統發生錯誤，請稍後再試。"); err != nil {
		slog.Error("apology push failed", slog.Any("err", err))
	}
}

func (b *Bot) handleText(ctx context.Context, rs *replySender, ev lineapi.Event) {
	text := strings.TrimSpace(ev.Text)
	sess := b.sessions.GetOrCreate(ev.UserID)
	slog.Info("text message", slog.String("user", ev.UserID), slog.Int("len", len(text)))

	var replyText string
	switch {
	case strings.HasPrefix(text, "/auth "):
		replyText = b.completeAuth(ctx, strings.TrimSpace(strings.TrimPrefix(text, "/auth ")))

	case text == "/auth_url":
		replyText = b.authURL()

	case text == "/save":
		sess.StartRecording()
		replyText = saveReply

	case text == "/end":
		replyText = b.endRecording(ctx, sess, ev.UserID)

	case text == "/status":
		replyText = statusReply(sess)

	case text == "/help":
		replyText = helpReply

	default:
		replyText = b.freeText(ctx, sess, text)
	}

	if err := rs.reply(ctx, replyText); err != nil {
		slog.Error("text reply failed", slog.Any("err", err))
	}
}

func (b *Bot) authURL() string {
	if b.drive == nil {
		return "❌ Google Drive 未設定，無法產生授權連結。"
	}
	return fmt.Sprintf("🔑 請點擊連結進行 Google Drive 授權：\n\n%s\n\n授權完成後，請回覆：\n/auth 您的授權碼", b.drive.AuthCodeURL())
}

func (b *Bot) completeAuth(ctx context.Context, code string) string {
	if b.drive == nil {
		return "❌ 授權失敗: Google Drive 未設定"
	}
	if _, err := b.drive.Exchange(ctx, code); err != nil {
		return fmt.Sprintf("❌ 授權失敗: %v", err)
	}
	return "✅ 授權成功！圖片助手已就緒。"
}

func (b *Bot) endRecording(ctx context.Context, sess *session.Session, userID string) string {
	if !sess.Recording() || sess.Len() == 0 {
		return "❌ 目前沒有進行中的會議記錄。\n\n請先輸入 /save 開始記錄模式。"
	}

	conversation := sess.ConversationText()
	userName := b.line.GetProfile(ctx, userID)

	var replyText string
	if err := b.saveToSheets(ctx, userID, userName, conversation); err != nil {
		slog.Error("sheet save failed", slog.Any("err", err))
		replyText = "❌ 儲存失敗，請稍後再試。"
	} else {
		replyText = fmt.Sprintf("✅ 會議記錄已儲存到 Google Sheets！\n\n📄 總共記錄了 %d 條內容\n📊 總字數約 %d 字元", sess.Len(), len([]rune(conversation)))
	}
	sess.StopRecording()
	return replyText
}

func (b *Bot) saveToSheets(ctx context.Context, userID, userName, content string) error {
	if b.sheets == nil {
		return fmt.Errorf("sheets not configured")
	}
	return b.sheets.SaveMessage(ctx, userID, userName, content)
}

func statusReply(sess *session.Session) string {
	if !sess.Recording() {
		return "📊 會議記錄狀態：未開始\n\n輸入 /save 開始記錄模式"
	}
	conversation := sess.ConversationText()
	preview := conversation
	ellipsis := ""
	if r := []rune(conversation); len(r) > 500 {
		preview = string(r[:500])
		ellipsis = "..."
	}
	return fmt.Sprintf("📊 會議記錄狀態：進行中\n\n📝 已記錄 %d 條內容\n📄 目前內容:\n\n%s%s\n\n輸入 /end 結束並儲存", sess.Len(), preview, ellipsis)
}

// freeText is the non-command path: buffer and echo while recording, otherwise
// summarize and file the note immediately.
func (b *Bot) freeText(ctx context.Context, sess *session.Session, text string) string {
	if sess.Recording() {
		sess.AddMessage(text)
		return fmt.Sprintf("📝 已記錄文字訊息\n\n💬 目前累積內容:\n\n%s\n\n📊 共 %d 條記錄 | 輸入 /end 結束並儲存", sess.ConversationText(), sess.Len())
	}

	summary := b.assist.Summarize(ctx, text)
	saved := b.saveNote(ctx, notion.Note{Content: text, Summary: summary, Category: "文字筆記"})
	return fmt.Sprintf("📝 已收到筆記\n\n🔍 AI 摘要：\n%s\n\n%s", summary, notionStatus(saved, "⚠️ Notion 同步失敗 (請檢查金鑰)"))
}

func (b *Bot) saveNote(ctx context.Context, note notion.Note) bool {
	if b.notes == nil {
		return false
	}
	if err := b.notes.SaveNote(ctx, note); err != nil {
		slog.Error("notion save failed", slog.Any("err", err))
		return false
	}
	return true
}

func notionStatus(saved bool, failText string) string {
	if saved {
		return "✅ 已同步至 Notion"
	}
	return failText
}

// providerDisplay maps transcription provider names to the labels shown to the
// user.
func providerDisplay(provider string) string {
	switch provider {
	case "groq-whisper":
		return "Groq Whisper"
	case "openai-whisper":
		return "OpenAI Whisper"
	case "local-whisper":
		return "本地 Whisper AI"
	default:
		return provider
	}
}

func (b *Bot) handleAudio(ctx context.Context, rs *replySender, ev lineapi.Event) {
	slog.Info("audio message", slog.String("user", ev.UserID))
	sess := b.sessions.GetOrCreate(ev.UserID)

	audio, err := b.line.GetContent(ctx, ev.MessageID)
	if err != nil {
		slog.Error("audio download failed", slog.Any("err", err))
		b.guardedPush(ctx, ev.UserID, "❌ 語音處理發生伺服器錯誤，請檢查設定。")
		return
	}

	// Acknowledge fast; transcription continues past the reply token.
	if err := rs.reply(ctx, "🎤 收到語音，正在辨識中..."); err != nil {
		slog.Error("audio ack reply failed", slog.Any("err", err))
	}

	text, provider, ok := b.transcriber.Transcribe(ctx, audio)

	var resultText string
	switch {
	case !ok:
		resultText = "❌ 語音辨識失敗。原因可能是 API 額度用盡或伺服器繁忙，請稍後再試。"
	case sess.Recording():
		sess.AddMessage("[語音] " + text)
		resultText = fmt.Sprintf("✅ 【%s】辨識成功！\n\n📝 內容：\n%s\n\n💬 目前累積完整內容：\n\n%s\n\n📊 輸入 /end 結束並儲存", providerDisplay(provider), text, sess.ConversationText())
	default:
		summary := b.assist.Summarize(ctx, text)
		saved := b.saveNote(ctx, notion.Note{Content: text, Summary: summary, Category: "語音筆記"})
		resultText = fmt.Sprintf("🎤 語音助理辨識結果：\n\n%s\n\n🔍 AI 摘要：\n%s\n\n%s\n\n💡 提示：輸入 /save 可開啟會議記錄模式。", text, summary, notionStatus(saved, "⚠️ Notion 同步失敗"))
	}

	b.guardedPush(ctx, ev.UserID, resultText)
}

func (b *Bot) handleImage(ctx context.Context, rs *replySender, ev lineapi.Event) {
	slog.Info("image message", slog.String("user", ev.UserID))

	if err := rs.reply(ctx, "🖼️ 收到圖片，正在進行 AI 視覺分析與存檔..."); err != nil {
		slog.Error("image ack reply failed", slog.Any("err", err))
	}

	image, err := b.line.GetContent(ctx, ev.MessageID)
	if err != nil {
		slog.Error("image download failed", slog.Any("err", err))
		b.guardedPush(ctx, ev.UserID, "❌ 圖片處理失敗，請稍後再試。")
		return
	}

	title, summary := b.assist.DescribeImage(ctx, image)

	driveURL, uploadErr := b.uploadImage(ctx, image)
	if errors.Is(uploadErr, drive.ErrReauthRequired) {
		b.saveNote(ctx, notion.Note{Content: title, Summary: summary, Category: "圖片筆記"})
		b.guardedPush(ctx, ev.UserID, fmt.Sprintf("🖼️ 圖片分析完成，但上傳失敗。\n\n📌 標題：%s\n\n🔐 原因：Google Drive 需要重新授權。\n請點擊連結授權並回傳授權碼：\n%s\n\n回傳格式：/auth 您的授權碼", title, b.drive.AuthCodeURL()))
		return
	}

	saved := b.saveNote(ctx, notion.Note{Content: title, Summary: summary, Category: "圖片筆記", URL: driveURL})

	driveStatus := "❌ 雲端上傳失敗"
	if uploadErr == nil && driveURL != "" {
		driveStatus = fmt.Sprintf("📂 [雲端連結](%s)", driveURL)
	}
	b.guardedPush(ctx, ev.UserID, fmt.Sprintf("🖼️ 圖片分析完成！\n\n📌 標題：%s\n🔍 摘要：\n%s\n\n🔗 %s\n%s", title, summary, driveStatus, notionStatus(saved, "⚠️ Notion 同步失敗")))
}

func (b *Bot) uploadImage(ctx context.Context, image []byte) (string, error) {
	if b.drive == nil {
		return "", fmt.Errorf("drive not configured")
	}
	return b.drive.Upload(ctx, image, drive.FileName(b.now()))
}

// guardedPush never lets a failed push propagate.
func (b *Bot) guardedPush(ctx context.Context, userID, text string) {
	if err := b.line.PushMessage(ctx, userID, text); err != nil {
		slog.Error("push failed", slog.Any("err", err), slog.String("user", userID))
	}
}
