package notion

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/yctsai/notetender/telemetry"
	"github.com/yctsai/notetender/testutil"
)

func TestSaveNote(t *testing.T) {
	telemetry.Init()
	srv := testutil.NewMockNotionServer(t)

	c := New("secret-token", "db-42").WithBaseURL(srv.URL)
	err := c.SaveNote(context.Background(), Note{
		Content:  "今天的會議記錄",
		Summary:  "討論了排程",
		Category: "文字筆記",
		URL:      "https://drive.google.com/uc?id=file-1",
	})
	if err != nil {
		t.Fatalf("SaveNote: %v", err)
	}

	if len(srv.Pages) != 1 {
		t.Fatalf("pages = %v", srv.Pages)
	}
	if got := srv.Headers[0].Get("Notion-Version"); got != "2022-06-28" {
		t.Errorf("Notion-Version = %q", got)
	}
	if got := srv.Headers[0].Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("auth = %q", got)
	}
	parent := srv.Pages[0]["parent"].(map[string]any)
	if parent["database_id"] != "db-42" {
		t.Errorf("parent = %v", parent)
	}
	props := srv.Pages[0]["properties"].(map[string]any)
	for _, key := range []string{"名稱", "摘要", "類型", "URL"} {
		if _, ok := props[key]; !ok {
			t.Errorf("missing property %q in %v", key, props)
		}
	}
}

func TestSaveNoteOmitsEmptyURL(t *testing.T) {
	telemetry.Init()
	srv := testutil.NewMockNotionServer(t)

	c := New("tok", "db").WithBaseURL(srv.URL)
	if err := c.SaveNote(context.Background(), Note{Content: "note", Summary: "s", Category: "文字筆記"}); err != nil {
		t.Fatalf("SaveNote: %v", err)
	}
	props := srv.Pages[0]["properties"].(map[string]any)
	if _, ok := props["URL"]; ok {
		t.Errorf("URL property present for empty url")
	}
}

func TestSaveNoteTruncatesTitle(t *testing.T) {
	telemetry.Init()
	srv := testutil.NewMockNotionServer(t)

	c := New("tok", "db").WithBaseURL(srv.URL)
	long := strings.Repeat("字", 2100)
	if err := c.SaveNote(context.Background(), Note{Content: long, Summary: "s", Category: "文字筆記"}); err != nil {
		t.Fatalf("SaveNote: %v", err)
	}

	title := srv.Pages[0]["properties"].(map[string]any)["名稱"].(map[string]any)["title"].([]any)
	content := title[0].(map[string]any)["text"].(map[string]any)["content"].(string)
	if n := len([]rune(content)); n != 2000 {
		t.Errorf("title length = %d runes, want 2000", n)
	}
}

func TestSaveNoteFailureStatus(t *testing.T) {
	telemetry.Init()
	srv := testutil.NewMockNotionServer(t)
	srv.FailStatus = http.StatusBadRequest

	c := New("tok", "db").WithBaseURL(srv.URL)
	if err := c.SaveNote(context.Background(), Note{Content: "x"}); err == nil {
		t.Errorf("expected error on non-200 status")
	}
}

func TestNewUnconfigured(t *testing.T) {
	if c := New("", "db"); c != nil {
		t.Errorf("expected nil client without token")
	}
	if c := New("tok", ""); c != nil {
		t.Errorf("expected nil client without database id")
	}
}
