// Package sheets appends a running log of saved notes to a Google spreadsheet
// using a service-account credential. One row per saved conversation; a fixed
// 4-column header is re-created whenever it is missing or malformed.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/yctsai/notetender/telemetry"
)

var headerRow = []any{"時間戳記", "用戶ID", "用戶顯示名稱", "訊息內容"}

// Service wraps the Sheets API for a single configured spreadsheet.
type Service struct {
	spreadsheetID string
	api           *gsheets.Service

	// now is swapped in tests for deterministic timestamps.
	now func() time.Time
}

// New builds the adapter from service-account JSON. Extra options let tests
// point the client at a mock server.
func New(ctx context.Context, spreadsheetID, credentialsJSON string, opts ...option.ClientOption) (*Service, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("missing GOOGLE_SHEETS_ID")
	}
	if credentialsJSON != "" {
		opts = append([]option.ClientOption{
			option.WithCredentialsJSON([]byte(credentialsJSON)),
			option.WithScopes(gsheets.SpreadsheetsScope),
		}, opts...)
	}
	api, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets client: %w", err)
	}
	return &Service{spreadsheetID: spreadsheetID, api: api, now: time.Now}, nil
}

// SaveMessage ensures the header row exists and appends a timestamped row of
// (timestamp, user id, display name, content). Header repair and the append
// are separate writes; a failure in between leaves the header in place.
func (s *Service) SaveMessage(ctx context.Context, userID, userName, content string) error {
	s.ensureHeader(ctx)

	row := []any{s.now().Format("2006-01-02 15:04:05"), userID, userName, content}
	_, err := s.api.Spreadsheets.Values.
		Append(s.spreadsheetID, "A1", &gsheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	telemetry.SheetRowsAppended.Inc()
	slog.Info("saved message to sheet", slog.String("user", userName))
	return nil
}

// ensureHeader rewrites the header when row 1 has fewer than 4 columns. Errors
// here are logged and swallowed so a flaky read never blocks the append.
func (s *Service) ensureHeader(ctx context.Context) {
	resp, err := s.api.Spreadsheets.Values.Get(s.spreadsheetID, "A1:D1").Context(ctx).Do()
	if err != nil {
		slog.Warn("header check failed", slog.Any("err", err))
		return
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) >= 4 {
		return
	}
	_, err = s.api.Spreadsheets.Values.
		Update(s.spreadsheetID, "A1:D1", &gsheets.ValueRange{Values: [][]any{headerRow}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		slog.Warn("header write failed", slog.Any("err", err))
		return
	}
	slog.Info("created sheet header row")
}

// Ping verifies the spreadsheet is reachable. Used by the health endpoint.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.api.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("spreadsheet unreachable: %w", err)
	}
	return nil
}
