package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yctsai/notetender/lineapi"
	"github.com/yctsai/notetender/session"
	"github.com/yctsai/notetender/telemetry"
)

// EventHandler dispatches one parsed webhook event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev lineapi.Event)
}

// SignatureValidator checks the webhook signature header against the raw body.
type SignatureValidator interface {
	ValidateSignature(body []byte, signature string) bool
}

// Pinger probes an external dependency for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db        *sql.DB
	validator SignatureValidator
	bot       EventHandler
	sheets    Pinger
	sessions  *session.Store
}

func NewHandlers(db *sql.DB, validator SignatureValidator, bot EventHandler, sheets Pinger, sessions *session.Store) *Handlers {
	return &Handlers{db: db, validator: validator, bot: bot, sheets: sheets, sessions: sessions}
}

// HandleCallback is the webhook entry point. Missing or invalid signatures are
// rejected before any event parsing; a valid request is acknowledged with a
// fixed "OK" body after all events are dispatched.
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if signature == "" {
		slog.Warn("webhook missing signature header")
		http.Error(w, "missing signature", http.StatusBadRequest)
		return
	}
	if !h.validator.ValidateSignature(body, signature) {
		slog.Warn("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	slog.Info("webhook received", slog.Int("body_len", len(body)))

	events, err := lineapi.ParseWebhook(body)
	if err != nil {
		slog.Error("webhook decode failed", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, ev := range events {
		h.bot.HandleEvent(r.Context(), ev)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// HandleHealth reports overall health plus the spreadsheet dependency, in the
// shape external monitors poll.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sheetsStatus := "ok"
	var probeErr error
	if h.sheets == nil {
		sheetsStatus = "error"
	} else if probeErr = h.sheets.Ping(r.Context()); probeErr != nil {
		sheetsStatus = "error"
	}

	if probeErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "unhealthy",
			"error":     probeErr.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":        "healthy",
		"google_sheets": sheetsStatus,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

// HandleHealthz is the liveness probe: database connectivity only.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus returns a lightweight runtime summary.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := map[string]any{
		"sessions":           h.sessions.Count(),
		"recording_sessions": h.sessions.RecordingCount(),
		"tracing_enabled":    telemetry.IsTracingEnabled(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleConfig exposes GET/PUT for safe configuration keys. Secrets are never
// listed here.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	safeKeys := map[string]bool{
		"LOG_LEVEL":          true,
		"LOG_FORMAT":         true,
		"LANGUAGE":           true,
		"WHISPER_MODEL_SIZE": true,
		"WHISPER_CHUNK_MB":   true,
	}
	switch r.Method {
	case http.MethodGet:
		out := map[string]string{}
		for k := range safeKeys {
			var v string
			if h.db != nil {
				_ = h.db.QueryRowContext(r.Context(), `SELECT value FROM kv WHERE key=$1`, "cfg:"+k).Scan(&v)
			}
			if v == "" {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut:
		if h.db == nil {
			http.Error(w, "config store unavailable", http.StatusServiceUnavailable)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		for k, v := range body {
			if !safeKeys[k] {
				continue
			}
			if _, err := h.db.ExecContext(
				r.Context(),
				`INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW()) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
				"cfg:"+k,
				strings.TrimSpace(v),
			); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
