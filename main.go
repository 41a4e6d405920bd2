// Command notetender is the main entrypoint for the note-taking bot service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Wires the messaging client, transcription chain, AI providers, and the
//     Sheets/Drive/Notion adapters into the event router.
//   - Starts the OAuth token refresher for the Drive credential.
//   - Exposes the webhook callback plus /health, /healthz, /status, /config,
//     and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yctsai/notetender/ai"
	"github.com/yctsai/notetender/bot"
	"github.com/yctsai/notetender/config"
	"github.com/yctsai/notetender/db"
	"github.com/yctsai/notetender/drive"
	"github.com/yctsai/notetender/lineapi"
	"github.com/yctsai/notetender/notion"
	"github.com/yctsai/notetender/oauth"
	"github.com/yctsai/notetender/server"
	"github.com/yctsai/notetender/session"
	"github.com/yctsai/notetender/sheets"
	"github.com/yctsai/notetender/telemetry"
	"github.com/yctsai/notetender/transcribe"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateLine(); err != nil {
		slog.Error("line configuration invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	shutdown, err := telemetry.InitTracing("notetender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	line := lineapi.New(cfg.LineChannelSecret, cfg.LineChannelToken, cfg.LineAPIBase, cfg.LineDataAPIBase)

	dispatcher := transcribe.NewDispatcher(
		providerOrNil(transcribe.NewGroqWhisper(cfg.GroqAPIKey, cfg.Language)),
		providerOrNil(transcribe.NewOpenAIWhisper(cfg.OpenAIAPIKey, cfg.Language)),
		localOrNil(transcribe.NewLocalWhisper(cfg.WhisperBin, cfg.WhisperModelSize, cfg.Language, cfg.ChunkThresholdMB())),
	)

	var summarizers []ai.Summarizer
	var describers []ai.ImageDescriber
	if groq := ai.NewGroqChat(cfg.GroqAPIKey); groq != nil {
		summarizers = append(summarizers, groq)
		describers = append(describers, groq)
	}
	if gemini := ai.NewGemini(ctx, cfg.GeminiAPIKey); gemini != nil {
		summarizers = append(summarizers, gemini)
		describers = append(describers, gemini)
	}
	assistant := ai.NewAssistant(summarizers, describers)

	var sheetSvc *sheets.Service
	if cfg.SheetsID != "" {
		sheetSvc, err = sheets.New(ctx, cfg.SheetsID, string(cfg.GoogleCredsJSON))
		if err != nil {
			slog.Warn("sheets adapter disabled", slog.Any("err", err))
			sheetSvc = nil
		}
	} else {
		slog.Warn("GOOGLE_SHEETS_ID not set; sheet logging disabled")
	}

	var driveSvc *drive.Service
	if err := cfg.ValidateDriveOAuth(); err != nil {
		slog.Warn("drive adapter disabled", slog.Any("err", err))
	} else {
		driveSvc = drive.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRefreshToken, cfg.DriveFolderID, &db.TokenStoreAdapter{DB: database})
	}

	noteClient := notion.New(cfg.NotionToken, cfg.NotionDatabaseID)

	sessions := session.NewStore()
	router := bot.New(sessions, line,
		sheetsOrNil(sheetSvc),
		driveOrNil(driveSvc),
		notesOrNil(noteClient),
		assistant,
		dispatcher,
	)

	if driveSvc != nil {
		oauth.StartRefresher(ctx, database, "google", 10*time.Minute, 20*time.Minute, driveSvc.Refresh)
	}

	handlers := server.NewHandlers(database, line, router, pingerOrNil(sheetSvc), sessions)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	slog.Info("starting http server", slog.String("addr", addr))
	if err := server.Start(ctx, handlers, addr); err != nil {
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}

// The *OrNil helpers convert typed-nil concrete pointers into untyped nil
// interface values so optional adapters stay skippable downstream.

func providerOrNil(p *transcribe.WhisperAPI) transcribe.Provider {
	if p == nil {
		return nil
	}
	return p
}

func localOrNil(p *transcribe.LocalWhisper) transcribe.Provider {
	if p == nil {
		return nil
	}
	return p
}

func sheetsOrNil(s *sheets.Service) bot.SheetWriter {
	if s == nil {
		return nil
	}
	return s
}

func driveOrNil(d *drive.Service) bot.Uploader {
	if d == nil {
		return nil
	}
	return d
}

func notesOrNil(n *notion.Client) bot.NoteWriter {
	if n == nil {
		return nil
	}
	return n
}

func pingerOrNil(s *sheets.Service) server.Pinger {
	if s == nil {
		return nil
	}
	return s
}
