// Package drive uploads note attachments to Google Drive over a user OAuth
// credential and hands back a public download URL. Tokens come from the first
// available source: a local token file, a configured refresh token, or the
// database; refreshed tokens are written back so later deploys reuse them.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/yctsai/notetender/telemetry"
)

const provider = "google"

var scopes = []string{gdrive.DriveScope}

// ErrReauthRequired signals that no usable credential exists and the user must
// run the interactive OAuth flow again.
var ErrReauthRequired = errors.New("google drive authorization required")

// TokenStore persists OAuth tokens across restarts.
type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, scope string, err error)
}

type Service struct {
	oauth        *oauth2.Config
	store        TokenStore
	folderID     string
	refreshToken string // seed from GOOGLE_REFRESH_TOKEN, used when no stored token exists
	tokenFile    string
	opts         []option.ClientOption
}

// New builds the adapter. refreshToken may be empty; it is only a bootstrap
// credential for deployments that have never run the interactive flow.
func New(clientID, clientSecret, refreshToken, folderID string, store TokenStore, opts ...option.ClientOption) *Service {
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       scopes,
		},
		store:        store,
		folderID:     folderID,
		refreshToken: refreshToken,
		tokenFile:    "token.json",
		opts:         opts,
	}
}

// WithTokenFile overrides the local token cache path (tests use a temp dir).
func (s *Service) WithTokenFile(path string) *Service {
	s.tokenFile = path
	return s
}

// AuthCodeURL returns the interactive consent URL. Offline access plus forced
// approval so Google always hands back a refresh token.
func (s *Service) AuthCodeURL() string {
	return s.oauth.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and persists them.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	s.persist(ctx, tok)
	return tok, nil
}

// Refresh exchanges a refresh token for a fresh access token. Wired into the
// background token refresher.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	return tok.AccessToken, tok.RefreshToken, tok.Expiry, "", nil
}

// credentials resolves a token in priority order: local token file, seed
// refresh token, database. No source at all means re-authorization.
func (s *Service) credentials(ctx context.Context) (*oauth2.Token, error) {
	if b, err := os.ReadFile(s.tokenFile); err == nil {
		var tok oauth2.Token
		if err := json.Unmarshal(b, &tok); err == nil && tok.RefreshToken != "" {
			slog.Info("loaded drive credential from token file")
			return s.freshen(ctx, &tok)
		}
		slog.Warn("token file unreadable; trying other sources", slog.String("path", s.tokenFile))
	}

	if s.refreshToken != "" {
		slog.Info("loaded drive credential from refresh token config")
		return s.freshen(ctx, &oauth2.Token{RefreshToken: s.refreshToken})
	}

	if s.store != nil {
		access, refresh, expiry, _, err := s.store.GetOAuthToken(ctx, provider)
		if err == nil && refresh != "" {
			slog.Info("loaded drive credential from database")
			return s.freshen(ctx, &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry})
		}
	}

	return nil, ErrReauthRequired
}

// freshen refreshes an expired token and writes the result back to every
// store that accepts it.
func (s *Service) freshen(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok.Valid() {
		return tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh drive token: %w", err)
	}
	s.persist(ctx, newTok)
	return newTok, nil
}

func (s *Service) persist(ctx context.Context, tok *oauth2.Token) {
	if s.store != nil {
		if err := s.store.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, ""); err != nil {
			slog.Error("persist drive token to db failed", slog.Any("err", err))
		}
	}
	if b, err := json.Marshal(tok); err == nil {
		if err := os.WriteFile(s.tokenFile, b, 0o600); err != nil {
			slog.Warn("persist drive token to file failed", slog.Any("err", err))
		}
	}
}

func (s *Service) client(ctx context.Context) (*gdrive.Service, error) {
	tok, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(s.oauth.TokenSource(ctx, tok))}, s.opts...)
	return gdrive.NewService(ctx, opts...)
}

// Upload stores the bytes under the given name, makes the file publicly
// readable, and returns a direct download URL. Returns ErrReauthRequired when
// no credential can be acquired.
func (s *Service) Upload(ctx context.Context, data []byte, name string) (string, error) {
	svc, err := s.client(ctx)
	if err != nil {
		if !errors.Is(err, ErrReauthRequired) {
			telemetry.DriveUploadsFailed.Inc()
		}
		return "", err
	}

	meta := &gdrive.File{Name: name}
	if s.folderID != "" {
		meta.Parents = []string{s.folderID}
	}
	file, err := svc.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType("image/jpeg")).
		Fields("id").
		Context(ctx).Do()
	if err != nil {
		telemetry.DriveUploadsFailed.Inc()
		return "", fmt.Errorf("drive upload: %w", err)
	}

	_, err = svc.Permissions.Create(file.Id, &gdrive.Permission{Type: "anyone", Role: "reader"}).Context(ctx).Do()
	if err != nil {
		telemetry.DriveUploadsFailed.Inc()
		return "", fmt.Errorf("set public permission: %w", err)
	}

	telemetry.DriveUploadsSucceeded.Inc()
	return "https://drive.google.com/uc?id=" + file.Id, nil
}

// FileName builds the timestamp-derived upload name for an image attachment.
func FileName(t time.Time) string {
	return "image_" + t.Format("20060102_150405") + ".jpg"
}
