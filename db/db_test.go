package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func setup(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return dbx
}

func TestMigrateIdempotent(t *testing.T) {
	dbx := setup(t)
	// Running migrations twice must not error.
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	dbx := setup(t)
	ctx := context.Background()
	provider := "google_test_roundtrip"
	t.Cleanup(func() {
		_, _ = dbx.ExecContext(context.Background(), `DELETE FROM oauth_tokens WHERE provider=$1`, provider)
	})

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := UpsertOAuthToken(ctx, dbx, provider, "acc-1", "ref-1", expiry, "drive"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	access, refresh, exp, scope, err := GetOAuthToken(ctx, dbx, provider)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "acc-1" || refresh != "ref-1" || scope != "drive" {
		t.Errorf("got (%q,%q,%q), want (acc-1, ref-1, drive)", access, refresh, scope)
	}
	if !exp.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", exp, expiry)
	}

	// Upsert replaces the existing row.
	if err := UpsertOAuthToken(ctx, dbx, provider, "acc-2", "ref-2", expiry, "drive"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	access, refresh, _, _, err = GetOAuthToken(ctx, dbx, provider)
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if access != "acc-2" || refresh != "ref-2" {
		t.Errorf("got (%q,%q), want (acc-2, ref-2)", access, refresh)
	}
}

func TestGetOAuthTokenMissingProvider(t *testing.T) {
	dbx := setup(t)
	access, refresh, exp, scope, err := GetOAuthToken(context.Background(), dbx, "no_such_provider")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "" || refresh != "" || scope != "" || !exp.IsZero() {
		t.Errorf("expected zero values for missing provider, got (%q,%q,%v,%q)", access, refresh, exp, scope)
	}
}

func TestKVRoundTrip(t *testing.T) {
	dbx := setup(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbx.ExecContext(context.Background(), `DELETE FROM kv WHERE key='test_kv_key'`)
	})
	if err := SetKV(ctx, dbx, "test_kv_key", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetKV(ctx, dbx, "test_kv_key", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := GetKV(ctx, dbx, "test_kv_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "v2" {
		t.Errorf("value = %q, want v2", v)
	}
	v, err = GetKV(ctx, dbx, "absent_key")
	if err != nil || v != "" {
		t.Errorf("absent key = (%q, %v), want empty, nil", v, err)
	}
}
