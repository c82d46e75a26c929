package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB opens a migrated throwaway database.
func openTestDB(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	conn, err := OpenWithDefaults(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenWithDefaults: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := MigrateUp(conn); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	store, err := NewStore(conn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return conn, store
}

func mustCreateUser(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.CreateUser(context.Background(), User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	conn, _ := openTestDB(t)
	if err := MigrateUp(conn); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}
	version, dirty, err := MigrationVersion(conn)
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if dirty {
		t.Error("schema reported dirty")
	}
	if version == 0 {
		t.Error("version = 0 after migration")
	}
}

func TestStore_CreateUserCreatesBalanceRow(t *testing.T) {
	conn, store := openTestDB(t)
	mustCreateUser(t, store, "u1")

	var appCredits, apiCredits int64
	err := conn.QueryRow(`SELECT app_credits, api_credits FROM balances WHERE user_id = ?`, "u1").
		Scan(&appCredits, &apiCredits)
	if err != nil {
		t.Fatalf("balance row missing: %v", err)
	}
	if appCredits != 0 || apiCredits != 0 {
		t.Errorf("fresh balance = (%d, %d), want (0, 0)", appCredits, apiCredits)
	}

	user, err := store.GetUserByEmail(context.Background(), "u1@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user.ID = %q, want u1", user.ID)
	}
}

func TestStore_GetUserNotFound(t *testing.T) {
	_, store := openTestDB(t)
	if _, err := store.GetUserByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStore_DuplicateEmailRejected(t *testing.T) {
	_, store := openTestDB(t)
	mustCreateUser(t, store, "u1")
	err := store.CreateUser(context.Background(), User{
		ID:           "u2",
		Email:        "u1@example.com",
		PasswordHash: "x",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email error = %v, want ErrConflict", err)
	}
}

func TestStore_APIKeyLifecycle(t *testing.T) {
	_, store := openTestDB(t)
	ctx := context.Background()
	mustCreateUser(t, store, "u1")

	key := APIKey{ID: "k1", UserID: "u1", SecretHash: "digest", Label: "ci"}
	if err := store.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("InsertAPIKey: %v", err)
	}

	got, err := store.GetAPIKey(ctx, "k1")
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got.RevokedAt != nil {
		t.Error("fresh key reports revoked")
	}
	if got.SecretHash != "digest" || got.Label != "ci" {
		t.Errorf("key roundtrip mismatch: %+v", got)
	}

	keys, err := store.ListAPIKeys(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("len(keys) = %d, want 1", len(keys))
	}

	if err := store.RevokeAPIKey(ctx, "u1", "k1"); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	got, err = store.GetAPIKey(ctx, "k1")
	if err != nil {
		t.Fatalf("GetAPIKey after revoke: %v", err)
	}
	if got.RevokedAt == nil {
		t.Error("revoked key missing RevokedAt")
	}

	// Double revoke and cross-user revoke both miss.
	if err := store.RevokeAPIKey(ctx, "u1", "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double revoke: got %v, want ErrNotFound", err)
	}
}

func TestStore_RevokeAPIKeyScopedToOwner(t *testing.T) {
	_, store := openTestDB(t)
	ctx := context.Background()
	mustCreateUser(t, store, "owner")
	mustCreateUser(t, store, "intruder")

	if err := store.InsertAPIKey(ctx, APIKey{ID: "k1", UserID: "owner", SecretHash: "d"}); err != nil {
		t.Fatalf("InsertAPIKey: %v", err)
	}
	if err := store.RevokeAPIKey(ctx, "intruder", "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user revoke: got %v, want ErrNotFound", err)
	}
}

func TestStore_SessionExpiry(t *testing.T) {
	_, store := openTestDB(t)
	ctx := context.Background()
	mustCreateUser(t, store, "u1")

	live := Session{Token: "t-live", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	dead := Session{Token: "t-dead", UserID: "u1", ExpiresAt: time.Now().Add(-time.Hour)}
	for _, s := range []Session{live, dead} {
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession(%s): %v", s.Token, err)
		}
	}

	if _, err := store.GetSession(ctx, "t-live"); err != nil {
		t.Errorf("live session: %v", err)
	}
	if _, err := store.GetSession(ctx, "t-dead"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: got %v, want ErrNotFound", err)
	}

	deleted, err := store.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestStore_GenerationHistory(t *testing.T) {
	_, store := openTestDB(t)
	ctx := context.Background()
	mustCreateUser(t, store, "u1")

	for i, name := range []string{"a.png", "b.png", "c.png"} {
		err := store.InsertGeneration(ctx, GenerationRecord{
			UserID:      "u1",
			ConfigJSON:  `{"gender":"female"}`,
			ImageName:   name,
			Transparent: i == 2,
		})
		if err != nil {
			t.Fatalf("InsertGeneration(%s): %v", name, err)
		}
	}

	records, err := store.ListGenerations(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListGenerations: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].ImageName != "c.png" {
		t.Errorf("newest first: got %q, want c.png", records[0].ImageName)
	}
	if !records[0].Transparent {
		t.Error("transparent flag lost on roundtrip")
	}
}
