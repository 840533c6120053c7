package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// newTestStore connects to the database named by LOOM_TEST_DATABASE_URL,
// resets the public schema and applies the migrations from scratch. Tests
// using it are skipped when the variable is unset.
func newTestStore(t *testing.T) (context.Context, *PostgresStore) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("LOOM_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LOOM_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	return ctx, NewPostgresStore(db)
}

func TestUpsertAccountRoundTripPostgres(t *testing.T) {
	ctx, s := newTestStore(t)

	if err := s.UpsertAccount(ctx, "acc_1", "Alice", "Alice A", "climber", "https://img.example/a.png"); err != nil {
		t.Fatalf("upsert account: %v", err)
	}

	account, err := s.GetAccount(ctx, "acc_1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Username != "alice" {
		t.Fatalf("expected lowercased username, got %q", account.Username)
	}
	if account.Name != "Alice A" || account.Bio != "climber" || account.Image != "https://img.example/a.png" {
		t.Fatalf("fields did not round trip: %+v", account)
	}
	if !account.Onboarded {
		t.Fatal("expected onboarded true after upsert")
	}
	if account.ContentIDs == nil || account.GroupIDs == nil {
		t.Fatal("expected empty arrays, not nil")
	}

	// Repeating the identical call must not change the stored state.
	if err := s.UpsertAccount(ctx, "acc_1", "Alice", "Alice A", "climber", "https://img.example/a.png"); err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}
	again, err := s.GetAccount(ctx, "acc_1")
	if err != nil {
		t.Fatalf("get account after repeat: %v", err)
	}
	account.UpdatedAt = again.UpdatedAt
	if !reflect.DeepEqual(account, again) {
		t.Fatalf("repeat upsert changed state:\n first %+v\nsecond %+v", account, again)
	}

	// Second account reusing the username hits the unique index.
	err = s.UpsertAccount(ctx, "acc_2", "ALICE", "Imposter", "", "")
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) || dup.Field != "username" {
		t.Fatalf("expected username DuplicateKey, got %v", err)
	}
}

func TestCreateGroupRoundTripPostgres(t *testing.T) {
	ctx, s := newTestStore(t)

	if err := s.UpsertAccount(ctx, "acc_1", "alice", "Alice", "", ""); err != nil {
		t.Fatalf("upsert creator: %v", err)
	}
	if err := s.CreateGroup(ctx, Group{ID: "grp_1", Username: "builders", Name: "Builders", CreatedBy: "acc_1"}); err != nil {
		t.Fatalf("create group: %v", err)
	}

	group, err := s.GetGroup(ctx, "grp_1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if !reflect.DeepEqual(group.MemberIDs, []string{"acc_1"}) {
		t.Fatalf("expected creator seeded into members, got %v", group.MemberIDs)
	}
	creator, err := s.GetAccount(ctx, "acc_1")
	if err != nil {
		t.Fatalf("get creator: %v", err)
	}
	if !reflect.DeepEqual(creator.GroupIDs, []string{"grp_1"}) {
		t.Fatalf("expected membership on creator, got %v", creator.GroupIDs)
	}

	var dup *DuplicateKeyError

	err = s.CreateGroup(ctx, Group{ID: "grp_2", Username: "builders", Name: "Copy", CreatedBy: "acc_1"})
	if !errors.As(err, &dup) || dup.Field != "username" {
		t.Fatalf("expected username DuplicateKey, got %v", err)
	}

	// A replayed group id conflicts on the primary key, not the username.
	err = s.CreateGroup(ctx, Group{ID: "grp_1", Username: "other", Name: "Replay", CreatedBy: "acc_1"})
	if !errors.As(err, &dup) || dup.Field != "id" {
		t.Fatalf("expected id DuplicateKey, got %v", err)
	}

	err = s.CreateGroup(ctx, Group{ID: "grp_3", Username: "ghosts", Name: "Ghosts", CreatedBy: "acc_missing"})
	if !IsNotFound(err) {
		t.Fatalf("expected NotFound for a missing creator, got %v", err)
	}
}

func TestArrayOperatorsKeepOrderPostgres(t *testing.T) {
	ctx, s := newTestStore(t)

	if err := s.UpsertAccount(ctx, "acc_1", "alice", "Alice", "", ""); err != nil {
		t.Fatalf("upsert account: %v", err)
	}
	for _, id := range []string{"cnt_1", "cnt_2", "cnt_3", "cnt_4"} {
		if err := s.AppendAccountContent(ctx, "acc_1", id); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if err := s.PurgeAccountContentRefs(ctx, "acc_1", []string{"cnt_2", "cnt_missing"}); err != nil {
		t.Fatalf("purge: %v", err)
	}
	account, err := s.GetAccount(ctx, "acc_1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !reflect.DeepEqual(account.ContentIDs, []string{"cnt_1", "cnt_3", "cnt_4"}) {
		t.Fatalf("expected survivors in original order, got %v", account.ContentIDs)
	}

	// Purging again must leave the array unchanged.
	if err := s.PurgeAccountContentRefs(ctx, "acc_1", []string{"cnt_2", "cnt_missing"}); err != nil {
		t.Fatalf("repeat purge: %v", err)
	}
	account, err = s.GetAccount(ctx, "acc_1")
	if err != nil {
		t.Fatalf("get account after repeat: %v", err)
	}
	if !reflect.DeepEqual(account.ContentIDs, []string{"cnt_1", "cnt_3", "cnt_4"}) {
		t.Fatalf("repeat purge changed the array: %v", account.ContentIDs)
	}

	if err := s.AppendAccountContent(ctx, "acc_missing", "cnt_9"); err == nil || !IsNotFound(err) {
		t.Fatalf("expected NotFound appending to a missing account, got %v", err)
	}
}

func TestGroupMemberOperatorsPostgres(t *testing.T) {
	ctx, s := newTestStore(t)

	if err := s.UpsertAccount(ctx, "acc_1", "alice", "Alice", "", ""); err != nil {
		t.Fatalf("upsert creator: %v", err)
	}
	if err := s.CreateGroup(ctx, Group{ID: "grp_1", Username: "builders", Name: "Builders", CreatedBy: "acc_1"}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := s.AppendGroupMember(ctx, "grp_1", "acc_2"); err != nil {
		t.Fatalf("append member: %v", err)
	}

	group, err := s.GetGroup(ctx, "grp_1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if !reflect.DeepEqual(group.MemberIDs, []string{"acc_1", "acc_2"}) {
		t.Fatalf("expected two members, got %v", group.MemberIDs)
	}

	if err := s.RemoveGroupMember(ctx, "grp_1", "acc_2"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	// Removing the same member again is a no-op, not an error.
	if err := s.RemoveGroupMember(ctx, "grp_1", "acc_2"); err != nil {
		t.Fatalf("repeat remove: %v", err)
	}
	group, err = s.GetGroup(ctx, "grp_1")
	if err != nil {
		t.Fatalf("get group after removes: %v", err)
	}
	if !reflect.DeepEqual(group.MemberIDs, []string{"acc_1"}) {
		t.Fatalf("expected creator only, got %v", group.MemberIDs)
	}

	if err := s.RemoveGroupMember(ctx, "grp_missing", "acc_2"); !IsNotFound(err) {
		t.Fatalf("expected NotFound for a missing group, got %v", err)
	}
}

func TestSearchMatchesWildcardsLiterallyPostgres(t *testing.T) {
	ctx, s := newTestStore(t)

	if err := s.UpsertAccount(ctx, "acc_1", "pct1", "100% match", "", ""); err != nil {
		t.Fatalf("upsert acc_1: %v", err)
	}
	if err := s.UpsertAccount(ctx, "acc_2", "pct2", "100x match", "", ""); err != nil {
		t.Fatalf("upsert acc_2: %v", err)
	}

	items, err := s.SearchAccounts(ctx, "0% m", "", true, 10, 0)
	if err != nil {
		t.Fatalf("search accounts: %v", err)
	}
	if len(items) != 1 || items[0].ID != "acc_1" {
		t.Fatalf("expected only the literal match, got %+v", items)
	}

	count, err := s.CountAccounts(ctx, "0% m", "")
	if err != nil {
		t.Fatalf("count accounts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}
