package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/homequest/internal/database"
	"github.com/dukerupert/homequest/internal/model"
)

type testStores struct {
	db          *sql.DB
	accounts    *AccountStore
	groups      *GroupStore
	quests      *QuestStore
	submissions *SubmissionStore
	shop        *ShopStore
}

func setupTestDB(t *testing.T) *testStores {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &testStores{
		db:          db,
		accounts:    NewAccountStore(db),
		groups:      NewGroupStore(db),
		quests:      NewQuestStore(db),
		submissions: NewSubmissionStore(db),
		shop:        NewShopStore(db),
	}
}

// seedGroup creates an owner, a second member and a group they share.
func seedGroup(t *testing.T, ts *testStores) (owner, member *model.Account, g *model.Group) {
	t.Helper()
	ctx := context.Background()

	owner, err := ts.accounts.Create(ctx, "Olive", "hash")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	member, err = ts.accounts.Create(ctx, "Milo", "hash")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	g, err = ts.groups.Create(ctx, "Maple House", owner.ID)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, _, err := ts.groups.AddMember(ctx, g.ID, member.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return owner, member, g
}

func TestAccountCreateAndGet(t *testing.T) {
	ts := setupTestDB(t)
	ctx := context.Background()

	a, err := ts.accounts.Create(ctx, "Olive", "secret-hash")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if a.Name != "Olive" {
		t.Errorf("name = %q, want %q", a.Name, "Olive")
	}
	if a.PasswordHash != "secret-hash" {
		t.Errorf("password hash = %q, want %q", a.PasswordHash, "secret-hash")
	}

	got, err := ts.accounts.GetByID(ctx, 999)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing account")
	}
}
