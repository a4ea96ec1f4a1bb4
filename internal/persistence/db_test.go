package persistence

import (
	"path/filepath"
	"testing"

	"github.com/talgya/bazaar/internal/account"
	"github.com/talgya/bazaar/internal/market"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWareStateRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if db.HasMarketState() {
		t.Fatal("fresh database claims saved state")
	}

	in := []market.WareState{
		{ID: "grain", Quantity: 17},
		{ID: "wool", Quantity: 200},
	}
	if err := db.SaveWareState(in); err != nil {
		t.Fatal(err)
	}
	if !db.HasMarketState() {
		t.Fatal("saved state not detected")
	}

	out, err := db.LoadWareState()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].ID != "grain" || out[0].Quantity != 17 {
		t.Fatalf("loaded state = %v", out)
	}

	// A second save replaces, not appends.
	if err := db.SaveWareState(in[:1]); err != nil {
		t.Fatal(err)
	}
	out, _ = db.LoadWareState()
	if len(out) != 1 {
		t.Fatalf("state after replace = %v", out)
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	in := []*account.Entry{
		{ID: "alice", Balance: 123.45, Owners: []string{"alice"}},
		{ID: "bank", Balance: 1e6},
	}
	if err := db.SaveAccounts(in); err != nil {
		t.Fatal(err)
	}

	out, err := db.LoadAccounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("loaded %d accounts, want 2", len(out))
	}
	byID := map[string]*account.Entry{}
	for _, e := range out {
		byID[e.ID] = e
	}
	if byID["alice"].Balance != 123.45 || len(byID["alice"].Owners) != 1 {
		t.Fatalf("alice = %+v", byID["alice"])
	}
	if !byID["bank"].HasAccess("anyone") {
		t.Fatal("ownerless account should stay open after reload")
	}
}

func TestEventLogAppendsAndLimits(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveEvents([]Event{
		{Tick: 1, Description: "good harvest", Category: "event"},
		{Tick: 2, Description: "rebalance", Category: "worker"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveEvents([]Event{
		{Tick: 3, Description: "drought", Category: "event"},
	}); err != nil {
		t.Fatal(err)
	}

	events, err := db.RecentEvents(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Description != "drought" {
		t.Fatalf("newest event = %+v", events[0])
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveMeta("last_tick", "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta("last_tick", "43"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMeta("last_tick")
	if err != nil {
		t.Fatal(err)
	}
	if v != "43" {
		t.Fatalf("meta = %q, want 43", v)
	}
	if _, err := db.GetMeta("absent"); err == nil {
		t.Fatal("missing key should error")
	}
}
