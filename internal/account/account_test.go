package account

import "testing"

func TestLedgerOpenIsIdempotent(t *testing.T) {
	l := NewLedger()

	a := l.Open("alice", 1000)
	a.Balance = 250
	if again := l.Open("alice", 1000); again.Balance != 250 {
		t.Fatalf("reopen reset the balance to %v", again.Balance)
	}

	if _, err := l.Get("bob"); err == nil {
		t.Fatal("unknown account did not error")
	}
}

func TestEntryAccess(t *testing.T) {
	owned := &Entry{ID: "alice", Owners: []string{"alice", "carol"}}
	if !owned.HasAccess("carol") || owned.HasAccess("bob") {
		t.Fatal("owner list not enforced")
	}

	open := &Entry{ID: "bank"}
	if !open.HasAccess("anyone") {
		t.Fatal("ownerless account should be open")
	}
}

func TestRestoreReplacesLedger(t *testing.T) {
	l := NewLedger()
	l.Open("stale", 1)

	l.Restore([]*Entry{{ID: "alice", Balance: 42}})
	if _, err := l.Get("stale"); err == nil {
		t.Fatal("restore kept a stale account")
	}
	a, err := l.Get("alice")
	if err != nil || a.Balance != 42 {
		t.Fatalf("restored account = %+v, %v", a, err)
	}
}
