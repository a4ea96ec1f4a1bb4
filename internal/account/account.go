// Package account is the ledger boundary consumed by trade operations.
// The marketplace only ever debits, credits, and checks permission; the
// bookkeeping behind that is the host's business.
package account

import (
	"fmt"
	"sync"
)

// Account is what a trade operation needs from the ledger side.
type Account interface {
	Money() float64
	SetMoney(v float64)
	HasAccess(playerID string) bool
}

// Entry is a plain in-memory account with an access list.
type Entry struct {
	ID      string
	Balance float64
	// Owners lists player IDs allowed to transfer against this account.
	// Empty means open access.
	Owners []string
}

func (e *Entry) Money() float64     { return e.Balance }
func (e *Entry) SetMoney(v float64) { e.Balance = v }

func (e *Entry) HasAccess(playerID string) bool {
	if len(e.Owners) == 0 {
		return true
	}
	for _, o := range e.Owners {
		if o == playerID {
			return true
		}
	}
	return false
}

// Ledger owns the process's accounts.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*Entry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*Entry)}
}

// Open returns the account with the given ID, creating it with the starting
// balance if it does not exist yet.
func (l *Ledger) Open(id string, startBalance float64) *Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.accounts[id]; ok {
		return e
	}
	e := &Entry{ID: id, Balance: startBalance, Owners: []string{id}}
	l.accounts[id] = e
	return e
}

// Get returns the account with the given ID.
func (l *Ledger) Get(id string) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %q does not exist", id)
	}
	return e, nil
}

// All returns every account, for persistence.
func (l *Ledger) All() []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Entry, 0, len(l.accounts))
	for _, e := range l.accounts {
		out = append(out, e)
	}
	return out
}

// Restore replaces the ledger contents, for startup.
func (l *Ledger) Restore(entries []*Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[string]*Entry, len(entries))
	for _, e := range entries {
		l.accounts[e.ID] = e
	}
}
