// Package persistence stores the marketplace's live state in SQLite: ware
// quantities, accounts, the event log, and run metadata. The catalog itself
// reloads from its file; only what mutates at runtime lives here.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/bazaar/internal/account"
	"github.com/talgya/bazaar/internal/market"
)

// Event is one logged marketplace occurrence.
type Event struct {
	Tick        uint64 `db:"tick" json:"tick"`
	Description string `db:"description" json:"description"`
	Category    string `db:"category" json:"category"`
}

// DB wraps a SQLite connection for marketplace state.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ware_state (
		id TEXT PRIMARY KEY,
		quantity INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance REAL NOT NULL,
		owners_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS market_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// HasMarketState reports whether a previous run saved state here.
func (db *DB) HasMarketState() bool {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM ware_state"); err != nil {
		return false
	}
	return n > 0
}

// SaveWareState writes all ware quantities (full replace).
func (db *DB) SaveWareState(states []market.WareState) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM ware_state"); err != nil {
		return err
	}
	stmt, err := tx.Preparex("INSERT INTO ware_state (id, quantity) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range states {
		if _, err := stmt.Exec(st.ID, st.Quantity); err != nil {
			return fmt.Errorf("insert ware state %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

// LoadWareState reads all persisted ware quantities.
func (db *DB) LoadWareState() ([]market.WareState, error) {
	var states []market.WareState
	err := db.conn.Select(&states, "SELECT id, quantity FROM ware_state ORDER BY id")
	return states, err
}

// SaveAccounts writes all ledger accounts (full replace).
func (db *DB) SaveAccounts(entries []*account.Entry) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM accounts"); err != nil {
		return err
	}
	for _, e := range entries {
		ownersJSON, _ := json.Marshal(e.Owners)
		if _, err := tx.Exec(
			"INSERT INTO accounts (id, balance, owners_json) VALUES (?, ?, ?)",
			e.ID, e.Balance, string(ownersJSON),
		); err != nil {
			return fmt.Errorf("insert account %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAccounts reads all persisted accounts.
func (db *DB) LoadAccounts() ([]*account.Entry, error) {
	rows, err := db.conn.Queryx("SELECT id, balance, owners_json FROM accounts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*account.Entry
	for rows.Next() {
		var id, ownersJSON string
		var balance float64
		if err := rows.Scan(&id, &balance, &ownersJSON); err != nil {
			return nil, err
		}
		e := &account.Entry{ID: id, Balance: balance}
		if err := json.Unmarshal([]byte(ownersJSON), &e.Owners); err != nil {
			slog.Warn("account owners list unreadable, left open", "account", id, "error", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveEvents appends events to the log.
func (db *DB) SaveEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		if _, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentEvents returns the most recent N events.
func (db *DB) RecentEvents(limit int) ([]Event, error) {
	var events []Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO market_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM market_meta WHERE key = ?", key)
	return value, err
}

// SaveAll performs a full state save.
func (db *DB) SaveAll(reg *market.Registry, ledger *account.Ledger, events []Event, tick uint64) error {
	states := reg.ExportState()
	slog.Info("saving market state", "wares", len(states), "events", len(events))

	if err := db.SaveWareState(states); err != nil {
		return fmt.Errorf("save ware state: %w", err)
	}
	if err := db.SaveAccounts(ledger.All()); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	if err := db.SaveEvents(events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", fmt.Sprintf("%d", tick)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}
