package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"creton.game/internal/persistence/snapshot"
	"creton.game/internal/sim/clock"
)

var ErrNotFound = errors.New("indexdb: not found")

// timeLayout is fixed width so text order in the database is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type dialect int

const (
	dialectSQLite dialect = iota + 1
	dialectPostgres
)

// Ledger is the server-side record of confirmed points and saved player
// sessions. It backs both the sync-out handshake and session hydration.
type Ledger struct {
	db      *sql.DB
	dialect dialect
	clk     clock.Clock
}

type Option func(*Ledger)

// WithClock stamps credits with c instead of the wall clock.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clk = c }
}

func newLedger(db *sql.DB, d dialect, opts []Option) *Ledger {
	l := &Ledger{db: db, dialect: d, clk: clock.Real{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Entry is one confirmed credit.
type Entry struct {
	ID         string
	UserID     string
	Amount     float64
	RecordedAt string
}

func OpenSQLite(path string, opts ...Option) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	l := newLedger(db, dialectSQLite, opts)
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func OpenPostgres(dsn string, opts ...Option) (*Ledger, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	l := newLedger(db, dialectPostgres, opts)
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) initSchema() error {
	blob := "BLOB"
	if l.dialect == dialectPostgres {
		blob = "BYTEA"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			entry_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, recorded_at);`,
		`CREATE TABLE IF NOT EXISTS balances (
			user_id TEXT PRIMARY KEY,
			total DOUBLE PRECISION NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			user_id TEXT PRIMARY KEY,
			snapshot ` + blob + ` NOT NULL,
			saved_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := l.db.Exec(s); err != nil {
			return err
		}
	}
	_, err := l.db.Exec(l.q(`INSERT INTO meta(key,value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`), "schema_version", "1")
	return err
}

// q rewrites ? placeholders into $n for postgres.
func (l *Ledger) q(query string) string {
	if l.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// Credit records amount as confirmed for userID and returns how much was
// confirmed. Nothing is confirmed on error.
func (l *Ledger) Credit(ctx context.Context, userID string, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, nil
	}
	now := l.clk.Now().UTC().Format(timeLayout)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, l.q(`INSERT INTO ledger_entries(entry_id,user_id,amount,recorded_at) VALUES(?,?,?,?)`), uuid.NewString(), userID, amount, now); err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, l.q(`INSERT INTO balances(user_id,total,updated_at) VALUES(?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET total = balances.total + excluded.total, updated_at = excluded.updated_at`), userID, amount, now); err != nil {
		return 0, fmt.Errorf("upsert balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return amount, nil
}

// Total is the confirmed sum for userID; 0 when nothing was ever credited.
func (l *Ledger) Total(ctx context.Context, userID string) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx, l.q(`SELECT total FROM balances WHERE user_id=?`), userID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return total, err
}

// Entries returns the newest credits for userID first.
func (l *Ledger) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, l.q(`SELECT entry_id,user_id,amount,recorded_at FROM ledger_entries WHERE user_id=? ORDER BY recorded_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *Ledger) SavePlayer(ctx context.Context, p snapshot.PlayerV1) error {
	b, err := snapshot.Encode(p)
	if err != nil {
		return fmt.Errorf("encode player: %w", err)
	}
	_, err = l.db.ExecContext(ctx, l.q(`INSERT INTO players(user_id,snapshot,saved_at) VALUES(?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET snapshot=excluded.snapshot, saved_at=excluded.saved_at`),
		p.Header.UserID, b, p.Header.SavedAt.UTC().Format(timeLayout))
	return err
}

func (l *Ledger) LoadPlayer(ctx context.Context, userID string) (snapshot.PlayerV1, error) {
	var b []byte
	err := l.db.QueryRowContext(ctx, l.q(`SELECT snapshot FROM players WHERE user_id=?`), userID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.PlayerV1{}, ErrNotFound
	}
	if err != nil {
		return snapshot.PlayerV1{}, err
	}
	p, err := snapshot.Decode(b)
	if err != nil {
		return snapshot.PlayerV1{}, fmt.Errorf("decode player %s: %w", userID, err)
	}
	return p, nil
}
