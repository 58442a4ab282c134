package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"stakevault/core/types"
)

var (
	// ErrPathRequired is returned when the journal path is missing.
	ErrPathRequired = errors.New("journal: path must be configured")
	// ErrNilEvent is returned when appending an empty event.
	ErrNilEvent = errors.New("journal: event required")
	// ErrNotFound is returned when an entry lookup misses.
	ErrNotFound = errors.New("journal: entry not found")
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 500
)

// Entry is one journaled ledger event.
type Entry struct {
	ID         string    `json:"id"`
	EventHash  string    `json:"eventHash"`
	LogIndex   int64     `json:"logIndex"`
	Type       string    `json:"type"`
	Kind       string    `json:"kind"`
	Account    string    `json:"account"`
	Amount     string    `json:"amount,omitempty"`
	Credential uint64    `json:"credentialId,omitempty"`
	Sequence   uint64    `json:"sequence"`
	Timestamp  uint64    `json:"timestamp"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Query selects a page of entries. Zero values match everything.
type Query struct {
	Account string
	Kinds   []string
	Hash    string
	Page    int
	PerPage int
}

// Page is a window of entries plus pagination metadata.
type Page struct {
	Items    []Entry `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PerPage  int     `json:"perPage"`
	LastPage int     `json:"lastPage"`
}

// Store is the append-only SQLite event journal.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open initialises the journal using a sqlite-compatible DSN.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.Contains(trimmed, ":memory:") {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenMemory opens a journal that lives only as long as the process.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// OpenFile opens the journal stored at path on disk.
func OpenFile(path string) (*Store, error) {
	dsn, err := FileDSN(path)
	if err != nil {
		return nil, err
	}
	return Open(dsn)
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetNowFunc overrides the clock used for RecordedAt.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Append journals evt under the next log index.
func (s *Store) Append(ctx context.Context, evt *types.Event) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("journal not configured")
	}
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return Entry{}, ErrNilEvent
	}
	entry, err := entryFromEvent(evt)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = uuid.NewString()
	entry.RecordedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(log_index) FROM ledger_events`).Scan(&last); err != nil {
		return Entry{}, fmt.Errorf("query log index: %w", err)
	}
	if last.Valid {
		entry.LogIndex = last.Int64 + 1
	}
	entry.EventHash = eventHash(evt, entry.LogIndex)

	_, err = tx.ExecContext(ctx, `
        INSERT INTO ledger_events(id, event_hash, log_index, type, kind, account, amount, credential_id, sequence, ts, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, entry.ID, entry.EventHash, entry.LogIndex, entry.Type, entry.Kind, entry.Account, entry.Amount,
		int64(entry.Credential), int64(entry.Sequence), int64(entry.Timestamp), entry.RecordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit append: %w", err)
	}
	return entry, nil
}

// Get returns the entry journaled under hash.
func (s *Store) Get(ctx context.Context, hash string) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("journal not configured")
	}
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE event_hash = ?`, strings.ToLower(strings.TrimSpace(hash)))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// List returns one page of entries matching q in log order.
func (s *Store) List(ctx context.Context, q Query) (Page, error) {
	if s == nil || s.db == nil {
		return Page{}, fmt.Errorf("journal not configured")
	}
	page, perPage := normalisePaging(q.Page, q.PerPage)
	where, args := q.filter()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_events`+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count events: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+where+` ORDER BY log_index ASC LIMIT ? OFFSET ?`,
		append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return Page{}, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	items := make([]Entry, 0, perPage)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate events: %w", err)
	}
	lastPage := 1
	if total > 0 {
		lastPage = (total + perPage - 1) / perPage
	}
	return Page{Items: items, Total: total, Page: page, PerPage: perPage, LastPage: lastPage}, nil
}

func (q Query) filter() (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 2+len(q.Kinds))
	if account := strings.TrimSpace(q.Account); account != "" {
		clauses = append(clauses, "account = ?")
		args = append(args, account)
	}
	if hash := strings.TrimSpace(q.Hash); hash != "" {
		clauses = append(clauses, "event_hash = ?")
		args = append(args, strings.ToLower(hash))
	}
	kinds := make([]string, 0, len(q.Kinds))
	for _, kind := range q.Kinds {
		if trimmed := strings.TrimSpace(kind); trimmed != "" {
			kinds = append(kinds, trimmed)
		}
	}
	if len(kinds) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
		clauses = append(clauses, "kind IN ("+placeholders+")")
		for _, kind := range kinds {
			args = append(args, kind)
		}
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func normalisePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

type rowScanner interface {
	Scan(dest ...any) error
}

const selectColumns = `
        SELECT id, event_hash, log_index, type, kind, account, amount, credential_id, sequence, ts, recorded_at
        FROM ledger_events`

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry      Entry
		credential int64
		sequence   int64
		ts         int64
	)
	if err := row.Scan(&entry.ID, &entry.EventHash, &entry.LogIndex, &entry.Type, &entry.Kind, &entry.Account,
		&entry.Amount, &credential, &sequence, &ts, &entry.RecordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan event: %w", err)
	}
	entry.Credential = uint64(credential)
	entry.Sequence = uint64(sequence)
	entry.Timestamp = uint64(ts)
	entry.RecordedAt = entry.RecordedAt.UTC()
	return entry, nil
}

func entryFromEvent(evt *types.Event) (Entry, error) {
	entry := Entry{
		Type:    evt.Type,
		Kind:    evt.Attr("kind"),
		Account: evt.Attr("addr"),
		Amount:  evt.Attr("amount"),
	}
	var err error
	if entry.Sequence, err = parseUintAttr(evt, "sequence"); err != nil {
		return Entry{}, err
	}
	if entry.Timestamp, err = parseUintAttr(evt, "timestamp"); err != nil {
		return Entry{}, err
	}
	if entry.Credential, err = parseUintAttr(evt, "credentialId"); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func parseUintAttr(evt *types.Event, key string) (uint64, error) {
	raw := strings.TrimSpace(evt.Attr(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("journal: attribute %s: %w", key, err)
	}
	return value, nil
}

// eventHash derives a stable identifier from the event content and its
// position in the journal.
func eventHash(evt *types.Event, logIndex int64) string {
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(evt.Type)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(evt.Attributes[k])
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(logIndex, 10))
	return ethcrypto.Keccak256Hash([]byte(b.String())).Hex()
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
    id TEXT PRIMARY KEY,
    event_hash TEXT NOT NULL,
    log_index INTEGER NOT NULL,
    type TEXT NOT NULL,
    kind TEXT NOT NULL,
    account TEXT NOT NULL,
    amount TEXT NOT NULL DEFAULT '',
    credential_id INTEGER NOT NULL DEFAULT 0,
    sequence INTEGER NOT NULL DEFAULT 0,
    ts INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL,
    UNIQUE(event_hash),
    UNIQUE(log_index)
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_account ON ledger_events(account, log_index);
CREATE INDEX IF NOT EXISTS idx_ledger_events_kind ON ledger_events(kind, log_index);
`
