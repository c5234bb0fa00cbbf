/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  ledger.Store:           movement persistence (append-only)
  ledger.CheckpointStore: cached stock-on-hand checkpoints
  numbering.CounterStore: durable document-number counters

APPEND-ONLY ENFORCEMENT:
  There is no UPDATE and no DELETE statement against the movements table
  anywhere in this package. Corrections happen by appending compensating
  movements; archival is an export, not a deletion.

KEY TABLES:
  movements:    the immutable ledger
  checkpoints:  derived stock-on-hand caches (overwritable)
  counters:     per-scope durable sequence counters

INDEXES:
  - (product_key, batch_key, location_key, occurred_at): aggregation hot path
  - (reference_number): traceability lookups
  - (reversal_of): compensation lookups

WAL MODE:
  The database is opened with WAL so readers do not block the single
  writer, and with foreign keys on for the checkpoint/counter tables.

USAGE:
  st, err := sqlite.New("./data/ledger.db")   // ":memory:" for tests
  defer st.Close()
  recorder := ledger.NewRecorder(st)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/verdant/stock-ledger/ledger"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Movements (append-only ledger). seq is the store-wide monotonic
	-- sequence used to break OccurredAt ties deterministically.
	CREATE TABLE IF NOT EXISTS movements (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		movement_type TEXT NOT NULL,
		product_key TEXT NOT NULL,
		batch_key TEXT NOT NULL DEFAULT '',
		location_key TEXT NOT NULL,
		quantity TEXT NOT NULL,
		weight TEXT,
		occurred_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		reference_number TEXT NOT NULL,
		reversal_of TEXT,
		actor TEXT NOT NULL,
		reason TEXT
	);

	-- Aggregation hot path: SOH per (product, batch, location) bounded by time
	CREATE INDEX IF NOT EXISTS idx_movements_key_occurred
		ON movements(product_key, batch_key, location_key, occurred_at);

	-- Traceability lookups
	CREATE INDEX IF NOT EXISTS idx_movements_reference
		ON movements(reference_number);

	-- Compensation lookups
	CREATE INDEX IF NOT EXISTS idx_movements_reversal_of
		ON movements(reversal_of) WHERE reversal_of IS NOT NULL;

	-- Checkpoints (derived caches, one per fully-qualified key)
	CREATE TABLE IF NOT EXISTS checkpoints (
		product_key TEXT NOT NULL,
		batch_key TEXT NOT NULL,
		location_key TEXT NOT NULL,
		seq INTEGER NOT NULL,
		quantity TEXT NOT NULL,
		weight TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		PRIMARY KEY (product_key, batch_key, location_key)
	);

	-- Durable counters for document number generation
	CREATE TABLE IF NOT EXISTS counters (
		scope TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MOVEMENT STORE (ledger.Store interface)
// =============================================================================

const movementColumns = `seq, id, movement_type, product_key, batch_key, location_key,
	quantity, weight, occurred_at, recorded_at, reference_type, reference_number,
	reversal_of, actor, reason`

// Append persists the batch in a single SQL transaction.
func (s *Store) Append(ctx context.Context, movements []ledger.Movement) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO movements
		(id, movement_type, product_key, batch_key, location_key, quantity, weight,
		 occurred_at, recorded_at, reference_type, reference_number, reversal_of, actor, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	out := make([]ledger.Movement, len(movements))
	for i, m := range movements {
		var weight *string
		if m.Weight != nil {
			w := m.Weight.String()
			weight = &w
		}
		res, err := sqlTx.ExecContext(ctx, query,
			m.ID,
			m.Type,
			m.Product,
			m.Batch,
			m.Location,
			m.Quantity.String(),
			weight,
			m.OccurredAt.UTC().Format(time.RFC3339Nano),
			m.RecordedAt.UTC().Format(time.RFC3339Nano),
			m.ReferenceType,
			m.ReferenceNumber,
			nullString(string(m.ReversalOf)),
			m.Actor,
			nullString(m.Reason),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return nil, ledger.ErrDuplicateMovement
			}
			return nil, fmt.Errorf("failed to append movement: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		m.Sequence = seq
		out[i] = m
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit movements: %w", err)
	}
	return out, nil
}

// Read returns movements matching the filter, ordered by (occurred_at, seq).
func (s *Store) Read(ctx context.Context, f ledger.Filter) ([]ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Product != "" {
		add("product_key = ?", f.Product)
	}
	if f.Batch != "" {
		add("batch_key = ?", f.Batch)
	}
	if f.Location != "" {
		add("location_key = ?", f.Location)
	}
	if f.ReferenceNumber != "" {
		add("reference_number = ?", f.ReferenceNumber)
	}
	if f.ReversalOf != "" {
		add("reversal_of = ?", string(f.ReversalOf))
	}
	if len(f.Types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Types)), ",")
		conds = append(conds, "movement_type IN ("+placeholders+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if f.From != nil {
		add("occurred_at >= ?", f.From.UTC().Format(time.RFC3339Nano))
	}
	if f.To != nil {
		add("occurred_at <= ?", f.To.UTC().Format(time.RFC3339Nano))
	}
	if f.AfterSequence > 0 {
		add("seq > ?", f.AfterSequence)
	}

	query := "SELECT " + movementColumns + " FROM movements"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_at ASC, seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryMovements(ctx, query, args...)
}

// Get returns the movement with the given id, or nil.
func (s *Store) Get(ctx context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + movementColumns + " FROM movements WHERE id = ?"
	movements, err := s.queryMovements(ctx, query, string(id))
	if err != nil {
		return nil, err
	}
	if len(movements) == 0 {
		return nil, nil
	}
	return &movements[0], nil
}

// ReversalsOf returns all compensating movements for the given id.
func (s *Store) ReversalsOf(ctx context.Context, id ledger.MovementID) ([]ledger.Movement, error) {
	return s.Read(ctx, ledger.Filter{ReversalOf: id})
}

func (s *Store) queryMovements(ctx context.Context, query string, args ...any) ([]ledger.Movement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []ledger.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (ledger.Movement, error) {
	var (
		m          ledger.Movement
		quantity   string
		weight     sql.NullString
		occurredAt string
		recordedAt string
		reversalOf sql.NullString
		reason     sql.NullString
	)

	err := rows.Scan(
		&m.Sequence, &m.ID, &m.Type, &m.Product, &m.Batch, &m.Location,
		&quantity, &weight, &occurredAt, &recordedAt,
		&m.ReferenceType, &m.ReferenceNumber, &reversalOf, &m.Actor, &reason,
	)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	m.Quantity, err = decimal.NewFromString(quantity)
	if err != nil {
		return m, fmt.Errorf("corrupt quantity for movement %s: %w", m.ID, err)
	}
	if weight.Valid {
		w, err := decimal.NewFromString(weight.String)
		if err != nil {
			return m, fmt.Errorf("corrupt weight for movement %s: %w", m.ID, err)
		}
		m.Weight = &w
	}
	m.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
	if err != nil {
		return m, fmt.Errorf("corrupt occurred_at for movement %s: %w", m.ID, err)
	}
	m.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return m, fmt.Errorf("corrupt recorded_at for movement %s: %w", m.ID, err)
	}
	m.ReversalOf = ledger.MovementID(reversalOf.String)
	m.Reason = reason.String

	return m, nil
}

// =============================================================================
// CHECKPOINT STORE (ledger.CheckpointStore interface)
// =============================================================================

// Save upserts the checkpoint for its key. Checkpoints are derived
// caches, so overwriting is fine - this table is not the ledger.
func (s *Store) Save(ctx context.Context, cp ledger.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO checkpoints (product_key, batch_key, location_key, seq, quantity, weight, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_key, batch_key, location_key) DO UPDATE SET
			seq = excluded.seq,
			quantity = excluded.quantity,
			weight = excluded.weight,
			taken_at = excluded.taken_at
	`
	_, err := s.db.ExecContext(ctx, query,
		cp.Key.Product, cp.Key.Batch, cp.Key.Location,
		cp.Sequence, cp.Quantity.String(), cp.Weight.String(),
		cp.TakenAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Latest returns the checkpoint for the key, or nil.
func (s *Store) Latest(ctx context.Context, key ledger.Key) (*ledger.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		cp       ledger.Checkpoint
		quantity string
		weight   string
		takenAt  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, quantity, weight, taken_at FROM checkpoints
		 WHERE product_key = ? AND batch_key = ? AND location_key = ?`,
		key.Product, key.Batch, key.Location,
	).Scan(&cp.Sequence, &quantity, &weight, &takenAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cp.Key = key
	if cp.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint quantity: %w", err)
	}
	if cp.Weight, err = decimal.NewFromString(weight); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint weight: %w", err)
	}
	if cp.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint taken_at: %w", err)
	}
	return &cp, nil
}

// =============================================================================
// COUNTER STORE (numbering.CounterStore interface)
// =============================================================================

// Increment atomically bumps and returns the counter for scope. The
// counter is durable: restarts continue where the previous process left
// off, so generated document numbers never repeat.
func (s *Store) Increment(ctx context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (scope, value) VALUES (?, 1)
		ON CONFLICT(scope) DO UPDATE SET value = value + 1
		RETURNING value
	`, scope).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %q: %w", scope, err)
	}
	return value, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
