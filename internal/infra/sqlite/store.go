// Package sqlite stores transactions in a local SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/store"
	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// createdAtLayout is fixed width so that text ordering matches time ordering.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id             TEXT PRIMARY KEY,
	description    TEXT NOT NULL,
	amount         REAL NOT NULL,
	is_credit_card INTEGER NOT NULL DEFAULT 0,
	category       TEXT NOT NULL DEFAULT '',
	tags           TEXT,
	location       TEXT,
	month_year     TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	mirror_ref     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_month_year ON transactions(month_year);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category);
`

const selectColumns = `id, description, amount, is_credit_card, category, tags, location, month_year, created_at, mirror_ref`

// Store implements store.Store on top of SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("Open: database path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("Open: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("Open: open database: %w", err)
	}

	// One writer at a time; extra connections only add lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// WithClock replaces the clock used to stamp created_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// EnsureSchema creates the transactions table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &domain.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, draft domain.Draft) (domain.Transaction, error) {
	tx := domain.NewTransaction(draft, uuid.New().String(), s.now().UTC())

	tags, err := encodeTags(tx.Tags)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "create", Err: err}
	}
	location, err := encodeLocation(tx.Location)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "create", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, description, amount, is_credit_card, category, tags, location, month_year, created_at, mirror_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Description, tx.Amount, tx.IsCreditCard, tx.Category,
		tags, location, tx.MonthYear, tx.CreatedAt.Format(createdAtLayout), tx.MirrorRef,
	)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "create", Err: err}
	}
	return tx, nil
}

// FindMany implements store.Store.
func (s *Store) FindMany(ctx context.Context, filters domain.Filters) ([]domain.Transaction, error) {
	query, args := buildFindMany(filters)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: "find many", Err: err}
	}
	defer rows.Close()

	result := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "find many", Err: err}
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "find many", Err: err}
	}
	return result, nil
}

// FindByID implements store.Store.
func (s *Store) FindByID(ctx context.Context, id string) (domain.Transaction, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM transactions WHERE id = ?`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, &domain.StorageError{Op: "find by id", Err: err}
	}
	return tx, true, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error) {
	query, args, err := buildUpdate(id, patch)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "update", Err: err}
	}

	if query != "" {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return domain.Transaction{}, &domain.StorageError{Op: "update", Err: err}
		}
	}

	tx, found, err := s.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !found {
		return domain.Transaction{}, &domain.NotFoundError{ID: id}
	}
	return tx, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return &domain.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return &domain.StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// buildFindMany returns the filtered, newest-first select for filters.
func buildFindMany(filters domain.Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filters.MonthYear != "" {
		conds = append(conds, "month_year = ?")
		args = append(args, filters.MonthYear)
	}
	if filters.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filters.Category)
	}
	if filters.IsCreditCard != nil {
		conds = append(conds, "is_credit_card = ?")
		args = append(args, *filters.IsCreditCard)
	}

	var b strings.Builder
	b.WriteString("SELECT " + selectColumns + " FROM transactions")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")

	limit, offset := filters.Window()
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
		if offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, offset)
		}
	}
	return b.String(), args
}

// buildUpdate returns the UPDATE statement for patch, or an empty query when
// the patch changes nothing.
func buildUpdate(id string, patch domain.Patch) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Amount != nil {
		sets = append(sets, "amount = ?")
		args = append(args, *patch.Amount)
	}
	if patch.IsCreditCard != nil {
		sets = append(sets, "is_credit_card = ?")
		args = append(args, *patch.IsCreditCard)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Tags != nil {
		tags, err := encodeTags(patch.Tags)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if patch.Location != nil {
		location, err := encodeLocation(patch.Location)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "location = ?")
		args = append(args, location)
	}
	if patch.MirrorRef != nil {
		sets = append(sets, "mirror_ref = ?")
		args = append(args, *patch.MirrorRef)
	}

	if len(sets) == 0 {
		return "", nil, nil
	}
	args = append(args, id)
	return "UPDATE transactions SET " + strings.Join(sets, ", ") + " WHERE id = ?", args, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var (
		tx        domain.Transaction
		tags      sql.NullString
		location  sql.NullString
		createdAt string
	)
	err := row.Scan(
		&tx.ID, &tx.Description, &tx.Amount, &tx.IsCreditCard, &tx.Category,
		&tags, &location, &tx.MonthYear, &createdAt, &tx.MirrorRef,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	if tx.CreatedAt, err = time.Parse(createdAtLayout, createdAt); err != nil {
		return domain.Transaction{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &tx.Tags); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	if location.Valid {
		var loc domain.Location
		if err := json.Unmarshal([]byte(location.String), &loc); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode location: %w", err)
		}
		tx.Location = &loc
	}
	return tx, nil
}

func encodeTags(tags []string) (sql.NullString, error) {
	if tags == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode tags: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func encodeLocation(loc *domain.Location) (sql.NullString, error) {
	if loc == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode location: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Ensure Store implements store.Store interface.
var _ store.Store = (*Store)(nil)
