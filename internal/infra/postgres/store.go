// Package postgres stores transactions in PostgreSQL (including hosted
// Postgres such as Supabase) through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	description    TEXT NOT NULL,
	amount         DOUBLE PRECISION NOT NULL,
	is_credit_card BOOLEAN NOT NULL DEFAULT FALSE,
	category       TEXT NOT NULL DEFAULT '',
	tags           TEXT[],
	location       JSONB,
	month_year     TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	mirror_ref     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_month_year ON transactions(month_year);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category);
`

const selectColumns = `id::text, description, amount, is_credit_card, category, tags, location, month_year, created_at, mirror_ref`

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("Open: database url is empty")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("Open: connect: %w", err)
	}

	s := NewStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing pool. The schema is not touched.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// WithClock replaces the clock used to stamp created_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// EnsureSchema creates the transactions table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return &domain.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Create implements store.Store. The database assigns the id.
func (s *Store) Create(ctx context.Context, draft domain.Draft) (domain.Transaction, error) {
	tx := domain.NewTransaction(draft, "", s.now().UTC().Truncate(time.Microsecond))

	location, err := encodeLocation(tx.Location)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "create", Err: err}
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO transactions (description, amount, is_credit_card, category, tags, location, month_year, created_at, mirror_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text`,
		tx.Description, tx.Amount, tx.IsCreditCard, tx.Category,
		tx.Tags, location, tx.MonthYear, tx.CreatedAt, tx.MirrorRef,
	).Scan(&tx.ID)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "create", Err: err}
	}
	return tx, nil
}

// FindMany implements store.Store.
func (s *Store) FindMany(ctx context.Context, filters domain.Filters) ([]domain.Transaction, error) {
	query, args := buildFindMany(filters)

	rows, err := s.pool.Query(ctx, query, args...)
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

// FindByID implements store.Store. An id that is not a UUID cannot exist.
func (s *Store) FindByID(ctx context.Context, id string) (domain.Transaction, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Transaction{}, false, nil
	}

	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, &domain.StorageError{Op: "find by id", Err: err}
	}
	return tx, true, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Transaction{}, &domain.NotFoundError{ID: id}
	}

	query, args, err := buildUpdate(id, patch)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "update", Err: err}
	}
	if query != "" {
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
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
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return &domain.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// Ping implements store.Store by counting rows, which also proves the table exists.
func (s *Store) Ping(ctx context.Context) error {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transactions`).Scan(&n); err != nil {
		return &domain.StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// placeholders numbers query arguments as $1, $2, ...
type placeholders struct {
	args []any
}

func (p *placeholders) add(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

func buildFindMany(filters domain.Filters) (string, []any) {
	var (
		p     placeholders
		conds []string
	)
	if filters.MonthYear != "" {
		conds = append(conds, "month_year = "+p.add(filters.MonthYear))
	}
	if filters.Category != "" {
		conds = append(conds, "category = "+p.add(filters.Category))
	}
	if filters.IsCreditCard != nil {
		conds = append(conds, "is_credit_card = "+p.add(*filters.IsCreditCard))
	}

	var b strings.Builder
	b.WriteString("SELECT " + selectColumns + " FROM transactions")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")

	limit, offset := filters.Window()
	if limit > 0 {
		b.WriteString(" LIMIT " + p.add(limit))
	}
	if offset > 0 {
		b.WriteString(" OFFSET " + p.add(offset))
	}
	return b.String(), p.args
}

func buildUpdate(id string, patch domain.Patch) (string, []any, error) {
	var (
		p    placeholders
		sets []string
	)
	if patch.Description != nil {
		sets = append(sets, "description = "+p.add(*patch.Description))
	}
	if patch.Amount != nil {
		sets = append(sets, "amount = "+p.add(*patch.Amount))
	}
	if patch.IsCreditCard != nil {
		sets = append(sets, "is_credit_card = "+p.add(*patch.IsCreditCard))
	}
	if patch.Category != nil {
		sets = append(sets, "category = "+p.add(*patch.Category))
	}
	if patch.Tags != nil {
		sets = append(sets, "tags = "+p.add(patch.Tags))
	}
	if patch.Location != nil {
		location, err := encodeLocation(patch.Location)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, "location = "+p.add(location))
	}
	if patch.MirrorRef != nil {
		sets = append(sets, "mirror_ref = "+p.add(*patch.MirrorRef))
	}

	if len(sets) == 0 {
		return "", nil, nil
	}
	query := "UPDATE transactions SET " + strings.Join(sets, ", ") + " WHERE id = " + p.add(id)
	return query, p.args, nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		tx       domain.Transaction
		location []byte
	)
	err := row.Scan(
		&tx.ID, &tx.Description, &tx.Amount, &tx.IsCreditCard, &tx.Category,
		&tx.Tags, &location, &tx.MonthYear, &tx.CreatedAt, &tx.MirrorRef,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx.CreatedAt = tx.CreatedAt.UTC()
	if location != nil {
		var loc domain.Location
		if err := json.Unmarshal(location, &loc); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode location: %w", err)
		}
		tx.Location = &loc
	}
	return tx, nil
}

// encodeLocation returns raw JSON for the jsonb column, or nil for NULL.
func encodeLocation(loc *domain.Location) (any, error) {
	if loc == nil {
		return nil, nil
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("encode location: %w", err)
	}
	return json.RawMessage(b), nil
}

// Ensure Store implements store.Store interface.
var _ store.Store = (*Store)(nil)
