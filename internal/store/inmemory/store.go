package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/store"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use. Data is lost on restart, so it is meant for
// local development and tests.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]domain.Transaction
	now          func() time.Time
}

// NewStore creates an empty in-memory transaction store.
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]domain.Transaction),
		now:          time.Now,
	}
}

// NewStoreWithClock creates a store that stamps records using now.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, draft domain.Draft) (domain.Transaction, error) {
	tx := domain.NewTransaction(draft, uuid.New().String(), s.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions[tx.ID] = tx
	return copyTransaction(tx), nil
}

// FindMany implements store.Store.
func (s *Store) FindMany(ctx context.Context, filters domain.Filters) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.Transaction{}
	for _, tx := range s.transactions {
		if filters.MonthYear != "" && tx.MonthYear != filters.MonthYear {
			continue
		}
		if filters.Category != "" && tx.Category != filters.Category {
			continue
		}
		if filters.IsCreditCard != nil && tx.IsCreditCard != *filters.IsCreditCard {
			continue
		}
		result = append(result, copyTransaction(tx))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	limit, offset := filters.Window()
	if offset > 0 {
		if offset >= len(result) {
			return []domain.Transaction{}, nil
		}
		result = result[offset:]
	}
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}

// FindByID implements store.Store.
func (s *Store) FindByID(ctx context.Context, id string) (domain.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, false, nil
	}
	return copyTransaction(tx), true, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, &domain.NotFoundError{ID: id}
	}

	tx = patch.Apply(tx)
	s.transactions[id] = tx
	return copyTransaction(tx), nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.transactions, id)
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}

// copyTransaction returns a copy that shares no slices or pointers with the stored record.
func copyTransaction(tx domain.Transaction) domain.Transaction {
	if tx.Tags != nil {
		tx.Tags = append([]string(nil), tx.Tags...)
	}
	if tx.Location != nil {
		loc := *tx.Location
		tx.Location = &loc
	}
	return tx
}

// Ensure Store implements store.Store interface.
var _ store.Store = (*Store)(nil)
