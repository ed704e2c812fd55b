// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory builds an empty store that stamps records with now.
type Factory func(t *testing.T, now func() time.Time) store.Store

// Clock returns a clock that advances one second per call, starting at start.
func Clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start.UTC()
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current := next
		next = next.Add(time.Second)
		return current
	}
}

// Run exercises a backend against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	start := time.Date(2024, time.May, 31, 23, 59, 0, 0, time.UTC)

	t.Run("CreateAssignsIdentity", func(t *testing.T) {
		s := newStore(t, Clock(start))
		ctx := context.Background()

		tx, err := s.Create(ctx, domain.Draft{Description: "Lunch", Amount: 42.5})
		require.NoError(t, err)

		assert.NotEmpty(t, tx.ID)
		assert.True(t, tx.CreatedAt.Equal(start), "created_at %v", tx.CreatedAt)
		assert.Equal(t, "2024-05", tx.MonthYear)
		assert.Empty(t, tx.MirrorRef)

		other, err := s.Create(ctx, domain.Draft{Description: "Dinner", Amount: 10, MonthYear: "2023-01"})
		require.NoError(t, err)
		assert.NotEqual(t, tx.ID, other.ID)
		assert.Equal(t, "2023-01", other.MonthYear)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t, Clock(start))
		ctx := context.Background()

		created, err := s.Create(ctx, domain.Draft{
			Description:  "Groceries",
			Amount:       -87.35,
			IsCreditCard: true,
			Category:     "Food",
			Tags:         []string{"market", "weekly", "market"},
			Location:     &domain.Location{Latitude: -23.55, Longitude: -46.63, Address: "Rua A, 123"},
		})
		require.NoError(t, err)

		got, found, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		assertSameTransaction(t, created, got)
	})

	t.Run("FindByIDMissing", func(t *testing.T) {
		s := newStore(t, Clock(start))

		_, found, err := s.FindByID(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("FindManyFiltersAndOrders", func(t *testing.T) {
		s := newStore(t, Clock(start))
		ctx := context.Background()

		drafts := []domain.Draft{
			{Description: "a", Amount: 1, Category: "Food", MonthYear: "2024-05"},
			{Description: "b", Amount: 2, Category: "Transport", MonthYear: "2024-05", IsCreditCard: true},
			{Description: "c", Amount: 3, Category: "Food", MonthYear: "2024-06", IsCreditCard: true},
			{Description: "d", Amount: 4, Category: "Food", MonthYear: "2024-06"},
			{Description: "e", Amount: 5, MonthYear: "2024-06"},
		}
		for _, d := range drafts {
			_, err := s.Create(ctx, d)
			require.NoError(t, err)
		}

		all, err := s.FindMany(ctx, domain.Filters{})
		require.NoError(t, err)
		assert.Equal(t, []string{"e", "d", "c", "b", "a"}, descriptions(all))

		food, err := s.FindMany(ctx, domain.Filters{Category: "Food", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c"}, descriptions(food))
		for _, tx := range food {
			assert.Equal(t, "Food", tx.Category)
		}

		page, err := s.FindMany(ctx, domain.Filters{Category: "Food", Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, descriptions(page))

		credit := true
		combined, err := s.FindMany(ctx, domain.Filters{MonthYear: "2024-06", IsCreditCard: &credit})
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, descriptions(combined))

		debit := false
		notCredit, err := s.FindMany(ctx, domain.Filters{IsCreditCard: &debit})
		require.NoError(t, err)
		assert.Equal(t, []string{"e", "d", "a"}, descriptions(notCredit))

		offsetOnly, err := s.FindMany(ctx, domain.Filters{Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, descriptions(offsetOnly))

		none, err := s.FindMany(ctx, domain.Filters{Category: "Travel"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UpdateIsPartial", func(t *testing.T) {
		s := newStore(t, Clock(start))
		ctx := context.Background()

		created, err := s.Create(ctx, domain.Draft{
			Description: "Taxi",
			Amount:      -20,
			Category:    "Transport",
			Tags:        []string{"work"},
		})
		require.NoError(t, err)

		amount := -25.5
		ref := "notion:page-1"
		updated, err := s.Update(ctx, created.ID, domain.Patch{
			Amount:    &amount,
			Tags:      []string{"work", "late"},
			Location:  &domain.Location{Latitude: 1, Longitude: 2},
			MirrorRef: &ref,
		})
		require.NoError(t, err)

		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, "Taxi", updated.Description)
		assert.Equal(t, -25.5, updated.Amount)
		assert.Equal(t, "Transport", updated.Category)
		assert.Equal(t, []string{"work", "late"}, updated.Tags)
		assert.Equal(t, &domain.Location{Latitude: 1, Longitude: 2}, updated.Location)
		assert.Equal(t, created.MonthYear, updated.MonthYear)
		assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
		assert.Equal(t, "notion:page-1", updated.MirrorRef)

		got, found, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		assertSameTransaction(t, updated, got)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t, Clock(start))

		desc := "x"
		_, err := s.Update(context.Background(), "00000000-0000-0000-0000-000000000000", domain.Patch{Description: &desc})

		var notFound *domain.NotFoundError
		assert.True(t, errors.As(err, &notFound), "want NotFoundError, got %v", err)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t, Clock(start))
		ctx := context.Background()

		created, err := s.Create(ctx, domain.Draft{Description: "Gym", Amount: -99})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, created.ID))
		require.NoError(t, s.Delete(ctx, created.ID))

		_, found, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t, Clock(start))
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func assertSameTransaction(t *testing.T, want, got domain.Transaction) {
	t.Helper()
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	want.CreatedAt = got.CreatedAt
	assert.Equal(t, want, got)
}

func descriptions(txs []domain.Transaction) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Description)
	}
	return out
}
