package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/store"
	"github.com/dvloznov/openfinance/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "finance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.Store {
		return openTestStore(t).WithClock(now)
	})
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "finance.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	created, err := s.Create(ctx, domain.Draft{Description: "Rent", Amount: -1500})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Rent", got.Description)
}

func TestStore_ClosedReturnsStorageError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.FindMany(context.Background(), domain.Filters{})

	var storageErr *domain.StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.Error(t, s.Ping(context.Background()))
}

func TestBuildFindMany(t *testing.T) {
	credit := true

	tests := []struct {
		name      string
		filters   domain.Filters
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "no filters",
			filters:   domain.Filters{},
			wantQuery: "SELECT " + selectColumns + " FROM transactions ORDER BY created_at DESC, id DESC",
		},
		{
			name:      "category with limit",
			filters:   domain.Filters{Category: "Food", Limit: 2},
			wantQuery: "SELECT " + selectColumns + " FROM transactions WHERE category = ? ORDER BY created_at DESC, id DESC LIMIT ?",
			wantArgs:  []any{"Food", 2},
		},
		{
			name:      "all filters with offset only",
			filters:   domain.Filters{MonthYear: "2024-06", Category: "Food", IsCreditCard: &credit, Offset: 5},
			wantQuery: "SELECT " + selectColumns + " FROM transactions WHERE month_year = ? AND category = ? AND is_credit_card = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
			wantArgs:  []any{"2024-06", "Food", true, domain.DefaultPageSize, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildFindMany(tt.filters)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildUpdate(t *testing.T) {
	desc := "Coffee"
	credit := false

	query, args, err := buildUpdate("id-1", domain.Patch{Description: &desc, IsCreditCard: &credit, Tags: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE transactions SET description = ?, is_credit_card = ?, tags = ? WHERE id = ?", query)
	require.Len(t, args, 4)
	assert.Equal(t, "id-1", args[3])

	query, args, err = buildUpdate("id-1", domain.Patch{})
	require.NoError(t, err)
	assert.Empty(t, query)
	assert.Nil(t, args)
}
