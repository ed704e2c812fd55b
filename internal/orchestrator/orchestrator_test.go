package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/store"
	"github.com/dvloznov/openfinance/internal/store/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMirror records every call and fails when err is set.
type mockMirror struct {
	mu         sync.Mutex
	ref        string
	err        error
	projected  []domain.Transaction
	reprojects []string
	patches    []domain.Patch
	retired    []string
}

func (m *mockMirror) Project(ctx context.Context, tx domain.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projected = append(m.projected, tx)
	if m.err != nil {
		return "", m.err
	}
	return m.ref, nil
}

func (m *mockMirror) Reproject(ctx context.Context, mirrorRef string, patch domain.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reprojects = append(m.reprojects, mirrorRef)
	m.patches = append(m.patches, patch)
	return m.err
}

func (m *mockMirror) Retire(ctx context.Context, mirrorRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retired = append(m.retired, mirrorRef)
	return m.err
}

func (m *mockMirror) CheckReachable(ctx context.Context) (bool, error) {
	return m.err == nil, m.err
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	store.Store
	failCreate bool
	failUpdate bool
	failDelete bool
	creates    int
}

var errBackend = errors.New("backend unavailable")

func (f *failingStore) Create(ctx context.Context, d domain.Draft) (domain.Transaction, error) {
	f.creates++
	if f.failCreate {
		return domain.Transaction{}, &domain.StorageError{Op: "create", Err: errBackend}
	}
	return f.Store.Create(ctx, d)
}

func (f *failingStore) Update(ctx context.Context, id string, p domain.Patch) (domain.Transaction, error) {
	if f.failUpdate {
		return domain.Transaction{}, &domain.StorageError{Op: "update", Err: errBackend}
	}
	return f.Store.Update(ctx, id, p)
}

func (f *failingStore) Delete(ctx context.Context, id string) error {
	if f.failDelete {
		return &domain.StorageError{Op: "delete", Err: errBackend}
	}
	return f.Store.Delete(ctx, id)
}

type recorder struct {
	mu     sync.Mutex
	events []MirrorEvent
}

func (r *recorder) ObserveMirror(ctx context.Context, e MirrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, string(e.Op)+":"+string(e.Outcome))
	}
	return out
}

var lunch = domain.Draft{Description: "Lunch", Amount: 42.50}

func TestCreate_MirrorsAndBackfills(t *testing.T) {
	s := inmemory.NewStore()
	mirror := &mockMirror{ref: "notion:page-1"}
	rec := &recorder{}
	o := New(s, WithMirror(mirror), WithObserver(rec))
	ctx := context.Background()

	tx, err := o.Create(ctx, lunch)
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "notion:page-1", tx.MirrorRef)
	require.Len(t, mirror.projected, 1)
	assert.Equal(t, tx.ID, mirror.projected[0].ID)

	stored, found, err := s.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "notion:page-1", stored.MirrorRef)
	assert.Equal(t, []string{"project:succeeded", "backfill:succeeded"}, rec.outcomes())
}

func TestCreate_MirrorFailureIsSwallowed(t *testing.T) {
	s := inmemory.NewStore()
	mirror := &mockMirror{err: &domain.MirrorError{Op: "project", Err: errors.New("notion down")}}
	rec := &recorder{}
	o := New(s, WithMirror(mirror), WithObserver(rec))
	ctx := context.Background()

	tx, err := o.Create(ctx, lunch)
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "Lunch", tx.Description)
	assert.Equal(t, 42.50, tx.Amount)
	assert.False(t, tx.IsCreditCard)
	assert.Empty(t, tx.MirrorRef)

	stored, found, err := s.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tx, stored)
	assert.Equal(t, []string{"project:failed"}, rec.outcomes())
}

func TestCreate_UnconfiguredMirrorIsSkipped(t *testing.T) {
	mirror := &mockMirror{err: &domain.ConfigurationError{Reason: "NOTION_TOKEN is not set"}}
	rec := &recorder{}
	o := New(inmemory.NewStore(), WithMirror(mirror), WithObserver(rec))

	tx, err := o.Create(context.Background(), lunch)
	require.NoError(t, err)
	assert.Empty(t, tx.MirrorRef)
	require.Len(t, rec.events, 1)
	assert.Equal(t, OutcomeSkipped, rec.events[0].Outcome)
	assert.Equal(t, "NOTION_TOKEN is not set", rec.events[0].Reason)
}

func TestCreate_NoMirror(t *testing.T) {
	rec := &recorder{}
	o := New(inmemory.NewStore(), WithObserver(rec))

	tx, err := o.Create(context.Background(), lunch)
	require.NoError(t, err)
	assert.Empty(t, tx.MirrorRef)
	assert.Equal(t, []string{"project:skipped"}, rec.outcomes())
}

func TestCreate_StorageFailureAbortsBeforeMirror(t *testing.T) {
	s := &failingStore{Store: inmemory.NewStore(), failCreate: true}
	mirror := &mockMirror{ref: "notion:page-1"}
	o := New(s, WithMirror(mirror))

	_, err := o.Create(context.Background(), lunch)

	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.ErrorIs(t, err, errBackend)
	assert.Empty(t, mirror.projected)
}

func TestCreate_BackfillFailureKeepsRecord(t *testing.T) {
	s := &failingStore{Store: inmemory.NewStore(), failUpdate: true}
	mirror := &mockMirror{ref: "notion:page-1"}
	rec := &recorder{}
	o := New(s, WithMirror(mirror), WithObserver(rec))

	tx, err := o.Create(context.Background(), lunch)
	require.NoError(t, err)
	assert.Empty(t, tx.MirrorRef)
	assert.Equal(t, []string{"project:succeeded", "backfill:failed"}, rec.outcomes())
}

func TestUpdate_ReprojectsMirroredRecord(t *testing.T) {
	s := inmemory.NewStore()
	mirror := &mockMirror{ref: "notion:page-1"}
	o := New(s, WithMirror(mirror))
	ctx := context.Background()

	tx, err := o.Create(ctx, lunch)
	require.NoError(t, err)

	amount := 50.0
	bogus := "notion:evil"
	updated, err := o.Update(ctx, tx.ID, domain.Patch{Amount: &amount, MirrorRef: &bogus})
	require.NoError(t, err)

	assert.Equal(t, 50.0, updated.Amount)
	assert.Equal(t, "Lunch", updated.Description)
	assert.Equal(t, "notion:page-1", updated.MirrorRef)
	assert.Equal(t, []string{"notion:page-1"}, mirror.reprojects)
	require.Len(t, mirror.patches, 1)
	assert.Nil(t, mirror.patches[0].MirrorRef)
}

func TestUpdate_MirrorFailureIsSwallowed(t *testing.T) {
	s := inmemory.NewStore()
	mirror := &mockMirror{ref: "notion:page-1"}
	o := New(s, WithMirror(mirror))
	ctx := context.Background()

	tx, err := o.Create(ctx, lunch)
	require.NoError(t, err)

	mirror.err = &domain.MirrorError{Op: "reproject", Err: errors.New("timeout")}
	desc := "Late lunch"
	updated, err := o.Update(ctx, tx.ID, domain.Patch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Late lunch", updated.Description)
}

func TestUpdate_UnmirroredRecordSkipsMirror(t *testing.T) {
	s := inmemory.NewStore()
	mirror := &mockMirror{err: errors.New("notion down")}
	rec := &recorder{}
	o := New(s, WithMirror(mirror), WithObserver(rec))
	ctx := context.Background()

	tx, err := o.Create(ctx, lunch)
	require.NoError(t, err)
	require.Empty(t, tx.MirrorRef)

	desc := "Brunch"
	_, err = o.Update(ctx, tx.ID, domain.Patch{Description: &desc})
	require.NoError(t, err)
	assert.Empty(t, mirror.reprojects)
	assert.Equal(t, []string{"project:failed", "reproject:skipped"}, rec.outcomes())
}

func TestUpdate_Missing(t *testing.T) {
	mirror := &mockMirror{}
	o := New(inmemory.NewStore(), WithMirror(mirror))

	desc := "x"
	_, err := o.Update(context.Background(), "missing", domain.Patch{Description: &desc})

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Empty(t, mirror.reprojects)
}

func TestUpdate_StorageFailurePropagates(t *testing.T) {
	inner := inmemory.NewStore()
	s := &failingStore{Store: inner}
	mirror := &mockMirror{ref: "notion:page-1"}
	o := New(s, WithMirror(mirror))
	ctx := context.Background()

	tx, err := o.Create(ctx, lunch)
	require.NoError(t, err)

	s.failUpdate = true
	desc := "x"
	_, err = o.Update(ctx, tx.ID, domain.Patch{Description: &desc})

	var storageErr *domain.StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.Empty(t, mirror.reprojects)
}

func TestDelete_RetiresExactlyOnce(t *testing.T) {
	for _, mirrorErr := range []error{nil, errors.New("notion down")} {
		s := inmemory.NewStore()
		mirror := &mockMirror{ref: "notion:page-9"}
		o := New(s, WithMirror(mirror))
		ctx := context.Background()

		tx, err := o.Create(ctx, lunch)
		require.NoError(t, err)

		mirror.err = mirrorErr
		require.NoError(t, o.Delete(ctx, tx.ID))
		assert.Equal(t, []string{"notion:page-9"}, mirror.retired)

		_, found, err := s.FindByID(ctx, tx.ID)
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestDelete_Absent(t *testing.T) {
	mirror := &mockMirror{}
	o := New(inmemory.NewStore(), WithMirror(mirror))

	assert.NoError(t, o.Delete(context.Background(), "missing"))
	assert.Empty(t, mirror.retired)
}

func TestDelete_StorageFailureSkipsMirror(t *testing.T) {
	s := &failingStore{Store: inmemory.NewStore()}
	mirror := &mockMirror{ref: "notion:page-1"}
	o := New(s, WithMirror(mirror))
	ctx := context.Background()

	tx, err := o.Create(ctx, lunch)
	require.NoError(t, err)

	s.failDelete = true
	err = o.Delete(ctx, tx.ID)

	var storageErr *domain.StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.Empty(t, mirror.retired)
}

func TestGetAndList(t *testing.T) {
	o := New(inmemory.NewStore())
	ctx := context.Background()

	tx, err := o.Create(ctx, domain.Draft{Description: "Coffee", Amount: -5, Category: "Food"})
	require.NoError(t, err)

	got, err := o.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx, got)

	_, err = o.Get(ctx, "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	list, err := o.List(ctx, domain.Filters{Category: "Food"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckMirror(t *testing.T) {
	o := New(inmemory.NewStore())
	ok, err := o.CheckMirror(context.Background())
	assert.False(t, ok)
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	o = New(inmemory.NewStore(), WithMirror(&mockMirror{}))
	ok, err = o.CheckMirror(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, o.CheckStore(context.Background()))
}
