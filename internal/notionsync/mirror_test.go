package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockNotionService records calls and returns canned results.
type mockNotionService struct {
	pageID string
	err    error

	created  []notionapi.Properties
	updated  map[string]notionapi.Properties
	archived []string
	checked  []string
}

func (m *mockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, properties)
	if m.err != nil {
		return nil, m.err
	}
	return &notionapi.Page{ID: notionapi.ObjectID(m.pageID)}, nil
}

func (m *mockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.updated == nil {
		m.updated = make(map[string]notionapi.Properties)
	}
	m.updated[pageID] = properties
	if m.err != nil {
		return nil, m.err
	}
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *mockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	m.archived = append(m.archived, pageID)
	return m.err
}

func (m *mockNotionService) RetrieveDatabase(ctx context.Context, databaseID string) (*notionapi.Database, error) {
	m.checked = append(m.checked, databaseID)
	if m.err != nil {
		return nil, m.err
	}
	return &notionapi.Database{}, nil
}

var validConfig = Config{Token: "ntn_abc123", DatabaseID: "db-1"}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "current token prefix", cfg: Config{Token: "ntn_x", DatabaseID: "db"}},
		{name: "legacy token prefix", cfg: Config{Token: "secret_x", DatabaseID: "db"}},
		{name: "missing database", cfg: Config{Token: "ntn_x"}, wantErr: true},
		{name: "missing token", cfg: Config{DatabaseID: "db"}, wantErr: true},
		{name: "unknown token prefix", cfg: Config{Token: "abc", DatabaseID: "db"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *domain.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "want ConfigurationError, got %v", err)
		})
	}
}

func TestMirror_Unconfigured(t *testing.T) {
	svc := &mockNotionService{pageID: "page-1"}
	m := NewMirrorWithService(Config{}, svc)
	ctx := context.Background()

	assert.False(t, m.Configured())

	_, err := m.Project(ctx, domain.Transaction{ID: "tx"})
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.ErrorAs(t, m.Reproject(ctx, "notion:page-1", domain.Patch{}), &cfgErr)
	assert.ErrorAs(t, m.Retire(ctx, "notion:page-1"), &cfgErr)
	ok, err := m.CheckReachable(ctx)
	assert.False(t, ok)
	assert.ErrorAs(t, err, &cfgErr)

	assert.Empty(t, svc.created)
	assert.Empty(t, svc.archived)
	assert.Empty(t, svc.checked)
}

func TestNewMirror_InvalidConfigNeverCallsNotion(t *testing.T) {
	m := NewMirror(Config{Token: "bogus", DatabaseID: "db"})

	_, err := m.Project(context.Background(), domain.Transaction{ID: "tx"})
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMirror_Project(t *testing.T) {
	svc := &mockNotionService{pageID: "page-1"}
	m := NewMirrorWithService(validConfig, svc)

	ref, err := m.Project(context.Background(), domain.Transaction{ID: "tx-1", Description: "Lunch", Amount: 42.5})
	require.NoError(t, err)
	assert.Equal(t, "notion:page-1", ref)
	require.Len(t, svc.created, 1)
	assert.Contains(t, svc.created[0], PropDescription)
}

func TestMirror_ProjectFailure(t *testing.T) {
	svc := &mockNotionService{err: errors.New("rate limited")}
	m := NewMirrorWithService(validConfig, svc)

	ref, err := m.Project(context.Background(), domain.Transaction{ID: "tx-1"})
	assert.Empty(t, ref)

	var mirrorErr *domain.MirrorError
	require.ErrorAs(t, err, &mirrorErr)
	assert.Equal(t, "project", mirrorErr.Op)
	assert.EqualError(t, mirrorErr.Err, "rate limited")
}

func TestMirror_Reproject(t *testing.T) {
	svc := &mockNotionService{}
	now := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC)
	m := NewMirrorWithService(validConfig, svc).WithClock(func() time.Time { return now })

	amount := 99.9
	require.NoError(t, m.Reproject(context.Background(), "notion:page-7", domain.Patch{Amount: &amount}))

	props, ok := svc.updated["page-7"]
	require.True(t, ok)
	assert.Equal(t, notionapi.NumberProperty{Number: 99.9}, props[PropAmount])
	assert.Equal(t, dateProperty(now), props[PropUpdated])
	assert.Len(t, props, 2)
}

func TestMirror_RetireAndBadRef(t *testing.T) {
	svc := &mockNotionService{}
	m := NewMirrorWithService(validConfig, svc)
	ctx := context.Background()

	require.NoError(t, m.Retire(ctx, "notion:page-3"))
	assert.Equal(t, []string{"page-3"}, svc.archived)

	var mirrorErr *domain.MirrorError
	assert.ErrorAs(t, m.Retire(ctx, "notion:"), &mirrorErr)
	assert.Len(t, svc.archived, 1)
}

func TestMirror_CheckReachable(t *testing.T) {
	svc := &mockNotionService{}
	m := NewMirrorWithService(validConfig, svc)

	ok, err := m.CheckReachable(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"db-1"}, svc.checked)

	svc.err = errors.New("unauthorized")
	ok, err = m.CheckReachable(context.Background())
	assert.False(t, ok)
	var mirrorErr *domain.MirrorError
	assert.ErrorAs(t, err, &mirrorErr)
}

func TestParseMirrorRef(t *testing.T) {
	id, err := ParseMirrorRef("notion:abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	id, err = ParseMirrorRef("abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	_, err = ParseMirrorRef("  ")
	assert.Error(t, err)

	assert.Equal(t, "notion:abc-123", FormatMirrorRef("abc-123"))
}
