// Package notionsync mirrors transactions into a Notion database. The mirror
// is best-effort: callers decide what to do with its errors.
package notionsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
)

// MirrorRefPrefix marks a mirror reference as a Notion page id.
const MirrorRefPrefix = "notion:"

// Accepted integration token prefixes (legacy and current).
var tokenPrefixes = []string{"secret_", "ntn_"}

// Config holds what the mirror needs to reach the database.
type Config struct {
	Token      string
	DatabaseID string
}

// Validate returns a *domain.ConfigurationError when the mirror cannot operate.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseID) == "" {
		return &domain.ConfigurationError{Reason: "NOTION_DATABASE_ID is not set"}
	}
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return &domain.ConfigurationError{Reason: "NOTION_TOKEN is not set"}
	}
	for _, prefix := range tokenPrefixes {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}
	return &domain.ConfigurationError{Reason: "NOTION_TOKEN does not look like an integration token"}
}

// Mirror projects transactions onto pages of one Notion database.
type Mirror struct {
	service    NotionService
	databaseID string
	configErr  error
	now        func() time.Time
}

// NewMirror builds a mirror backed by the Notion API. An invalid config does
// not fail construction; every operation returns the configuration error.
func NewMirror(cfg Config) *Mirror {
	if err := cfg.Validate(); err != nil {
		return &Mirror{configErr: err, now: time.Now}
	}
	return NewMirrorWithService(cfg, NewNotionClient(strings.TrimSpace(cfg.Token)))
}

// NewMirrorWithService builds a mirror on top of svc.
func NewMirrorWithService(cfg Config, svc NotionService) *Mirror {
	return &Mirror{
		service:    svc,
		databaseID: strings.TrimSpace(cfg.DatabaseID),
		configErr:  cfg.Validate(),
		now:        time.Now,
	}
}

// WithClock replaces the clock used for the Updated property.
func (m *Mirror) WithClock(now func() time.Time) *Mirror {
	m.now = now
	return m
}

// Configured reports whether the mirror can attempt writes.
func (m *Mirror) Configured() bool {
	return m.configErr == nil
}

// Project creates a page for tx and returns its mirror reference.
func (m *Mirror) Project(ctx context.Context, tx domain.Transaction) (string, error) {
	if m.configErr != nil {
		return "", m.configErr
	}

	page, err := m.service.CreatePage(ctx, m.databaseID, TransactionToNotionProperties(tx))
	if err != nil {
		return "", &domain.MirrorError{Op: "project", Err: err}
	}
	if page == nil || page.ID == "" {
		return "", &domain.MirrorError{Op: "project", Err: fmt.Errorf("Project: create page: empty page id")}
	}

	ref := FormatMirrorRef(string(page.ID))
	log := logger.FromContext(ctx)
	log.Debug().Str("transaction_id", tx.ID).Str("mirror_ref", ref).Msg("Created Notion page")
	return ref, nil
}

// Reproject sends the fields present in patch to the page behind mirrorRef.
func (m *Mirror) Reproject(ctx context.Context, mirrorRef string, patch domain.Patch) error {
	if m.configErr != nil {
		return m.configErr
	}

	pageID, err := ParseMirrorRef(mirrorRef)
	if err != nil {
		return &domain.MirrorError{Op: "reproject", Err: err}
	}

	if _, err := m.service.UpdatePage(ctx, pageID, PatchToNotionProperties(patch, m.now())); err != nil {
		return &domain.MirrorError{Op: "reproject", Err: err}
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("mirror_ref", mirrorRef).Msg("Updated Notion page")
	return nil
}

// Retire archives the page behind mirrorRef.
func (m *Mirror) Retire(ctx context.Context, mirrorRef string) error {
	if m.configErr != nil {
		return m.configErr
	}

	pageID, err := ParseMirrorRef(mirrorRef)
	if err != nil {
		return &domain.MirrorError{Op: "retire", Err: err}
	}

	if err := m.service.ArchivePage(ctx, pageID); err != nil {
		return &domain.MirrorError{Op: "retire", Err: err}
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("mirror_ref", mirrorRef).Msg("Archived Notion page")
	return nil
}

// CheckReachable retrieves the target database to prove the token and
// database id work together.
func (m *Mirror) CheckReachable(ctx context.Context) (bool, error) {
	if m.configErr != nil {
		return false, m.configErr
	}
	if _, err := m.service.RetrieveDatabase(ctx, m.databaseID); err != nil {
		return false, &domain.MirrorError{Op: "check", Err: err}
	}
	return true, nil
}

// FormatMirrorRef builds the reference stored on the primary record.
func FormatMirrorRef(pageID string) string {
	return MirrorRefPrefix + pageID
}

// ParseMirrorRef extracts the page id from a reference. Bare page ids are
// accepted as-is.
func ParseMirrorRef(ref string) (string, error) {
	pageID := strings.TrimSpace(strings.TrimPrefix(ref, MirrorRefPrefix))
	if pageID == "" {
		return "", fmt.Errorf("ParseMirrorRef: empty page id in %q", ref)
	}
	return pageID, nil
}
