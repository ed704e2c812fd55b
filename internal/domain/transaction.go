package domain

import (
	"time"
)

const (
	// MonthYearLayout is the time layout of Transaction.MonthYear.
	MonthYearLayout = "2006-01"

	// DefaultPageSize is applied when an offset is requested without a limit.
	DefaultPageSize = 10
)

// Location is where a transaction happened, as reported by the phone.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Draft is a transaction after normalization, before the primary store
// assigns id and created_at.
type Draft struct {
	Description  string
	Amount       float64
	IsCreditCard bool
	Category     string    // empty when absent
	Tags         []string  // nil when absent
	Location     *Location // nil when absent
	MonthYear    string    // empty means derive from created_at
}

// Transaction is the canonical, authoritative record.
type Transaction struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Amount       float64   `json:"amount"`
	IsCreditCard bool      `json:"is_credit_card"`
	Category     string    `json:"category,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Location     *Location `json:"location,omitempty"`
	MonthYear    string    `json:"month_year"`
	CreatedAt    time.Time `json:"created_at"`
	MirrorRef    string    `json:"mirror_ref,omitempty"`
}

// HasMirror reports whether the record has a mirrored counterpart.
func (t Transaction) HasMirror() bool {
	return t.MirrorRef != ""
}

// Patch is a partial update. Nil fields are left unchanged.
// There is deliberately no MonthYear field: it is fixed at creation.
type Patch struct {
	Description  *string
	Amount       *float64
	IsCreditCard *bool
	Category     *string
	Tags         []string
	Location     *Location

	// MirrorRef is only set by the orchestrator's back-fill, never from client input.
	MirrorRef *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Description == nil &&
		p.Amount == nil &&
		p.IsCreditCard == nil &&
		p.Category == nil &&
		p.Tags == nil &&
		p.Location == nil &&
		p.MirrorRef == nil
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Transaction) Transaction {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.IsCreditCard != nil {
		t.IsCreditCard = *p.IsCreditCard
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), p.Tags...)
	}
	if p.Location != nil {
		loc := *p.Location
		t.Location = &loc
	}
	if p.MirrorRef != nil {
		t.MirrorRef = *p.MirrorRef
	}
	return t
}

// Filters selects transactions in FindMany. All set fields must match.
type Filters struct {
	MonthYear    string
	Category     string
	IsCreditCard *bool
	Limit        int
	Offset       int
}

// Window returns the effective limit and offset. A zero limit with a zero
// offset means unbounded.
func (f Filters) Window() (limit, offset int) {
	limit, offset = f.Limit, f.Offset
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	if offset > 0 && limit == 0 {
		limit = DefaultPageSize
	}
	return limit, offset
}

// NewTransaction builds the record a store persists for d. id and now are
// supplied by the store.
func NewTransaction(d Draft, id string, now time.Time) Transaction {
	monthYear := d.MonthYear
	if monthYear == "" {
		monthYear = FormatMonthYear(now)
	}

	tx := Transaction{
		ID:           id,
		Description:  d.Description,
		Amount:       d.Amount,
		IsCreditCard: d.IsCreditCard,
		Category:     d.Category,
		MonthYear:    monthYear,
		CreatedAt:    now,
	}
	if d.Tags != nil {
		tx.Tags = append([]string(nil), d.Tags...)
	}
	if d.Location != nil {
		loc := *d.Location
		tx.Location = &loc
	}
	return tx
}

// FormatMonthYear formats t as YYYY-MM.
func FormatMonthYear(t time.Time) string {
	return t.Format(MonthYearLayout)
}
