package notionsync

import (
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the transactions database.
const (
	PropDescription   = "Description"
	PropAmount        = "Amount"
	PropMonth         = "Month"
	PropCreditCard    = "Credit Card"
	PropCategory      = "Category"
	PropTags          = "Tags"
	PropLocation      = "Location"
	PropCreated       = "Created"
	PropUpdated       = "Updated"
	PropTransactionID = "Transaction ID"
)

// maxRichTextLength is Notion's limit for a single text object.
const maxRichTextLength = 2000

// TransactionToNotionProperties converts a stored transaction to the
// properties of a new page. Optional fields are omitted when absent.
// Updated starts equal to Created.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropDescription: titleProperty(tx.Description),
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount,
		},
		PropMonth: richTextProperty(tx.MonthYear),
		PropCreditCard: notionapi.CheckboxProperty{
			Checkbox: tx.IsCreditCard,
		},
		PropCreated:       dateProperty(tx.CreatedAt),
		PropUpdated:       dateProperty(tx.CreatedAt),
		PropTransactionID: richTextProperty(tx.ID),
	}

	if tx.Category != "" {
		props[PropCategory] = richTextProperty(tx.Category)
	}
	if len(tx.Tags) > 0 {
		props[PropTags] = multiSelectProperty(tx.Tags)
	}
	if tx.Location != nil {
		props[PropLocation] = richTextProperty(LocationText(*tx.Location))
	}

	return props
}

// PatchToNotionProperties converts a partial update to page properties. Only
// fields present in the patch are included; Updated is always set to now.
func PatchToNotionProperties(patch domain.Patch, now time.Time) notionapi.Properties {
	props := notionapi.Properties{
		PropUpdated: dateProperty(now),
	}

	if patch.Description != nil {
		props[PropDescription] = titleProperty(*patch.Description)
	}
	if patch.Amount != nil {
		props[PropAmount] = notionapi.NumberProperty{Number: *patch.Amount}
	}
	if patch.IsCreditCard != nil {
		props[PropCreditCard] = notionapi.CheckboxProperty{Checkbox: *patch.IsCreditCard}
	}
	if patch.Category != nil {
		props[PropCategory] = richTextProperty(*patch.Category)
	}
	if patch.Tags != nil {
		props[PropTags] = multiSelectProperty(patch.Tags)
	}
	if patch.Location != nil {
		props[PropLocation] = richTextProperty(LocationText(*patch.Location))
	}

	return props
}

// LocationText renders a location for display: the address when known,
// otherwise "lat, lon".
func LocationText(loc domain.Location) string {
	if loc.Address != "" {
		return loc.Address
	}
	return strconv.FormatFloat(loc.Latitude, 'f', -1, 64) + ", " + strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
}

func titleProperty(content string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: richText(content),
	}
}

// richTextProperty clears the property when content is empty.
func richTextProperty(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: richText(content),
	}
}

func richText(content string) []notionapi.RichText {
	if content == "" {
		return []notionapi.RichText{}
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: truncate(content, maxRichTextLength),
			},
		},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t.UTC())
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: &d,
		},
	}
}

// multiSelectProperty maps tags to options. Notion rejects commas in option
// names, and duplicate names in one request.
func multiSelectProperty(tags []string) notionapi.MultiSelectProperty {
	options := make([]notionapi.Option, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		name := strings.TrimSpace(strings.ReplaceAll(tag, ",", " "))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		options = append(options, notionapi.Option{Name: truncate(name, 100)})
	}
	return notionapi.MultiSelectProperty{
		MultiSelect: options,
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
