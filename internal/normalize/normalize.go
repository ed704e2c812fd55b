// Package normalize turns the loosely typed payloads sent by the phone
// shortcut into canonical transaction drafts.
//
// Only a missing description or amount rejects a payload. Every other field
// is repaired or dropped, and the repair is logged, because the client is an
// automation tool we do not control.
package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
	"github.com/rs/zerolog"
)

const (
	// EscapedPayloadKey names a field that carries the whole payload as a
	// JSON-encoded string.
	EscapedPayloadKey = "json"

	// FallbackCategory replaces categories that are too long or look like JSON.
	FallbackCategory = "Uncategorized"

	// MaxCategoryLength is the longest category kept as given, in characters.
	MaxCategoryLength = 100
)

const (
	fieldDescription  = "description"
	fieldAmount       = "amount"
	fieldIsCreditCard = "is_credit_card"
	fieldCategory     = "category"
	fieldTags         = "tags"
	fieldLocation     = "location"
	fieldMonthYear    = "month_year"
)

var monthYearPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// DecodePayload decodes a request body into a field map. The body may be a
// JSON object or a JSON string that itself encodes an object.
func DecodePayload(data []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &domain.ValidationError{Field: "body", Reason: "is empty"}
	}

	var v interface{}
	if err := decodeJSON(data, &v); err != nil {
		return nil, &domain.ValidationError{Field: "body", Reason: "is not valid JSON"}
	}

	switch val := v.(type) {
	case map[string]interface{}:
		return val, nil
	case string:
		obj, err := decodeObject(val)
		if err != nil {
			return nil, &domain.ValidationError{Field: "body", Reason: "must be a JSON object"}
		}
		return obj, nil
	default:
		return nil, &domain.ValidationError{Field: "body", Reason: "must be a JSON object"}
	}
}

// Normalize converts a raw payload into a canonical draft.
func Normalize(ctx context.Context, raw map[string]interface{}) (domain.Draft, error) {
	log := logger.FromContext(ctx)
	fields := trimFields(unwrapEscaped(log, raw))

	description, _ := text(fields[fieldDescription])
	if description == "" {
		return domain.Draft{}, &domain.ValidationError{Field: fieldDescription, Reason: "is required"}
	}

	amountValue, ok := fields[fieldAmount]
	if !ok || isBlank(amountValue) {
		return domain.Draft{}, &domain.ValidationError{Field: fieldAmount, Reason: "is required"}
	}
	amount, err := toNumber(amountValue)
	if err != nil {
		return domain.Draft{}, &domain.ValidationError{Field: fieldAmount, Reason: "is not a number"}
	}

	draft := domain.Draft{
		Description:  description,
		Amount:       amount,
		IsCreditCard: toBool(log, fields[fieldIsCreditCard]),
		Category:     normalizeCategory(log, fields[fieldCategory]),
		Tags:         normalizeTags(log, fields[fieldTags]),
		Location:     normalizeLocation(log, fields[fieldLocation]),
		MonthYear:    normalizeMonthYear(log, fields[fieldMonthYear]),
	}

	return draft, nil
}

// NormalizePatch applies the same repairs as Normalize to an update payload.
// Nothing is required, but a description or amount that is present must be
// usable.
func NormalizePatch(ctx context.Context, raw map[string]interface{}) (domain.Patch, error) {
	log := logger.FromContext(ctx)
	fields := trimFields(unwrapEscaped(log, raw))

	var patch domain.Patch

	if v, ok := fields[fieldDescription]; ok {
		description, _ := text(v)
		if description == "" {
			return domain.Patch{}, &domain.ValidationError{Field: fieldDescription, Reason: "cannot be empty"}
		}
		patch.Description = &description
	}

	if v, ok := fields[fieldAmount]; ok {
		if isBlank(v) {
			return domain.Patch{}, &domain.ValidationError{Field: fieldAmount, Reason: "cannot be empty"}
		}
		amount, err := toNumber(v)
		if err != nil {
			return domain.Patch{}, &domain.ValidationError{Field: fieldAmount, Reason: "is not a number"}
		}
		patch.Amount = &amount
	}

	if v, ok := fields[fieldIsCreditCard]; ok {
		isCreditCard := toBool(log, v)
		patch.IsCreditCard = &isCreditCard
	}

	if v, ok := fields[fieldCategory]; ok {
		category := normalizeCategory(log, v)
		patch.Category = &category
	}

	if v, ok := fields[fieldTags]; ok {
		tags := normalizeTags(log, v)
		if tags == nil {
			tags = []string{}
		}
		patch.Tags = tags
	}

	if v, ok := fields[fieldLocation]; ok {
		patch.Location = normalizeLocation(log, v)
	}

	if _, ok := fields[fieldMonthYear]; ok {
		log.Debug().Msg("Ignoring month_year in update payload; it is fixed at creation")
	}

	return patch, nil
}

// unwrapEscaped replaces the payload with the object encoded in the escape
// field, when there is one and it parses. The field name may carry
// surrounding whitespace.
func unwrapEscaped(log zerolog.Logger, raw map[string]interface{}) map[string]interface{} {
	v, ok := escapedField(raw)
	if !ok {
		return raw
	}

	s, ok := v.(string)
	if !ok {
		log.Warn().
			Str("field", EscapedPayloadKey).
			Str("type", fmt.Sprintf("%T", v)).
			Msg("Escaped payload field is not a string; keeping original payload")
		return raw
	}

	obj, err := decodeObject(s)
	if err != nil {
		log.Warn().
			Err(err).
			Str("field", EscapedPayloadKey).
			Msg("Escaped payload field is not a JSON object; keeping original payload")
		return raw
	}

	return obj
}

func escapedField(raw map[string]interface{}) (interface{}, bool) {
	if v, ok := raw[EscapedPayloadKey]; ok {
		return v, true
	}
	for k, v := range raw {
		if strings.TrimSpace(k) == EscapedPayloadKey {
			return v, true
		}
	}
	return nil, false
}

// trimFields trims every key and every string value. When two keys trim to
// the same name, the one that was already trimmed wins.
func trimFields(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		key := strings.TrimSpace(k)
		if _, exists := out[key]; exists && k != key {
			continue
		}
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		out[key] = v
	}
	return out
}

func normalizeCategory(log zerolog.Logger, v interface{}) string {
	switch v.(type) {
	case nil:
		return ""
	case map[string]interface{}, []interface{}:
		log.Warn().Msg("Category is a JSON value; using fallback category")
		return FallbackCategory
	}

	category, ok := text(v)
	if !ok || category == "" {
		return ""
	}

	if len([]rune(category)) > MaxCategoryLength || strings.HasPrefix(category, "{") {
		log.Warn().
			Int("length", len([]rune(category))).
			Msg("Category is oversized or looks like JSON; using fallback category")
		return FallbackCategory
	}

	return category
}

func normalizeMonthYear(log zerolog.Logger, v interface{}) string {
	if v == nil {
		return ""
	}
	s, _ := text(v)
	if s == "" {
		return ""
	}
	if !monthYearPattern.MatchString(s) {
		log.Warn().Str("month_year", s).Msg("Ignoring month_year that is not YYYY-MM")
		return ""
	}
	return s
}

func decodeObject(s string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := decodeJSON([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("decodeObject: not an object")
	}
	return obj, nil
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
