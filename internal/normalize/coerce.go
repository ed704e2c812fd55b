package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// text renders scalar values as strings. Objects and arrays are not text.
func text(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toNumber(v interface{}) (float64, error) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("toNumber: %w", err)
		}
		f = parsed
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case string:
		parsed, err := parseDecimal(val)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("toNumber: unsupported type %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("toNumber: %v is not finite", f)
	}
	return f, nil
}

// parseDecimal reads numbers written either as 1234.56 or 1.234,56, with an
// optional currency prefix such as "R$". The sign may come before or after
// the prefix. A lone dot is a decimal point, so "1.234" is 1.234; two or more
// dots without a comma are thousands separators.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		negative = s[0] == '-'
		s = s[1:]
	}
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsSpace(r) || r == '$'
	})
	s = strings.ReplaceAll(s, " ", "")
	if negative {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return 0, fmt.Errorf("parseDecimal: %q has two signs", s)
		}
		s = "-" + s
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot < 0:
		s = strings.ReplaceAll(s, ",", ".")
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parseDecimal: %w", err)
	}
	return f, nil
}

func toBool(log zerolog.Logger, v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "y", "sim", "s", "on":
			return true
		case "", "false", "0", "no", "n", "não", "nao", "off":
			return false
		}
		log.Warn().Str("value", val).Msg("Unrecognized is_credit_card value; treating as false")
		return false
	default:
		log.Warn().Str("type", fmt.Sprintf("%T", v)).Msg("Unrecognized is_credit_card value; treating as false")
		return false
	}
}
