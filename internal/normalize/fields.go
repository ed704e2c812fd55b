package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/rs/zerolog"
)

var (
	tagSeparators  = regexp.MustCompile(`[,;\r\n]+`)
	lineBreaks     = regexp.MustCompile(`[\r\n]+`)
	commaSpacing   = regexp.MustCompile(`\s*,\s*`)
	repeatedCommas = regexp.MustCompile(`(?:,\s*){2,}`)
)

// Location keys in lookup order. "adress" is a misspelling the shortcut sends.
var (
	latitudeKeys  = []string{"latitude", "lat"}
	longitudeKeys = []string{"longitude", "lng", "lon"}
	addressKeys   = []string{"address", "adress"}
)

// normalizeTags splits a delimited string into tags. Array elements are
// trimmed and empty ones dropped; order and duplicates are kept.
func normalizeTags(log zerolog.Logger, v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		tags := make([]string, 0, len(val))
		for _, tag := range val {
			tags = appendTag(tags, tag)
		}
		return tags
	case []interface{}:
		return tagsFromArray(log, val)
	case string:
		s := strings.TrimSpace(val)
		if strings.HasPrefix(s, "[") {
			var arr []interface{}
			if err := decodeJSON([]byte(s), &arr); err == nil {
				return tagsFromArray(log, arr)
			}
		}
		return splitTags(s)
	default:
		log.Warn().Str("type", fmt.Sprintf("%T", v)).Msg("Dropping tags of unsupported type")
		return nil
	}
}

func splitTags(s string) []string {
	var tags []string
	for _, piece := range tagSeparators.Split(s, -1) {
		piece = strings.TrimSpace(piece)
		if piece != "" {
			tags = append(tags, piece)
		}
	}
	return tags
}

func tagsFromArray(log zerolog.Logger, arr []interface{}) []string {
	tags := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			tags = appendTag(tags, s)
			continue
		}
		s, ok := text(item)
		if !ok {
			log.Warn().Str("type", fmt.Sprintf("%T", item)).Msg("Dropping tag of unsupported type")
			continue
		}
		tags = appendTag(tags, s)
	}
	return tags
}

func appendTag(tags []string, tag string) []string {
	if tag = strings.TrimSpace(tag); tag != "" {
		tags = append(tags, tag)
	}
	return tags
}

// normalizeLocation returns nil whenever the location cannot be read. It
// never fails the request.
func normalizeLocation(log zerolog.Logger, v interface{}) *domain.Location {
	var obj map[string]interface{}

	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		obj = val
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		parsed, err := decodeObject(val)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping location that is not valid JSON")
			return nil
		}
		obj = parsed
	default:
		log.Warn().Str("type", fmt.Sprintf("%T", v)).Msg("Dropping location of unsupported type")
		return nil
	}

	obj = trimFields(obj)

	latValue, hasLat := lookup(obj, latitudeKeys)
	lonValue, hasLon := lookup(obj, longitudeKeys)
	addrValue, hasAddr := lookup(obj, addressKeys)
	if !hasLat && !hasLon && !hasAddr {
		log.Warn().Msg("Dropping location without coordinates or address")
		return nil
	}

	loc := &domain.Location{
		Latitude:  coordinate(log, "latitude", latValue),
		Longitude: coordinate(log, "longitude", lonValue),
	}
	if hasAddr {
		if s, ok := text(addrValue); ok {
			loc.Address = FormatAddress(s)
		}
	}

	return loc
}

func lookup(obj map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func coordinate(log zerolog.Logger, name string, v interface{}) float64 {
	if isBlank(v) {
		return 0
	}
	f, err := toNumber(v)
	if err != nil {
		log.Warn().Err(err).Str("coordinate", name).Msg("Unreadable coordinate; using 0")
		return 0
	}
	return f
}

// FormatAddress replaces line breaks with ", ", collapses whitespace around
// commas and removes repeated commas.
func FormatAddress(s string) string {
	s = lineBreaks.ReplaceAllString(s, ", ")
	s = commaSpacing.ReplaceAllString(s, ", ")
	s = repeatedCommas.ReplaceAllString(s, ", ")
	return strings.Trim(s, ", ")
}
