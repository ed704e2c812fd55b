package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(buf *bytes.Buffer) context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(buf))
}

func TestNormalize_RequiredFields(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]interface{}
		wantField string
	}{
		{"missing description", map[string]interface{}{"amount": 10.0}, "description"},
		{"blank description", map[string]interface{}{"description": "   ", "amount": 10.0}, "description"},
		{"missing amount", map[string]interface{}{"description": "Lunch"}, "amount"},
		{"empty amount", map[string]interface{}{"description": "Lunch", "amount": ""}, "amount"},
		{"null amount", map[string]interface{}{"description": "Lunch", "amount": nil}, "amount"},
		{"garbled amount", map[string]interface{}{"description": "Lunch", "amount": "lots"}, "amount"},
		{"object description", map[string]interface{}{"description": map[string]interface{}{"a": 1.0}, "amount": 1.0}, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(context.Background(), tt.raw)

			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr), "want ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, validationErr.Field)
		})
	}
}

func TestNormalize_TrimsKeysAndValues(t *testing.T) {
	raw := map[string]interface{}{
		" description ":  "  Lunch \n",
		"amount\t":       " 42.50 ",
		" is_credit_card": "true",
		"category ":      " Food ",
	}

	draft, err := Normalize(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Lunch", draft.Description)
	assert.Equal(t, 42.5, draft.Amount)
	assert.True(t, draft.IsCreditCard)
	assert.Equal(t, "Food", draft.Category)
}

func TestNormalize_TrimmedKeyCollisionPrefersExactKey(t *testing.T) {
	raw := map[string]interface{}{
		"description":  "exact",
		"description ": "padded",
		"amount":       1.0,
	}

	draft, err := Normalize(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "exact", draft.Description)
}

func TestNormalize_EscapedPayload(t *testing.T) {
	inner := `{"description": "Coffee", "amount": 5.5, "tags": "a;b"}`

	draft, err := Normalize(context.Background(), map[string]interface{}{EscapedPayloadKey: inner})
	require.NoError(t, err)
	assert.Equal(t, "Coffee", draft.Description)
	assert.Equal(t, 5.5, draft.Amount)
	assert.Equal(t, []string{"a", "b"}, draft.Tags)
}

func TestNormalize_EscapedPayloadPaddedKey(t *testing.T) {
	raw := map[string]interface{}{" json ": `{"description": "x", "amount": 1}`}

	draft, err := Normalize(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "x", draft.Description)
	assert.Equal(t, 1.0, draft.Amount)
}

func TestNormalize_RejectsDoubleSignedAmount(t *testing.T) {
	_, err := Normalize(context.Background(), map[string]interface{}{
		"description": "x",
		"amount":      "--5",
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount", vErr.Field)
}

func TestNormalize_BrokenEscapedPayloadKeepsOriginal(t *testing.T) {
	buf := &bytes.Buffer{}
	raw := map[string]interface{}{
		EscapedPayloadKey: `{"description": "Coff`,
		"description":     "Tea",
		"amount":          "3",
	}

	draft, err := Normalize(testContext(buf), raw)
	require.NoError(t, err)
	assert.Equal(t, "Tea", draft.Description)
	assert.Equal(t, 3.0, draft.Amount)
	assert.Contains(t, buf.String(), "keeping original payload")
}

func TestNormalize_Amount(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
	}{
		{"float", 42.5, 42.5},
		{"json number", json.Number("-12.75"), -12.75},
		{"numeric string", "42.50", 42.5},
		{"comma decimal", "42,50", 42.5},
		{"thousands with comma decimal", "1.234,56", 1234.56},
		{"thousands with dot decimal", "1,234.56", 1234.56},
		{"currency prefix", "R$ 42,50", 42.5},
		{"negative", "-10", -10},
		{"sign before currency prefix", "-R$ 10,00", -10},
		{"sign after currency prefix", "R$ -10,00", -10},
		{"explicit plus sign", "+7,5", 7.5},
		{"lone dot is a decimal point", "1.234", 1.234},
		{"repeated dots are thousands", "1.234.567", 1234567},
		{"zero", 0.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := Normalize(context.Background(), map[string]interface{}{
				"description": "x",
				"amount":      tt.value,
			})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, draft.Amount, 1e-9)
		})
	}
}

func TestNormalize_IsCreditCard(t *testing.T) {
	tests := []struct {
		value interface{}
		want  bool
	}{
		{nil, false},
		{true, true},
		{"false", false},
		{"TRUE", true},
		{"sim", true},
		{"não", false},
		{"1", true},
		{1.0, true},
		{json.Number("0"), false},
		{"maybe", false},
	}

	for _, tt := range tests {
		draft, err := Normalize(context.Background(), map[string]interface{}{
			"description":    "x",
			"amount":         1.0,
			"is_credit_card": tt.value,
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, draft.IsCreditCard, "value %#v", tt.value)
	}
}

func TestNormalize_Category(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"absent", nil, ""},
		{"plain", "Food", "Food"},
		{"exactly max length", strings.Repeat("a", MaxCategoryLength), strings.Repeat("a", MaxCategoryLength)},
		{"oversized", strings.Repeat("a", 150), FallbackCategory},
		{"json shaped", `{"name": "Food"}`, FallbackCategory},
		{"object", map[string]interface{}{"name": "Food"}, FallbackCategory},
		{"multibyte within limit", strings.Repeat("é", MaxCategoryLength), strings.Repeat("é", MaxCategoryLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := Normalize(context.Background(), map[string]interface{}{
				"description": "x",
				"amount":      1.0,
				"category":    tt.value,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, draft.Category)
		})
	}
}

func TestNormalize_Tags(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  []string
	}{
		{"absent", nil, nil},
		{"mixed separators", "a, b;c\nd", []string{"a", "b", "c", "d"}},
		{"drops empty pieces", " a ,, ;\n\n b ", []string{"a", "b"}},
		{"array unchanged", []interface{}{"x", "y"}, []string{"x", "y"}},
		{"array keeps duplicates and order", []interface{}{"y", "x", "y"}, []string{"y", "x", "y"}},
		{"array elements trimmed and empties dropped", []interface{}{" x ", "", "y"}, []string{"x", "y"}},
		{"string slice trimmed", []string{" a", "  ", "b "}, []string{"a", "b"}},
		{"json array string", `["lunch", "work"]`, []string{"lunch", "work"}},
		{"empty string", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := Normalize(context.Background(), map[string]interface{}{
				"description": "x",
				"amount":      1.0,
				"tags":        tt.value,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, draft.Tags)
		})
	}
}

func TestNormalize_Location(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		draft, err := Normalize(context.Background(), map[string]interface{}{
			"description": "x",
			"amount":      1.0,
			"location": map[string]interface{}{
				"latitude":  json.Number("-23.5"),
				"longitude": "-46.6",
				"address":   "Rua A\n\nRua A, , 123",
			},
		})
		require.NoError(t, err)
		require.NotNil(t, draft.Location)
		assert.Equal(t, -23.5, draft.Location.Latitude)
		assert.Equal(t, -46.6, draft.Location.Longitude)
		assert.Equal(t, "Rua A, Rua A, 123", draft.Location.Address)
	})

	t.Run("json string with misspelled address", func(t *testing.T) {
		draft, err := Normalize(context.Background(), map[string]interface{}{
			"description": "x",
			"amount":      1.0,
			"location":    `{"latitude": 1.5, "longitude": 2.5, "adress": "Av. Paulista,1000\nSão Paulo"}`,
		})
		require.NoError(t, err)
		require.NotNil(t, draft.Location)
		assert.Equal(t, 1.5, draft.Location.Latitude)
		assert.Equal(t, "Av. Paulista, 1000, São Paulo", draft.Location.Address)
	})

	t.Run("unparseable string is dropped", func(t *testing.T) {
		buf := &bytes.Buffer{}
		draft, err := Normalize(testContext(buf), map[string]interface{}{
			"description": "x",
			"amount":      1.0,
			"location":    `{"latitude": 1.5,`,
		})
		require.NoError(t, err)
		assert.Nil(t, draft.Location)
		assert.Contains(t, buf.String(), "Dropping location")
	})

	t.Run("empty object is dropped", func(t *testing.T) {
		draft, err := Normalize(context.Background(), map[string]interface{}{
			"description": "x",
			"amount":      1.0,
			"location":    map[string]interface{}{},
		})
		require.NoError(t, err)
		assert.Nil(t, draft.Location)
	})

	t.Run("garbled coordinate becomes zero", func(t *testing.T) {
		draft, err := Normalize(context.Background(), map[string]interface{}{
			"description": "x",
			"amount":      1.0,
			"location":    map[string]interface{}{"lat": "north", "lng": 3.0},
		})
		require.NoError(t, err)
		require.NotNil(t, draft.Location)
		assert.Equal(t, 0.0, draft.Location.Latitude)
		assert.Equal(t, 3.0, draft.Location.Longitude)
	})
}

func TestNormalize_MonthYear(t *testing.T) {
	draft, err := Normalize(context.Background(), map[string]interface{}{
		"description": "x", "amount": 1.0, "month_year": "2024-02",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-02", draft.MonthYear)

	draft, err = Normalize(context.Background(), map[string]interface{}{
		"description": "x", "amount": 1.0, "month_year": "Feb 2024",
	})
	require.NoError(t, err)
	assert.Empty(t, draft.MonthYear)
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Rua A\n\nRua A, , 123", "Rua A, Rua A, 123"},
		{"Rua B\r\n456", "Rua B, 456"},
		{"Rua C ,  789 ,", "Rua C, 789"},
		{"Plain street", "Plain street"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAddress(tt.input))
		})
	}
}

func TestNormalizePatch(t *testing.T) {
	patch, err := NormalizePatch(context.Background(), map[string]interface{}{
		"amount":     "10,5",
		"category":   strings.Repeat("x", 101),
		"tags":       "",
		"month_year": "2020-01",
	})
	require.NoError(t, err)

	require.NotNil(t, patch.Amount)
	assert.Equal(t, 10.5, *patch.Amount)
	require.NotNil(t, patch.Category)
	assert.Equal(t, FallbackCategory, *patch.Category)
	assert.Equal(t, []string{}, patch.Tags)
	assert.Nil(t, patch.Description)
	assert.Nil(t, patch.IsCreditCard)
}

func TestNormalizePatch_RejectsEmptyRequiredFields(t *testing.T) {
	_, err := NormalizePatch(context.Background(), map[string]interface{}{"description": " "})
	var validationErr *domain.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "description", validationErr.Field)

	_, err = NormalizePatch(context.Background(), map[string]interface{}{"amount": "abc"})
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "amount", validationErr.Field)
}

func TestDecodePayload(t *testing.T) {
	obj, err := DecodePayload([]byte(`{"description": "Lunch", "amount": 42.5}`))
	require.NoError(t, err)
	assert.Equal(t, "Lunch", obj["description"])
	assert.Equal(t, json.Number("42.5"), obj["amount"])

	obj, err = DecodePayload([]byte(`"{\"description\": \"Lunch\", \"amount\": 1}"`))
	require.NoError(t, err)
	assert.Equal(t, "Lunch", obj["description"])

	for _, body := range []string{"", "[1, 2]", "42", `"not json"`, "{broken"} {
		_, err := DecodePayload([]byte(body))
		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr), "body %q", body)
	}
}
