package snapshot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"integral float", 42.0, "42"},
		{"fraction", 0.5, "0.5"},
		{"negative", -2.25, "-2.25"},
		{"zero", 0.0, "0"},
		{"large", 1e21, "1e+21"},
		{"small", 1e-7, "1e-7"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"float slice", []float64{1, 2.5}, "[1,2.5]"},
		{"empty object", map[string]any{}, "{}"},
		{"html", "<a&b>", `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortsNestedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{"b": 1, "a": 2},
		"a": 3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting at 0xD800, below U+E000.
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNormalizesStrings(t *testing.T) {
	// "e" + combining acute accent composes to U+00E9.
	result, err := MarshalCanonical("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by the text u2028 stays escaped.
	result, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)

	_, err = MarshalCanonical([]float64{1, math.Inf(1)})
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}
