package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"integral number", Number(42), "42"},
		{"negative number", Number(-100), "-100"},
		{"fraction", Number(0.25), "0.25"},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"null", Null{}, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"html not escaped", String("<a&b>"), `"<a&b>"`},
		{"sorted keys", Object{"zebra": Number(1), "alpha": Number(2)}, `{"alpha":2,"zebra":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(Number(math.NaN()))
	assert.Error(t, err)

	_, err = MarshalCanonical(Number(math.Inf(1)))
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	// NFC: precomposed and decomposed e-acute are the same text
	assert.True(t, Equal(String("caf\u00e9"), String("cafe\u0301")))
	assert.True(t, Equal(Number(1), Number(1.0)))
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(
		Object{"a": Array{Number(1)}, "b": Bool(true)},
		Object{"b": Bool(true), "a": Array{Number(1)}},
	))

	assert.False(t, Equal(String("1"), Number(1)))
	assert.False(t, Equal(Null{}, String("")))
	assert.False(t, Equal(Number(math.NaN()), Number(math.NaN())))
}
