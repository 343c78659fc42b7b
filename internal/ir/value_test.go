package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Number(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Number(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{
		"a":  Number(1),
		"A":  Number(2),
		"aa": Number(3),
		"aA": Number(4),
		"Aa": Number(5),
		"AA": Number(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestObjectGetMissingIsNull(t *testing.T) {
	obj := Object{"present": String("x")}

	assert.Equal(t, String("x"), obj.Get("present"))
	assert.Equal(t, Null{}, obj.Get("absent"))
}

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"name":"Ada","age":36,"tags":["a",true,null],"ratio":0.5}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("Ada"), obj["name"])
	assert.Equal(t, Number(36), obj["age"])
	assert.Equal(t, Number(0.5), obj["ratio"])
	assert.Equal(t, Array{String("a"), Bool(true), Null{}}, obj["tags"])
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Object{"b": Number(2), "a": String("x"), "c": Array{Bool(false)}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2,"c":[false]}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back))
}

func TestObjectUnmarshalRejectsNonObject(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`[1,2]`), &obj)
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{"n": 3, "f": 1.25, "s": "x", "nil": nil})
	require.NoError(t, err)
	assert.Equal(t, Object{"n": Number(3), "f": Number(1.25), "s": String("x"), "nil": Null{}}, v)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null{}, ""},
		{"nil", nil, ""},
		{"text", String("hi"), "hi"},
		{"integral number", Number(42), "42"},
		{"fraction", Number(2.5), "2.5"},
		{"bool", Bool(true), "true"},
		{"array", Array{Number(1), String("a")}, `[1,"a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in))
		})
	}
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "text", TypeName(String("")))
	assert.Equal(t, "number", TypeName(Number(0)))
	assert.Equal(t, "boolean", TypeName(Bool(false)))
	assert.Equal(t, "null", TypeName(Null{}))
	assert.Equal(t, "object", TypeName(Object{}))
}

func TestParseNumber(t *testing.T) {
	n, ok := ParseNumber(" 12.5 ")
	assert.True(t, ok)
	assert.Equal(t, Number(12.5), n)

	_, ok = ParseNumber("twelve")
	assert.False(t, ok)
}
