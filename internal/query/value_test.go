package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Truthy(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected bool
	}{
		{"undefined", Undefined(), false},
		{"true", Boolean(true), true},
		{"false", Boolean(false), false},
		{"empty string", String(""), false},
		{"string", String("x"), true},
		{"zero", Integer(0), false},
		{"integer", Integer(3), true},
		{"zero float", Float(0), false},
		{"float", Float(0.5), true},
		{"empty list", StringList(), false},
		{"list", StringList("a"), true},
		{"date", Date(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.value.Truthy())
		})
	}
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("a").Equal(String("b")))
	assert.True(t, Integer(2).Equal(Float(2)))
	assert.True(t, Undefined().Equal(Undefined()))
	assert.False(t, Undefined().Equal(String("")))
	assert.True(t, StringList("a", "b").Equal(StringList("a", "b")))
	assert.False(t, StringList("a", "b").Equal(StringList("b", "a")))
	assert.False(t, Integer(1).Equal(String("1")))
}

func TestStringList_CopiesInput(t *testing.T) {
	items := []string{"view", "cart"}
	v := StringList(items...)
	items[0] = "changed"

	assert.Equal(t, []string{"view", "cart"}, v.List())

	out := v.List()
	out[1] = "changed"
	assert.Equal(t, []string{"view", "cart"}, v.List())
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected Value
	}{
		{"nil", nil, Undefined()},
		{"string", "orders", String("orders")},
		{"bool", true, Boolean(true)},
		{"int", 5, Integer(5)},
		{"integral json number", float64(100), Integer(100)},
		{"fractional json number", 1.5, Float(1.5)},
		{"json list", []any{"a", "b"}, StringList("a", "b")},
		{"string slice", []string{"a"}, StringList("a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromAny(tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(v), "got %s", v)
			assert.Equal(t, tt.expected.Kind(), v.Kind())
		})
	}

	_, err := FromAny([]any{"a", 1})
	assert.Error(t, err)

	_, err = FromAny(map[string]any{})
	assert.Error(t, err)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		kind     Kind
		expected Value
		wantErr  bool
	}{
		{name: "string to integer", raw: "42", kind: KindInteger, expected: Integer(42)},
		{name: "bad integer", raw: "4x", kind: KindInteger, wantErr: true},
		{name: "string to float", raw: "2.5", kind: KindFloat, expected: Float(2.5)},
		{name: "nan rejected", raw: "NaN", kind: KindFloat, wantErr: true},
		{name: "integral float to integer", raw: float64(50), kind: KindInteger, expected: Integer(50)},
		{name: "fractional float to integer", raw: 2.5, kind: KindInteger, wantErr: true},
		{name: "float above int64 range", raw: 1e20, kind: KindInteger, wantErr: true},
		{name: "float below int64 range", raw: -1e19, kind: KindInteger, wantErr: true},
		{name: "string to boolean", raw: "true", kind: KindBoolean, expected: Boolean(true)},
		{name: "string to date", raw: "2024-02-29", kind: KindDate, expected: String("2024-02-29")},
		{name: "invalid date", raw: "2024-02-30", kind: KindDate, wantErr: true},
		{name: "date wrong layout", raw: "02/01/2024", kind: KindDate, wantErr: true},
		{name: "comma list", raw: "view, cart,purchase", kind: KindStringList, expected: StringList("view", "cart", "purchase")},
		{name: "empty list", raw: "", kind: KindStringList, expected: StringList()},
		{name: "integer to string", raw: 7, kind: KindString, expected: String("7")},
		{name: "nil stays undefined", raw: nil, kind: KindInteger, expected: Undefined()},
		{name: "list to string", raw: []string{"a"}, kind: KindString, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(tt.raw, tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(v), "got %s", v)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("string[]")
	require.NoError(t, err)
	assert.Equal(t, KindStringList, k)

	k, err = ParseKind("INT")
	require.NoError(t, err)
	assert.Equal(t, KindInteger, k)

	_, err = ParseKind("map")
	assert.Error(t, err)
}

func TestContext_WithDoesNotModifyReceiver(t *testing.T) {
	ctx := Context{"step": String("outer")}
	inner := ctx.With(map[string]Value{"step": String("inner"), "index": Integer(1)})

	assert.Equal(t, "outer", ctx.Lookup("step").Text())
	assert.True(t, ctx.Lookup("index").IsUndefined())
	assert.Equal(t, "inner", inner.Lookup("step").Text())
}
