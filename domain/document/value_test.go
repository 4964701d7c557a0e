package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Equal_DeepStructures(t *testing.T) {
	a := Map(map[string]Value{
		"name": String("alpha"),
		"tags": List(String("x"), String("y")),
		"meta": Map(map[string]Value{"n": Number(1)}),
	})
	b := Map(map[string]Value{
		"name": String("alpha"),
		"tags": List(String("x"), String("y")),
		"meta": Map(map[string]Value{"n": Number(1)}),
	})

	assert.True(t, a.Equal(b))

	c := Map(map[string]Value{
		"name": String("alpha"),
		"tags": List(String("y"), String("x")),
		"meta": Map(map[string]Value{"n": Number(1)}),
	})
	assert.False(t, a.Equal(c), "list order matters")
}

func TestValue_Equal_NullVersusUndefined(t *testing.T) {
	assert.True(t, Null().Equal(Null()))
	assert.True(t, Undefined().Equal(Undefined()))
	assert.False(t, Null().Equal(Undefined()))
}

func TestCompare_KindRankAndValues(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"null before bool", Null(), Bool(false), -1},
		{"bool before number", Bool(true), Number(0), -1},
		{"number before string", Number(999), String(""), -1},
		{"numbers by value", Number(2), Number(10), -1},
		{"strings lexicographic", String("b"), String("a"), 1},
		{"equal strings", String("a"), String("a"), 0},
		{"lists lexicographic", List(Number(1), Number(2)), List(Number(1), Number(3)), -1},
		{"shorter list first", List(Number(1)), List(Number(1), Number(0)), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.a, tt.b)
			switch {
			case tt.want < 0:
				assert.Negative(t, got)
			case tt.want > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}
}

func TestValue_Contains(t *testing.T) {
	assert.True(t, String("hello world").Contains(String("lo wo")))
	assert.False(t, String("hello").Contains(String("xyz")))
	assert.True(t, List(Number(1), Number(2)).Contains(Number(2)))
	assert.False(t, List(Number(1)).Contains(Number(3)))
	assert.False(t, Number(12).Contains(Number(1)))
}

func TestCleanFields_StripsUndefinedKeepsNull(t *testing.T) {
	fields := map[string]Value{
		"keep":   String("v"),
		"null":   Null(),
		"absent": Undefined(),
		"nested": Map(map[string]Value{
			"inner":  Undefined(),
			"stays":  Number(1),
			"isNull": Null(),
		}),
		"list": List(String("a"), Undefined(), Null()),
	}

	cleaned := CleanFields(fields)

	assert.Len(t, cleaned, 4)
	assert.NotContains(t, cleaned, "absent")
	assert.True(t, cleaned["null"].IsNull())

	nested := cleaned["nested"].AsMap()
	assert.Len(t, nested, 2)
	assert.NotContains(t, nested, "inner")

	list := cleaned["list"].AsList()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].AsString())
	assert.True(t, list[1].IsNull())
}

func TestFromAny_RoundTrip(t *testing.T) {
	in := map[string]interface{}{
		"s":    "text",
		"n":    3.5,
		"i":    int64(7),
		"b":    true,
		"null": nil,
		"list": []interface{}{"a", 1.0},
		"map":  map[string]interface{}{"k": "v"},
	}

	v := FromAny(in)
	require.Equal(t, KindMap, v.Kind())

	m := v.AsMap()
	assert.Equal(t, "text", m["s"].AsString())
	assert.Equal(t, 3.5, m["n"].AsNumber())
	assert.Equal(t, 7.0, m["i"].AsNumber())
	assert.True(t, m["b"].AsBool())
	assert.True(t, m["null"].IsNull())

	out := v.ToAny().(map[string]interface{})
	assert.Equal(t, "text", out["s"])
	assert.Equal(t, []interface{}{"a", 1.0}, out["list"])
}
