package types

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawValue(rt *rapid.T, depth int) Value {
	maxKind := int(KindObject)
	if depth <= 0 {
		maxKind = int(KindString)
	}
	switch Kind(rapid.IntRange(0, maxKind).Draw(rt, "kind")) {
	case KindNull:
		return Null()
	case KindBool:
		return Bool(rapid.Bool().Draw(rt, "bool"))
	case KindNumber:
		if rapid.Bool().Draw(rt, "integral") {
			return Int(rapid.Int64().Draw(rt, "int"))
		}
		return Number(rapid.Float64Range(-1e12, 1e12).Draw(rt, "float"))
	case KindString:
		return String(rapid.StringMatching(`[a-zA-Z0-9 _\-]{0,12}`).Draw(rt, "string"))
	case KindArray:
		n := rapid.IntRange(0, 4).Draw(rt, "len")
		items := make([]Value, n)
		for i := range items {
			items[i] = drawValue(rt, depth-1)
		}
		return Array(items...)
	default:
		n := rapid.IntRange(0, 4).Draw(rt, "fields")
		obj := make(Map, n)
		for i := 0; i < n; i++ {
			key := rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "key")
			obj[key] = drawValue(rt, depth-1)
		}
		return Object(obj)
	}
}

func TestValue_JSONRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		original := drawValue(rt, 3)

		data, err := json.Marshal(original)
		require.NoError(rt, err)

		var decoded Value
		require.NoError(rt, json.Unmarshal(data, &decoded))

		if !original.Equal(decoded) {
			rt.Fatalf("round trip mismatch: %s", data)
		}
	})
}

func TestValue_CloneIsIndependentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		original := drawValue(rt, 3)
		clone := original.Clone()
		require.True(rt, original.Equal(clone))

		// 修改拷贝不影响原值
		if original.Kind() == KindObject {
			clone.obj["__mutated"] = String("x")
			require.False(rt, original.Equal(clone))
		}
		if original.Kind() == KindArray {
			clone.arr = append(clone.arr, Null())
			require.False(rt, original.Equal(clone))
		}
	})
}

func TestValue_NumberPrecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "decimal", raw: `0.1`},
		{name: "big integer", raw: `9007199254740993`},
		{name: "exponent", raw: `1.5e-300`},
		{name: "out of float range", raw: `1e400`},
		{name: "negative zero", raw: `-0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &v))
			assert.Equal(t, KindNumber, v.Kind())

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, string(out))
		})
	}
}

func TestValue_NestedDocument(t *testing.T) {
	raw := `{"a":[1,"two",true,null,{"b":[]}],"c":{"d":{"e":2.5}},"f":null}`

	var m Map
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	a, ok := m["a"]
	require.True(t, ok)
	assert.Equal(t, KindArray, a.Kind())
	assert.Equal(t, 5, a.Len())

	third, _ := a.Index(2)
	b, ok := third.AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	fourth, _ := a.Index(3)
	assert.True(t, fourth.IsNull())

	assert.True(t, m["f"].IsNull())

	c := m["c"]
	d, ok := c.Get("d")
	require.True(t, ok)
	e, ok := d.Get("e")
	require.True(t, ok)
	f, ok := e.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 2.5, f)

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var again Map
	require.NoError(t, json.Unmarshal(out, &again))
	assert.True(t, m.Equal(again))
}

func TestValue_EqualSemantics(t *testing.T) {
	assert.True(t, Int(1).Equal(Number(1)))
	assert.False(t, Int(1).Equal(String("1")))
	assert.False(t, Null().Equal(Bool(false)))
	assert.True(t, Object(Map{"x": Int(1), "y": Int(2)}).Equal(Object(Map{"y": Int(2), "x": Int(1)})))
	assert.False(t, Array(Int(1), Int(2)).Equal(Array(Int(2), Int(1))))
	assert.True(t, Map(nil).Equal(Map{}))
}

func TestValue_FromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"n":    42,
		"f":    float32(0.5),
		"list": []any{"a", uint64(math.MaxUint64), nil},
		"ok":   true,
	})
	require.NoError(t, err)

	n, _ := v.Get("n")
	i, ok := n.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	list, _ := v.Get("list")
	big, _ := list.Index(1)
	lit, ok := big.NumberLiteral()
	require.True(t, ok)
	assert.Equal(t, fmt.Sprint(uint64(math.MaxUint64)), lit)

	assert.True(t, Number(math.NaN()).IsNull())
	assert.True(t, Number(math.Inf(1)).IsNull())

	_, err = FromAny(make(chan int))
	assert.Error(t, err)
}

func TestNumberText_RejectsNonNumbers(t *testing.T) {
	for _, raw := range []string{`"1"`, `true`, `[1]`, `abc`, ``} {
		_, err := NumberText(raw)
		assert.Error(t, err, raw)
	}
}
