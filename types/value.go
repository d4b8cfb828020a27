package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind 标识 Value 承载的 JSON 类型
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String 返回类型名称
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value 是带类型标签的 JSON 值。
// 零值为 null。数字以原始 JSON 文本保存，保证往返时精度不丢失。
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	arr  []Value
	obj  Map
}

// Map 是字符串键到 Value 的映射，用于 metadata 与 variables
type Map map[string]Value

// Null 返回 null 值
func Null() Value { return Value{} }

// Bool 创建布尔值
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number 创建数字值。NaN 与 ±Inf 不是合法 JSON，转换为 null。
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, n: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Int 创建整数值
func Int(i int64) Value {
	return Value{kind: KindNumber, n: json.Number(strconv.FormatInt(i, 10))}
}

// NumberText 以 JSON 数字文本创建数字值，文本必须是合法的 JSON 数字
func NumberText(text string) (Value, error) {
	if !json.Valid([]byte(text)) {
		return Value{}, fmt.Errorf("invalid json number %q", text)
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return Value{}, fmt.Errorf("invalid json number %q", text)
		}
	}
	return Value{kind: KindNumber, n: json.Number(text)}, nil
}

// String 创建字符串值
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array 创建数组值，元素会被深拷贝
func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	for i, item := range items {
		arr[i] = item.Clone()
	}
	return Value{kind: KindArray, arr: arr}
}

// Object 创建对象值，成员会被深拷贝
func Object(m Map) Value {
	return Value{kind: KindObject, obj: m.Clone()}
}

// Kind 返回值类型
func (v Value) Kind() Kind { return v.kind }

// IsNull 判断是否为 null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool 返回布尔值
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsFloat 返回数字的 float64 表示
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.n.Float64()
	if err != nil {
		return f, false
	}
	return f, true
}

// AsInt 返回数字的 int64 表示，仅当数字是整数时成功
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := v.n.Int64()
	if err == nil {
		return i, true
	}
	f, err := v.n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// NumberLiteral 返回数字的原始 JSON 文本
func (v Value) NumberLiteral() (string, bool) {
	return string(v.n), v.kind == KindNumber
}

// AsString 返回字符串值
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// Len 返回数组或对象的元素数量
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Index 返回数组第 i 个元素
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Items 返回数组元素的拷贝
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr))
	for i, item := range v.arr {
		out[i] = item.Clone()
	}
	return out
}

// Get 返回对象成员
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	member, ok := v.obj[key]
	return member, ok
}

// Fields 返回对象成员的拷贝
func (v Value) Fields() Map {
	if v.kind != KindObject {
		return nil
	}
	return v.obj.Clone()
}

// Clone 深拷贝
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, item := range v.arr {
			arr[i] = item.Clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Equal 深度比较。对象成员顺序无关，数组顺序有关，数字按数值比较。
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return numbersEqual(v.n, other.n)
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	default:
		return false
	}
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	if ai, err := a.Int64(); err == nil {
		if bi, err := b.Int64(); err == nil {
			return ai == bi
		}
	}
	af, errA := a.Float64()
	bf, errB := b.Float64()
	if errA != nil || errB != nil {
		return false
	}
	return af == bf
}

// Any 转换为 encoding/json 风格的 Go 值，数字为 json.Number
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case KindObject:
		return v.obj.Any()
	default:
		return nil
	}
}

// MarshalJSON 实现 json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		if v.n == "" {
			return []byte("0"), nil
		}
		return []byte(v.n), nil
	default:
		return json.Marshal(v.Any())
	}
}

// UnmarshalJSON 实现 json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode json value: %w", err)
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny 把 Go 值转换为 Value。
// 支持 encoding/json 解码产物、常见数值类型、[]any、map[string]any 以及 Value/Map 本身。
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t.Clone(), nil
	case Map:
		return Object(t), nil
	case []Value:
		return Array(t...), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return NumberText(string(t))
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Value{kind: KindNumber, n: json.Number(strconv.FormatUint(uint64(t), 10))}, nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Value{kind: KindNumber, n: json.Number(strconv.FormatUint(t, 10))}, nil
	case []any:
		arr := make([]Value, len(t))
		for i, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = converted
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		obj := make(Map, len(t))
		for k, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = converted
		}
		return Value{kind: KindObject, obj: obj}, nil
	default:
		// 其余类型走一次 JSON 编解码
		data, err := json.Marshal(x)
		if err != nil {
			return Value{}, fmt.Errorf("unsupported value of type %T: %w", x, err)
		}
		var v Value
		if err := v.UnmarshalJSON(data); err != nil {
			return Value{}, err
		}
		return v, nil
	}
}

// MustFromAny 与 FromAny 相同，失败时 panic。仅用于字面量构造。
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Clone 深拷贝 Map，nil 保持为 nil
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Equal 深度比较两个 Map。nil 与空 Map 视为相等。
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Any 转换为 map[string]any
func (m Map) Any() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Any()
	}
	return out
}
