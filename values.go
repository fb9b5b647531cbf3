// values.go: the runtime's dynamic value model.
//
// Value is a closed tagged union; every consumption site switches on the tag
// exhaustively. Bindings own their containers: Clone produces structurally
// independent copies so mutating one binding never reaches another.

package serval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueTag discriminates the Value union.
type ValueTag int

const (
	VNull ValueTag = iota
	VBool
	VInt
	VFloat
	VString
	VList
	VMap
	VSet
	VStruct
	VResult
	VOption
	VClosure
)

// Value is one runtime value. Data holds the payload per tag:
// VBool→bool, VInt→int64, VFloat→float64, VString→string, VList→[]Value,
// VMap→map[string]Value, VSet→map[string]struct{}, VStruct→*StructData,
// VResult→*ResultData, VOption→*OptionData, VClosure→string (function name).
// VNull carries nil.
type Value struct {
	Tag  ValueTag
	Data interface{}
}

// StructData is a named field aggregate.
type StructData struct {
	Name   string
	Fields map[string]Value
}

// ResultData is an ok-or-err pair; exactly one side is meaningful.
type ResultData struct {
	Ok    bool
	Value Value
}

// OptionData is Some(value) or None.
type OptionData struct {
	Some  bool
	Value Value
}

// Constructors.

var NullValue = Value{Tag: VNull}

func BoolValue(b bool) Value      { return Value{Tag: VBool, Data: b} }
func IntValue(n int64) Value      { return Value{Tag: VInt, Data: n} }
func FloatValue(f float64) Value  { return Value{Tag: VFloat, Data: f} }
func StringValue(s string) Value  { return Value{Tag: VString, Data: s} }
func ListValue(e []Value) Value   { return Value{Tag: VList, Data: e} }
func ClosureValue(n string) Value { return Value{Tag: VClosure, Data: n} }

func MapValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Tag: VMap, Data: m}
}

func SetValue(members map[string]struct{}) Value {
	if members == nil {
		members = map[string]struct{}{}
	}
	return Value{Tag: VSet, Data: members}
}

func StructValue(name string, fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Tag: VStruct, Data: &StructData{Name: name, Fields: fields}}
}

func OkValue(v Value) Value {
	return Value{Tag: VResult, Data: &ResultData{Ok: true, Value: v}}
}

func ErrValue(v Value) Value {
	return Value{Tag: VResult, Data: &ResultData{Ok: false, Value: v}}
}

func SomeValue(v Value) Value {
	return Value{Tag: VOption, Data: &OptionData{Some: true, Value: v}}
}

var NoneValue = Value{Tag: VOption, Data: &OptionData{}}

// TypeName reports the value's dynamic type for diagnostics and the `type`
// builtin.
func (v Value) TypeName() string {
	switch v.Tag {
	case VNull:
		return "null"
	case VBool:
		return "bool"
	case VInt:
		return "int"
	case VFloat:
		return "float"
	case VString:
		return "string"
	case VList:
		return "list"
	case VMap:
		return "map"
	case VSet:
		return "set"
	case VStruct:
		return "struct"
	case VResult:
		return "result"
	case VOption:
		return "option"
	case VClosure:
		return "closure"
	default:
		return "unknown"
	}
}

// Clone deep-copies the value. Scalars are returned as-is; containers are
// rebuilt element by element so the copy shares no storage with the original.
func (v Value) Clone() Value {
	switch v.Tag {
	case VList:
		src := v.Data.([]Value)
		out := make([]Value, len(src))
		for i, e := range src {
			out[i] = e.Clone()
		}
		return Value{Tag: VList, Data: out}
	case VMap:
		src := v.Data.(map[string]Value)
		out := make(map[string]Value, len(src))
		for k, e := range src {
			out[k] = e.Clone()
		}
		return Value{Tag: VMap, Data: out}
	case VSet:
		src := v.Data.(map[string]struct{})
		out := make(map[string]struct{}, len(src))
		for k := range src {
			out[k] = struct{}{}
		}
		return Value{Tag: VSet, Data: out}
	case VStruct:
		src := v.Data.(*StructData)
		fields := make(map[string]Value, len(src.Fields))
		for k, e := range src.Fields {
			fields[k] = e.Clone()
		}
		return Value{Tag: VStruct, Data: &StructData{Name: src.Name, Fields: fields}}
	case VResult:
		src := v.Data.(*ResultData)
		return Value{Tag: VResult, Data: &ResultData{Ok: src.Ok, Value: src.Value.Clone()}}
	case VOption:
		src := v.Data.(*OptionData)
		return Value{Tag: VOption, Data: &OptionData{Some: src.Some, Value: src.Value.Clone()}}
	default:
		return v
	}
}

// Truthy applies the language's truth rules: Bool is itself, Null is false,
// numbers are non-zero, strings/lists/maps are non-empty, everything else is
// true.
func (v Value) Truthy() bool {
	switch v.Tag {
	case VNull:
		return false
	case VBool:
		return v.Data.(bool)
	case VInt:
		return v.Data.(int64) != 0
	case VFloat:
		return v.Data.(float64) != 0
	case VString:
		return v.Data.(string) != ""
	case VList:
		return len(v.Data.([]Value)) > 0
	case VMap:
		return len(v.Data.(map[string]Value)) > 0
	default:
		return true
	}
}

// Equals compares structurally. Int and Float compare numerically across
// tags; every other cross-tag comparison is false.
func (v Value) Equals(o Value) bool {
	if v.Tag != o.Tag {
		if v.Tag == VInt && o.Tag == VFloat {
			return float64(v.Data.(int64)) == o.Data.(float64)
		}
		if v.Tag == VFloat && o.Tag == VInt {
			return v.Data.(float64) == float64(o.Data.(int64))
		}
		return false
	}
	switch v.Tag {
	case VNull:
		return true
	case VBool:
		return v.Data.(bool) == o.Data.(bool)
	case VInt:
		return v.Data.(int64) == o.Data.(int64)
	case VFloat:
		return v.Data.(float64) == o.Data.(float64)
	case VString:
		return v.Data.(string) == o.Data.(string)
	case VList:
		a, b := v.Data.([]Value), o.Data.([]Value)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equals(b[i]) {
				return false
			}
		}
		return true
	case VMap:
		a, b := v.Data.(map[string]Value), o.Data.(map[string]Value)
		if len(a) != len(b) {
			return false
		}
		for k, av := range a {
			bv, ok := b[k]
			if !ok || !av.Equals(bv) {
				return false
			}
		}
		return true
	case VSet:
		a, b := v.Data.(map[string]struct{}), o.Data.(map[string]struct{})
		if len(a) != len(b) {
			return false
		}
		for k := range a {
			if _, ok := b[k]; !ok {
				return false
			}
		}
		return true
	case VStruct:
		a, b := v.Data.(*StructData), o.Data.(*StructData)
		if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
			return false
		}
		for k, av := range a.Fields {
			bv, ok := b.Fields[k]
			if !ok || !av.Equals(bv) {
				return false
			}
		}
		return true
	case VResult:
		a, b := v.Data.(*ResultData), o.Data.(*ResultData)
		return a.Ok == b.Ok && a.Value.Equals(b.Value)
	case VOption:
		a, b := v.Data.(*OptionData), o.Data.(*OptionData)
		return a.Some == b.Some && (!a.Some || a.Value.Equals(b.Value))
	case VClosure:
		return v.Data.(string) == o.Data.(string)
	default:
		return false
	}
}

// String renders the value the way `print` and the REPL show it. Map and set
// members print in sorted key order so output is deterministic.
func (v Value) String() string {
	switch v.Tag {
	case VNull:
		return "null"
	case VBool:
		return strconv.FormatBool(v.Data.(bool))
	case VInt:
		return strconv.FormatInt(v.Data.(int64), 10)
	case VFloat:
		return strconv.FormatFloat(v.Data.(float64), 'g', -1, 64)
	case VString:
		return v.Data.(string)
	case VList:
		elems := v.Data.([]Value)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.quoted()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case VMap:
		m := v.Data.(map[string]Value)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + m[k].quoted()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case VSet:
		m := v.Data.(map[string]struct{})
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "#{" + strings.Join(keys, ", ") + "}"
	case VStruct:
		s := v.Data.(*StructData)
		keys := make([]string, 0, len(s.Fields))
		for k := range s.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + s.Fields[k].quoted()
		}
		return s.Name + "{" + strings.Join(parts, ", ") + "}"
	case VResult:
		r := v.Data.(*ResultData)
		if r.Ok {
			return "Ok(" + r.Value.quoted() + ")"
		}
		return "Err(" + r.Value.quoted() + ")"
	case VOption:
		o := v.Data.(*OptionData)
		if o.Some {
			return "Some(" + o.Value.quoted() + ")"
		}
		return "None"
	case VClosure:
		return fmt.Sprintf("<fn %s>", v.Data.(string))
	default:
		return "<?>"
	}
}

// quoted renders like String but wraps strings in quotes, for use inside
// containers.
func (v Value) quoted() string {
	if v.Tag == VString {
		return strconv.Quote(v.Data.(string))
	}
	return v.String()
}
