// capability_util.go: the util:: capability namespace.

package serval

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// registerUtilCapabilities installs util::{len, to_json, from_json, env}.
func registerUtilCapabilities(t *CapabilityTable) {
	t.Register("util", "len", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return NullValue, fmt.Errorf("util::len expects one argument")
		}
		n, err := valueLength(args[0])
		if err != nil {
			return NullValue, err
		}
		return IntValue(n), nil
	})

	// util::to_json(value) -> compact JSON string. Int/Float/String/Bool/
	// Null/List/Map encode as their JSON equivalents.
	t.Register("util", "to_json", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return NullValue, fmt.Errorf("util::to_json expects one argument")
		}
		plain, err := valueToPlain(args[0])
		if err != nil {
			return NullValue, err
		}
		raw, err := json.Marshal(plain)
		if err != nil {
			return NullValue, err
		}
		return StringValue(string(raw)), nil
	})

	// util::from_json(text) -> decoded value; JSON numbers with no fraction
	// become Int, others Float.
	t.Register("util", "from_json", func(args []Value) (Value, error) {
		s, err := oneStringArg("util::from_json", args)
		if err != nil {
			return NullValue, err
		}
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var plain interface{}
		if err := dec.Decode(&plain); err != nil {
			return NullValue, fmt.Errorf("invalid JSON: %w", err)
		}
		return plainToValue(plain)
	})

	// util::env(name) -> value of the environment variable, or null
	t.Register("util", "env", func(args []Value) (Value, error) {
		name, err := oneStringArg("util::env", args)
		if err != nil {
			return NullValue, err
		}
		v, ok := os.LookupEnv(name)
		if !ok {
			return NullValue, nil
		}
		return StringValue(v), nil
	})
}

// valueLength implements the shared length rule for strings and containers.
func valueLength(v Value) (int64, error) {
	switch v.Tag {
	case VString:
		return int64(len(v.Data.(string))), nil
	case VList:
		return int64(len(v.Data.([]Value))), nil
	case VMap:
		return int64(len(v.Data.(map[string]Value))), nil
	case VSet:
		return int64(len(v.Data.(map[string]struct{}))), nil
	default:
		return 0, fmt.Errorf("len not supported for %s", v.TypeName())
	}
}

// valueToPlain lowers a Value to encoding/json-friendly Go data.
func valueToPlain(v Value) (interface{}, error) {
	switch v.Tag {
	case VNull:
		return nil, nil
	case VBool, VInt, VFloat, VString:
		return v.Data, nil
	case VList:
		elems := v.Data.([]Value)
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			p, err := valueToPlain(e)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case VMap:
		m := v.Data.(map[string]Value)
		out := make(map[string]interface{}, len(m))
		for k, e := range m {
			p, err := valueToPlain(e)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	case VStruct:
		s := v.Data.(*StructData)
		out := make(map[string]interface{}, len(s.Fields))
		for k, e := range s.Fields {
			p, err := valueToPlain(e)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot encode %s as JSON", v.TypeName())
	}
}

// plainToValue lifts decoded JSON data into a Value.
func plainToValue(plain interface{}) (Value, error) {
	switch p := plain.(type) {
	case nil:
		return NullValue, nil
	case bool:
		return BoolValue(p), nil
	case string:
		return StringValue(p), nil
	case json.Number:
		if n, err := p.Int64(); err == nil {
			return IntValue(n), nil
		}
		f, err := p.Float64()
		if err != nil {
			return NullValue, fmt.Errorf("invalid JSON number %q", p.String())
		}
		return FloatValue(f), nil
	case []interface{}:
		elems := make([]Value, len(p))
		for i, e := range p {
			v, err := plainToValue(e)
			if err != nil {
				return NullValue, err
			}
			elems[i] = v
		}
		return ListValue(elems), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(p))
		for k, e := range p {
			v, err := plainToValue(e)
			if err != nil {
				return NullValue, err
			}
			m[k] = v
		}
		return MapValue(m), nil
	default:
		return NullValue, fmt.Errorf("unsupported JSON value %T", plain)
	}
}
