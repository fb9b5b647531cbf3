// builtin_strings.go: string manipulation builtins.
//
// All index-based operations work on runes, not bytes, so multi-byte text
// behaves the way a script author expects.

package serval

import (
	"strings"
)

func registerStringBuiltins(rt *Runtime) {
	b := rt.builtins

	stringArg := func(call *CallExpr, name string, v Value) (string, error) {
		if v.Tag != VString {
			return "", runtimeErrf(call, "%s expects a string, got %s", name, v.TypeName())
		}
		return v.Data.(string), nil
	}

	// substr(s, i, j) takes the half-open rune slice [i, j). Indices are
	// clamped to bounds and negative values are treated as 0.
	b["substr"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "substr", args, 3); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "substr", args[0])
		if err != nil {
			return NullValue, err
		}
		if args[1].Tag != VInt || args[2].Tag != VInt {
			return NullValue, runtimeErrf(call, "substr expects integer indices")
		}
		i := int(args[1].Data.(int64))
		j := int(args[2].Data.(int64))
		r := []rune(s)
		if i < 0 {
			i = 0
		}
		if j < i {
			j = i
		}
		if i > len(r) {
			i = len(r)
		}
		if j > len(r) {
			j = len(r)
		}
		return StringValue(string(r[i:j])), nil
	}

	b["upper"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "upper", args, 1); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "upper", args[0])
		if err != nil {
			return NullValue, err
		}
		return StringValue(strings.ToUpper(s)), nil
	}

	b["lower"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "lower", args, 1); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "lower", args[0])
		if err != nil {
			return NullValue, err
		}
		return StringValue(strings.ToLower(s)), nil
	}

	b["trim"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "trim", args, 1); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "trim", args[0])
		if err != nil {
			return NullValue, err
		}
		return StringValue(strings.TrimSpace(s)), nil
	}

	b["split"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "split", args, 2); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "split", args[0])
		if err != nil {
			return NullValue, err
		}
		sep, err := stringArg(call, "split", args[1])
		if err != nil {
			return NullValue, err
		}
		parts := strings.Split(s, sep)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = StringValue(p)
		}
		return ListValue(out), nil
	}

	b["join"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "join", args, 2); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VList {
			return NullValue, runtimeErrf(call, "join expects a list, got %s", args[0].TypeName())
		}
		sep, err := stringArg(call, "join", args[1])
		if err != nil {
			return NullValue, err
		}
		elems := args[0].Data.([]Value)
		parts := make([]string, len(elems))
		for i, e := range elems {
			if e.Tag != VString {
				return NullValue, runtimeErrf(call, "join expects a list of strings, got %s", e.TypeName())
			}
			parts[i] = e.Data.(string)
		}
		return StringValue(strings.Join(parts, sep)), nil
	}

	b["replace"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "replace", args, 3); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "replace", args[0])
		if err != nil {
			return NullValue, err
		}
		old, err := stringArg(call, "replace", args[1])
		if err != nil {
			return NullValue, err
		}
		repl, err := stringArg(call, "replace", args[2])
		if err != nil {
			return NullValue, err
		}
		return StringValue(strings.ReplaceAll(s, old, repl)), nil
	}

	b["starts_with"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "starts_with", args, 2); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "starts_with", args[0])
		if err != nil {
			return NullValue, err
		}
		prefix, err := stringArg(call, "starts_with", args[1])
		if err != nil {
			return NullValue, err
		}
		return BoolValue(strings.HasPrefix(s, prefix)), nil
	}

	b["ends_with"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "ends_with", args, 2); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "ends_with", args[0])
		if err != nil {
			return NullValue, err
		}
		suffix, err := stringArg(call, "ends_with", args[1])
		if err != nil {
			return NullValue, err
		}
		return BoolValue(strings.HasSuffix(s, suffix)), nil
	}

	// index_of(s, sub) reports the rune index of the first occurrence, -1 if
	// absent.
	b["index_of"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "index_of", args, 2); err != nil {
			return NullValue, err
		}
		s, err := stringArg(call, "index_of", args[0])
		if err != nil {
			return NullValue, err
		}
		sub, err := stringArg(call, "index_of", args[1])
		if err != nil {
			return NullValue, err
		}
		byteIdx := strings.Index(s, sub)
		if byteIdx < 0 {
			return IntValue(-1), nil
		}
		return IntValue(int64(len([]rune(s[:byteIdx])))), nil
	}
}
