// builtin_core.go: the builtin function registry.
//
// Builtins resolve before user functions, so a program cannot shadow them.
// The transactional builtins delegate to the runtime's TransactionManager;
// everything else is pure value manipulation.

package serval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RegisterBuiltin installs a host-provided builtin under name. Installing
// over an existing name replaces it.
func (rt *Runtime) RegisterBuiltin(name string, fn func(args []Value) (Value, error)) {
	rt.builtins[name] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		v, err := fn(args)
		if err != nil {
			return NullValue, runtimeErrf(call, "%s: %v", name, err)
		}
		return v, nil
	}
}

func registerCoreBuiltins(rt *Runtime) {
	b := rt.builtins

	b["print"] = func(rt *Runtime, _ *Scope, _ *CallExpr, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(rt.Stdout, strings.Join(parts, " "))
		return NullValue, nil
	}

	b["len"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "len", args, 1); err != nil {
			return NullValue, err
		}
		n, err := valueLength(args[0])
		if err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return IntValue(n), nil
	}

	b["push"] = func(_ *Runtime, sc *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "push", args, 2); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VList {
			return NullValue, runtimeErrf(call, "push expects a list, got %s", args[0].TypeName())
		}
		out := append(args[0].Data.([]Value), args[1].Clone())
		result := ListValue(out)
		// push(xs, v) on a variable updates the binding in place.
		if id, ok := call.Args[0].(*Identifier); ok {
			sc.Assign(id.Name, result)
		}
		return result, nil
	}

	b["pop"] = func(_ *Runtime, sc *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "pop", args, 1); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VList {
			return NullValue, runtimeErrf(call, "pop expects a list, got %s", args[0].TypeName())
		}
		elems := args[0].Data.([]Value)
		if len(elems) == 0 {
			return NullValue, runtimeErrf(call, "pop from empty list")
		}
		last := elems[len(elems)-1]
		if id, ok := call.Args[0].(*Identifier); ok {
			sc.Assign(id.Name, ListValue(elems[:len(elems)-1]))
		}
		return last, nil
	}

	b["str"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "str", args, 1); err != nil {
			return NullValue, err
		}
		return StringValue(args[0].String()), nil
	}

	b["int"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "int", args, 1); err != nil {
			return NullValue, err
		}
		switch args[0].Tag {
		case VInt:
			return args[0], nil
		case VFloat:
			return IntValue(int64(args[0].Data.(float64))), nil
		case VBool:
			if args[0].Data.(bool) {
				return IntValue(1), nil
			}
			return IntValue(0), nil
		case VString:
			n, err := strconv.ParseInt(strings.TrimSpace(args[0].Data.(string)), 10, 64)
			if err != nil {
				return NullValue, runtimeErrf(call, "int: cannot parse %q", args[0].Data.(string))
			}
			return IntValue(n), nil
		default:
			return NullValue, runtimeErrf(call, "int: cannot convert %s", args[0].TypeName())
		}
	}

	b["float"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "float", args, 1); err != nil {
			return NullValue, err
		}
		switch args[0].Tag {
		case VFloat:
			return args[0], nil
		case VInt:
			return FloatValue(float64(args[0].Data.(int64))), nil
		case VString:
			f, err := strconv.ParseFloat(strings.TrimSpace(args[0].Data.(string)), 64)
			if err != nil {
				return NullValue, runtimeErrf(call, "float: cannot parse %q", args[0].Data.(string))
			}
			return FloatValue(f), nil
		default:
			return NullValue, runtimeErrf(call, "float: cannot convert %s", args[0].TypeName())
		}
	}

	b["type"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "type", args, 1); err != nil {
			return NullValue, err
		}
		return StringValue(args[0].TypeName()), nil
	}

	// range(end) or range(start, end): half-open, distinct from the
	// inclusive `..` expression.
	b["range"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		var lo, hi int64
		switch len(args) {
		case 1:
			hi = wantIntArg(args[0])
		case 2:
			lo, hi = wantIntArg(args[0]), wantIntArg(args[1])
		default:
			return NullValue, runtimeErrf(call, "range expects 1 or 2 arguments, got %d", len(args))
		}
		for _, a := range args {
			if a.Tag != VInt {
				return NullValue, runtimeErrf(call, "range expects integers, got %s", a.TypeName())
			}
		}
		if lo < hi && uint64(hi)-uint64(lo) > uint64(maxRangeLength) {
			return NullValue, runtimeErrf(call, "range too large (limit %d elements)", maxRangeLength)
		}
		var out []Value
		for n := lo; n < hi; n++ {
			out = append(out, IntValue(n))
		}
		return ListValue(out), nil
	}

	b["keys"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "keys", args, 1); err != nil {
			return NullValue, err
		}
		ks, err := sortedKeys(args[0])
		if err != nil {
			return NullValue, runtimeErrf(call, "keys: %v", err)
		}
		out := make([]Value, len(ks))
		for i, k := range ks {
			out[i] = StringValue(k)
		}
		return ListValue(out), nil
	}

	b["values"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "values", args, 1); err != nil {
			return NullValue, err
		}
		switch args[0].Tag {
		case VMap:
			m := args[0].Data.(map[string]Value)
			ks, _ := sortedKeys(args[0])
			out := make([]Value, len(ks))
			for i, k := range ks {
				out[i] = m[k].Clone()
			}
			return ListValue(out), nil
		case VStruct:
			s := args[0].Data.(*StructData)
			ks, _ := sortedKeys(args[0])
			out := make([]Value, len(ks))
			for i, k := range ks {
				out[i] = s.Fields[k].Clone()
			}
			return ListValue(out), nil
		default:
			return NullValue, runtimeErrf(call, "values expects a map or struct, got %s", args[0].TypeName())
		}
	}

	b["contains"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "contains", args, 2); err != nil {
			return NullValue, err
		}
		switch args[0].Tag {
		case VList:
			for _, e := range args[0].Data.([]Value) {
				if e.Equals(args[1]) {
					return BoolValue(true), nil
				}
			}
			return BoolValue(false), nil
		case VMap:
			if args[1].Tag != VString {
				return BoolValue(false), nil
			}
			_, ok := args[0].Data.(map[string]Value)[args[1].Data.(string)]
			return BoolValue(ok), nil
		case VSet:
			if args[1].Tag != VString {
				return BoolValue(false), nil
			}
			_, ok := args[0].Data.(map[string]struct{})[args[1].Data.(string)]
			return BoolValue(ok), nil
		case VString:
			if args[1].Tag != VString {
				return BoolValue(false), nil
			}
			return BoolValue(strings.Contains(args[0].Data.(string), args[1].Data.(string))), nil
		default:
			return NullValue, runtimeErrf(call, "contains expects a container, got %s", args[0].TypeName())
		}
	}

	b["map"] = func(rt *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "map", args, 2); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VList || args[1].Tag != VClosure {
			return NullValue, runtimeErrf(call, "map expects (list, closure), got (%s, %s)", args[0].TypeName(), args[1].TypeName())
		}
		src := args[0].Data.([]Value)
		out := make([]Value, len(src))
		for i, e := range src {
			v, err := rt.invokeClosure(call, args[1].Data.(string), []Value{e})
			if err != nil {
				return NullValue, err
			}
			out[i] = v
		}
		return ListValue(out), nil
	}

	b["filter"] = func(rt *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "filter", args, 2); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VList || args[1].Tag != VClosure {
			return NullValue, runtimeErrf(call, "filter expects (list, closure), got (%s, %s)", args[0].TypeName(), args[1].TypeName())
		}
		var out []Value
		for _, e := range args[0].Data.([]Value) {
			keep, err := rt.invokeClosure(call, args[1].Data.(string), []Value{e})
			if err != nil {
				return NullValue, err
			}
			if keep.Truthy() {
				out = append(out, e)
			}
		}
		return ListValue(out), nil
	}

	b["pow"] = func(_ *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "pow", args, 2); err != nil {
			return NullValue, err
		}
		v, err := SafePower(args[0], args[1])
		if err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return v, nil
	}

	// __index_assign__(container, index, value, ...) is emitted by the
	// parser for `obj[i] = v`; the trailing args carry the write-back
	// target, which the evaluator resolves from the call AST instead.
	b["__index_assign__"] = func(rt *Runtime, sc *Scope, call *CallExpr, args []Value) (Value, error) {
		if len(args) < 3 {
			return NullValue, runtimeErrf(call, "__index_assign__ expects at least 3 arguments, got %d", len(args))
		}
		container, idx, v := args[0], args[1], args[2]
		switch container.Tag {
		case VList:
			if idx.Tag != VInt {
				return NullValue, runtimeErrf(call, "list index must be an integer, got %s", idx.TypeName())
			}
			elems := container.Data.([]Value)
			i := idx.Data.(int64)
			if i < 0 || i >= int64(len(elems)) {
				return NullValue, runtimeErrf(call, "list index %d out of range (length %d)", i, len(elems))
			}
			elems[i] = v.Clone()
		case VMap:
			if idx.Tag != VString {
				return NullValue, runtimeErrf(call, "map key must be a string, got %s", idx.TypeName())
			}
			container.Data.(map[string]Value)[idx.Data.(string)] = v.Clone()
		default:
			return NullValue, runtimeErrf(call, "cannot index-assign into %s", container.TypeName())
		}
		if err := rt.writeBackContainer(call, sc, call.Args[0], container); err != nil {
			return NullValue, err
		}
		return v, nil
	}

	registerTxBuiltins(rt)
}

// registerTxBuiltins wires the language-level transaction API onto the
// runtime's TransactionManager.
func registerTxBuiltins(rt *Runtime) {
	b := rt.builtins

	// begin_transaction([isolation_level], [timeout_ms]) -> tx id
	b["begin_transaction"] = func(rt *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		level := ReadCommitted
		timeout := time.Duration(0)
		if len(args) > 2 {
			return NullValue, runtimeErrf(call, "begin_transaction expects at most 2 arguments, got %d", len(args))
		}
		if len(args) >= 1 {
			if args[0].Tag != VString {
				return NullValue, runtimeErrf(call, "begin_transaction: isolation level must be a string")
			}
			lv, ok := IsolationLevelFromString(args[0].Data.(string))
			if !ok {
				return NullValue, runtimeErrf(call, "unknown isolation level %q", args[0].Data.(string))
			}
			level = lv
		}
		if len(args) == 2 {
			if args[1].Tag != VInt {
				return NullValue, runtimeErrf(call, "begin_transaction: timeout must be an integer (milliseconds)")
			}
			timeout = time.Duration(args[1].Data.(int64)) * time.Millisecond
		}
		tx, err := rt.txman.Begin(level, timeout)
		if err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return StringValue(tx.ID), nil
	}

	b["transaction_write"] = func(rt *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "transaction_write", args, 2); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VString {
			return NullValue, runtimeErrf(call, "transaction_write: key must be a string")
		}
		if err := rt.txman.Write(args[0].Data.(string), args[1]); err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return NullValue, nil
	}

	b["transaction_read"] = func(rt *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "transaction_read", args, 1); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VString {
			return NullValue, runtimeErrf(call, "transaction_read: key must be a string")
		}
		v, found, err := rt.txman.Read(args[0].Data.(string))
		if err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		if !found {
			return NullValue, nil
		}
		return v, nil
	}

	b["create_savepoint"] = func(rt *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "create_savepoint", args, 1); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VString {
			return NullValue, runtimeErrf(call, "create_savepoint: name must be a string")
		}
		if err := rt.txman.CreateSavepoint(args[0].Data.(string)); err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return NullValue, nil
	}

	b["rollback_to_savepoint"] = func(rt *Runtime, _ *Scope, call *CallExpr, args []Value) (Value, error) {
		if err := wantArgs(call, "rollback_to_savepoint", args, 1); err != nil {
			return NullValue, err
		}
		if args[0].Tag != VString {
			return NullValue, runtimeErrf(call, "rollback_to_savepoint: name must be a string")
		}
		if err := rt.txman.RollbackToSavepoint(args[0].Data.(string)); err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return NullValue, nil
	}

	b["commit_transaction"] = func(rt *Runtime, _ *Scope, call *CallExpr, _ []Value) (Value, error) {
		if err := rt.txman.Commit(); err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return NullValue, nil
	}

	b["rollback_transaction"] = func(rt *Runtime, _ *Scope, call *CallExpr, _ []Value) (Value, error) {
		if err := rt.txman.Rollback(); err != nil {
			return NullValue, runtimeErrf(call, "%v", err)
		}
		return NullValue, nil
	}

	// current_transaction() -> {id, state, isolation, writes} or null
	b["current_transaction"] = func(rt *Runtime, _ *Scope, _ *CallExpr, _ []Value) (Value, error) {
		tx := rt.txman.Current()
		if tx == nil {
			return NullValue, nil
		}
		return MapValue(map[string]Value{
			"id":        StringValue(tx.ID),
			"state":     StringValue(tx.State.String()),
			"isolation": StringValue(tx.Isolation.String()),
			"writes":    IntValue(int64(tx.WriteSetSize())),
		}), nil
	}
}

func wantArgs(call *CallExpr, name string, args []Value, n int) error {
	if len(args) != n {
		return runtimeErrf(call, "%s expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func wantIntArg(v Value) int64 {
	if v.Tag == VInt {
		return v.Data.(int64)
	}
	return 0
}

// sortedKeys lists map or struct keys in sorted order.
func sortedKeys(v Value) ([]string, error) {
	var ks []string
	switch v.Tag {
	case VMap:
		for k := range v.Data.(map[string]Value) {
			ks = append(ks, k)
		}
	case VStruct:
		for k := range v.Data.(*StructData).Fields {
			ks = append(ks, k)
		}
	case VSet:
		for k := range v.Data.(map[string]struct{}) {
			ks = append(ks, k)
		}
	default:
		return nil, fmt.Errorf("expected a map, struct or set, got %s", v.TypeName())
	}
	sort.Strings(ks)
	return ks, nil
}
