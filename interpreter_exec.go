// interpreter_exec.go: statement execution.
//
// Every statement yields a stmtOutcome; loops absorb break/continue and call
// frames absorb return, so a stray signal can only ever reach code that
// reports it as an error.

package serval

import "sort"

// maxLoopIterations bounds every loop so a runaway `loop {}` terminates with
// a runtime error instead of hanging the host.
const maxLoopIterations = 10_000_000

// maxNestingDepth bounds statement nesting against adversarial input.
const maxNestingDepth = 2_000

func (rt *Runtime) execStatement(stmt Statement, sc *Scope, depth int) (stmtOutcome, error) {
	if depth > maxNestingDepth {
		return outcomeNone(), runtimeErrf(stmt, "statement nesting too deep (limit %d)", maxNestingDepth)
	}

	switch s := stmt.(type) {
	case *ExpressionStatement:
		v, err := rt.evalExpr(s.Expr, sc)
		if err != nil {
			return outcomeNone(), err
		}
		// Bare semicolons parse as null expression statements; they carry
		// no result, so `42;` still leaves 42 as the program value.
		if _, isNull := s.Expr.(*NullLit); isNull {
			return outcomeNone(), nil
		}
		return outcomeValue(v), nil

	case *LetStatement:
		v, err := rt.evalExpr(s.Value, sc)
		if err != nil {
			return outcomeNone(), err
		}
		sc.Define(s.Name, v)
		return outcomeNone(), nil

	case *ReturnStatement:
		if s.Value == nil {
			return outcomeReturn(NullValue, false), nil
		}
		v, err := rt.evalExpr(s.Value, sc)
		if err != nil {
			return outcomeNone(), err
		}
		return outcomeReturn(v, true), nil

	case *BlockStatement:
		return rt.execBlock(s, NewChildScope(sc), depth+1)

	case *FunctionStatement:
		rt.functions[s.Name] = s
		return outcomeNone(), nil

	case *ServiceStatement:
		return rt.execService(s, sc)

	case *ImportStatement:
		return outcomeNone(), runtimeErrf(s, "import is only allowed at the top level")

	case *IfStatement:
		cond, err := rt.evalExpr(s.Condition, sc)
		if err != nil {
			return outcomeNone(), err
		}
		if cond.Truthy() {
			return rt.execBlock(s.Consequence, NewChildScope(sc), depth+1)
		}
		if s.Alternative != nil {
			return rt.execBlock(s.Alternative, NewChildScope(sc), depth+1)
		}
		return outcomeNone(), nil

	case *WhileStatement:
		iters := 0
		for {
			if iters >= maxLoopIterations {
				return outcomeNone(), runtimeErrf(s, "loop iteration limit exceeded (%d)", maxLoopIterations)
			}
			iters++
			cond, err := rt.evalExpr(s.Condition, sc)
			if err != nil {
				return outcomeNone(), err
			}
			if !cond.Truthy() {
				return outcomeNone(), nil
			}
			out, err := rt.execBlock(s.Body, NewChildScope(sc), depth+1)
			if err != nil {
				return outcomeNone(), err
			}
			switch out.flow {
			case flowBreak:
				return stmtOutcome{flow: flowNext, value: out.value, hasValue: out.hasValue}, nil
			case flowReturn:
				return out, nil
			}
		}

	case *LoopStatement:
		iters := 0
		for {
			if iters >= maxLoopIterations {
				return outcomeNone(), runtimeErrf(s, "loop iteration limit exceeded (%d)", maxLoopIterations)
			}
			iters++
			out, err := rt.execBlock(s.Body, NewChildScope(sc), depth+1)
			if err != nil {
				return outcomeNone(), err
			}
			switch out.flow {
			case flowBreak:
				return stmtOutcome{flow: flowNext, value: out.value, hasValue: out.hasValue}, nil
			case flowReturn:
				return out, nil
			}
		}

	case *ForInStatement:
		return rt.execForIn(s, sc, depth)

	case *BreakStatement:
		if s.Value == nil {
			return outcomeBreak(NullValue, false), nil
		}
		v, err := rt.evalExpr(s.Value, sc)
		if err != nil {
			return outcomeNone(), err
		}
		return outcomeBreak(v, true), nil

	case *ContinueStatement:
		return outcomeContinue(), nil

	case *MatchStatement:
		return rt.execMatch(s, sc, depth)

	case *TryStatement:
		return rt.execTry(s, sc, depth)

	case *SpawnStatement:
		payload, err := rt.evalObjectFields(s.Config, sc)
		if err != nil {
			return outcomeNone(), err
		}
		rt.Scheduler(SchedulerEvent{Kind: "spawn", Name: s.AgentName, Payload: payload})
		return outcomeNone(), nil

	case *AgentStatement:
		payload, err := rt.evalObjectFields(s.Config, sc)
		if err != nil {
			return outcomeNone(), err
		}
		rt.Scheduler(SchedulerEvent{Kind: "agent", Name: s.Name, Payload: payload})
		return outcomeNone(), nil

	case *MessageStatement:
		payload, err := rt.evalObjectFields(s.Data, sc)
		if err != nil {
			return outcomeNone(), err
		}
		rt.Scheduler(SchedulerEvent{Kind: "msg", Name: s.Recipient, Payload: payload})
		return outcomeNone(), nil

	case *EventStatement:
		payload, err := rt.evalObjectFields(s.Data, sc)
		if err != nil {
			return outcomeNone(), err
		}
		rt.Scheduler(SchedulerEvent{Kind: "event", Name: s.EventName, Payload: payload})
		return outcomeNone(), nil

	default:
		return outcomeNone(), runtimeErrf(stmt, "unsupported statement %T", stmt)
	}
}

// execBlock runs statements in order. The block's value is the last
// expression statement's value, so match arms and loop bodies yield results.
func (rt *Runtime) execBlock(block *BlockStatement, sc *Scope, depth int) (stmtOutcome, error) {
	last := outcomeNone()
	last.hasValue = false
	for _, stmt := range block.Statements {
		out, err := rt.execStatement(stmt, sc, depth)
		if err != nil {
			return outcomeNone(), err
		}
		if out.flow != flowNext {
			return out, nil
		}
		if out.hasValue {
			last = out
		}
	}
	return last, nil
}

// execForIn iterates lists, maps (sorted keys), sets (sorted members) and
// strings (one-character slices). Each iteration runs in a fresh child scope
// so bindings made inside one pass never leak into the next.
func (rt *Runtime) execForIn(s *ForInStatement, sc *Scope, depth int) (stmtOutcome, error) {
	iterable, err := rt.evalExpr(s.Iterable, sc)
	if err != nil {
		return outcomeNone(), err
	}

	var items []Value
	switch iterable.Tag {
	case VList:
		items = iterable.Data.([]Value)
	case VMap:
		m := iterable.Data.(map[string]Value)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, StringValue(k))
		}
	case VSet:
		m := iterable.Data.(map[string]struct{})
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, StringValue(k))
		}
	case VString:
		for _, r := range iterable.Data.(string) {
			items = append(items, StringValue(string(r)))
		}
	default:
		return outcomeNone(), runtimeErrf(s, "cannot iterate over %s", iterable.TypeName())
	}

	if len(items) > maxLoopIterations {
		return outcomeNone(), runtimeErrf(s, "loop iteration limit exceeded (%d)", maxLoopIterations)
	}
	for _, item := range items {
		iterScope := NewChildScope(sc)
		iterScope.Define(s.Variable, item)
		out, err := rt.execBlock(s.Body, iterScope, depth+1)
		if err != nil {
			return outcomeNone(), err
		}
		switch out.flow {
		case flowBreak:
			return stmtOutcome{flow: flowNext, value: out.value, hasValue: out.hasValue}, nil
		case flowReturn:
			return out, nil
		}
	}
	return outcomeNone(), nil
}

// execMatch tries arms in source order. Ranges include both endpoints. With
// no matching arm and no default the statement yields null.
func (rt *Runtime) execMatch(s *MatchStatement, sc *Scope, depth int) (stmtOutcome, error) {
	subject, err := rt.evalExpr(s.Expr, sc)
	if err != nil {
		return outcomeNone(), err
	}

	for _, c := range s.Cases {
		matched, bindName, err := rt.matchPattern(c.Pattern, subject, sc)
		if err != nil {
			return outcomeNone(), err
		}
		if !matched {
			continue
		}
		armScope := NewChildScope(sc)
		if bindName != "" {
			armScope.Define(bindName, subject)
		}
		return rt.execBlock(c.Body, armScope, depth+1)
	}
	if s.Default != nil {
		return rt.execBlock(s.Default, NewChildScope(sc), depth+1)
	}
	return outcomeValue(NullValue), nil
}

// matchPattern reports whether the pattern covers the subject and which name
// (if any) the arm body should bind.
func (rt *Runtime) matchPattern(p MatchPattern, subject Value, sc *Scope) (bool, string, error) {
	switch pat := p.(type) {
	case *LiteralPattern:
		return subject.Equals(literalToValue(pat.Value)), "", nil
	case *BindingPattern:
		return true, pat.Name, nil
	case *WildcardPattern:
		return true, "", nil
	case *RangePattern:
		lo, err := rt.evalExpr(pat.Lo, sc)
		if err != nil {
			return false, "", err
		}
		hi, err := rt.evalExpr(pat.Hi, sc)
		if err != nil {
			return false, "", err
		}
		sv, sok := numericOf(subject)
		lv, lok := numericOf(lo)
		hv, hok := numericOf(hi)
		if !lok || !hok {
			return false, "", runtimeErrf(p, "range pattern endpoints must be numbers")
		}
		if !sok {
			return false, "", nil
		}
		return lv <= sv && sv <= hv, "", nil
	default:
		return false, "", runtimeErrf(p, "unsupported match pattern %T", p)
	}
}

// literalToValue converts a token literal payload to a runtime value.
func literalToValue(lit interface{}) Value {
	switch v := lit.(type) {
	case int64:
		return IntValue(v)
	case float64:
		return FloatValue(v)
	case string:
		return StringValue(v)
	case bool:
		return BoolValue(v)
	default:
		return NullValue
	}
}

// numericOf flattens int/float values to float64 for range comparison.
func numericOf(v Value) (float64, bool) {
	switch v.Tag {
	case VInt:
		return float64(v.Data.(int64)), true
	case VFloat:
		return v.Data.(float64), true
	default:
		return 0, false
	}
}

// execTry runs the try block, routes failures through the catch arms by
// error category, then runs finally unconditionally. A signal raised inside
// finally replaces whatever the try/catch produced.
func (rt *Runtime) execTry(s *TryStatement, sc *Scope, depth int) (stmtOutcome, error) {
	out, tryErr := rt.execBlock(s.TryBlock, NewChildScope(sc), depth+1)

	if tryErr != nil {
		category := errorCategory(tryErr)
		handled := false
		for _, cb := range s.CatchBlocks {
			if cb.ErrorType != "" && cb.ErrorType != category {
				continue
			}
			catchScope := NewChildScope(sc)
			if cb.ErrorVariable != "" {
				catchScope.Define(cb.ErrorVariable, errorBinding(tryErr))
			}
			out, tryErr = rt.execBlock(cb.Body, catchScope, depth+1)
			handled = true
			break
		}
		if !handled {
			out = outcomeNone()
		}
	}

	if s.FinallyBlock != nil {
		fout, ferr := rt.execBlock(s.FinallyBlock, NewChildScope(sc), depth+1)
		if ferr != nil {
			return outcomeNone(), ferr
		}
		if fout.flow != flowNext {
			return fout, nil
		}
	}
	return out, tryErr
}

// errorCategory names the error family for catch-arm filtering: thrown
// struct values match their struct name, capability failures match
// "DispatchError", everything else matches "RuntimeError".
func errorCategory(err error) string {
	switch e := err.(type) {
	case *thrownError:
		if e.value.Tag == VStruct {
			return e.value.Data.(*StructData).Name
		}
		return "Error"
	case *ExternalDispatchError:
		return "DispatchError"
	case *RuntimeErrorWithContext:
		return errorCategory(e.Err)
	default:
		return "RuntimeError"
	}
}

// errorBinding is the value bound to a catch arm's variable: the thrown
// value itself for throw expressions, the message string otherwise.
func errorBinding(err error) Value {
	switch e := err.(type) {
	case *thrownError:
		return e.value
	case *RuntimeError:
		return StringValue(e.Msg)
	case *RuntimeErrorWithContext:
		return errorBinding(e.Err)
	case *ExternalDispatchError:
		return StringValue(e.Error())
	default:
		return StringValue(err.Error())
	}
}

// execService validates the declared compile target, registers the service
// and brings up its singleton instance with isolated state.
func (rt *Runtime) execService(s *ServiceStatement, sc *Scope) (stmtOutcome, error) {
	if s.Target != nil && len(s.Target.ValidationErrors) > 0 {
		return outcomeNone(), runtimeErrf(s, "service %s: %s", s.Name, s.Target.ValidationErrors[0])
	}
	if _, exists := rt.instances[s.Name]; exists {
		return outcomeNone(), runtimeErrf(s, "service %s is already declared", s.Name)
	}

	rt.services[s.Name] = s
	inst := &ServiceInstance{Name: s.Name, Fields: make(map[string]Value, len(s.Fields)), decl: s}

	if err := rt.isolation.CreateState(s.Name, s.Name); err != nil {
		return outcomeNone(), runtimeErrf(s, "service %s: %v", s.Name, err)
	}

	// Field initializers run in declaration order so later fields can read
	// earlier ones through the instance.
	for _, f := range s.Fields {
		var v Value
		if f.Initial != nil {
			fv, err := rt.evalExpr(f.Initial, sc)
			if err != nil {
				return outcomeNone(), err
			}
			v = fv
		} else {
			v = zeroValueForType(f.FieldType)
		}
		inst.Fields[f.Name] = v.Clone()
		if err := rt.isolation.Write(s.Name, s.Name, f.Name, v); err != nil {
			return outcomeNone(), runtimeErrf(s, "service %s: %v", s.Name, err)
		}
	}

	rt.instances[s.Name] = inst
	return outcomeNone(), nil
}

// zeroValueForType picks the default for an uninitialized service field.
func zeroValueForType(typ string) Value {
	switch typ {
	case "int":
		return IntValue(0)
	case "float":
		return FloatValue(0)
	case "string":
		return StringValue("")
	case "bool":
		return BoolValue(false)
	case "list":
		return ListValue(nil)
	case "map":
		return MapValue(nil)
	default:
		return NullValue
	}
}

// evalObjectFields evaluates `{ key: value }` groups into a map value.
func (rt *Runtime) evalObjectFields(fields []ObjectField, sc *Scope) (Value, error) {
	m := make(map[string]Value, len(fields))
	for _, f := range fields {
		v, err := rt.evalExpr(f.Value, sc)
		if err != nil {
			return NullValue, err
		}
		m[f.Key] = v
	}
	return MapValue(m), nil
}
