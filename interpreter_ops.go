// interpreter_ops.go: expression evaluation and call dispatch.
//
// Arithmetic routes through the checked SafeMath layer, so overflow and
// division by zero surface as positioned runtime errors. Calls resolve
// builtins first, then user functions, then service methods; namespace calls
// go through the capability table.

package serval

import (
	"strconv"
	"strings"
)

// maxCallDepth bounds interpreter recursion through user calls.
const maxCallDepth = 512

// thrownError carries a `throw expr` value up to the nearest catch.
type thrownError struct {
	value Value
	line  int
	col   int
}

func (e *thrownError) Error() string {
	return "uncaught throw: " + e.value.String()
}

func (rt *Runtime) evalExpr(expr Expression, sc *Scope) (Value, error) {
	switch e := expr.(type) {
	case *IntLit:
		return IntValue(e.Value), nil
	case *FloatLit:
		return FloatValue(e.Value), nil
	case *StringLit:
		return StringValue(e.Value), nil
	case *BoolLit:
		return BoolValue(e.Value), nil
	case *NullLit:
		return NullValue, nil

	case *Identifier:
		if v, ok := sc.Get(e.Name); ok {
			return v, nil
		}
		if inst, ok := rt.instances[e.Name]; ok {
			return rt.instanceSnapshot(inst), nil
		}
		if hint := suggestName(e.Name, sc.Names()); hint != "" {
			return NullValue, runtimeErrf(e, "undefined variable %q (did you mean %q?)", e.Name, hint)
		}
		return NullValue, runtimeErrf(e, "undefined variable %q", e.Name)

	case *BinaryExpr:
		return rt.evalBinary(e, sc)

	case *UnaryExpr:
		operand, err := rt.evalExpr(e.Operand, sc)
		if err != nil {
			return NullValue, err
		}
		switch e.Op {
		case MINUS:
			v, err := SafeNegate(operand)
			if err != nil {
				return NullValue, runtimeErrf(e, "%v", err)
			}
			return v, nil
		case BANG:
			return BoolValue(!operand.Truthy()), nil
		default:
			return NullValue, runtimeErrf(e, "unsupported unary operator %s", e.Op)
		}

	case *AssignExpr:
		v, err := rt.evalExpr(e.Value, sc)
		if err != nil {
			return NullValue, err
		}
		if !sc.Assign(e.Name, v) {
			return NullValue, runtimeErrf(e, "cannot assign to undefined variable %q", e.Name)
		}
		return v, nil

	case *CallExpr:
		return rt.evalCall(e, sc)

	case *FieldAccess:
		return rt.evalFieldAccess(e, sc)

	case *FieldAssign:
		return rt.evalFieldAssign(e, sc)

	case *IndexExpr:
		obj, err := rt.evalExpr(e.Object, sc)
		if err != nil {
			return NullValue, err
		}
		idx, err := rt.evalExpr(e.Index, sc)
		if err != nil {
			return NullValue, err
		}
		return indexValue(e, obj, idx)

	case *ObjectLit:
		return rt.evalObjectFields(e.Fields, sc)

	case *ArrayLit:
		elems := make([]Value, len(e.Elements))
		for i, el := range e.Elements {
			v, err := rt.evalExpr(el, sc)
			if err != nil {
				return NullValue, err
			}
			elems[i] = v
		}
		return ListValue(elems), nil

	case *RangeExpr:
		return rt.evalRange(e, sc)

	case *ArrowFunction:
		return rt.makeClosure(e, sc), nil

	case *AwaitExpr:
		// The synchronous core resolves awaited expressions inline.
		return rt.evalExpr(e.Operand, sc)

	case *SpawnExpr:
		rt.Scheduler(SchedulerEvent{Kind: "spawn", Name: spawnTargetName(e.Operand), Payload: NullValue})
		return NullValue, nil

	case *ThrowExpr:
		v, err := rt.evalExpr(e.Operand, sc)
		if err != nil {
			return NullValue, err
		}
		line, col := e.Pos()
		return NullValue, &thrownError{value: v, line: line, col: col}

	default:
		return NullValue, runtimeErrf(expr, "unsupported expression %T", expr)
	}
}

// evalBinary applies an infix operator. && and || short-circuit; arithmetic
// goes through SafeMath; ==/!= compare structurally.
func (rt *Runtime) evalBinary(e *BinaryExpr, sc *Scope) (Value, error) {
	if e.Op == ANDAND || e.Op == OROR {
		left, err := rt.evalExpr(e.Left, sc)
		if err != nil {
			return NullValue, err
		}
		if e.Op == ANDAND && !left.Truthy() {
			return BoolValue(false), nil
		}
		if e.Op == OROR && left.Truthy() {
			return BoolValue(true), nil
		}
		right, err := rt.evalExpr(e.Right, sc)
		if err != nil {
			return NullValue, err
		}
		return BoolValue(right.Truthy()), nil
	}

	left, err := rt.evalExpr(e.Left, sc)
	if err != nil {
		return NullValue, err
	}
	right, err := rt.evalExpr(e.Right, sc)
	if err != nil {
		return NullValue, err
	}

	switch e.Op {
	case PLUS:
		if left.Tag == VString || right.Tag == VString {
			return StringValue(left.String() + right.String()), nil
		}
		if left.Tag == VList && right.Tag == VList {
			a := left.Data.([]Value)
			b := right.Data.([]Value)
			out := make([]Value, 0, len(a)+len(b))
			out = append(out, a...)
			out = append(out, b...)
			return ListValue(out), nil
		}
		return safeOp(e, SafeAdd, left, right)
	case MINUS:
		return safeOp(e, SafeSubtract, left, right)
	case STAR:
		return safeOp(e, SafeMultiply, left, right)
	case SLASH:
		return safeOp(e, SafeDivide, left, right)
	case PERCENT:
		return safeOp(e, SafeModulo, left, right)
	case EQ:
		return BoolValue(left.Equals(right)), nil
	case NEQ:
		return BoolValue(!left.Equals(right)), nil
	case LT, LTE, GT, GTE:
		return compareOrdered(e, left, right)
	default:
		return NullValue, runtimeErrf(e, "unsupported binary operator %s", e.Op)
	}
}

func safeOp(node Node, op func(a, b Value) (Value, error), a, b Value) (Value, error) {
	v, err := op(a, b)
	if err != nil {
		return NullValue, runtimeErrf(node, "%v", err)
	}
	return v, nil
}

// compareOrdered handles <, <=, >, >= on numbers and strings.
func compareOrdered(e *BinaryExpr, left, right Value) (Value, error) {
	if left.Tag == VString && right.Tag == VString {
		a, b := left.Data.(string), right.Data.(string)
		switch e.Op {
		case LT:
			return BoolValue(a < b), nil
		case LTE:
			return BoolValue(a <= b), nil
		case GT:
			return BoolValue(a > b), nil
		case GTE:
			return BoolValue(a >= b), nil
		}
	}
	a, aok := numericOf(left)
	b, bok := numericOf(right)
	if !aok || !bok {
		return NullValue, runtimeErrf(e, "cannot compare %s and %s", left.TypeName(), right.TypeName())
	}
	switch e.Op {
	case LT:
		return BoolValue(a < b), nil
	case LTE:
		return BoolValue(a <= b), nil
	case GT:
		return BoolValue(a > b), nil
	case GTE:
		return BoolValue(a >= b), nil
	default:
		return NullValue, runtimeErrf(e, "unsupported comparison %s", e.Op)
	}
}

// maxRangeLength caps materialized ranges at the loop iteration limit.
const maxRangeLength = maxLoopIterations

// evalRange materializes `start..end` as a list, both endpoints inclusive.
// An empty range (start > end) yields an empty list.
func (rt *Runtime) evalRange(e *RangeExpr, sc *Scope) (Value, error) {
	start, err := rt.evalExpr(e.Start, sc)
	if err != nil {
		return NullValue, err
	}
	end, err := rt.evalExpr(e.End, sc)
	if err != nil {
		return NullValue, err
	}
	if start.Tag != VInt || end.Tag != VInt {
		return NullValue, runtimeErrf(e, "range endpoints must be integers, got %s..%s", start.TypeName(), end.TypeName())
	}
	lo := start.Data.(int64)
	hi := end.Data.(int64)
	if lo > hi {
		return ListValue(nil), nil
	}
	// uint64 arithmetic: hi-lo+1 can wrap int64 for extreme endpoints.
	if uint64(hi)-uint64(lo) >= uint64(maxRangeLength) {
		return NullValue, runtimeErrf(e, "range too large (limit %d elements)", maxRangeLength)
	}
	out := make([]Value, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		out = append(out, IntValue(n))
	}
	return ListValue(out), nil
}

// indexValue reads obj[idx]: lists take integer positions with bounds
// checking, maps take string keys with null on a miss.
func indexValue(node Node, obj, idx Value) (Value, error) {
	switch obj.Tag {
	case VList:
		if idx.Tag != VInt {
			return NullValue, runtimeErrf(node, "list index must be an integer, got %s", idx.TypeName())
		}
		elems := obj.Data.([]Value)
		i := idx.Data.(int64)
		if i < 0 || i >= int64(len(elems)) {
			return NullValue, runtimeErrf(node, "list index %d out of range (length %d)", i, len(elems))
		}
		return elems[i].Clone(), nil
	case VMap:
		if idx.Tag != VString {
			return NullValue, runtimeErrf(node, "map key must be a string, got %s", idx.TypeName())
		}
		m := obj.Data.(map[string]Value)
		if v, ok := m[idx.Data.(string)]; ok {
			return v.Clone(), nil
		}
		return NullValue, nil
	case VString:
		if idx.Tag != VInt {
			return NullValue, runtimeErrf(node, "string index must be an integer, got %s", idx.TypeName())
		}
		s := obj.Data.(string)
		i := idx.Data.(int64)
		if i < 0 || i >= int64(len(s)) {
			return NullValue, runtimeErrf(node, "string index %d out of range (length %d)", i, len(s))
		}
		return StringValue(string(s[i])), nil
	default:
		return NullValue, runtimeErrf(node, "cannot index into %s", obj.TypeName())
	}
}

// evalFieldAccess reads object.field on maps, structs and live service
// instances.
func (rt *Runtime) evalFieldAccess(e *FieldAccess, sc *Scope) (Value, error) {
	if id, ok := e.Object.(*Identifier); ok && !sc.Has(id.Name) {
		if inst, found := rt.instances[id.Name]; found {
			return rt.getInstanceField(e, inst, e.Field)
		}
	}
	obj, err := rt.evalExpr(e.Object, sc)
	if err != nil {
		return NullValue, err
	}
	return fieldOf(e, obj, e.Field)
}

func fieldOf(node Node, obj Value, field string) (Value, error) {
	switch obj.Tag {
	case VMap:
		m := obj.Data.(map[string]Value)
		if v, ok := m[field]; ok {
			return v.Clone(), nil
		}
		return NullValue, runtimeErrf(node, "no field %q", field)
	case VStruct:
		s := obj.Data.(*StructData)
		if v, ok := s.Fields[field]; ok {
			return v.Clone(), nil
		}
		return NullValue, runtimeErrf(node, "%s has no field %q", s.Name, field)
	case VResult:
		r := obj.Data.(*ResultData)
		switch field {
		case "ok":
			return BoolValue(r.Ok), nil
		case "value":
			return r.Value.Clone(), nil
		}
		return NullValue, runtimeErrf(node, "result has no field %q", field)
	case VOption:
		o := obj.Data.(*OptionData)
		switch field {
		case "some":
			return BoolValue(o.Some), nil
		case "value":
			if !o.Some {
				return NullValue, nil
			}
			return o.Value.Clone(), nil
		}
		return NullValue, runtimeErrf(node, "option has no field %q", field)
	default:
		return NullValue, runtimeErrf(node, "cannot read field %q of %s", field, obj.TypeName())
	}
}

// evalFieldAssign writes object.field = value. Variable-rooted containers
// are updated in place and stored back; service instance fields enforce
// visibility and version through the isolation manager.
func (rt *Runtime) evalFieldAssign(e *FieldAssign, sc *Scope) (Value, error) {
	v, err := rt.evalExpr(e.Value, sc)
	if err != nil {
		return NullValue, err
	}
	if err := rt.assignField(e, sc, e.Object, e.Field, v); err != nil {
		return NullValue, err
	}
	return v, nil
}

// assignField stores v into object.field, shared between field assignment
// and index-assignment write-back.
func (rt *Runtime) assignField(node Node, sc *Scope, object Expression, field string, v Value) error {
	id, isIdent := object.(*Identifier)
	if isIdent && !sc.Has(id.Name) {
		if inst, found := rt.instances[id.Name]; found {
			return rt.setInstanceField(node, inst, field, v, false)
		}
	}

	obj, err := rt.evalExpr(object, sc)
	if err != nil {
		return err
	}
	switch obj.Tag {
	case VMap:
		obj.Data.(map[string]Value)[field] = v.Clone()
	case VStruct:
		obj.Data.(*StructData).Fields[field] = v.Clone()
	default:
		return runtimeErrf(node, "cannot assign field %q of %s", field, obj.TypeName())
	}
	if isIdent {
		if !sc.Assign(id.Name, obj) {
			return runtimeErrf(node, "cannot assign to undefined variable %q", id.Name)
		}
	}
	return nil
}

// writeBackContainer stores a mutated container back into its source
// binding after an index assignment. Containers produced by arbitrary
// expressions have nowhere to go; the mutation only lives in the copy.
func (rt *Runtime) writeBackContainer(node Node, sc *Scope, source Expression, container Value) error {
	switch src := source.(type) {
	case *Identifier:
		if !sc.Has(src.Name) {
			return runtimeErrf(node, "cannot assign to undefined variable %q", src.Name)
		}
		sc.Assign(src.Name, container)
		return nil
	case *FieldAccess:
		return rt.assignField(node, sc, src.Object, src.Field, container)
	case *IndexExpr:
		// Nested index writes update the inner container, then recurse.
		obj, err := rt.evalExpr(src.Object, sc)
		if err != nil {
			return err
		}
		idx, err := rt.evalExpr(src.Index, sc)
		if err != nil {
			return err
		}
		switch obj.Tag {
		case VList:
			if idx.Tag != VInt {
				return runtimeErrf(node, "list index must be an integer, got %s", idx.TypeName())
			}
			elems := obj.Data.([]Value)
			i := idx.Data.(int64)
			if i < 0 || i >= int64(len(elems)) {
				return runtimeErrf(node, "list index %d out of range (length %d)", i, len(elems))
			}
			elems[i] = container.Clone()
		case VMap:
			if idx.Tag != VString {
				return runtimeErrf(node, "map key must be a string, got %s", idx.TypeName())
			}
			obj.Data.(map[string]Value)[idx.Data.(string)] = container.Clone()
		default:
			return runtimeErrf(node, "cannot index into %s", obj.TypeName())
		}
		return rt.writeBackContainer(node, sc, src.Object, obj)
	default:
		return nil
	}
}

// instanceSnapshot exposes a service instance as a read-only struct value.
func (rt *Runtime) instanceSnapshot(inst *ServiceInstance) Value {
	fields := make(map[string]Value, len(inst.Fields))
	for k, v := range inst.Fields {
		fields[k] = v.Clone()
	}
	return StructValue(inst.Name, fields)
}

// getInstanceField reads one instance field, honoring visibility: private
// and internal fields are reachable only from the owning service's methods.
func (rt *Runtime) getInstanceField(node Node, inst *ServiceInstance, field string) (Value, error) {
	decl, ok := inst.fieldDecl(field)
	if !ok {
		return NullValue, runtimeErrf(node, "service %s has no field %q", inst.Name, field)
	}
	if decl.Visibility != PublicField && rt.currentContract != inst.Name {
		return NullValue, runtimeErrf(node, "field %q of service %s is not public", field, inst.Name)
	}
	v, found, err := rt.isolation.Read(inst.Name, inst.Name, field)
	if err != nil {
		return NullValue, runtimeErrf(node, "%v", err)
	}
	if !found {
		return NullValue, nil
	}
	return v, nil
}

// setInstanceField writes one instance field through the isolation manager.
// fromSelf bypasses visibility for writebacks from the owning method.
func (rt *Runtime) setInstanceField(node Node, inst *ServiceInstance, field string, v Value, fromSelf bool) error {
	decl, ok := inst.fieldDecl(field)
	if !ok {
		return runtimeErrf(node, "service %s has no field %q", inst.Name, field)
	}
	if !fromSelf && decl.Visibility != PublicField && rt.currentContract != inst.Name {
		return runtimeErrf(node, "field %q of service %s is not public", field, inst.Name)
	}
	inst.Fields[field] = v.Clone()
	if err := rt.isolation.Write(inst.Name, inst.Name, field, v); err != nil {
		return runtimeErrf(node, "%v", err)
	}
	return nil
}

func (inst *ServiceInstance) fieldDecl(name string) (ServiceField, bool) {
	for _, f := range inst.decl.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ServiceField{}, false
}

// makeClosure captures the current scope and registers an anonymous closure.
func (rt *Runtime) makeClosure(e *ArrowFunction, sc *Scope) Value {
	rt.closureID++
	name := "closure_" + strconv.Itoa(rt.closureID)
	rt.closures[name] = &closureData{param: e.Param, body: e.Body, env: sc}
	return ClosureValue(name)
}

// spawnTargetName labels an expression-position spawn for the scheduler.
func spawnTargetName(e Expression) string {
	switch op := e.(type) {
	case *CallExpr:
		return op.Name
	case *Identifier:
		return op.Name
	default:
		return "<expr>"
	}
}

// evalCall resolves a flattened call name. Resolution order for plain names:
// builtin registry, user functions, closures in scope. Names with "::"
// dispatch through imports and the capability table; names with "." are
// service method calls.
func (rt *Runtime) evalCall(call *CallExpr, sc *Scope) (Value, error) {
	if len(rt.callStack) >= maxCallDepth {
		return NullValue, runtimeErrf(call, "maximum call depth exceeded (%d)", maxCallDepth)
	}

	args := make([]Value, len(call.Args))
	for i, a := range call.Args {
		v, err := rt.evalExpr(a, sc)
		if err != nil {
			return NullValue, err
		}
		args[i] = v
	}

	if strings.Contains(call.Name, "::") {
		return rt.evalNamespaceCall(call, args)
	}
	if i := strings.IndexByte(call.Name, '.'); i > 0 {
		return rt.evalMethodCall(call, call.Name[:i], call.Name[i+1:], args, sc)
	}

	if fn, ok := rt.builtins[call.Name]; ok {
		return fn(rt, sc, call, args)
	}
	if decl, ok := rt.functions[call.Name]; ok {
		return rt.invokeFunction(call, decl, call.Name, args)
	}
	if v, ok := sc.Get(call.Name); ok && v.Tag == VClosure {
		return rt.invokeClosure(call, v.Data.(string), args)
	}
	return NullValue, runtimeErrf(call, "undefined function %q", call.Name)
}

// evalNamespaceCall dispatches ns::fn. Import aliases are resolved first:
// functions brought in by program imports, then namespace aliases onto the
// capability table.
func (rt *Runtime) evalNamespaceCall(call *CallExpr, args []Value) (Value, error) {
	if decl, ok := rt.functions[call.Name]; ok {
		return rt.invokeFunction(call, decl, call.Name, args)
	}

	i := strings.Index(call.Name, "::")
	ns, fn := call.Name[:i], call.Name[i+2:]
	if mapped, ok := rt.aliasNS[ns]; ok {
		ns = mapped
	}
	v, err := rt.caps.Dispatch(ns, fn, args)
	if err != nil {
		if derr, ok := err.(*ExternalDispatchError); ok {
			return NullValue, derr
		}
		return NullValue, runtimeErrf(call, "%v", err)
	}
	return v, nil
}

// evalMethodCall invokes a service method. The reentrancy guard brackets
// the whole call; `self` is bound to the instance's fields and written back
// when the method returns.
func (rt *Runtime) evalMethodCall(call *CallExpr, recv, method string, args []Value, sc *Scope) (Value, error) {
	// A variable holding a struct or map shadows a service of the same name.
	if v, ok := sc.Get(recv); ok {
		return rt.evalValueMethod(call, recv, method, v, args)
	}

	inst, ok := rt.instances[recv]
	if !ok {
		return NullValue, runtimeErrf(call, "unknown service or object %q", recv)
	}
	var decl *FunctionStatement
	for _, m := range inst.decl.Methods {
		if m.Name == method {
			decl = m
			break
		}
	}
	if decl == nil {
		return NullValue, runtimeErrf(call, "service %s has no method %q", inst.Name, method)
	}
	if len(args) != len(decl.Parameters) {
		return NullValue, runtimeErrf(call, "%s.%s expects %d argument(s), got %d", recv, method, len(decl.Parameters), len(args))
	}

	token, err := rt.guard.Enter(method, inst.Name)
	if err != nil {
		if rerr, ok := err.(*RuntimeError); ok {
			rerr.Line, rerr.Col = call.Pos()
			return NullValue, rerr
		}
		return NullValue, runtimeErrf(call, "%v", err)
	}
	defer token.Release()

	frame := NewChildScope(rt.global)
	for i, p := range decl.Parameters {
		frame.Define(p.Name, args[i])
	}
	frame.Define("self", rt.instanceSnapshot(inst))

	rt.pushFrame(recv+"."+method, call)
	prevContract := rt.currentContract
	rt.currentContract = inst.Name
	out, execErr := rt.execBlock(decl.Body, frame, 0)
	if execErr != nil {
		execErr = rt.attachFrames(execErr)
	}
	rt.currentContract = prevContract
	rt.popFrame()
	if execErr != nil {
		return NullValue, execErr
	}

	// Field mutations made through self persist on the instance.
	if self, ok := frame.Get("self"); ok && self.Tag == VStruct {
		for k, v := range self.Data.(*StructData).Fields {
			if _, declared := inst.fieldDecl(k); declared {
				if err := rt.setInstanceField(call, inst, k, v, true); err != nil {
					return NullValue, err
				}
			}
		}
	}

	switch out.flow {
	case flowReturn:
		if out.hasValue {
			return out.value, nil
		}
		return NullValue, nil
	case flowBreak, flowContinue:
		return NullValue, runtimeErrf(call, "break/continue outside of a loop")
	}
	if out.hasValue {
		return out.value, nil
	}
	return NullValue, nil
}

// evalValueMethod handles method-like calls on plain values bound in scope.
// Dotted chains walk nested fields; only closures stored in map/struct
// fields are callable this way.
func (rt *Runtime) evalValueMethod(call *CallExpr, recv, method string, v Value, args []Value) (Value, error) {
	member := v
	for _, part := range strings.Split(method, ".") {
		switch member.Tag {
		case VMap:
			mv, ok := member.Data.(map[string]Value)[part]
			if !ok {
				return NullValue, runtimeErrf(call, "no field %q on %q", part, recv)
			}
			member = mv
		case VStruct:
			s := member.Data.(*StructData)
			mv, ok := s.Fields[part]
			if !ok {
				return NullValue, runtimeErrf(call, "%s has no field %q", s.Name, part)
			}
			member = mv
		default:
			return NullValue, runtimeErrf(call, "cannot call method %q on %s", part, member.TypeName())
		}
	}
	if member.Tag != VClosure {
		return NullValue, runtimeErrf(call, "field %q of %q is not callable", method, recv)
	}
	return rt.invokeClosure(call, member.Data.(string), args)
}

// invokeFunction runs a user-declared function in a fresh frame rooted at
// the global scope. Without an explicit return the body's final expression
// is the result.
func (rt *Runtime) invokeFunction(call *CallExpr, decl *FunctionStatement, name string, args []Value) (Value, error) {
	if len(args) != len(decl.Parameters) {
		return NullValue, runtimeErrf(call, "%s expects %d argument(s), got %d", name, len(decl.Parameters), len(args))
	}
	frame := NewChildScope(rt.global)
	for i, p := range decl.Parameters {
		frame.Define(p.Name, args[i])
	}

	rt.pushFrame(name, call)
	out, err := rt.execBlock(decl.Body, frame, 0)
	if err != nil {
		err = rt.attachFrames(err)
	}
	rt.popFrame()
	if err != nil {
		return NullValue, err
	}
	switch out.flow {
	case flowReturn:
		if out.hasValue {
			return out.value, nil
		}
		return NullValue, nil
	case flowBreak, flowContinue:
		return NullValue, runtimeErrf(call, "break/continue outside of a loop")
	}
	if out.hasValue {
		return out.value, nil
	}
	return NullValue, nil
}

// invokeClosure runs a captured arrow function with its lexical environment.
func (rt *Runtime) invokeClosure(call *CallExpr, name string, args []Value) (Value, error) {
	data, ok := rt.closures[name]
	if !ok {
		return NullValue, runtimeErrf(call, "stale closure %q", name)
	}
	if len(args) != 1 {
		return NullValue, runtimeErrf(call, "closure expects 1 argument, got %d", len(args))
	}
	frame := NewChildScope(data.env)
	frame.Define(data.param, args[0])

	rt.pushFrame(name, call)
	out, err := rt.execBlock(data.body, frame, 0)
	if err != nil {
		err = rt.attachFrames(err)
	}
	rt.popFrame()
	if err != nil {
		return NullValue, err
	}
	if out.flow == flowReturn {
		if out.hasValue {
			return out.value, nil
		}
		return NullValue, nil
	}
	if out.hasValue {
		return out.value, nil
	}
	return NullValue, nil
}

// suggestName picks the closest candidate within edit distance 2, for
// undefined-variable hints.
func suggestName(name string, candidates []string) string {
	best := ""
	bestDist := 3
	for _, c := range candidates {
		if d := editDistance(name, c); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
