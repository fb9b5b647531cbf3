// runtime.go: the tree-walking runtime's public surface.
//
// A Runtime owns the variable scopes, the registered functions and services,
// the capability table, the transaction manager and the safety primitives.
// ExecuteProgram walks the AST statement by statement in strict source
// order; control-flow signals (break/continue/return) travel as an explicit
// outcome type, never as Go panics.

package serval

import (
	"fmt"
	"io"
	"os"
)

// ctrlFlow is the non-local control-flow signal attached to a statement
// outcome.
type ctrlFlow int

const (
	flowNext ctrlFlow = iota
	flowBreak
	flowContinue
	flowReturn
)

// stmtOutcome is what executing one statement produces: a value (possibly
// none) plus an optional control-flow signal for the nearest enclosing loop
// or call frame to absorb.
type stmtOutcome struct {
	flow     ctrlFlow
	value    Value
	hasValue bool
}

func outcomeValue(v Value) stmtOutcome {
	return stmtOutcome{flow: flowNext, value: v, hasValue: true}
}

func outcomeNone() stmtOutcome { return stmtOutcome{flow: flowNext, value: NullValue} }

func outcomeBreak(v Value, has bool) stmtOutcome {
	return stmtOutcome{flow: flowBreak, value: v, hasValue: has}
}

func outcomeContinue() stmtOutcome { return stmtOutcome{flow: flowContinue, value: NullValue} }

func outcomeReturn(v Value, has bool) stmtOutcome {
	return stmtOutcome{flow: flowReturn, value: v, hasValue: has}
}

// ServiceInstance is the live state of one declared service.
type ServiceInstance struct {
	Name   string
	Fields map[string]Value
	decl   *ServiceStatement
}

// SchedulerEvent is one spawn/agent/msg/event dispatch handed to the
// scheduler collaborator. This core records and continues; executing the
// concurrency semantics is the collaborator's job.
type SchedulerEvent struct {
	Kind    string // "spawn", "agent", "msg" or "event"
	Name    string
	Payload Value
}

// builtinFn implements one registered builtin. Builtins receive the calling
// scope so container-writeback builtins can store results.
type builtinFn func(rt *Runtime, sc *Scope, call *CallExpr, args []Value) (Value, error)

// closureData is the captured body of an arrow function.
type closureData struct {
	param string
	body  *BlockStatement
	env   *Scope
}

// ResolvedImport is one entry of the pre-resolved import list handed to
// ExecuteProgram. Exactly one of Namespace and Prog is set: a namespace
// import aliases a capability namespace, a program import makes the parsed
// program's exported bindings visible under the alias.
type ResolvedImport struct {
	Namespace string
	Prog      *Program
}

// Runtime executes parsed programs. Single-threaded and synchronous; create
// one per concurrent execution.
type Runtime struct {
	global    *Scope
	builtins  map[string]builtinFn
	functions map[string]*FunctionStatement
	services  map[string]*ServiceStatement
	instances map[string]*ServiceInstance
	closures  map[string]*closureData
	closureID int

	caps      *CapabilityTable
	txman     *TransactionManager
	guard     *ReentrancyGuard
	isolation *StateIsolationManager
	audit     *AuditSink

	// Scheduler receives spawn/agent/msg/event dispatches. The default
	// hook records the event and continues.
	Scheduler func(SchedulerEvent)
	scheduled []SchedulerEvent

	// Stdout receives `print` output. Defaults to os.Stdout.
	Stdout io.Writer

	// aliasNS maps import aliases to capability namespaces.
	aliasNS map[string]string

	// currentContract names the service whose method is executing, for
	// field visibility checks. Empty outside method calls.
	currentContract string

	callStack []CallFrameInfo
}

// NewRuntime builds a runtime with the default capability table, in-memory
// transactional storage and fresh safety primitives.
func NewRuntime() *Runtime {
	rt := &Runtime{
		global:    NewScope(),
		builtins:  make(map[string]builtinFn),
		functions: make(map[string]*FunctionStatement),
		services:  make(map[string]*ServiceStatement),
		instances: make(map[string]*ServiceInstance),
		closures:  make(map[string]*closureData),
		txman:     NewTransactionManager(),
		guard:     NewReentrancyGuard(),
		isolation: NewStateIsolationManager(),
		audit:     &AuditSink{},
		aliasNS:   make(map[string]string),
		Stdout:    os.Stdout,
	}
	rt.Scheduler = func(ev SchedulerEvent) { rt.scheduled = append(rt.scheduled, ev) }

	caps := NewCapabilityTable()
	registerCryptoCapabilities(caps)
	registerLogCapabilities(caps, os.Stderr, rt.audit)
	registerTimeCapabilities(caps)
	registerUtilCapabilities(caps)
	registerWebCapabilities(caps)
	rt.caps = caps

	registerCoreBuiltins(rt)
	registerStringBuiltins(rt)
	return rt
}

// Capabilities exposes the dispatch table so hosts and tests can register
// handlers before execution starts.
func (rt *Runtime) Capabilities() *CapabilityTable { return rt.caps }

// Transactions exposes the transaction manager, primarily for tests and the
// CLI's storage configuration.
func (rt *Runtime) Transactions() *TransactionManager { return rt.txman }

// SetTransactionManager swaps the backing transaction manager. Must be
// called before ExecuteProgram.
func (rt *Runtime) SetTransactionManager(m *TransactionManager) { rt.txman = m }

// Guard exposes the reentrancy guard.
func (rt *Runtime) Guard() *ReentrancyGuard { return rt.guard }

// Isolation exposes the per-contract state isolation manager.
func (rt *Runtime) Isolation() *StateIsolationManager { return rt.isolation }

// Audit returns the buffered audit entries recorded by log::audit.
func (rt *Runtime) Audit() *AuditSink { return rt.audit }

// ScheduledEvents returns the spawn/agent/msg/event dispatches recorded by
// the default scheduler hook, in source order.
func (rt *Runtime) ScheduledEvents() []SchedulerEvent {
	out := make([]SchedulerEvent, len(rt.scheduled))
	copy(out, rt.scheduled)
	return out
}

// Instance returns the live instance of a declared service.
func (rt *Runtime) Instance(name string) (*ServiceInstance, bool) {
	inst, ok := rt.instances[name]
	return inst, ok
}

// Global reads a binding from the runtime's global scope, for inspecting
// program state after a run.
func (rt *Runtime) Global(name string) (Value, bool) {
	return rt.global.Get(name)
}

// ExecuteProgram runs a parsed program. resolvedImports maps import paths
// to their resolution; nil means the program uses no imports. The returned
// value is the program's result: the final expression statement's value or
// an explicit top-level return, nil when the program produced neither.
// Failures are *RuntimeErrorWithContext carrying the interpreter call stack.
func (rt *Runtime) ExecuteProgram(prog *Program, resolvedImports map[string]*ResolvedImport) (result *Value, err error) {
	// Adversarial input must surface as an error, never a crash.
	defer func() {
		if r := recover(); r != nil {
			err = rt.wrapError(&RuntimeError{Msg: fmt.Sprintf("internal fault: %v", r)})
		}
	}()

	var last *Value
	for _, stmt := range prog.Statements {
		if imp, ok := stmt.(*ImportStatement); ok {
			if err := rt.applyImport(imp, resolvedImports); err != nil {
				return nil, rt.wrapError(err)
			}
			continue
		}
		out, err := rt.execStatement(stmt, rt.global, 0)
		if err != nil {
			return nil, rt.wrapError(err)
		}
		switch out.flow {
		case flowReturn:
			if out.hasValue {
				v := out.value
				return &v, nil
			}
			return nil, nil
		case flowBreak, flowContinue:
			return nil, rt.wrapError(runtimeErrf(stmt, "break/continue outside of a loop"))
		}
		if out.hasValue {
			v := out.value
			last = &v
		}
	}
	return last, nil
}

// ExecuteSource lexes, parses and executes src in one call.
func (rt *Runtime) ExecuteSource(src string) (*Value, error) {
	prog, err := ParseSource(src)
	if err != nil {
		return nil, err
	}
	return rt.ExecuteProgram(prog, nil)
}

// wrapError attaches the interpreter call stack to runtime failures. Other
// error kinds pass through untouched.
func (rt *Runtime) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if _, already := err.(*RuntimeErrorWithContext); already {
		return err
	}
	rerr, ok := err.(*RuntimeError)
	if !ok {
		switch e := err.(type) {
		case *ExternalDispatchError:
			rerr = &RuntimeError{Msg: e.Error()}
		case *thrownError:
			rerr = &RuntimeError{Line: e.line, Col: e.col, Msg: e.Error()}
		default:
			return err
		}
	}
	frames := make([]CallFrameInfo, len(rt.callStack))
	copy(frames, rt.callStack)
	return &RuntimeErrorWithContext{Err: rerr, Frames: frames}
}

// attachFrames snapshots the live call stack onto a RuntimeError while the
// failing call's frame is still pushed. Thrown values and dispatch errors
// pass through so catch arms still see their original type.
func (rt *Runtime) attachFrames(err error) error {
	rerr, ok := err.(*RuntimeError)
	if !ok {
		return err
	}
	frames := make([]CallFrameInfo, len(rt.callStack))
	copy(frames, rt.callStack)
	return &RuntimeErrorWithContext{Err: rerr, Frames: frames}
}

// pushFrame/popFrame bracket function and method calls for error traces.
func (rt *Runtime) pushFrame(name string, node Node) {
	line, col := 0, 0
	if node != nil {
		line, col = node.Pos()
	}
	rt.callStack = append(rt.callStack, CallFrameInfo{Function: name, Line: line, Col: col})
}

func (rt *Runtime) popFrame() {
	if len(rt.callStack) > 0 {
		rt.callStack = rt.callStack[:len(rt.callStack)-1]
	}
}

// applyImport makes a resolved import's bindings visible. Namespace imports
// alias a capability namespace; program imports register the program's
// exported functions and services under the alias.
func (rt *Runtime) applyImport(imp *ImportStatement, resolved map[string]*ResolvedImport) error {
	ri, ok := resolved[imp.Path]
	if !ok {
		return runtimeErrf(imp, "unresolved import %q (no entry in resolved import list)", imp.Path)
	}
	alias := imp.Alias
	if alias == "" {
		alias = importDefaultAlias(imp.Path)
	}

	if ri.Namespace != "" {
		if !rt.caps.HasNamespace(ri.Namespace) {
			return runtimeErrf(imp, "import %q names unknown capability namespace %q", imp.Path, ri.Namespace)
		}
		rt.aliasNS[alias] = ri.Namespace
		return nil
	}
	if ri.Prog == nil {
		return runtimeErrf(imp, "import %q resolved to neither a namespace nor a program", imp.Path)
	}

	for _, stmt := range ri.Prog.Statements {
		switch s := stmt.(type) {
		case *FunctionStatement:
			if s.Exported {
				rt.functions[alias+"::"+s.Name] = s
			}
		case *ServiceStatement:
			if s.Exported {
				rt.services[alias+"::"+s.Name] = s
			}
		}
	}
	return nil
}

// importDefaultAlias derives the alias for an import without an as-clause:
// the last path segment, stripped of directory and extension.
func importDefaultAlias(path string) string {
	seg := path
	for i := len(seg) - 1; i >= 0; i-- {
		if seg[i] == '/' || seg[i] == ':' {
			seg = seg[i+1:]
			break
		}
	}
	for i := len(seg) - 1; i >= 0; i-- {
		if seg[i] == '.' {
			return seg[:i]
		}
	}
	return seg
}
