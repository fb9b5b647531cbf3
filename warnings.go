// warnings.go: non-fatal findings collected after a successful parse.

package serval

import "fmt"

// ParseWarning is a non-fatal finding, currently unused variables. Line is
// 1-based; 0 means the binding site has no own line (parameters, loop and
// catch variables).
type ParseWarning struct {
	Message string
	Line    int
}

// CollectWarnings walks a parsed program and reports bindings that are never
// read. Warnings never fail the parse; callers surface them after run or
// check.
func CollectWarnings(prog *Program) []ParseWarning {
	w := &warningPass{}
	w.pushScope()
	for _, s := range prog.Statements {
		w.statement(s)
	}
	w.popScope()
	return w.warnings
}

type binding struct {
	name string
	line int
	used bool
}

// scope keeps bindings in declaration order so warnings come out stable.
type scope struct {
	names  []string
	byName map[string]*binding
}

type warningPass struct {
	warnings []ParseWarning
	scopes   []*scope
}

func (w *warningPass) pushScope() {
	w.scopes = append(w.scopes, &scope{byName: map[string]*binding{}})
}

func (w *warningPass) popScope() {
	sc := w.scopes[len(w.scopes)-1]
	w.scopes = w.scopes[:len(w.scopes)-1]
	for _, name := range sc.names {
		b := sc.byName[name]
		if !b.used {
			w.warnings = append(w.warnings, ParseWarning{
				Message: fmt.Sprintf("unused variable '%s'", b.name),
				Line:    b.line,
			})
		}
	}
}

func (w *warningPass) bind(name string, line int) {
	sc := w.scopes[len(w.scopes)-1]
	if _, seen := sc.byName[name]; !seen {
		sc.names = append(sc.names, name)
	}
	sc.byName[name] = &binding{name: name, line: line}
}

func (w *warningPass) markUsed(name string) {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if b, ok := w.scopes[i].byName[name]; ok {
			b.used = true
			return
		}
	}
}

func (w *warningPass) blockInOwnScope(b *BlockStatement) {
	if b == nil {
		return
	}
	w.pushScope()
	for _, s := range b.Statements {
		w.statement(s)
	}
	w.popScope()
}

func (w *warningPass) statement(s Statement) {
	switch st := s.(type) {
	case *LetStatement:
		line, _ := st.Pos()
		w.bind(st.Name, line)
		w.expression(st.Value)

	case *ExpressionStatement:
		w.expression(st.Expr)

	case *ReturnStatement:
		w.expression(st.Value)

	case *BlockStatement:
		w.blockInOwnScope(st)

	case *FunctionStatement:
		w.pushScope()
		for _, p := range st.Parameters {
			w.bind(p.Name, 0)
		}
		for _, inner := range st.Body.Statements {
			w.statement(inner)
		}
		w.popScope()

	case *ServiceStatement:
		for _, m := range st.Methods {
			w.pushScope()
			for _, p := range m.Parameters {
				w.bind(p.Name, 0)
			}
			for _, inner := range m.Body.Statements {
				w.statement(inner)
			}
			w.popScope()
		}

	case *SpawnStatement:
		w.blockInOwnScope(st.Body)

	case *AgentStatement:
		w.blockInOwnScope(st.Body)

	case *IfStatement:
		w.expression(st.Condition)
		w.blockInOwnScope(st.Consequence)
		if st.Alternative != nil {
			w.blockInOwnScope(st.Alternative)
		}

	case *WhileStatement:
		w.expression(st.Condition)
		w.blockInOwnScope(st.Body)

	case *LoopStatement:
		w.blockInOwnScope(st.Body)

	case *ForInStatement:
		w.expression(st.Iterable)
		w.pushScope()
		w.bind(st.Variable, 0)
		for _, inner := range st.Body.Statements {
			w.statement(inner)
		}
		w.popScope()

	case *TryStatement:
		w.blockInOwnScope(st.TryBlock)
		for _, cb := range st.CatchBlocks {
			w.pushScope()
			if cb.ErrorVariable != "" {
				w.bind(cb.ErrorVariable, 0)
			}
			for _, inner := range cb.Body.Statements {
				w.statement(inner)
			}
			w.popScope()
		}
		if st.FinallyBlock != nil {
			w.blockInOwnScope(st.FinallyBlock)
		}

	case *MatchStatement:
		w.expression(st.Expr)
		for _, c := range st.Cases {
			w.pushScope()
			if bp, ok := c.Pattern.(*BindingPattern); ok {
				w.bind(bp.Name, 0)
			}
			for _, inner := range c.Body.Statements {
				w.statement(inner)
			}
			w.popScope()
		}
		if st.Default != nil {
			w.blockInOwnScope(st.Default)
		}

	case *MessageStatement:
		for _, f := range st.Data {
			w.expression(f.Value)
		}

	case *EventStatement:
		for _, f := range st.Data {
			w.expression(f.Value)
		}

	case *BreakStatement:
		w.expression(st.Value)

	case *ContinueStatement, *ImportStatement:
		// No bindings and no reads.
	}
}

func (w *warningPass) expression(e Expression) {
	switch ex := e.(type) {
	case nil:
		return

	case *Identifier:
		w.markUsed(ex.Name)

	case *AssignExpr:
		w.markUsed(ex.Name)
		w.expression(ex.Value)

	case *BinaryExpr:
		w.expression(ex.Left)
		w.expression(ex.Right)

	case *UnaryExpr:
		w.expression(ex.Operand)

	case *CallExpr:
		// The callee name is not a variable read; only arguments count.
		for _, a := range ex.Args {
			w.expression(a)
		}

	case *FieldAccess:
		w.expression(ex.Object)

	case *FieldAssign:
		w.expression(ex.Object)
		w.expression(ex.Value)

	case *AwaitExpr:
		w.expression(ex.Operand)

	case *SpawnExpr:
		w.expression(ex.Operand)

	case *ThrowExpr:
		w.expression(ex.Operand)

	case *ObjectLit:
		for _, f := range ex.Fields {
			w.expression(f.Value)
		}

	case *ArrayLit:
		for _, el := range ex.Elements {
			w.expression(el)
		}

	case *IndexExpr:
		w.expression(ex.Object)
		w.expression(ex.Index)

	case *ArrowFunction:
		w.pushScope()
		w.bind(ex.Param, 0)
		for _, s := range ex.Body.Statements {
			w.statement(s)
		}
		w.popScope()

	case *RangeExpr:
		w.expression(ex.Start)
		w.expression(ex.End)
	}
}
