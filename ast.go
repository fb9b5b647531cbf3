// ast.go: typed syntax tree produced by the parser.
//
// Nodes are built once during parsing and read-only afterwards. Every node
// carries the 1-based line/column of its first token so later stages can
// point diagnostics at source without re-lexing.

package serval

// Node is anything with a source position.
type Node interface {
	Pos() (line, col int)
}

// span is embedded in every node to satisfy Node.
type span struct {
	Line int
	Col  int
}

func (s span) Pos() (int, int) { return s.Line, s.Col }

// Program is one parsed source file.
type Program struct {
	Statements []Statement
}

func (p *Program) AddStatement(s Statement) {
	p.Statements = append(p.Statements, s)
}

// Statement is the marker interface for statement nodes.
type Statement interface {
	Node
	stmtNode()
}

// Expression is the marker interface for expression nodes.
type Expression interface {
	Node
	exprNode()
}

// ───────────────────────────── statements ─────────────────────────────

// ExpressionStatement wraps a bare expression in statement position.
type ExpressionStatement struct {
	span
	Expr Expression
}

// LetStatement binds a name: `let x = expr;`
type LetStatement struct {
	span
	Name  string
	Value Expression
}

// ReturnStatement exits the enclosing function. Value is nil for a bare
// `return;`.
type ReturnStatement struct {
	span
	Value Expression
}

// BlockStatement is a brace-delimited statement list.
type BlockStatement struct {
	span
	Statements []Statement
}

// Parameter is one declared parameter; Type is "" when untyped.
type Parameter struct {
	Name string
	Type string
}

// Attribute is one `@name` or `@name(args)` decoration. Name keeps the
// leading '@'.
type Attribute struct {
	span
	Name   string
	Params []Expression
}

// FunctionStatement declares `fn name(params) [-> type] { body }`.
type FunctionStatement struct {
	span
	Name       string
	Parameters []Parameter
	ReturnType string // "" when omitted
	Body       *BlockStatement
	Attributes []Attribute
	IsAsync    bool
	Exported   bool
}

// ImportStatement is top-level `import path [as alias];`. Path is either a
// namespace path ("stdlib::chain") or a quoted file path ("./wallet.svl").
type ImportStatement struct {
	span
	Path  string
	Alias string // "" without as-clause
}

// FieldVisibility controls who may touch a service field.
type FieldVisibility int

const (
	PublicField FieldVisibility = iota
	PrivateField
	InternalField
)

// ServiceField is one `name: type [= initializer];` entry of a service body.
type ServiceField struct {
	span
	Name       string
	FieldType  string
	Initial    Expression // nil without initializer
	Visibility FieldVisibility
}

// EventDecl declares `event Name(params);` inside a service.
type EventDecl struct {
	span
	Name       string
	Parameters []Parameter
}

// CompilationTargetInfo records the resolved @compile_target of a service.
// ValidationErrors hold missing-required-attribute findings; they do not
// fail the parse, the runtime rejects the service before executing it.
type CompilationTargetInfo struct {
	Target           CompileTarget
	Constraints      TargetConstraint
	ValidationErrors []string
}

// ServiceStatement declares `service Name { fields methods events }` with
// its leading attribute decorations.
type ServiceStatement struct {
	span
	Name       string
	Attributes []Attribute
	Fields     []ServiceField
	Methods    []*FunctionStatement
	Events     []EventDecl
	Target     *CompilationTargetInfo // nil without @compile_target
	Exported   bool
}

// ObjectField is one `key: value` entry, kept in source order so evaluation
// order is deterministic.
type ObjectField struct {
	Key   string
	Value Expression
}

// SpawnStatement runs `spawn name [: type] [with { config }] { body }`.
type SpawnStatement struct {
	span
	AgentName string
	AgentType string // "" when unspecified
	Config    []ObjectField
	Body      *BlockStatement
}

// AgentStatement declares `agent Name: type [with { config }] { body }`.
type AgentStatement struct {
	span
	Name         string
	AgentType    string
	Config       []ObjectField
	Capabilities []string
	Body         *BlockStatement
}

// MessageStatement sends `msg recipient { data }`.
type MessageStatement struct {
	span
	Recipient string
	Data      []ObjectField
}

// EventStatement emits `event name { data }`.
type EventStatement struct {
	span
	EventName string
	Data      []ObjectField
}

// IfStatement is `if cond { } [else if ... | else { }]`; chained else-ifs
// nest through Alternative.
type IfStatement struct {
	span
	Condition   Expression
	Consequence *BlockStatement
	Alternative *BlockStatement // nil without else
}

// WhileStatement loops `while cond { body }`.
type WhileStatement struct {
	span
	Condition Expression
	Body      *BlockStatement
}

// CatchBlock is one `catch [Type] [(name)] { body }` arm.
type CatchBlock struct {
	span
	ErrorType     string // "" catches everything
	ErrorVariable string // "" binds nothing
	Body          *BlockStatement
}

// TryStatement is `try { } catch ... [finally { }]`.
type TryStatement struct {
	span
	TryBlock     *BlockStatement
	CatchBlocks  []CatchBlock
	FinallyBlock *BlockStatement // nil without finally
}

// ForInStatement iterates `for x in iterable { body }`.
type ForInStatement struct {
	span
	Variable string
	Iterable Expression
	Body     *BlockStatement
}

// BreakStatement exits the innermost loop; Value (optional) becomes the
// loop's result.
type BreakStatement struct {
	span
	Value Expression
}

// ContinueStatement skips to the next iteration of the innermost loop.
type ContinueStatement struct {
	span
}

// LoopStatement is the unconditional `loop { body }`.
type LoopStatement struct {
	span
	Body *BlockStatement
}

// MatchCase is one `pattern => body` arm.
type MatchCase struct {
	Pattern MatchPattern
	Body    *BlockStatement
}

// MatchStatement is `match expr { arms [default => body] }`. Arms run in
// source order; with no match and no default the whole statement yields
// Null.
type MatchStatement struct {
	span
	Expr    Expression
	Cases   []MatchCase
	Default *BlockStatement
}

func (*ExpressionStatement) stmtNode() {}
func (*LetStatement) stmtNode()        {}
func (*ImportStatement) stmtNode()     {}
func (*ReturnStatement) stmtNode()     {}
func (*BlockStatement) stmtNode()      {}
func (*FunctionStatement) stmtNode()   {}
func (*ServiceStatement) stmtNode()    {}
func (*SpawnStatement) stmtNode()      {}
func (*AgentStatement) stmtNode()      {}
func (*MessageStatement) stmtNode()    {}
func (*EventStatement) stmtNode()      {}
func (*IfStatement) stmtNode()         {}
func (*WhileStatement) stmtNode()      {}
func (*TryStatement) stmtNode()        {}
func (*ForInStatement) stmtNode()      {}
func (*BreakStatement) stmtNode()      {}
func (*ContinueStatement) stmtNode()   {}
func (*LoopStatement) stmtNode()       {}
func (*MatchStatement) stmtNode()      {}

// ─────────────────────────── match patterns ───────────────────────────

// MatchPattern is the marker interface for match arm patterns.
type MatchPattern interface {
	Node
	patternNode()
}

// LiteralPattern matches one literal value. Value holds int64, float64,
// string, bool or nil, mirroring Token.Literal.
type LiteralPattern struct {
	span
	Value interface{}
}

// BindingPattern always matches and binds the value to Name.
type BindingPattern struct {
	span
	Name string
}

// WildcardPattern `_` matches anything and binds nothing.
type WildcardPattern struct {
	span
}

// RangePattern matches numbers in `lo..hi`, both endpoints inclusive.
// Endpoints are literal expressions only.
type RangePattern struct {
	span
	Lo Expression
	Hi Expression
}

func (*LiteralPattern) patternNode()  {}
func (*BindingPattern) patternNode()  {}
func (*WildcardPattern) patternNode() {}
func (*RangePattern) patternNode()    {}

// ───────────────────────────── expressions ─────────────────────────────

// Identifier references a binding by name.
type Identifier struct {
	span
	Name string
}

type IntLit struct {
	span
	Value int64
}

type FloatLit struct {
	span
	Value float64
}

type StringLit struct {
	span
	Value string
}

type BoolLit struct {
	span
	Value bool
}

type NullLit struct {
	span
}

// BinaryExpr applies an infix operator; Op is the operator's token type.
type BinaryExpr struct {
	span
	Left  Expression
	Op    TokenType
	Right Expression
}

// UnaryExpr applies prefix '-' or '!'.
type UnaryExpr struct {
	span
	Op      TokenType
	Operand Expression
}

// AssignExpr writes `name = value`.
type AssignExpr struct {
	span
	Name  string
	Value Expression
}

// CallExpr invokes a callable by flattened name: plain functions ("fib"),
// namespace calls ("log::info") and method calls ("wallet.deposit") all
// arrive here.
type CallExpr struct {
	span
	Name string
	Args []Expression
}

// FieldAccess reads `object.field`.
type FieldAccess struct {
	span
	Object Expression
	Field  string
}

// FieldAssign writes `object.field = value`.
type FieldAssign struct {
	span
	Object Expression
	Field  string
	Value  Expression
}

// AwaitExpr is `await expr`.
type AwaitExpr struct {
	span
	Operand Expression
}

// SpawnExpr is expression-position `spawn expr`.
type SpawnExpr struct {
	span
	Operand Expression
}

// ThrowExpr raises `throw expr`.
type ThrowExpr struct {
	span
	Operand Expression
}

// ObjectLit is `{ key: value, ... }` with fields in source order.
type ObjectLit struct {
	span
	Fields []ObjectField
}

// ArrayLit is `[ e1, e2, ... ]`.
type ArrayLit struct {
	span
	Elements []Expression
}

// IndexExpr reads `object[index]` on arrays and maps.
type IndexExpr struct {
	span
	Object Expression
	Index  Expression
}

// ArrowFunction is the single-parameter closure `param => { body }`.
type ArrowFunction struct {
	span
	Param string
	Body  *BlockStatement
}

// RangeExpr is `start..end` with both endpoints inclusive.
type RangeExpr struct {
	span
	Start Expression
	End   Expression
}

func (*Identifier) exprNode()    {}
func (*IntLit) exprNode()        {}
func (*FloatLit) exprNode()      {}
func (*StringLit) exprNode()     {}
func (*BoolLit) exprNode()       {}
func (*NullLit) exprNode()       {}
func (*BinaryExpr) exprNode()    {}
func (*UnaryExpr) exprNode()     {}
func (*AssignExpr) exprNode()    {}
func (*CallExpr) exprNode()      {}
func (*FieldAccess) exprNode()   {}
func (*FieldAssign) exprNode()   {}
func (*AwaitExpr) exprNode()     {}
func (*SpawnExpr) exprNode()     {}
func (*ThrowExpr) exprNode()     {}
func (*ObjectLit) exprNode()     {}
func (*ArrayLit) exprNode()      {}
func (*IndexExpr) exprNode()     {}
func (*ArrowFunction) exprNode() {}
func (*RangeExpr) exprNode()     {}
