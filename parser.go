// parser.go: recursive-descent parser building the typed AST.
//
// One token of lookahead, precedence climbing for expressions. The first
// syntax error aborts the parse; non-fatal findings go through the warning
// pass in warnings.go instead.

package serval

import (
	"fmt"
	"sort"
	"strings"
)

// Limits guarding the parser against hostile input.
const (
	maxRecursionDepth = 100
	maxStatements     = 100_000
)

// ParseError is a fatal syntax error. Line and Col are 1-based.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("PARSE ERROR at %d:%d: %s", e.Line, e.Col, e.Msg)
}

////////////////////////////////////////////////////////////////////////////////
//                                  PUBLIC API
////////////////////////////////////////////////////////////////////////////////

// Parse builds a Program from a token stream produced by the Lexer.
func Parse(toks []Token) (*Program, error) {
	p := &parser{toks: toks}
	return p.program()
}

// ParseSource lexes and parses src in one call. Sources larger than
// maxSourceBytes are rejected before lexing.
func ParseSource(src string) (*Program, error) {
	if len(src) > maxSourceBytes {
		return nil, &ParseError{
			Line: 1, Col: 1,
			Msg: fmt.Sprintf("source too large: %d bytes (max %d bytes)", len(src), maxSourceBytes),
		}
	}
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return Parse(toks)
}

//// END_OF_PUBLIC

////////////////////////////////////////////////////////////////////////////////
///////////////////////////// PRIVATE IMPLEMENTATION ///////////////////////////
////////////////////////////////////////////////////////////////////////////////

type parser struct {
	toks []Token
	i    int
}

// ─────────────────────────── token basics & helpers ─────────────────────────

func (p *parser) atEnd() bool { return p.peek().Type == EOF }

func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		if len(p.toks) == 0 {
			return Token{Type: EOF, Line: 1, Col: 1}
		}
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

// at looks n tokens past the cursor, clamping to the trailing EOF.
func (p *parser) at(n int) Token {
	idx := p.i + n
	if idx >= len(p.toks) {
		if len(p.toks) == 0 {
			return Token{Type: EOF, Line: 1, Col: 1}
		}
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *parser) prev() Token { return p.toks[p.i-1] }

func (p *parser) check(t TokenType) bool { return p.peek().Type == t }

func (p *parser) match(tt ...TokenType) bool {
	for _, t := range tt {
		if p.peek().Type == t {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) need(t TokenType, msg string) (Token, error) {
	if p.match(t) {
		return p.prev(), nil
	}
	g := p.peek()
	return Token{}, &ParseError{Line: g.Line, Col: g.Col, Msg: fmt.Sprintf("%s, got %s", msg, g.describe())}
}

// needIdent accepts only a plain identifier.
func (p *parser) needIdent(what string) (Token, error) {
	if p.match(ID) {
		return p.prev(), nil
	}
	g := p.peek()
	return Token{}, &ParseError{Line: g.Line, Col: g.Col, Msg: fmt.Sprintf("expected %s, got %s", what, g.describe())}
}

// needName accepts an identifier or any keyword. Keywords double as names
// in many positions (`let chain = ...`).
func (p *parser) needName(what string) (Token, error) {
	if p.check(ID) || p.peek().Type.IsKeyword() {
		p.i++
		return p.prev(), nil
	}
	g := p.peek()
	return Token{}, &ParseError{Line: g.Line, Col: g.Col, Msg: fmt.Sprintf("expected %s, got %s", what, g.describe())}
}

func (p *parser) unexpected(expected ...string) *ParseError {
	g := p.peek()
	want := strings.Join(expected, ", ")
	if len(expected) > 1 {
		want = "one of: " + want
	}
	return &ParseError{Line: g.Line, Col: g.Col, Msg: fmt.Sprintf("unexpected %s, expected %s", g.describe(), want)}
}

func errTok(t Token, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: t.Line, Col: t.Col, Msg: fmt.Sprintf(format, args...)}
}

func errNode(n Node, format string, args ...interface{}) *ParseError {
	line, col := n.Pos()
	return &ParseError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func spanOf(t Token) span { return span{Line: t.Line, Col: t.Col} }

func spanFromNode(n Node) span {
	line, col := n.Pos()
	return span{Line: line, Col: col}
}

// ────────────────────────────────── program ─────────────────────────────────

func (p *parser) program() (*Program, error) {
	prog := &Program{}
	count := 0
	for p.i < len(p.toks) {
		if p.check(EOF) {
			p.i++
			continue
		}
		count++
		if count > maxStatements {
			return nil, errTok(p.peek(), "too many statements: %d (max %d)", count, maxStatements)
		}
		stmt, err := p.statement(0)
		if err != nil {
			return nil, err
		}
		prog.AddStatement(stmt)
	}
	return prog, nil
}

// ───────────────────────────────── statements ───────────────────────────────

func (p *parser) statement(depth int) (Statement, error) {
	if depth > maxRecursionDepth {
		return nil, errTok(p.peek(), "maximum recursion depth (%d) exceeded in statement parsing", maxRecursionDepth)
	}

	tok := p.peek()

	// Top-level `export` marks the following fn/async fn/service exported.
	if depth == 0 && tok.Type == EXPORT {
		p.i++
		attrs, target, err := p.leadingAttributes()
		if err != nil {
			return nil, err
		}
		if target != nil && p.peek().Type != SERVICE {
			return nil, errTok(p.peek(), "@compile_target may only decorate a service declaration")
		}
		switch p.peek().Type {
		case FN:
			fn, err := p.functionStatement(false)
			if err != nil {
				return nil, err
			}
			fn.Attributes = attrs
			fn.Exported = true
			return fn, nil
		case ASYNC:
			fn, err := p.asyncFunctionStatement()
			if err != nil {
				return nil, err
			}
			fn.Attributes = attrs
			fn.Exported = true
			return fn, nil
		case SERVICE:
			return p.serviceStatement(attrs, target, true)
		default:
			return nil, p.unexpected("function declaration", "service declaration")
		}
	}

	// Leading attributes must decorate a fn, async fn or service.
	if tok.Type == AT {
		attrs, target, err := p.leadingAttributes()
		if err != nil {
			return nil, err
		}
		if target != nil && p.peek().Type != SERVICE {
			return nil, errTok(p.peek(), "@compile_target may only decorate a service declaration")
		}
		switch p.peek().Type {
		case FN:
			fn, err := p.functionStatement(false)
			if err != nil {
				return nil, err
			}
			fn.Attributes = attrs
			return fn, nil
		case ASYNC:
			fn, err := p.asyncFunctionStatement()
			if err != nil {
				return nil, err
			}
			fn.Attributes = attrs
			return fn, nil
		case SERVICE:
			return p.serviceStatement(attrs, target, false)
		default:
			return nil, p.unexpected("function declaration", "service declaration")
		}
	}

	if depth == 0 && tok.Type == IMPORT {
		return p.importStatement()
	}

	switch tok.Type {
	case LET:
		return p.letStatement()
	case FN:
		return p.functionStatement(false)
	case ASYNC:
		return p.asyncFunctionStatement()
	case SPAWN:
		return p.spawnStatement()
	case AGENT:
		return p.agentStatement()
	case MSG:
		return p.messageStatement()
	case EVENT:
		return p.eventStatement()
	case IF:
		return p.ifStatement()
	case WHILE:
		return p.whileStatement()
	case TRY:
		return p.tryStatement()
	case FOR:
		return p.forInStatement()
	case BREAK:
		return p.breakStatement()
	case CONTINUE:
		return p.continueStatement()
	case LOOP:
		return p.loopStatement()
	case MATCH:
		return p.matchStatement()
	case SERVICE:
		return p.serviceStatement(nil, nil, false)
	case RETURN:
		return p.returnStatement()
	case LCURLY:
		return p.block(depth + 1)
	case SEMI:
		// Empty statement.
		p.i++
		return &ExpressionStatement{span: spanOf(tok), Expr: &NullLit{span: spanOf(tok)}}, nil
	}

	expr, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	return &ExpressionStatement{span: spanOf(tok), Expr: expr}, nil
}

func (p *parser) letStatement() (Statement, error) {
	letTok := p.peek()
	p.i++ // consume 'let'

	// `mut` is accepted and dropped: all bindings are reassignable.
	p.match(MUT)

	nameTok, err := p.needName("variable name")
	if err != nil {
		return nil, err
	}
	if _, err := p.need(ASSIGN, "expected '=' after variable name"); err != nil {
		return nil, err
	}
	value, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(SEMI, "expected ';' after let statement"); err != nil {
		return nil, err
	}
	return &LetStatement{span: spanOf(letTok), Name: nameTok.Lexeme, Value: value}, nil
}

func (p *parser) returnStatement() (Statement, error) {
	retTok := p.peek()
	p.i++ // consume 'return'

	var value Expression
	if !p.check(SEMI) {
		v, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		value = v
	}
	if _, err := p.need(SEMI, "expected ';' after return statement"); err != nil {
		return nil, err
	}
	return &ReturnStatement{span: spanOf(retTok), Value: value}, nil
}

// importStatement parses `import <path> [as alias];` where path is a string
// literal ("./wallet.svl") or an identifier path (stdlib::chain).
func (p *parser) importStatement() (Statement, error) {
	impTok := p.peek()
	p.i++ // consume 'import'

	var path string
	switch {
	case p.check(STRING):
		path = p.peek().Literal.(string)
		p.i++
	case p.check(ID):
		parts := []string{p.peek().Lexeme}
		p.i++
		for p.check(COLONCOLON) && (p.at(1).Type == ID || p.at(1).Type.IsKeyword()) {
			parts = append(parts, p.at(1).Lexeme)
			p.i += 2
		}
		path = strings.Join(parts, "::")
	default:
		return nil, errTok(p.peek(), `import expects a path: string literal (e.g. "./wallet.svl") or identifier path (e.g. stdlib::chain)`)
	}

	alias := ""
	if p.match(AS) {
		aliasTok, err := p.needName("import alias")
		if err != nil {
			return nil, err
		}
		alias = aliasTok.Lexeme
	}
	if _, err := p.need(SEMI, "expected ';' after import"); err != nil {
		return nil, err
	}
	return &ImportStatement{span: spanOf(impTok), Path: path, Alias: alias}, nil
}

func (p *parser) block(depth int) (*BlockStatement, error) {
	if depth > maxRecursionDepth {
		return nil, errTok(p.peek(), "maximum recursion depth (%d) exceeded in block parsing", maxRecursionDepth)
	}
	open, err := p.need(LCURLY, "expected '{'")
	if err != nil {
		return nil, err
	}
	blk := &BlockStatement{span: spanOf(open)}
	for {
		if p.match(RCURLY) {
			return blk, nil
		}
		if p.atEnd() {
			return nil, errTok(p.peek(), "expected '}', got end of input")
		}
		stmt, err := p.statement(depth + 1)
		if err != nil {
			return nil, err
		}
		blk.Statements = append(blk.Statements, stmt)
	}
}

func (p *parser) functionStatement(isAsync bool) (*FunctionStatement, error) {
	fnTok := p.peek()
	p.i++ // consume 'fn'

	nameTok, err := p.needIdent("function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.need(LROUND, "expected '(' after function name"); err != nil {
		return nil, err
	}
	params, err := p.parameters()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RROUND, "expected ')' after parameters"); err != nil {
		return nil, err
	}

	returnType := ""
	if p.match(ARROW) {
		rt, err := p.typeExpr()
		if err != nil {
			return nil, err
		}
		returnType = rt
	}

	body, err := p.block(0)
	if err != nil {
		return nil, err
	}
	return &FunctionStatement{
		span:       spanOf(fnTok),
		Name:       nameTok.Lexeme,
		Parameters: params,
		ReturnType: returnType,
		Body:       body,
		IsAsync:    isAsync,
	}, nil
}

func (p *parser) asyncFunctionStatement() (*FunctionStatement, error) {
	asyncTok := p.peek()
	p.i++ // consume 'async'
	if !p.check(FN) {
		return nil, p.unexpected("'fn'")
	}
	fn, err := p.functionStatement(true)
	if err != nil {
		return nil, err
	}
	fn.span = spanOf(asyncTok)
	return fn, nil
}

func (p *parser) parameters() ([]Parameter, error) {
	var params []Parameter
	if p.check(RROUND) {
		return params, nil
	}
	for {
		nameTok, err := p.needName("parameter name")
		if err != nil {
			return nil, err
		}
		param := Parameter{Name: nameTok.Lexeme}
		if p.match(COLON) {
			t, err := p.typeExpr()
			if err != nil {
				return nil, err
			}
			param.Type = t
		}
		params = append(params, param)
		if !p.match(COMMA) {
			return params, nil
		}
	}
}

// typeExpr parses a type name with optional generic parameters and renders
// it back to a canonical string, e.g. "map<string, int>".
func (p *parser) typeExpr() (string, error) {
	baseTok, err := p.needName("type name")
	if err != nil {
		return "", err
	}
	base := baseTok.Lexeme
	if !p.match(LT) {
		return base, nil
	}
	var args []string
	for {
		arg, err := p.typeExpr()
		if err != nil {
			return "", err
		}
		args = append(args, arg)
		if p.match(COMMA) {
			continue
		}
		if p.match(GT) {
			break
		}
		return "", p.unexpected("','", "'>'")
	}
	return base + "<" + strings.Join(args, ", ") + ">", nil
}

// spawnStatement parses `spawn name [: type [{ config }]] { body }`.
func (p *parser) spawnStatement() (Statement, error) {
	spawnTok := p.peek()
	p.i++ // consume 'spawn'

	nameTok, err := p.needIdent("agent name")
	if err != nil {
		return nil, err
	}
	st := &SpawnStatement{span: spanOf(spawnTok), AgentName: nameTok.Lexeme}

	if p.match(COLON) {
		typeTok, err := p.needName("agent type")
		if err != nil {
			return nil, err
		}
		st.AgentType = typeTok.Lexeme

		// A typed spawn takes its config object before the body, so the
		// first brace group always belongs to the config.
		if p.check(LCURLY) {
			cfg, err := p.objectFields(0)
			if err != nil {
				return nil, err
			}
			st.Config = cfg
		}
	}

	body, err := p.block(0)
	if err != nil {
		return nil, err
	}
	st.Body = body
	return st, nil
}

// agentStatement parses `agent Name: type { config } [with [caps]] { body }`.
func (p *parser) agentStatement() (Statement, error) {
	agentTok := p.peek()
	p.i++ // consume 'agent'

	nameTok, err := p.needIdent("agent name")
	if err != nil {
		return nil, err
	}
	if !p.match(COLON) {
		return nil, p.unexpected("':'")
	}
	typeTok, err := p.needName("agent type")
	if err != nil {
		return nil, err
	}

	cfg, err := p.objectFields(0)
	if err != nil {
		return nil, err
	}

	var caps []string
	if p.match(WITH) {
		caps, err = p.capabilityList()
		if err != nil {
			return nil, err
		}
	}

	body, err := p.block(0)
	if err != nil {
		return nil, err
	}
	return &AgentStatement{
		span:         spanOf(agentTok),
		Name:         nameTok.Lexeme,
		AgentType:    typeTok.Lexeme,
		Config:       cfg,
		Capabilities: caps,
		Body:         body,
	}, nil
}

// capabilityList parses `[ "cap", ... ]` with string elements only.
func (p *parser) capabilityList() ([]string, error) {
	if _, err := p.need(LSQUARE, "expected '[' to open capability list"); err != nil {
		return nil, err
	}
	var caps []string
	for {
		if p.match(RSQUARE) {
			return caps, nil
		}
		if p.atEnd() {
			return nil, errTok(p.peek(), "expected ']' after capability list, got end of input")
		}
		strTok, err := p.need(STRING, "expected capability string")
		if err != nil {
			return nil, err
		}
		caps = append(caps, strTok.Literal.(string))
		p.match(COMMA)
	}
}

// messageStatement parses `msg recipient with { key: value, ... }`.
func (p *parser) messageStatement() (Statement, error) {
	msgTok := p.peek()
	p.i++ // consume 'msg'

	recipTok, err := p.needIdent("message recipient")
	if err != nil {
		return nil, err
	}
	if _, err := p.need(WITH, "expected 'with' after message recipient"); err != nil {
		return nil, err
	}
	data, err := p.messageData()
	if err != nil {
		return nil, err
	}
	return &MessageStatement{span: spanOf(msgTok), Recipient: recipTok.Lexeme, Data: data}, nil
}

// eventStatement parses statement-position `event name { key: value, ... }`
// (event emission; declarations inside services go through eventDecl).
func (p *parser) eventStatement() (Statement, error) {
	evTok := p.peek()
	p.i++ // consume 'event'

	nameTok, err := p.needIdent("event name")
	if err != nil {
		return nil, err
	}
	data, err := p.messageData()
	if err != nil {
		return nil, err
	}
	return &EventStatement{span: spanOf(evTok), EventName: nameTok.Lexeme, Data: data}, nil
}

// messageData parses a `{ key: expr, ... }` payload with identifier keys.
func (p *parser) messageData() ([]ObjectField, error) {
	if _, err := p.need(LCURLY, "expected '{' to open payload"); err != nil {
		return nil, err
	}
	var fields []ObjectField
	if p.match(RCURLY) {
		return fields, nil
	}
	for {
		keyTok, err := p.needIdent("payload key")
		if err != nil {
			return nil, err
		}
		if _, err := p.need(COLON, "expected ':' after payload key"); err != nil {
			return nil, err
		}
		value, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ObjectField{Key: keyTok.Lexeme, Value: value})
		if !p.match(COMMA) {
			break
		}
	}
	if _, err := p.need(RCURLY, "expected '}' after payload"); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *parser) ifStatement() (Statement, error) {
	ifTok := p.peek()
	p.i++ // consume 'if'

	if _, err := p.need(LROUND, "expected '(' after 'if'"); err != nil {
		return nil, err
	}
	cond, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RROUND, "expected ')' after condition"); err != nil {
		return nil, err
	}
	cons, err := p.block(0)
	if err != nil {
		return nil, err
	}

	st := &IfStatement{span: spanOf(ifTok), Condition: cond, Consequence: cons}
	if p.match(ELSE) {
		if p.check(IF) && p.at(1).Type == LROUND {
			// `else if` chains wrap the nested if in a one-statement block.
			elseTok := p.prev()
			nested, err := p.ifStatement()
			if err != nil {
				return nil, err
			}
			st.Alternative = &BlockStatement{span: spanOf(elseTok), Statements: []Statement{nested}}
		} else {
			alt, err := p.block(0)
			if err != nil {
				return nil, err
			}
			st.Alternative = alt
		}
	}
	return st, nil
}

func (p *parser) whileStatement() (Statement, error) {
	whileTok := p.peek()
	p.i++ // consume 'while'

	if _, err := p.need(LROUND, "expected '(' after 'while'"); err != nil {
		return nil, err
	}
	cond, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RROUND, "expected ')' after condition"); err != nil {
		return nil, err
	}
	body, err := p.block(0)
	if err != nil {
		return nil, err
	}
	return &WhileStatement{span: spanOf(whileTok), Condition: cond, Body: body}, nil
}

func (p *parser) tryStatement() (Statement, error) {
	tryTok := p.peek()
	p.i++ // consume 'try'

	tryBlock, err := p.block(0)
	if err != nil {
		return nil, err
	}
	st := &TryStatement{span: spanOf(tryTok), TryBlock: tryBlock}

	for p.check(CATCH) {
		cb, err := p.catchBlock()
		if err != nil {
			return nil, err
		}
		st.CatchBlocks = append(st.CatchBlocks, cb)
	}
	if p.match(FINALLY) {
		fin, err := p.block(0)
		if err != nil {
			return nil, err
		}
		st.FinallyBlock = fin
	}
	return st, nil
}

// catchBlock parses `catch [(ErrorType [varName])] { body }`. Both the type
// and the variable are optional.
func (p *parser) catchBlock() (CatchBlock, error) {
	p.i++ // consume 'catch'

	var cb CatchBlock
	if p.match(LROUND) {
		if p.check(ID) {
			cb.ErrorType = p.peek().Lexeme
			p.i++
			if p.check(ID) {
				cb.ErrorVariable = p.peek().Lexeme
				p.i++
			}
		}
		if _, err := p.need(RROUND, "expected ')' after catch parameters"); err != nil {
			return CatchBlock{}, err
		}
	}
	body, err := p.block(0)
	if err != nil {
		return CatchBlock{}, err
	}
	cb.Body = body
	return cb, nil
}

func (p *parser) forInStatement() (Statement, error) {
	forTok := p.peek()
	p.i++ // consume 'for'

	varTok, err := p.needName("loop variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.need(IN, "expected 'in' after loop variable"); err != nil {
		return nil, err
	}
	iterable, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	body, err := p.block(0)
	if err != nil {
		return nil, err
	}
	return &ForInStatement{span: spanOf(forTok), Variable: varTok.Lexeme, Iterable: iterable, Body: body}, nil
}

func (p *parser) breakStatement() (Statement, error) {
	breakTok := p.peek()
	p.i++ // consume 'break'

	st := &BreakStatement{span: spanOf(breakTok)}
	if !p.check(SEMI) {
		v, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		st.Value = v
	}
	if _, err := p.need(SEMI, "expected ';' after break"); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *parser) continueStatement() (Statement, error) {
	contTok := p.peek()
	p.i++ // consume 'continue'
	if _, err := p.need(SEMI, "expected ';' after continue"); err != nil {
		return nil, err
	}
	return &ContinueStatement{span: spanOf(contTok)}, nil
}

func (p *parser) loopStatement() (Statement, error) {
	loopTok := p.peek()
	p.i++ // consume 'loop'
	body, err := p.block(0)
	if err != nil {
		return nil, err
	}
	return &LoopStatement{span: spanOf(loopTok), Body: body}, nil
}

// ──────────────────────────────────── match ─────────────────────────────────

// matchStatement parses `match expr { pattern => body, ..., default => body }`.
// The comma after an arm is optional.
func (p *parser) matchStatement() (Statement, error) {
	matchTok := p.peek()
	p.i++ // consume 'match'

	expr, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.need(LCURLY, "expected '{' to open match body"); err != nil {
		return nil, err
	}

	st := &MatchStatement{span: spanOf(matchTok), Expr: expr}
	for {
		if p.match(RCURLY) {
			return st, nil
		}
		if p.atEnd() {
			return nil, errTok(p.peek(), "expected '}' to close match body, got end of input")
		}

		if p.match(DEFAULT) {
			if _, err := p.need(FATARROW, "expected '=>' after 'default'"); err != nil {
				return nil, err
			}
			body, err := p.armBody()
			if err != nil {
				return nil, err
			}
			st.Default = body
			p.match(COMMA)
			continue
		}

		pattern, err := p.matchPattern()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(FATARROW, "expected '=>' after match pattern"); err != nil {
			return nil, err
		}
		body, err := p.armBody()
		if err != nil {
			return nil, err
		}
		st.Cases = append(st.Cases, MatchCase{Pattern: pattern, Body: body})
		p.match(COMMA)
	}
}

// armBody parses one match arm body: a block, a bare break/continue (arms
// separate with commas, not semicolons), or a single expression wrapped in
// a one-statement block.
func (p *parser) armBody() (*BlockStatement, error) {
	tok := p.peek()
	switch tok.Type {
	case LCURLY:
		return p.block(0)
	case BREAK:
		p.i++
		st := &BreakStatement{span: spanOf(tok)}
		if !p.check(COMMA) && !p.check(RCURLY) {
			v, err := p.expression(0)
			if err != nil {
				return nil, err
			}
			st.Value = v
		}
		return &BlockStatement{span: spanOf(tok), Statements: []Statement{st}}, nil
	case CONTINUE:
		p.i++
		st := &ContinueStatement{span: spanOf(tok)}
		return &BlockStatement{span: spanOf(tok), Statements: []Statement{st}}, nil
	default:
		expr, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		st := &ExpressionStatement{span: spanOf(tok), Expr: expr}
		return &BlockStatement{span: spanOf(tok), Statements: []Statement{st}}, nil
	}
}

// matchPattern parses one arm pattern: `_`, a literal, a literal range
// `lo..hi`, or a binding identifier.
func (p *parser) matchPattern() (MatchPattern, error) {
	tok := p.peek()

	if tok.Type == ID && tok.Lexeme == "_" {
		p.i++
		return &WildcardPattern{span: spanOf(tok)}, nil
	}

	if lit, ok := p.literalExpr(tok); ok {
		p.i++
		if p.match(DOTDOT) {
			hiTok := p.peek()
			hi, ok := p.literalExpr(hiTok)
			if !ok {
				return nil, errTok(hiTok, "expected literal range end, got %s", hiTok.describe())
			}
			p.i++
			return &RangePattern{span: spanOf(tok), Lo: lit, Hi: hi}, nil
		}
		return &LiteralPattern{span: spanOf(tok), Value: literalValue(tok)}, nil
	}

	nameTok, err := p.needName("match pattern")
	if err != nil {
		return nil, err
	}
	return &BindingPattern{span: spanOf(nameTok), Name: nameTok.Lexeme}, nil
}

// literalExpr converts a literal token to its expression node without
// consuming it; ok is false for non-literal tokens.
func (p *parser) literalExpr(tok Token) (Expression, bool) {
	switch tok.Type {
	case INT:
		return &IntLit{span: spanOf(tok), Value: tok.Literal.(int64)}, true
	case FLOAT:
		return &FloatLit{span: spanOf(tok), Value: tok.Literal.(float64)}, true
	case STRING:
		return &StringLit{span: spanOf(tok), Value: tok.Literal.(string)}, true
	case BOOL:
		return &BoolLit{span: spanOf(tok), Value: tok.Literal.(bool)}, true
	case NULL:
		return &NullLit{span: spanOf(tok)}, true
	}
	return nil, false
}

// literalValue extracts the raw payload for LiteralPattern: int64, float64,
// string, bool, or nil.
func literalValue(tok Token) interface{} {
	if tok.Type == NULL {
		return nil
	}
	return tok.Literal
}

// ─────────────────────────────────── services ───────────────────────────────

// serviceStatement parses a service declaration. attrs and target carry
// decorations parsed before the `service` keyword; more may follow the name.
func (p *parser) serviceStatement(attrs []Attribute, target *CompilationTargetInfo, exported bool) (Statement, error) {
	svcTok, err := p.need(SERVICE, "expected 'service'")
	if err != nil {
		return nil, err
	}
	nameTok, err := p.needIdent("service name")
	if err != nil {
		return nil, err
	}

	svc := &ServiceStatement{
		span:       spanOf(svcTok),
		Name:       nameTok.Lexeme,
		Attributes: attrs,
		Target:     target,
		Exported:   exported,
	}

	// Attributes may also sit between the name and the body.
	for p.check(AT) {
		if p.at(1).Type == COMPILETARGET {
			ti, err := p.compileTargetAttribute()
			if err != nil {
				return nil, err
			}
			svc.Target = ti
			continue
		}
		a, err := p.attribute()
		if err != nil {
			return nil, err
		}
		svc.Attributes = append(svc.Attributes, a)
	}

	if _, err := p.need(LCURLY, "expected '{' to open service body"); err != nil {
		return nil, err
	}

	for {
		switch {
		case p.match(RCURLY):
			if err := p.validateTargetConstraints(svc); err != nil {
				return nil, err
			}
			if err := p.validateServiceSecurity(svc); err != nil {
				return nil, err
			}
			return svc, nil

		case p.atEnd():
			return nil, errTok(p.peek(), "expected '}' to close service body, got end of input")

		case p.check(AT):
			// Attributes inside the body decorate either a method or a
			// field; peek past them to tell which.
			save := p.i
			mattrs, err := p.attributeList()
			if err != nil {
				return nil, err
			}
			switch p.peek().Type {
			case FN:
				m, err := p.functionStatement(false)
				if err != nil {
					return nil, err
				}
				m.Attributes = mattrs
				svc.Methods = append(svc.Methods, m)
			case ID:
				p.i = save
				f, err := p.serviceField()
				if err != nil {
					return nil, err
				}
				svc.Fields = append(svc.Fields, f)
			default:
				return nil, errTok(p.peek(), "attributes must be followed by 'fn' or a field name, got %s", p.peek().describe())
			}

		case p.check(FN):
			m, err := p.functionStatement(false)
			if err != nil {
				return nil, err
			}
			svc.Methods = append(svc.Methods, m)

		case p.check(EVENT):
			ev, err := p.eventDecl()
			if err != nil {
				return nil, err
			}
			svc.Events = append(svc.Events, ev)

		default:
			f, err := p.serviceField()
			if err != nil {
				return nil, err
			}
			svc.Fields = append(svc.Fields, f)
		}
	}
}

// serviceField parses `[@public|@private|@internal | private] name: type [= expr];`.
func (p *parser) serviceField() (ServiceField, error) {
	first := p.peek()
	field := ServiceField{span: spanOf(first), Visibility: PublicField}

	if p.match(AT) {
		visTok, err := p.needName("field visibility")
		if err != nil {
			return ServiceField{}, err
		}
		switch strings.ToLower(visTok.Lexeme) {
		case "public":
			field.Visibility = PublicField
		case "private":
			field.Visibility = PrivateField
		case "internal":
			field.Visibility = InternalField
		default:
			return ServiceField{}, errTok(visTok, "unexpected @%s, expected one of: @public, @private, @internal", visTok.Lexeme)
		}
	} else if p.match(PRIVATE) {
		field.Visibility = PrivateField
	}

	nameTok, err := p.needIdent("field name")
	if err != nil {
		return ServiceField{}, err
	}
	field.Name = nameTok.Lexeme

	if _, err := p.need(COLON, "expected ':' after field name"); err != nil {
		return ServiceField{}, err
	}
	ft, err := p.typeExpr()
	if err != nil {
		return ServiceField{}, err
	}
	field.FieldType = ft

	if p.match(ASSIGN) {
		init, err := p.expression(0)
		if err != nil {
			return ServiceField{}, err
		}
		field.Initial = init
	}
	if _, err := p.need(SEMI, "expected ';' after field declaration"); err != nil {
		return ServiceField{}, err
	}
	return field, nil
}

// eventDecl parses `event Name(params);` inside a service body.
func (p *parser) eventDecl() (EventDecl, error) {
	evTok := p.peek()
	p.i++ // consume 'event'

	nameTok, err := p.needIdent("event name")
	if err != nil {
		return EventDecl{}, err
	}
	if _, err := p.need(LROUND, "expected '(' after event name"); err != nil {
		return EventDecl{}, err
	}

	decl := EventDecl{span: spanOf(evTok), Name: nameTok.Lexeme}
	for {
		if p.match(RROUND) {
			break
		}
		if p.atEnd() {
			return EventDecl{}, errTok(p.peek(), "expected ')' after event parameters, got end of input")
		}
		paramTok, err := p.needIdent("event parameter name")
		if err != nil {
			return EventDecl{}, err
		}
		param := Parameter{Name: paramTok.Lexeme}
		if p.match(COLON) {
			t, err := p.typeExpr()
			if err != nil {
				return EventDecl{}, err
			}
			param.Type = t
		}
		decl.Parameters = append(decl.Parameters, param)
		p.match(COMMA)
	}
	if _, err := p.need(SEMI, "expected ';' after event declaration"); err != nil {
		return EventDecl{}, err
	}
	return decl, nil
}

// compileTargetAttribute parses `@compile_target("name")` and resolves the
// target's constraint set. An unknown target name is a syntax error;
// missing required attributes are recorded for the runtime to reject.
func (p *parser) compileTargetAttribute() (*CompilationTargetInfo, error) {
	p.i++ // consume '@'
	if _, err := p.need(COMPILETARGET, "expected 'compile_target'"); err != nil {
		return nil, err
	}
	if _, err := p.need(LROUND, "expected '(' after 'compile_target'"); err != nil {
		return nil, err
	}
	nameTok, err := p.need(STRING, "expected compilation target string")
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RROUND, "expected ')' after compilation target"); err != nil {
		return nil, err
	}

	name := nameTok.Literal.(string)
	target, ok := CompileTargetFromString(name)
	if !ok {
		return nil, errTok(nameTok, "unknown compilation target %q, expected one of: native, blockchain, webassembly, mobile, edge", name)
	}
	return &CompilationTargetInfo{Target: target, Constraints: TargetConstraints(target)}, nil
}

// attributeList collects consecutive `@name[(args)]` decorations.
// leadingAttributes parses the decorations that precede a fn/async fn/service
// keyword. @compile_target is split out so the declaration records its
// constraint set instead of a plain attribute.
func (p *parser) leadingAttributes() ([]Attribute, *CompilationTargetInfo, error) {
	var attrs []Attribute
	var target *CompilationTargetInfo
	for p.check(AT) {
		if p.at(1).Type == COMPILETARGET {
			ti, err := p.compileTargetAttribute()
			if err != nil {
				return nil, nil, err
			}
			target = ti
			continue
		}
		a, err := p.attribute()
		if err != nil {
			return nil, nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, target, nil
}

func (p *parser) attributeList() ([]Attribute, error) {
	var attrs []Attribute
	for p.check(AT) {
		a, err := p.attribute()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// attribute parses one `@name` or `@name(args)`. The stored name keeps the
// leading '@' so required-attribute checks compare directly.
func (p *parser) attribute() (Attribute, error) {
	atTok := p.peek()
	p.i++ // consume '@'

	nameTok, err := p.needName("attribute name")
	if err != nil {
		return Attribute{}, err
	}
	a := Attribute{span: spanOf(atTok), Name: "@" + nameTok.Lexeme}

	if p.match(LROUND) {
		if p.match(RROUND) {
			return a, nil
		}
		for {
			e, err := p.expression(0)
			if err != nil {
				return Attribute{}, err
			}
			a.Params = append(a.Params, e)
			if !p.match(COMMA) {
				break
			}
		}
		if _, err := p.need(RROUND, "expected ')' after attribute parameters"); err != nil {
			return Attribute{}, err
		}
	}
	return a, nil
}

// ─────────────────────────── service validation ─────────────────────────────

// validateTargetConstraints runs after a service body closes. Forbidden
// namespace use is a syntax error; missing required attributes are recorded
// on the target info and enforced when the program executes.
func (p *parser) validateTargetConstraints(svc *ServiceStatement) error {
	ti := svc.Target
	if ti == nil {
		return nil
	}

	for _, req := range ti.Constraints.RequiredAttributes {
		found := false
		for _, a := range svc.Attributes {
			if a.Name == req {
				found = true
				break
			}
		}
		if !found {
			ti.ValidationErrors = append(ti.ValidationErrors,
				fmt.Sprintf("missing required attribute %s for target %s", req, ti.Target))
		}
	}

	forbidden := ti.Constraints.ForbiddenNamespaces()
	for _, m := range svc.Methods {
		used := map[string]bool{}
		namespacesInBlock(m.Body, used)
		var bad []string
		for ns := range used {
			if forbidden[ns] {
				bad = append(bad, ns)
			}
		}
		if len(bad) > 0 {
			sort.Strings(bad)
			return errNode(m, "method %q uses namespaces forbidden for target %s: %s",
				m.Name, ti.Target, strings.Join(bad, ", "))
		}
	}
	return nil
}

// validateServiceSecurity enforces attribute rules that must hold before a
// service is ever instantiated.
func (p *parser) validateServiceSecurity(svc *ServiceStatement) error {
	var hasTrust, hasChain, hasSecure, hasPublic bool
	for _, a := range svc.Attributes {
		switch a.Name {
		case "@trust":
			hasTrust = true
		case "@chain":
			hasChain = true
		case "@secure":
			hasSecure = true
		case "@public":
			hasPublic = true
		}
	}

	if hasTrust && !hasChain {
		return errNode(svc, "service %q with @trust must also have @chain", svc.Name)
	}
	if hasSecure && hasPublic {
		return errNode(svc, "service %q cannot have both @secure and @public", svc.Name)
	}

	for _, a := range svc.Attributes {
		switch a.Name {
		case "@trust":
			if model, ok := firstStringParam(a); ok && !stringInList(model, validTrustModels) {
				return errNode(svc, "service %q has invalid trust model %q (valid: %s)",
					svc.Name, model, strings.Join(validTrustModels, ", "))
			}
		case "@chain":
			for _, prm := range a.Params {
				s, ok := prm.(*StringLit)
				if !ok {
					continue
				}
				if !stringInList(strings.ToLower(s.Value), validChainNames) {
					return errNode(svc, "service %q has invalid chain identifier %q (valid: %s)",
						svc.Name, s.Value, strings.Join(validChainNames, ", "))
				}
			}
		}
	}

	for _, m := range svc.Methods {
		var mSecure, mPublic bool
		for _, a := range m.Attributes {
			switch a.Name {
			case "@secure":
				mSecure = true
			case "@public":
				mPublic = true
			}
		}
		if mSecure && mPublic {
			return errNode(m, "function %q in service %q cannot have both @secure and @public", m.Name, svc.Name)
		}
	}
	return nil
}

func firstStringParam(a Attribute) (string, bool) {
	if len(a.Params) == 0 {
		return "", false
	}
	s, ok := a.Params[0].(*StringLit)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func stringInList(s string, list []string) bool {
	for _, x := range list {
		if s == x {
			return true
		}
	}
	return false
}

// ─────────────────────────── namespace collection ───────────────────────────

// namespacesInBlock gathers every `ns::fn` namespace referenced anywhere in
// a block, for per-target forbidden-namespace checks.
func namespacesInBlock(b *BlockStatement, out map[string]bool) {
	if b == nil {
		return
	}
	for _, s := range b.Statements {
		namespacesInStatement(s, out)
	}
}

func namespacesInStatement(s Statement, out map[string]bool) {
	switch st := s.(type) {
	case *ExpressionStatement:
		namespacesInExpression(st.Expr, out)
	case *LetStatement:
		namespacesInExpression(st.Value, out)
	case *ReturnStatement:
		namespacesInExpression(st.Value, out)
	case *BlockStatement:
		namespacesInBlock(st, out)
	case *IfStatement:
		namespacesInExpression(st.Condition, out)
		namespacesInBlock(st.Consequence, out)
		namespacesInBlock(st.Alternative, out)
	case *WhileStatement:
		namespacesInExpression(st.Condition, out)
		namespacesInBlock(st.Body, out)
	case *TryStatement:
		namespacesInBlock(st.TryBlock, out)
		for _, cb := range st.CatchBlocks {
			namespacesInBlock(cb.Body, out)
		}
		namespacesInBlock(st.FinallyBlock, out)
	case *ForInStatement:
		namespacesInExpression(st.Iterable, out)
		namespacesInBlock(st.Body, out)
	case *FunctionStatement:
		namespacesInBlock(st.Body, out)
	case *SpawnStatement:
		for _, f := range st.Config {
			namespacesInExpression(f.Value, out)
		}
		namespacesInBlock(st.Body, out)
	case *AgentStatement:
		for _, f := range st.Config {
			namespacesInExpression(f.Value, out)
		}
		namespacesInBlock(st.Body, out)
	case *MessageStatement:
		for _, f := range st.Data {
			namespacesInExpression(f.Value, out)
		}
	case *EventStatement:
		for _, f := range st.Data {
			namespacesInExpression(f.Value, out)
		}
	case *ServiceStatement:
		for _, m := range st.Methods {
			namespacesInBlock(m.Body, out)
		}
	case *BreakStatement:
		namespacesInExpression(st.Value, out)
	case *LoopStatement:
		namespacesInBlock(st.Body, out)
	case *MatchStatement:
		namespacesInExpression(st.Expr, out)
		for _, c := range st.Cases {
			namespacesInBlock(c.Body, out)
			if rp, ok := c.Pattern.(*RangePattern); ok {
				namespacesInExpression(rp.Lo, out)
				namespacesInExpression(rp.Hi, out)
			}
		}
		namespacesInBlock(st.Default, out)
	}
}

func namespacesInExpression(e Expression, out map[string]bool) {
	switch ex := e.(type) {
	case nil:
		return
	case *CallExpr:
		if idx := strings.Index(ex.Name, "::"); idx > 0 {
			out[ex.Name[:idx]] = true
		}
		for _, a := range ex.Args {
			namespacesInExpression(a, out)
		}
	case *BinaryExpr:
		namespacesInExpression(ex.Left, out)
		namespacesInExpression(ex.Right, out)
	case *UnaryExpr:
		namespacesInExpression(ex.Operand, out)
	case *AssignExpr:
		namespacesInExpression(ex.Value, out)
	case *FieldAccess:
		namespacesInExpression(ex.Object, out)
	case *FieldAssign:
		namespacesInExpression(ex.Object, out)
		namespacesInExpression(ex.Value, out)
	case *AwaitExpr:
		namespacesInExpression(ex.Operand, out)
	case *SpawnExpr:
		namespacesInExpression(ex.Operand, out)
	case *ThrowExpr:
		namespacesInExpression(ex.Operand, out)
	case *IndexExpr:
		namespacesInExpression(ex.Object, out)
		namespacesInExpression(ex.Index, out)
	case *ObjectLit:
		for _, f := range ex.Fields {
			namespacesInExpression(f.Value, out)
		}
	case *ArrayLit:
		for _, el := range ex.Elements {
			namespacesInExpression(el, out)
		}
	case *ArrowFunction:
		namespacesInBlock(ex.Body, out)
	case *RangeExpr:
		namespacesInExpression(ex.Start, out)
		namespacesInExpression(ex.End, out)
	}
}

// ──────────────────────────────── expressions ───────────────────────────────

func (p *parser) expression(depth int) (Expression, error) {
	return p.assignment(depth)
}

// assignment handles the lowest precedence level and lowers the three
// assignable shapes: name, object.field, and container[index]. Index writes
// become an __index_assign__ call carrying container, index and value, plus
// the variable name (4th arg) or "" and the field name (4th/5th args) so
// the evaluator can store the updated container back.
func (p *parser) assignment(depth int) (Expression, error) {
	if depth > maxRecursionDepth {
		return nil, errTok(p.peek(), "maximum recursion depth (%d) exceeded in expression", maxRecursionDepth)
	}

	expr, err := p.orExpr(depth)
	if err != nil {
		return nil, err
	}

	if !p.check(ASSIGN) {
		return expr, nil
	}
	eqTok := p.peek()
	p.i++ // consume '='

	value, err := p.assignment(depth + 1)
	if err != nil {
		return nil, err
	}

	switch target := expr.(type) {
	case *Identifier:
		return &AssignExpr{span: spanFromNode(target), Name: target.Name, Value: value}, nil
	case *FieldAccess:
		return &FieldAssign{span: spanFromNode(target), Object: target.Object, Field: target.Field, Value: value}, nil
	case *IndexExpr:
		args := []Expression{target.Object, target.Index, value}
		switch c := target.Object.(type) {
		case *Identifier:
			args = append(args, &StringLit{span: spanFromNode(c), Value: c.Name})
		case *FieldAccess:
			args = append(args,
				&StringLit{span: spanFromNode(c)},
				&StringLit{span: spanFromNode(c), Value: c.Field})
		}
		return &CallExpr{span: spanFromNode(target), Name: "__index_assign__", Args: args}, nil
	default:
		return nil, errTok(eqTok, "invalid assignment target, expected identifier, field access or index access")
	}
}

func (p *parser) orExpr(depth int) (Expression, error) {
	expr, err := p.andExpr(depth)
	if err != nil {
		return nil, err
	}
	for p.check(OROR) {
		p.i++
		right, err := p.andExpr(depth)
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{span: spanFromNode(expr), Left: expr, Op: OROR, Right: right}
	}
	return expr, nil
}

func (p *parser) andExpr(depth int) (Expression, error) {
	expr, err := p.equality(depth)
	if err != nil {
		return nil, err
	}
	for p.check(ANDAND) {
		p.i++
		right, err := p.equality(depth)
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{span: spanFromNode(expr), Left: expr, Op: ANDAND, Right: right}
	}
	return expr, nil
}

func (p *parser) equality(depth int) (Expression, error) {
	expr, err := p.comparison(depth)
	if err != nil {
		return nil, err
	}
	for p.check(EQ) || p.check(NEQ) {
		op := p.peek().Type
		p.i++
		right, err := p.comparison(depth)
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{span: spanFromNode(expr), Left: expr, Op: op, Right: right}
	}
	return expr, nil
}

func (p *parser) comparison(depth int) (Expression, error) {
	expr, err := p.rangeLevel(depth)
	if err != nil {
		return nil, err
	}
	for p.check(LT) || p.check(LTE) || p.check(GT) || p.check(GTE) {
		op := p.peek().Type
		p.i++
		right, err := p.rangeLevel(depth)
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{span: spanFromNode(expr), Left: expr, Op: op, Right: right}
	}
	return expr, nil
}

// rangeLevel parses at most one `..`; ranges do not chain.
func (p *parser) rangeLevel(depth int) (Expression, error) {
	expr, err := p.term(depth)
	if err != nil {
		return nil, err
	}
	if p.match(DOTDOT) {
		end, err := p.term(depth)
		if err != nil {
			return nil, err
		}
		return &RangeExpr{span: spanFromNode(expr), Start: expr, End: end}, nil
	}
	return expr, nil
}

func (p *parser) term(depth int) (Expression, error) {
	expr, err := p.factor(depth)
	if err != nil {
		return nil, err
	}
	for p.check(PLUS) || p.check(MINUS) {
		op := p.peek().Type
		p.i++
		right, err := p.factor(depth)
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{span: spanFromNode(expr), Left: expr, Op: op, Right: right}
	}
	return expr, nil
}

func (p *parser) factor(depth int) (Expression, error) {
	expr, err := p.unary(depth)
	if err != nil {
		return nil, err
	}
	for p.check(STAR) || p.check(SLASH) || p.check(PERCENT) {
		op := p.peek().Type
		p.i++
		right, err := p.unary(depth)
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{span: spanFromNode(expr), Left: expr, Op: op, Right: right}
	}
	return expr, nil
}

func (p *parser) unary(depth int) (Expression, error) {
	tok := p.peek()
	switch tok.Type {
	case SPAWN:
		p.i++
		operand, err := p.unary(depth)
		if err != nil {
			return nil, err
		}
		return &SpawnExpr{span: spanOf(tok), Operand: operand}, nil
	case MINUS, BANG:
		p.i++
		operand, err := p.unary(depth)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{span: spanOf(tok), Op: tok.Type, Operand: operand}, nil
	}

	expr, err := p.primary(depth)
	if err != nil {
		return nil, err
	}
	return p.postfix(expr, depth)
}

// postfix applies chained `[index]` and `.field` operations. A `.field(`
// collapses into a call named after the flattened receiver path; receivers
// deeper than two identifiers flatten to "self".
func (p *parser) postfix(expr Expression, depth int) (Expression, error) {
	for {
		switch {
		case p.match(LSQUARE):
			index, err := p.expression(depth + 1)
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RSQUARE, "expected ']' after index"); err != nil {
				return nil, err
			}
			expr = &IndexExpr{span: spanFromNode(expr), Object: expr, Index: index}

		case p.match(DOT):
			fieldTok, err := p.needName("field name")
			if err != nil {
				return nil, err
			}
			if p.check(LROUND) {
				args, err := p.arguments(depth)
				if err != nil {
					return nil, err
				}
				recv := "self"
				switch r := expr.(type) {
				case *Identifier:
					recv = r.Name
				case *FieldAccess:
					if inner, ok := r.Object.(*Identifier); ok {
						recv = inner.Name + "." + r.Field
					} else {
						recv = "self." + r.Field
					}
				}
				expr = &CallExpr{span: spanFromNode(expr), Name: recv + "." + fieldTok.Lexeme, Args: args}
			} else {
				expr = &FieldAccess{span: spanFromNode(expr), Object: expr, Field: fieldTok.Lexeme}
			}

		default:
			return expr, nil
		}
	}
}

func (p *parser) primary(depth int) (Expression, error) {
	if depth > maxRecursionDepth {
		return nil, errTok(p.peek(), "maximum recursion depth (%d) exceeded in expression", maxRecursionDepth)
	}

	tok := p.peek()
	switch tok.Type {
	case INT, FLOAT, STRING, BOOL, NULL:
		lit, _ := p.literalExpr(tok)
		p.i++
		return lit, nil

	case ID:
		return p.identifierExpr(tok, depth)

	case AWAIT:
		p.i++
		operand, err := p.expression(depth + 1)
		if err != nil {
			return nil, err
		}
		return &AwaitExpr{span: spanOf(tok), Operand: operand}, nil

	case THROW:
		p.i++
		operand, err := p.expression(depth + 1)
		if err != nil {
			return nil, err
		}
		return &ThrowExpr{span: spanOf(tok), Operand: operand}, nil

	case LROUND:
		p.i++
		expr, err := p.expression(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RROUND, "expected ')' after expression"); err != nil {
			return nil, err
		}
		return expr, nil

	case LCURLY:
		fields, err := p.objectFields(depth)
		if err != nil {
			return nil, err
		}
		return &ObjectLit{span: spanOf(tok), Fields: fields}, nil

	case LSQUARE:
		return p.arrayLiteral(depth)

	case BANG:
		// Bare `!(args)` with no macro name.
		p.i++
		if _, err := p.need(LROUND, "expected '(' after '!'"); err != nil {
			return nil, err
		}
		args, err := p.argumentsAfterOpen(depth)
		if err != nil {
			return nil, err
		}
		return &CallExpr{span: spanOf(tok), Name: "macro", Args: args}, nil
	}

	// Keywords double as plain identifiers in expression position
	// (`let x = agent;`). await/throw/spawn were peeled off above.
	if tok.Type.IsKeyword() {
		p.i++
		return &Identifier{span: spanOf(tok), Name: tok.Lexeme}, nil
	}

	return nil, p.unexpected("expression")
}

// identifierExpr parses the grammar headed by an identifier: macro calls
// `name!(...)`, namespace references `ns::name` (call or bare), plain calls,
// and bare names. The lexer guarantees a name directly followed by `::`
// arrives as an identifier token even when it spells a keyword.
func (p *parser) identifierExpr(tok Token, depth int) (Expression, error) {
	name := tok.Lexeme

	// Macro call: vec!(...), map!(...), anything!(...)
	if p.at(1).Type == BANG && p.at(2).Type == LROUND {
		p.i += 3 // consume name, '!', '('
		args, err := p.argumentsAfterOpen(depth)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(name) {
		case "vec":
			return &ArrayLit{span: spanOf(tok), Elements: args}, nil
		case "map":
			if len(args)%2 != 0 {
				return nil, errTok(tok, "map! requires an even number of arguments (key, value pairs)")
			}
			obj := &ObjectLit{span: spanOf(tok)}
			for i := 0; i < len(args); i += 2 {
				key, ok := args[i].(*StringLit)
				if !ok {
					return nil, errTok(tok, "map! keys must be string literals")
				}
				obj.Fields = append(obj.Fields, ObjectField{Key: key.Value, Value: args[i+1]})
			}
			return obj, nil
		default:
			return &CallExpr{span: spanOf(tok), Name: name + "!", Args: args}, nil
		}
	}

	// Namespace reference: ns::name or ns::name(args)
	if p.at(1).Type == COLONCOLON {
		p.i += 2 // consume name and '::'
		memberTok, err := p.needName("namespace member")
		if err != nil {
			return nil, err
		}
		full := name + "::" + memberTok.Lexeme
		if p.check(LROUND) {
			args, err := p.arguments(depth)
			if err != nil {
				return nil, err
			}
			return &CallExpr{span: spanOf(tok), Name: full, Args: args}, nil
		}
		return &Identifier{span: spanOf(tok), Name: full}, nil
	}

	// Plain call: name(args)
	if p.at(1).Type == LROUND {
		p.i++ // consume name
		args, err := p.arguments(depth)
		if err != nil {
			return nil, err
		}
		return &CallExpr{span: spanOf(tok), Name: name, Args: args}, nil
	}

	p.i++ // consume name
	return &Identifier{span: spanOf(tok), Name: name}, nil
}

// arguments parses `(expr, ...)` including the parentheses. A trailing
// `param => { body }` argument becomes an arrow function and must close
// the list.
func (p *parser) arguments(depth int) ([]Expression, error) {
	if _, err := p.need(LROUND, "expected '('"); err != nil {
		return nil, err
	}
	return p.argumentsAfterOpen(depth)
}

func (p *parser) argumentsAfterOpen(depth int) ([]Expression, error) {
	var args []Expression
	if p.match(RROUND) {
		return args, nil
	}
	for {
		arg, err := p.expression(depth + 1)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if id, ok := arg.(*Identifier); ok && p.check(FATARROW) {
			p.i++ // consume '=>'
			body, err := p.block(depth)
			if err != nil {
				return nil, err
			}
			args[len(args)-1] = &ArrowFunction{span: spanFromNode(id), Param: id.Name, Body: body}
			if _, err := p.need(RROUND, "expected ')' after arrow function"); err != nil {
				return nil, err
			}
			return args, nil
		}

		if !p.match(COMMA) {
			break
		}
	}
	if _, err := p.need(RROUND, "expected ')' after arguments"); err != nil {
		return nil, err
	}
	return args, nil
}

// objectFields parses `{ key: expr, ... }` where keys are identifiers or
// string literals. The trailing comma is optional.
func (p *parser) objectFields(depth int) ([]ObjectField, error) {
	if depth > maxRecursionDepth {
		return nil, errTok(p.peek(), "maximum recursion depth (%d) exceeded in object literal", maxRecursionDepth)
	}
	if _, err := p.need(LCURLY, "expected '{'"); err != nil {
		return nil, err
	}

	var fields []ObjectField
	for {
		if p.match(RCURLY) {
			return fields, nil
		}
		if p.atEnd() {
			return nil, errTok(p.peek(), "expected '}' after object literal, got end of input")
		}

		var key string
		switch {
		case p.check(ID):
			key = p.peek().Lexeme
			p.i++
		case p.check(STRING):
			key = p.peek().Literal.(string)
			p.i++
		default:
			return nil, p.unexpected("property key", "'}'")
		}

		if _, err := p.need(COLON, "expected ':' after property key"); err != nil {
			return nil, err
		}
		value, err := p.expression(depth + 1)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ObjectField{Key: key, Value: value})
		p.match(COMMA)
	}
}

// arrayLiteral parses `[ expr, ... ]`. The trailing comma is optional.
func (p *parser) arrayLiteral(depth int) (Expression, error) {
	if depth > maxRecursionDepth {
		return nil, errTok(p.peek(), "maximum recursion depth (%d) exceeded in array literal", maxRecursionDepth)
	}
	open, err := p.need(LSQUARE, "expected '['")
	if err != nil {
		return nil, err
	}

	arr := &ArrayLit{span: spanOf(open)}
	for {
		if p.match(RSQUARE) {
			return arr, nil
		}
		if p.atEnd() {
			return nil, errTok(p.peek(), "expected ']' after array literal, got end of input")
		}
		el, err := p.expression(depth + 1)
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, el)

		if p.match(COMMA) {
			continue
		}
		if p.check(RSQUARE) {
			continue
		}
		return nil, p.unexpected("','", "']'")
	}
}
