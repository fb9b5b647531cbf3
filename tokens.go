// tokens.go: token model shared by the lexer and parser.

package serval

import "fmt"

// TokenType tags every token the lexer can emit.
type TokenType int

const (
	EOF TokenType = iota

	// Literals and names
	ID
	INT
	FLOAT
	STRING
	BOOL
	NULL

	// Keywords
	LET
	FN
	RETURN
	IF
	ELSE
	WHILE
	FOR
	IN
	TRY
	CATCH
	FINALLY
	THROW
	SPAWN
	AGENT
	MSG
	EVENT
	SERVICE
	MATCH
	DEFAULT
	BREAK
	CONTINUE
	LOOP
	AWAIT
	ASYNC
	IMPORT
	EXPORT
	AS
	WITH
	MUT
	STRUCT
	ENUM
	PUB
	PRIVATE
	SECURE
	TRUST
	CHAIN
	COMPILETARGET
	TXN
	LIMIT
	AUDIT
	INTERFACE
	AI
	MOBILE
	DESKTOP
	IOT
	PERSISTENT
	CACHED
	VERSIONED
	DEPRECATED

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	ASSIGN
	EQ
	NEQ
	LT
	LTE
	GT
	GTE
	ANDAND
	OROR
	BANG

	// Punctuation
	LROUND
	RROUND
	LCURLY
	RCURLY
	LSQUARE
	RSQUARE
	SEMI
	COLON
	COMMA
	DOT
	DOTDOT
	ARROW
	FATARROW
	AT
	QUESTION
	COLONCOLON
)

// Token is one lexed unit. Literal holds the decoded payload for INT
// (int64), FLOAT (float64), STRING (string) and BOOL (bool); it is nil for
// everything else. Line and Col are 1-based and point at the token's first
// character. Tokens are immutable once produced.
type Token struct {
	Type    TokenType
	Lexeme  string
	Literal interface{}
	Line    int
	Col     int
}

// keywords maps reserved spellings to their token types. true/false/null are
// handled by the identifier scanner directly (they lex as literals, never as
// keywords), and any spelling here followed by "::" lexes as ID instead.
var keywords = map[string]TokenType{
	"let":            LET,
	"fn":             FN,
	"return":         RETURN,
	"if":             IF,
	"else":           ELSE,
	"while":          WHILE,
	"for":            FOR,
	"in":             IN,
	"try":            TRY,
	"catch":          CATCH,
	"finally":        FINALLY,
	"throw":          THROW,
	"spawn":          SPAWN,
	"agent":          AGENT,
	"msg":            MSG,
	"event":          EVENT,
	"service":        SERVICE,
	"match":          MATCH,
	"default":        DEFAULT,
	"break":          BREAK,
	"continue":       CONTINUE,
	"loop":           LOOP,
	"await":          AWAIT,
	"async":          ASYNC,
	"import":         IMPORT,
	"export":         EXPORT,
	"as":             AS,
	"with":           WITH,
	"mut":            MUT,
	"struct":         STRUCT,
	"enum":           ENUM,
	"pub":            PUB,
	"private":        PRIVATE,
	"secure":         SECURE,
	"trust":          TRUST,
	"chain":          CHAIN,
	"compile_target": COMPILETARGET,
	"txn":            TXN,
	"limit":          LIMIT,
	"audit":          AUDIT,
	"interface":      INTERFACE,
	"ai":             AI,
	"mobile":         MOBILE,
	"desktop":        DESKTOP,
	"iot":            IOT,
	"persistent":     PERSISTENT,
	"cached":         CACHED,
	"versioned":      VERSIONED,
	"deprecated":     DEPRECATED,
}

var tokenNames = map[TokenType]string{
	EOF:        "end of input",
	ID:         "identifier",
	INT:        "integer literal",
	FLOAT:      "float literal",
	STRING:     "string literal",
	BOOL:       "boolean literal",
	NULL:       "null",
	PLUS:       "'+'",
	MINUS:      "'-'",
	STAR:       "'*'",
	SLASH:      "'/'",
	PERCENT:    "'%'",
	ASSIGN:     "'='",
	EQ:         "'=='",
	NEQ:        "'!='",
	LT:         "'<'",
	LTE:        "'<='",
	GT:         "'>'",
	GTE:        "'>='",
	ANDAND:     "'&&'",
	OROR:       "'||'",
	BANG:       "'!'",
	LROUND:     "'('",
	RROUND:     "')'",
	LCURLY:     "'{'",
	RCURLY:     "'}'",
	LSQUARE:    "'['",
	RSQUARE:    "']'",
	SEMI:       "';'",
	COLON:      "':'",
	COMMA:      "','",
	DOT:        "'.'",
	DOTDOT:     "'..'",
	ARROW:      "'->'",
	FATARROW:   "'=>'",
	AT:         "'@'",
	QUESTION:   "'?'",
	COLONCOLON: "'::'",
}

// String renders the type for diagnostics: keywords by their spelling,
// everything else by the tokenNames table.
func (t TokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	for spelling, tt := range keywords {
		if tt == t {
			return "'" + spelling + "'"
		}
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// IsKeyword reports whether the type is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= LET && t <= DEPRECATED
}

// describe renders a concrete token for "got X" diagnostics.
func (tok Token) describe() string {
	switch tok.Type {
	case EOF:
		return "end of input"
	case ID, INT, FLOAT, BOOL:
		return fmt.Sprintf("%q", tok.Lexeme)
	case STRING:
		return "string literal"
	default:
		return fmt.Sprintf("%q", tok.Lexeme)
	}
}
