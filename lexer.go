// lexer.go: byte scanner turning source text into the token stream.

package serval

import (
	"fmt"
	"strconv"
)

// Hard limits guarding the scanner against hostile input.
const (
	maxSourceBytes = 10 * 1024 * 1024
	maxTokens      = 1_000_000
)

// Lexer scans a Serval source string into tokens.
type Lexer struct {
	src   string
	start int // start index of current token
	cur   int // current index
	line  int // 1-based
	col   int // 1-based column of the next unread byte

	tokens []Token

	// precise token start position
	tokStartLine int
	tokStartCol  int
}

// NewLexer creates a new lexer for the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{
		src:  src,
		line: 1,
		col:  1,
	}
}

// Tokenize scans src in one call and returns the full token stream, EOF
// token included.
func Tokenize(src string) ([]Token, error) {
	return NewLexer(src).Scan()
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	return l.src[l.cur], true
}

func (l *Lexer) peekN(n int) (byte, bool) {
	idx := l.cur + n
	if idx >= len(l.src) {
		return 0, false
	}
	return l.src[idx], true
}

func (l *Lexer) advance() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch, true
}

func (l *Lexer) rewindToStart() {
	l.cur = l.start
	l.line = l.tokStartLine
	l.col = l.tokStartCol
}

func (l *Lexer) addToken(tt TokenType, lit interface{}) Token {
	lex := l.src[l.start:l.cur]
	tok := Token{
		Type:    tt,
		Lexeme:  lex,
		Literal: lit,
		Line:    l.tokStartLine,
		Col:     l.tokStartCol,
	}
	l.tokens = append(l.tokens, tok)
	l.start = l.cur
	return tok
}

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() {
		ch, _ := l.peek()
		switch ch {
		case ' ', '\r', '\n', '\t':
			l.advance()
			l.start = l.cur
		default:
			return
		}
	}
}

// helpers

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool {
	// '$' is a legal identifier byte (placeholder names in query strings).
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_' || b == '$'
}
func isAlphaNum(b byte) bool { return isAlpha(b) || isDigit(b) }

// ----- errors -----

type LexError struct {
	Line int
	Col  int
	Msg  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("LEXICAL ERROR at %d:%d: %s", e.Line, e.Col, e.Msg)
}

func (l *Lexer) err(msg string) error {
	return &LexError{Line: l.line, Col: l.col, Msg: msg}
}

// ----- scanners -----

// scanString decodes a double-quoted literal. Recognized escapes are \n \r
// \t \" and \\; any other escaped byte passes through unchanged. Raw
// newlines are legal inside a string.
func (l *Lexer) scanString() (string, error) {
	l.advance() // opening quote

	var out []byte
	for !l.isAtEnd() {
		ch, _ := l.advance()
		if ch == '"' {
			return string(out), nil
		}
		if ch == '\\' {
			esc, ok := l.advance()
			if !ok {
				break
			}
			switch esc {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, esc)
			}
			continue
		}
		out = append(out, ch)
	}
	return "", l.err("string was not terminated")
}

// scanIdentifier parses [A-Za-z_$][A-Za-z0-9_$]*
func (l *Lexer) scanIdentifier() string {
	for {
		b, ok := l.peek()
		if !ok || !isAlphaNum(b) {
			break
		}
		l.advance()
	}
	return l.src[l.start:l.cur]
}

// scanNumber parses an integer or float literal. A '.' only joins the
// number when a digit follows it, so "1..5" scans as two integers around a
// range operator.
func (l *Lexer) scanNumber() (tok TokenType, lit interface{}, err error) {
	for {
		b, ok := l.peek()
		if !ok || !isDigit(b) {
			break
		}
		l.advance()
	}

	sawDot := false
	if b, ok := l.peek(); ok && b == '.' {
		if b2, ok2 := l.peekN(1); ok2 && isDigit(b2) {
			sawDot = true
			l.advance() // consume '.'
			for {
				b, ok := l.peek()
				if !ok || !isDigit(b) {
					break
				}
				l.advance()
			}
		}
	}

	lex := l.src[l.start:l.cur]
	if sawDot {
		v, convErr := strconv.ParseFloat(lex, 64)
		if convErr != nil {
			return EOF, nil, l.err(fmt.Sprintf("invalid number %q", lex))
		}
		return FLOAT, v, nil
	}
	v, convErr := strconv.ParseInt(lex, 10, 64)
	if convErr != nil {
		return EOF, nil, l.err(fmt.Sprintf("invalid number %q", lex))
	}
	return INT, v, nil
}

// skipComment consumes a '//' line comment or a '/*' block comment. The
// leading '/' is already consumed and the marker byte is next.
func (l *Lexer) skipComment(marker byte) {
	l.advance() // marker byte
	if marker == '/' {
		for {
			b, ok := l.peek()
			if !ok || b == '\n' {
				return
			}
			l.advance()
		}
	}
	// block comment; an unterminated one runs to end of input
	for {
		b, ok := l.peek()
		if !ok {
			return
		}
		if b == '*' {
			if b2, ok2 := l.peekN(1); ok2 && b2 == '/' {
				l.advance()
				l.advance()
				return
			}
		}
		l.advance()
	}
}

// ----- main scanner -----

func (l *Lexer) scanToken() (Token, error) {
	for {
		l.skipWhitespace()
		l.tokStartLine = l.line
		l.tokStartCol = l.col
		l.start = l.cur

		if l.isAtEnd() {
			return l.addToken(EOF, nil), nil
		}
		if len(l.tokens) >= maxTokens {
			return Token{}, l.err(fmt.Sprintf("too many tokens (limit %d)", maxTokens))
		}

		ch, _ := l.advance()

		// Single-char tokens and punctuation
		switch ch {
		case '(':
			return l.addToken(LROUND, nil), nil
		case ')':
			return l.addToken(RROUND, nil), nil
		case '{':
			return l.addToken(LCURLY, nil), nil
		case '}':
			return l.addToken(RCURLY, nil), nil
		case '[':
			return l.addToken(LSQUARE, nil), nil
		case ']':
			return l.addToken(RSQUARE, nil), nil
		case ';':
			return l.addToken(SEMI, nil), nil
		case ',':
			return l.addToken(COMMA, nil), nil
		case '@':
			return l.addToken(AT, nil), nil
		case '?':
			return l.addToken(QUESTION, nil), nil
		case '+':
			return l.addToken(PLUS, nil), nil
		case '*':
			return l.addToken(STAR, nil), nil
		case '%':
			return l.addToken(PERCENT, nil), nil
		}

		// '/' opens a comment or stands alone as division.
		if ch == '/' {
			if b, ok := l.peek(); ok && (b == '/' || b == '*') {
				l.skipComment(b)
				continue
			}
			return l.addToken(SLASH, nil), nil
		}

		// Two-char operators, matched greedily
		switch ch {
		case '-':
			if b, ok := l.peek(); ok && b == '>' {
				l.advance()
				return l.addToken(ARROW, nil), nil
			}
			return l.addToken(MINUS, nil), nil
		case '=':
			if b, ok := l.peek(); ok && b == '>' {
				l.advance()
				return l.addToken(FATARROW, nil), nil
			} else if ok && b == '=' {
				l.advance()
				return l.addToken(EQ, nil), nil
			}
			return l.addToken(ASSIGN, nil), nil
		case '!':
			if b, ok := l.peek(); ok && b == '=' {
				l.advance()
				return l.addToken(NEQ, nil), nil
			}
			return l.addToken(BANG, nil), nil
		case '<':
			if b, ok := l.peek(); ok && b == '=' {
				l.advance()
				return l.addToken(LTE, nil), nil
			}
			return l.addToken(LT, nil), nil
		case '>':
			if b, ok := l.peek(); ok && b == '=' {
				l.advance()
				return l.addToken(GTE, nil), nil
			}
			return l.addToken(GT, nil), nil
		case '&':
			if b, ok := l.peek(); ok && b == '&' {
				l.advance()
				return l.addToken(ANDAND, nil), nil
			}
			return Token{}, l.err("unexpected character '&'")
		case '|':
			if b, ok := l.peek(); ok && b == '|' {
				l.advance()
				return l.addToken(OROR, nil), nil
			}
			return Token{}, l.err("unexpected character '|'")
		case ':':
			if b, ok := l.peek(); ok && b == ':' {
				l.advance()
				return l.addToken(COLONCOLON, nil), nil
			}
			return l.addToken(COLON, nil), nil
		case '.':
			if b, ok := l.peek(); ok && b == '.' {
				l.advance()
				return l.addToken(DOTDOT, nil), nil
			}
			return l.addToken(DOT, nil), nil
		}

		// Strings
		if ch == '"' {
			l.rewindToStart()
			text, err := l.scanString()
			if err != nil {
				return Token{}, err
			}
			return l.addToken(STRING, text), nil
		}

		// Numbers
		if isDigit(ch) {
			l.rewindToStart()
			tt, lit, err := l.scanNumber()
			if err != nil {
				return Token{}, err
			}
			return l.addToken(tt, lit), nil
		}

		// Identifiers, keywords and word literals
		if isAlpha(ch) {
			l.rewindToStart()
			lex := l.scanIdentifier()
			switch lex {
			case "true":
				return l.addToken(BOOL, true), nil
			case "false":
				return l.addToken(BOOL, false), nil
			case "null":
				return l.addToken(NULL, nil), nil
			}
			// A spelling directly followed by "::" names a namespace, so
			// keywords like msg or chain stay identifiers in that position.
			if b, ok := l.peek(); ok && b == ':' {
				if b2, ok2 := l.peekN(1); ok2 && b2 == ':' {
					return l.addToken(ID, lex), nil
				}
			}
			if tt, ok := keywords[lex]; ok {
				return l.addToken(tt, nil), nil
			}
			return l.addToken(ID, lex), nil
		}

		return Token{}, l.err(fmt.Sprintf("unexpected character %q", ch))
	}
}

// Scan tokenizes the entire source and returns tokens (EOF included). Every
// scanned token must move the cursor forward; a pass that makes no progress
// aborts instead of spinning.
func (l *Lexer) Scan() ([]Token, error) {
	maxIterations := 2*len(l.src) + 2
	for iterations := 0; ; iterations++ {
		if iterations > maxIterations {
			return nil, l.err("scanner made no progress")
		}
		before := l.cur
		tok, err := l.scanToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == EOF {
			return l.tokens, nil
		}
		if l.cur <= before {
			return nil, l.err("scanner made no progress")
		}
	}
}
