// errors.go: runtime error types and caret-snippet rendering
//
// The lexer and parser define their own error types (*LexError in lexer.go,
// *ParseError in parser.go); this file holds the evaluation-side errors and
// the shared renderer that turns any of them into a readable snippet with a
// caret pointing at the offending column:
//
//	PARSE ERROR at 3:12: expected ')'
//
//	   2 | let x = (1 + 2
//	   3 |              ;
//	       |            ^
//	   4 | let y = 3;
//
// All coordinates are 1-based. Rendering clamps out-of-range positions so a
// bad location never breaks the report. Output is plain text; the CLI adds
// color on top when attached to a terminal.
package serval

import (
	"fmt"
	"strings"
)

// RuntimeError is a failure raised while evaluating a program. Line/Col are
// the position of the node being evaluated, or 0:0 when no node applies.
type RuntimeError struct {
	Line int
	Col  int
	Msg  string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("RUNTIME ERROR at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// runtimeErrf builds a positioned RuntimeError from the node under
// evaluation. node may be nil.
func runtimeErrf(node Node, format string, args ...interface{}) *RuntimeError {
	line, col := 0, 0
	if node != nil {
		line, col = node.Pos()
	}
	return &RuntimeError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

// CallFrameInfo is one call-stack entry attached to a runtime failure.
type CallFrameInfo struct {
	Function string
	Line     int
	Col      int
}

// RuntimeErrorWithContext decorates a RuntimeError with the interpreter call
// stack active when the error surfaced. Frames are ordered outermost first.
type RuntimeErrorWithContext struct {
	Err    *RuntimeError
	Frames []CallFrameInfo
}

func (e *RuntimeErrorWithContext) Error() string {
	if len(e.Frames) == 0 {
		return e.Err.Error()
	}
	var b strings.Builder
	b.WriteString(e.Err.Error())
	for i := len(e.Frames) - 1; i >= 0; i-- {
		f := e.Frames[i]
		fmt.Fprintf(&b, "\n  in %s at %d:%d", f.Function, f.Line, f.Col)
	}
	return b.String()
}

func (e *RuntimeErrorWithContext) Unwrap() error { return e.Err }

// ExternalDispatchError reports a capability invocation that failed inside
// its registered handler rather than in the interpreter.
type ExternalDispatchError struct {
	Capability string
	Err        error
}

func (e *ExternalDispatchError) Error() string {
	return fmt.Sprintf("external dispatch %q failed: %v", e.Capability, e.Err)
}

func (e *ExternalDispatchError) Unwrap() error { return e.Err }

/* ===========================
   PUBLIC API
   =========================== */

// WrapErrorWithSource returns an error augmented with a caret-annotated
// snippet of the provided source. It recognizes lex, parse and runtime
// errors and leaves other errors untouched.
func WrapErrorWithSource(err error, src string) error {
	return WrapErrorWithName(err, "", src)
}

// WrapErrorWithName renders like WrapErrorWithSource and names the source
// ("in <name>") when srcName is non-empty.
func WrapErrorWithName(err error, srcName string, src string) error {
	switch e := err.(type) {
	case *LexError:
		return fmt.Errorf("%s", prettyErrorStringLabeled(src, "LEXICAL ERROR", srcName, e.Line, e.Col, e.Msg))
	case *ParseError:
		return fmt.Errorf("%s", prettyErrorStringLabeled(src, "PARSE ERROR", srcName, e.Line, e.Col, e.Msg))
	case *RuntimeError:
		return fmt.Errorf("%s", prettyErrorStringLabeled(src, "RUNTIME ERROR", srcName, e.Line, e.Col, e.Msg))
	case *RuntimeErrorWithContext:
		wrapped := WrapErrorWithName(e.Err, srcName, src)
		if len(e.Frames) == 0 {
			return wrapped
		}
		var b strings.Builder
		b.WriteString(wrapped.Error())
		for i := len(e.Frames) - 1; i >= 0; i-- {
			f := e.Frames[i]
			fmt.Fprintf(&b, "  in %s at %d:%d\n", f.Function, f.Line, f.Col)
		}
		return fmt.Errorf("%s", b.String())
	default:
		return err
	}
}

//// END_OF_PUBLIC

/* ===========================
   PRIVATE: rendering
   =========================== */

// prettyErrorStringLabeled builds a Python-like snippet with a header and a
// caret. It shows at most one previous and one next line when available.
// Coordinates are 1-based and clamped to the source bounds.
func prettyErrorStringLabeled(src, header, name string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	if line > len(lines) {
		line = len(lines)
	}
	lineTxt := lines[line-1]

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n\n", header, name, line, col, msg)
	} else {
		fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	}
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lineTxt)
	caretPad := col - 1
	if caretPad < 0 {
		caretPad = 0
	}
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", caretPad))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
