// errors_test.go
package serval

import (
	"errors"
	"strings"
	"testing"
)

func mustContain(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("expected output to contain %q\n--- output ---\n%s", sub, s)
	}
}

func Test_Errors_RuntimeErrorFormat(t *testing.T) {
	e := &RuntimeError{Line: 3, Col: 7, Msg: "division by zero"}
	if got := e.Error(); got != "RUNTIME ERROR at 3:7: division by zero" {
		t.Fatalf("got %q", got)
	}
}

func Test_Errors_ContextFramesOrdered(t *testing.T) {
	e := &RuntimeErrorWithContext{
		Err: &RuntimeError{Line: 1, Col: 1, Msg: "boom"},
		Frames: []CallFrameInfo{
			{Function: "outer", Line: 10, Col: 2},
			{Function: "inner", Line: 20, Col: 4},
		},
	}
	out := e.Error()
	mustContain(t, out, "RUNTIME ERROR at 1:1: boom")
	// Innermost frame prints first.
	innerAt := strings.Index(out, "in inner at 20:4")
	outerAt := strings.Index(out, "in outer at 10:2")
	if innerAt < 0 || outerAt < 0 || innerAt > outerAt {
		t.Fatalf("frame order wrong:\n%s", out)
	}
	if !errors.Is(e, e.Err) {
		t.Fatal("context error should unwrap to the inner RuntimeError")
	}
}

func Test_Errors_ContextWithoutFrames(t *testing.T) {
	e := &RuntimeErrorWithContext{Err: &RuntimeError{Line: 2, Col: 5, Msg: "x"}}
	if e.Error() != e.Err.Error() {
		t.Fatalf("got %q", e.Error())
	}
}

func Test_Errors_DispatchErrorWraps(t *testing.T) {
	inner := errors.New("boom")
	e := &ExternalDispatchError{Capability: "web::http_get", Err: inner}
	mustContain(t, e.Error(), `external dispatch "web::http_get" failed`)
	if !errors.Is(e, inner) {
		t.Fatal("dispatch error should unwrap to the handler error")
	}
}

func Test_Errors_WrapParseShowsCaretAndContext(t *testing.T) {
	src := "let x = 1;\nlet y = (1 + ;\nlet z = 3;"
	_, err := ParseSource(src)
	if err == nil {
		t.Fatal("expected parse error")
	}
	out := WrapErrorWithSource(err, src).Error()
	mustContain(t, out, "PARSE ERROR at 2:")
	mustContain(t, out, "   1 | let x = 1;")
	mustContain(t, out, "   2 | let y = (1 + ;")
	mustContain(t, out, "   3 | let z = 3;")
	mustContain(t, out, "^")
}

func Test_Errors_WrapRuntimePointsAtLine(t *testing.T) {
	src := "let a = 10;\nlet b = a / 0;"
	rt := newTestRuntime()
	_, err := rt.ExecuteSource(src)
	if err == nil {
		t.Fatal("expected runtime error")
	}
	out := WrapErrorWithSource(err, src).Error()
	mustContain(t, out, "RUNTIME ERROR at 2:")
	mustContain(t, out, "division by zero")
	mustContain(t, out, "   2 | let b = a / 0;")
}

func Test_Errors_WrapNamedSource(t *testing.T) {
	src := "let y = (1 + ;"
	_, err := ParseSource(src)
	if err == nil {
		t.Fatal("expected parse error")
	}
	out := WrapErrorWithName(err, "wallet.svl", src).Error()
	mustContain(t, out, "PARSE ERROR in wallet.svl at")
}

func Test_Errors_WrapCarriesCallFrames(t *testing.T) {
	src := "fn f() { 1 / 0; }\nf();"
	rt := newTestRuntime()
	_, err := rt.ExecuteSource(src)
	if err == nil {
		t.Fatal("expected runtime error")
	}
	out := WrapErrorWithSource(err, src).Error()
	mustContain(t, out, "division by zero")
	mustContain(t, out, "in f at")
}

func Test_Errors_WrapClampsBadPositions(t *testing.T) {
	// A position past the end of the source must still render.
	err := &RuntimeError{Line: 99, Col: 99, Msg: "late"}
	out := WrapErrorWithSource(err, "only line").Error()
	mustContain(t, out, "late")
	mustContain(t, out, "only line")
}

func Test_Errors_WrapPassesForeignErrors(t *testing.T) {
	plain := errors.New("not ours")
	if got := WrapErrorWithSource(plain, "src"); got != plain {
		t.Fatalf("foreign error rewritten: %v", got)
	}
}
