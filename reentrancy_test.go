// reentrancy_test.go
package serval

import (
	"strings"
	"testing"
)

func Test_Guard_EnterAndRelease(t *testing.T) {
	g := NewReentrancyGuard()
	tok, err := g.Enter("withdraw", "Bank")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if tok.Key() != "Bank::withdraw" {
		t.Fatalf("key %q", tok.Key())
	}
	if !g.IsActive("withdraw", "Bank") {
		t.Fatal("not active after enter")
	}
	tok.Release()
	if g.IsActive("withdraw", "Bank") {
		t.Fatal("still active after release")
	}
}

func Test_Guard_ReentrantCallRejected(t *testing.T) {
	g := NewReentrancyGuard()
	tok, err := g.Enter("withdraw", "Bank")
	if err != nil {
		t.Fatal(err)
	}
	defer tok.Release()

	_, err = g.Enter("withdraw", "Bank")
	if err == nil {
		t.Fatal("re-entry allowed")
	}
	if !strings.Contains(err.Error(), "reentrancy detected in Bank::withdraw") {
		t.Fatalf("err: %v", err)
	}
	if !strings.Contains(err.Error(), "Bank::withdraw") {
		t.Fatalf("call stack missing from error: %v", err)
	}
}

func Test_Guard_DistinctKeysIndependent(t *testing.T) {
	g := NewReentrancyGuard()
	t1, err := g.Enter("withdraw", "Bank")
	if err != nil {
		t.Fatal(err)
	}
	// Same function on a different contract, and a different function on the
	// same contract, both proceed.
	t2, err := g.Enter("withdraw", "Exchange")
	if err != nil {
		t.Fatalf("other contract blocked: %v", err)
	}
	t3, err := g.Enter("deposit", "Bank")
	if err != nil {
		t.Fatalf("other function blocked: %v", err)
	}
	t1.Release()
	t2.Release()
	t3.Release()
}

func Test_Guard_UnboundFunctionKey(t *testing.T) {
	g := NewReentrancyGuard()
	tok, err := g.Enter("helper", "")
	if err != nil {
		t.Fatal(err)
	}
	if tok.Key() != "helper" {
		t.Fatalf("key %q", tok.Key())
	}
	tok.Release()
}

func Test_Guard_CallStackTracksNesting(t *testing.T) {
	g := NewReentrancyGuard()
	outer, _ := g.Enter("a", "S")
	inner, _ := g.Enter("b", "S")

	stack := g.CallStack()
	if len(stack) != 2 || stack[0] != "S::a" || stack[1] != "S::b" {
		t.Fatalf("stack %v", stack)
	}

	inner.Release()
	if stack := g.CallStack(); len(stack) != 1 || stack[0] != "S::a" {
		t.Fatalf("stack after inner release %v", stack)
	}
	outer.Release()
	if stack := g.CallStack(); len(stack) != 0 {
		t.Fatalf("stack after outer release %v", stack)
	}
}

func Test_Guard_ReleaseIdempotent(t *testing.T) {
	g := NewReentrancyGuard()
	tok, _ := g.Enter("f", "S")
	tok.Release()
	tok.Release()

	// A fresh call must succeed and a double release must not have freed it.
	tok2, err := g.Enter("f", "S")
	if err != nil {
		t.Fatalf("re-enter after release: %v", err)
	}
	if !g.IsActive("f", "S") {
		t.Fatal("second token not active")
	}
	tok2.Release()
}

func Test_Guard_ReenterAfterRelease(t *testing.T) {
	g := NewReentrancyGuard()
	for i := 0; i < 3; i++ {
		tok, err := g.Enter("transfer", "Bank")
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		tok.Release()
	}
}
