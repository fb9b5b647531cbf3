// scope_test.go
package serval

import "testing"

func Test_Scope_DefineAndGet(t *testing.T) {
	sc := NewScope()
	sc.Define("x", IntValue(1))
	v, ok := sc.Get("x")
	if !ok || v.Data.(int64) != 1 {
		t.Fatalf("get x: %v %v", v, ok)
	}
	if _, ok := sc.Get("y"); ok {
		t.Fatal("undefined name resolved")
	}
}

func Test_Scope_ChildFallsBack(t *testing.T) {
	root := NewScope()
	root.Define("x", IntValue(1))
	child := NewChildScope(root)
	v, ok := child.Get("x")
	if !ok || v.Data.(int64) != 1 {
		t.Fatalf("child lookup: %v %v", v, ok)
	}
}

func Test_Scope_ShadowingDoesNotTouchOuter(t *testing.T) {
	root := NewScope()
	root.Define("x", IntValue(1))
	child := NewChildScope(root)
	child.Define("x", IntValue(2))

	v, _ := child.Get("x")
	if v.Data.(int64) != 2 {
		t.Fatalf("shadow read %v", v)
	}
	v, _ = root.Get("x")
	if v.Data.(int64) != 1 {
		t.Fatalf("outer binding clobbered: %v", v)
	}
}

func Test_Scope_AssignReachesOuter(t *testing.T) {
	root := NewScope()
	root.Define("x", IntValue(1))
	child := NewChildScope(root)

	if !child.Assign("x", IntValue(5)) {
		t.Fatal("assign to visible binding failed")
	}
	v, _ := root.Get("x")
	if v.Data.(int64) != 5 {
		t.Fatalf("outer binding not updated: %v", v)
	}
	if child.Assign("ghost", IntValue(1)) {
		t.Fatal("assign to undefined name succeeded")
	}
}

func Test_Scope_GetReturnsClone(t *testing.T) {
	sc := NewScope()
	sc.Define("xs", ListValue([]Value{IntValue(1)}))
	v, _ := sc.Get("xs")
	v.Data.([]Value)[0] = IntValue(99)
	again, _ := sc.Get("xs")
	if again.Data.([]Value)[0].Data.(int64) != 1 {
		t.Fatal("stored binding aliases a fetched value")
	}
}

func Test_Scope_DefineClonesInput(t *testing.T) {
	sc := NewScope()
	xs := ListValue([]Value{IntValue(1)})
	sc.Define("xs", xs)
	xs.Data.([]Value)[0] = IntValue(99)
	v, _ := sc.Get("xs")
	if v.Data.([]Value)[0].Data.(int64) != 1 {
		t.Fatal("stored binding aliases the caller's value")
	}
}

func Test_Scope_NamesAcrossFrames(t *testing.T) {
	root := NewScope()
	root.Define("b", IntValue(1))
	root.Define("a", IntValue(1))
	child := NewChildScope(root)
	child.Define("c", IntValue(1))
	child.Define("a", IntValue(2)) // shadow, listed once

	names := child.Names()
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("names %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names %v, want %v", names, want)
		}
	}
}

func Test_Scope_Has(t *testing.T) {
	root := NewScope()
	root.Define("x", IntValue(1))
	child := NewChildScope(root)
	if !child.Has("x") || child.Has("y") {
		t.Fatal("Has misreports visibility")
	}
}
