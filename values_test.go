// values_test.go
package serval

import "testing"

func Test_Value_TypeNames(t *testing.T) {
	cases := []struct {
		v    Value
		name string
	}{
		{NullValue, "null"},
		{BoolValue(true), "bool"},
		{IntValue(1), "int"},
		{FloatValue(1.5), "float"},
		{StringValue("s"), "string"},
		{ListValue(nil), "list"},
		{MapValue(nil), "map"},
		{SetValue(nil), "set"},
		{StructValue("Point", nil), "struct"},
		{OkValue(IntValue(1)), "result"},
		{SomeValue(IntValue(1)), "option"},
		{ClosureValue("closure_1"), "closure"},
	}
	for _, c := range cases {
		if got := c.v.TypeName(); got != c.name {
			t.Errorf("TypeName(%v) = %q, want %q", c.v, got, c.name)
		}
	}
}

func Test_Value_CloneIsDeep(t *testing.T) {
	original := MapValue(map[string]Value{
		"xs": ListValue([]Value{IntValue(1), IntValue(2)}),
		"p":  StructValue("Point", map[string]Value{"x": IntValue(3)}),
	})
	copied := original.Clone()

	copied.Data.(map[string]Value)["xs"].Data.([]Value)[0] = IntValue(99)
	copied.Data.(map[string]Value)["p"].Data.(*StructData).Fields["x"] = IntValue(99)

	if original.Data.(map[string]Value)["xs"].Data.([]Value)[0].Data.(int64) != 1 {
		t.Fatal("list element shared between clone and original")
	}
	if original.Data.(map[string]Value)["p"].Data.(*StructData).Fields["x"].Data.(int64) != 3 {
		t.Fatal("struct field shared between clone and original")
	}
}

func Test_Value_CloneResultAndOption(t *testing.T) {
	r := OkValue(ListValue([]Value{IntValue(1)}))
	rc := r.Clone()
	rc.Data.(*ResultData).Value.Data.([]Value)[0] = IntValue(9)
	if r.Data.(*ResultData).Value.Data.([]Value)[0].Data.(int64) != 1 {
		t.Fatal("result payload shared")
	}

	o := SomeValue(MapValue(map[string]Value{"k": IntValue(1)}))
	oc := o.Clone()
	oc.Data.(*OptionData).Value.Data.(map[string]Value)["k"] = IntValue(9)
	if o.Data.(*OptionData).Value.Data.(map[string]Value)["k"].Data.(int64) != 1 {
		t.Fatal("option payload shared")
	}
}

func Test_Value_Truthiness(t *testing.T) {
	truthy := []Value{
		BoolValue(true), IntValue(-1), FloatValue(0.1), StringValue("x"),
		ListValue([]Value{NullValue}), MapValue(map[string]Value{"k": NullValue}),
		StructValue("S", nil), NoneValue, ClosureValue("closure_1"),
	}
	falsy := []Value{
		NullValue, BoolValue(false), IntValue(0), FloatValue(0), StringValue(""),
		ListValue(nil), MapValue(nil),
	}
	for _, v := range truthy {
		if !v.Truthy() {
			t.Errorf("%v should be truthy", v)
		}
	}
	for _, v := range falsy {
		if v.Truthy() {
			t.Errorf("%v should be falsy", v)
		}
	}
}

func Test_Value_EqualsCrossNumeric(t *testing.T) {
	if !IntValue(2).Equals(FloatValue(2)) {
		t.Fatal("2 != 2.0")
	}
	if !FloatValue(2).Equals(IntValue(2)) {
		t.Fatal("2.0 != 2")
	}
	if IntValue(2).Equals(StringValue("2")) {
		t.Fatal("int equal to string")
	}
}

func Test_Value_EqualsContainers(t *testing.T) {
	a := MapValue(map[string]Value{"xs": ListValue([]Value{IntValue(1)})})
	b := MapValue(map[string]Value{"xs": ListValue([]Value{IntValue(1)})})
	if !a.Equals(b) {
		t.Fatal("structurally equal maps reported unequal")
	}
	c := MapValue(map[string]Value{"xs": ListValue([]Value{IntValue(2)})})
	if a.Equals(c) {
		t.Fatal("different maps reported equal")
	}

	s1 := StructValue("Point", map[string]Value{"x": IntValue(1)})
	s2 := StructValue("Point", map[string]Value{"x": IntValue(1)})
	s3 := StructValue("Vec", map[string]Value{"x": IntValue(1)})
	if !s1.Equals(s2) {
		t.Fatal("same-shape structs unequal")
	}
	if s1.Equals(s3) {
		t.Fatal("struct name ignored in comparison")
	}
}

func Test_Value_StringRendering(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{NullValue, "null"},
		{IntValue(42), "42"},
		{FloatValue(2.5), "2.5"},
		{StringValue("plain"), "plain"},
		{ListValue([]Value{IntValue(1), StringValue("a")}), `[1, "a"]`},
		{MapValue(map[string]Value{"b": IntValue(2), "a": IntValue(1)}), "{a: 1, b: 2}"},
		{OkValue(IntValue(5)), "Ok(5)"},
		{ErrValue(StringValue("nope")), `Err("nope")`},
		{SomeValue(IntValue(1)), "Some(1)"},
		{NoneValue, "None"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
