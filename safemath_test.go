// safemath_test.go
package serval

import (
	"math"
	"strings"
	"testing"
)

func mustMath(t *testing.T, v Value, err error) Value {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected arithmetic error: %v", err)
	}
	return v
}

func mathFails(t *testing.T, _ Value, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing %q, got: %v", substr, err)
	}
}

func Test_SafeMath_AddBoundaries(t *testing.T) {
	v, err := SafeAdd(IntValue(math.MaxInt64-1), IntValue(1))
	v = mustMath(t, v, err)
	if v.Data.(int64) != math.MaxInt64 {
		t.Fatalf("got %v", v)
	}
	v2, err := SafeAdd(IntValue(math.MaxInt64), IntValue(1))
	mathFails(t, v2, err, "integer overflow in addition")
	v3, err := SafeAdd(IntValue(math.MinInt64), IntValue(-1))
	mathFails(t, v3, err, "integer overflow in addition")
}

func Test_SafeMath_SubtractBoundaries(t *testing.T) {
	v, err := SafeSubtract(IntValue(math.MinInt64+1), IntValue(1))
	v = mustMath(t, v, err)
	if v.Data.(int64) != math.MinInt64 {
		t.Fatalf("got %v", v)
	}
	v2, err := SafeSubtract(IntValue(math.MinInt64), IntValue(1))
	mathFails(t, v2, err, "integer underflow in subtraction")
}

func Test_SafeMath_MultiplyBoundaries(t *testing.T) {
	v, err := SafeMultiply(IntValue(1<<31), IntValue(1<<31))
	v = mustMath(t, v, err)
	if v.Data.(int64) != 1<<62 {
		t.Fatalf("got %v", v)
	}
	v2, err := SafeMultiply(IntValue(math.MaxInt64), IntValue(2))
	mathFails(t, v2, err, "integer overflow in multiplication")
	v3, err := SafeMultiply(IntValue(math.MinInt64), IntValue(-1))
	mathFails(t, v3, err, "integer overflow in multiplication")
	zero, err := SafeMultiply(IntValue(0), IntValue(math.MaxInt64))
	zero = mustMath(t, zero, err)
	if zero.Data.(int64) != 0 {
		t.Fatalf("0 * max = %v", zero)
	}
}

func Test_SafeMath_DivideEdges(t *testing.T) {
	v, err := SafeDivide(IntValue(7), IntValue(2))
	v = mustMath(t, v, err)
	if v.Data.(int64) != 3 {
		t.Fatalf("7/2 = %v", v)
	}
	_, err = SafeDivide(IntValue(1), IntValue(0))
	mathFails(t, NullValue, err, "division by zero")
	_, err = SafeDivide(FloatValue(1), FloatValue(0))
	mathFails(t, NullValue, err, "division by zero")
	_, err = SafeDivide(IntValue(math.MinInt64), IntValue(-1))
	mathFails(t, NullValue, err, "integer overflow in division")
}

func Test_SafeMath_ModuloEdges(t *testing.T) {
	v, err := SafeModulo(IntValue(10), IntValue(3))
	v = mustMath(t, v, err)
	if v.Data.(int64) != 1 {
		t.Fatalf("10%%3 = %v", v)
	}
	_, err = SafeModulo(IntValue(1), IntValue(0))
	mathFails(t, NullValue, err, "division by zero")
	// MinInt64 % -1 is defined as 0 rather than trapping.
	z, err := SafeModulo(IntValue(math.MinInt64), IntValue(-1))
	z = mustMath(t, z, err)
	if z.Data.(int64) != 0 {
		t.Fatalf("min %% -1 = %v", z)
	}
}

func Test_SafeMath_PowerRules(t *testing.T) {
	v, err := SafePower(IntValue(2), IntValue(10))
	v = mustMath(t, v, err)
	if v.Data.(int64) != 1024 {
		t.Fatalf("2^10 = %v", v)
	}
	one, err := SafePower(IntValue(7), IntValue(0))
	one = mustMath(t, one, err)
	if one.Data.(int64) != 1 {
		t.Fatalf("7^0 = %v", one)
	}
	_, err = SafePower(IntValue(2), IntValue(-1))
	mathFails(t, NullValue, err, "negative exponent")
	_, err = SafePower(IntValue(2), IntValue(33))
	mathFails(t, NullValue, err, "integer overflow in exponentiation")
	_, err = SafePower(IntValue(10), IntValue(32))
	mathFails(t, NullValue, err, "integer overflow in exponentiation")
}

func Test_SafeMath_NegateEdges(t *testing.T) {
	v, err := SafeNegate(IntValue(5))
	v = mustMath(t, v, err)
	if v.Data.(int64) != -5 {
		t.Fatalf("got %v", v)
	}
	_, err = SafeNegate(IntValue(math.MinInt64))
	mathFails(t, NullValue, err, "integer overflow in negation")
	f, err := SafeNegate(FloatValue(2.5))
	f = mustMath(t, f, err)
	if f.Data.(float64) != -2.5 {
		t.Fatalf("got %v", f)
	}
	_, err = SafeNegate(StringValue("x"))
	mathFails(t, NullValue, err, "type mismatch in negation")
}

func Test_SafeMath_MixedPromotesToFloat(t *testing.T) {
	v, err := SafeAdd(IntValue(1), FloatValue(0.5))
	v = mustMath(t, v, err)
	if v.Tag != VFloat || v.Data.(float64) != 1.5 {
		t.Fatalf("got %v", v)
	}
	v, err = SafeMultiply(FloatValue(2.5), IntValue(4))
	v = mustMath(t, v, err)
	if v.Tag != VFloat || v.Data.(float64) != 10 {
		t.Fatalf("got %v", v)
	}
}

func Test_SafeMath_FloatOverflowRejected(t *testing.T) {
	_, err := SafeMultiply(FloatValue(math.MaxFloat64), FloatValue(2))
	mathFails(t, NullValue, err, "float multiplication out of range")
	_, err = SafeAdd(FloatValue(math.MaxFloat64), FloatValue(math.MaxFloat64))
	mathFails(t, NullValue, err, "float addition out of range")
}

func Test_SafeMath_TypeMismatch(t *testing.T) {
	_, err := SafeAdd(StringValue("a"), IntValue(1))
	mathFails(t, NullValue, err, "type mismatch in addition")
	_, err = SafeDivide(BoolValue(true), IntValue(1))
	mathFails(t, NullValue, err, "type mismatch in division")
}
