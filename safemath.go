// safemath.go: checked arithmetic over runtime values.
//
// Every arithmetic operation the interpreter performs on Int/Float routes
// through these functions. Int paths detect 64-bit overflow and division by
// zero; Float paths reject results that land on ±Inf or NaN. In-range
// results are exact. Mixed Int/Float operands promote to Float.

package serval

import (
	"math"
)

func arithErr(msg string) *RuntimeError {
	return &RuntimeError{Msg: msg}
}

// numericPair extracts both operands as floats when at least one side is a
// Float. ok is false when either side is not numeric.
func numericPair(a, b Value) (x, y float64, isFloat, ok bool) {
	switch {
	case a.Tag == VInt && b.Tag == VInt:
		return 0, 0, false, true
	case a.Tag == VInt && b.Tag == VFloat:
		return float64(a.Data.(int64)), b.Data.(float64), true, true
	case a.Tag == VFloat && b.Tag == VInt:
		return a.Data.(float64), float64(b.Data.(int64)), true, true
	case a.Tag == VFloat && b.Tag == VFloat:
		return a.Data.(float64), b.Data.(float64), true, true
	default:
		return 0, 0, false, false
	}
}

func checkedFloat(res float64, op string) (Value, error) {
	if math.IsInf(res, 0) || math.IsNaN(res) {
		return NullValue, arithErr("float " + op + " out of range")
	}
	return FloatValue(res), nil
}

// SafeAdd adds two numeric values with overflow checking.
func SafeAdd(a, b Value) (Value, error) {
	x, y, isFloat, ok := numericPair(a, b)
	if !ok {
		return NullValue, arithErr("type mismatch in addition: " + a.TypeName() + " + " + b.TypeName())
	}
	if isFloat {
		return checkedFloat(x+y, "addition")
	}
	ai, bi := a.Data.(int64), b.Data.(int64)
	sum := ai + bi
	if (bi > 0 && sum < ai) || (bi < 0 && sum > ai) {
		return NullValue, arithErr("integer overflow in addition")
	}
	return IntValue(sum), nil
}

// SafeSubtract subtracts with underflow checking.
func SafeSubtract(a, b Value) (Value, error) {
	x, y, isFloat, ok := numericPair(a, b)
	if !ok {
		return NullValue, arithErr("type mismatch in subtraction: " + a.TypeName() + " - " + b.TypeName())
	}
	if isFloat {
		return checkedFloat(x-y, "subtraction")
	}
	ai, bi := a.Data.(int64), b.Data.(int64)
	diff := ai - bi
	if (bi < 0 && diff < ai) || (bi > 0 && diff > ai) {
		return NullValue, arithErr("integer underflow in subtraction")
	}
	return IntValue(diff), nil
}

// SafeMultiply multiplies with overflow checking.
func SafeMultiply(a, b Value) (Value, error) {
	x, y, isFloat, ok := numericPair(a, b)
	if !ok {
		return NullValue, arithErr("type mismatch in multiplication: " + a.TypeName() + " * " + b.TypeName())
	}
	if isFloat {
		return checkedFloat(x*y, "multiplication")
	}
	ai, bi := a.Data.(int64), b.Data.(int64)
	if ai == 0 || bi == 0 {
		return IntValue(0), nil
	}
	prod := ai * bi
	if prod/bi != ai || (ai == math.MinInt64 && bi == -1) {
		return NullValue, arithErr("integer overflow in multiplication")
	}
	return IntValue(prod), nil
}

// SafeDivide divides with division-by-zero and overflow checking.
func SafeDivide(a, b Value) (Value, error) {
	x, y, isFloat, ok := numericPair(a, b)
	if !ok {
		return NullValue, arithErr("type mismatch in division: " + a.TypeName() + " / " + b.TypeName())
	}
	if isFloat {
		if y == 0 {
			return NullValue, arithErr("division by zero")
		}
		return checkedFloat(x/y, "division")
	}
	ai, bi := a.Data.(int64), b.Data.(int64)
	if bi == 0 {
		return NullValue, arithErr("division by zero")
	}
	if ai == math.MinInt64 && bi == -1 {
		return NullValue, arithErr("integer overflow in division")
	}
	return IntValue(ai / bi), nil
}

// SafeModulo takes the remainder; zero divisor is an error.
func SafeModulo(a, b Value) (Value, error) {
	x, y, isFloat, ok := numericPair(a, b)
	if !ok {
		return NullValue, arithErr("type mismatch in modulo: " + a.TypeName() + " % " + b.TypeName())
	}
	if isFloat {
		if y == 0 {
			return NullValue, arithErr("division by zero")
		}
		return checkedFloat(math.Mod(x, y), "modulo")
	}
	ai, bi := a.Data.(int64), b.Data.(int64)
	if bi == 0 {
		return NullValue, arithErr("division by zero")
	}
	if ai == math.MinInt64 && bi == -1 {
		return IntValue(0), nil
	}
	return IntValue(ai % bi), nil
}

// SafePower exponentiates. Integer exponents must be in [0, 32]; larger
// exponents are rejected up front as overflow risks.
func SafePower(a, b Value) (Value, error) {
	x, y, isFloat, ok := numericPair(a, b)
	if !ok {
		return NullValue, arithErr("type mismatch in exponentiation: " + a.TypeName() + " ^ " + b.TypeName())
	}
	if isFloat {
		return checkedFloat(math.Pow(x, y), "exponentiation")
	}
	base, exp := a.Data.(int64), b.Data.(int64)
	if exp < 0 {
		return NullValue, arithErr("negative exponent not supported for integers")
	}
	if exp > 32 {
		return NullValue, arithErr("integer overflow in exponentiation")
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		v, err := SafeMultiply(IntValue(result), IntValue(base))
		if err != nil {
			return NullValue, arithErr("integer overflow in exponentiation")
		}
		result = v.Data.(int64)
	}
	return IntValue(result), nil
}

// SafeNegate flips the sign of a numeric value; negating MinInt64 overflows.
func SafeNegate(a Value) (Value, error) {
	switch a.Tag {
	case VInt:
		n := a.Data.(int64)
		if n == math.MinInt64 {
			return NullValue, arithErr("integer overflow in negation")
		}
		return IntValue(-n), nil
	case VFloat:
		return FloatValue(-a.Data.(float64)), nil
	default:
		return NullValue, arithErr("type mismatch in negation: " + a.TypeName())
	}
}
