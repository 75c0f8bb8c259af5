// Package mathtools provides the built-in arithmetic tool set served by the
// Arithmos tool server.
//
// Five tools are exported via [Specs]:
//   - "add"         — exact integer addition.
//   - "divide"      — floating-point division; b = 0 is a domain failure.
//   - "factorial"   — exact integer factorial; negative n is a domain failure.
//   - "multiply"    — exact integer multiplication.
//   - "square_root" — floating-point square root; negative x is a domain failure.
//
// Integer tools share int64 semantics: results that would overflow are
// reported as domain failures rather than wrapping silently. All handlers are
// pure and safe for concurrent use.
package mathtools

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/arithmos/internal/registry"
	"github.com/MrWong99/arithmos/pkg/types"
)

// maxFactorialInput is the largest n for which n! fits in an int64.
const maxFactorialInput = 20

// addHandler implements the "add" tool.
func addHandler(_ context.Context, args map[string]any) (any, error) {
	a, b := args["a"].(int64), args["b"].(int64)
	sum := a + b
	// Two's-complement overflow flips the sign away from both operands.
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum > 0) {
		return nil, fmt.Errorf("mathtools: %d + %d overflows int64", a, b)
	}
	return sum, nil
}

// multiplyHandler implements the "multiply" tool.
func multiplyHandler(_ context.Context, args map[string]any) (any, error) {
	a, b := args["a"].(int64), args["b"].(int64)
	if a == 0 || b == 0 {
		return int64(0), nil
	}
	// The division check below cannot catch MinInt64 * -1: Go defines
	// MinInt64 / -1 as MinInt64, so the round trip looks clean.
	if (a == -1 && b == math.MinInt64) || (a == math.MinInt64 && b == -1) {
		return nil, fmt.Errorf("mathtools: %d * %d overflows int64", a, b)
	}
	product := a * b
	if product/a != b {
		return nil, fmt.Errorf("mathtools: %d * %d overflows int64", a, b)
	}
	return product, nil
}

// divideHandler implements the "divide" tool.
func divideHandler(_ context.Context, args map[string]any) (any, error) {
	a, b := args["a"].(float64), args["b"].(float64)
	if b == 0 {
		return nil, fmt.Errorf("mathtools: division by zero is not allowed")
	}
	return a / b, nil
}

// squareRootHandler implements the "square_root" tool.
func squareRootHandler(_ context.Context, args map[string]any) (any, error) {
	x := args["x"].(float64)
	if x < 0 {
		return nil, fmt.Errorf("mathtools: cannot take the square root of a negative number")
	}
	return math.Sqrt(x), nil
}

// factorialHandler implements the "factorial" tool.
func factorialHandler(_ context.Context, args map[string]any) (any, error) {
	n := args["n"].(int64)
	if n < 0 {
		return nil, fmt.Errorf("mathtools: factorial is not defined for negative numbers")
	}
	if n > maxFactorialInput {
		return nil, fmt.Errorf("mathtools: factorial of %d overflows int64 (maximum input is %d)", n, maxFactorialInput)
	}
	result := int64(1)
	for i := int64(2); i <= n; i++ {
		result *= i
	}
	return result, nil
}

// Specs returns the built-in arithmetic tool specs ready for registration
// with a [registry.Registry].
func Specs() []registry.ToolSpec {
	return []registry.ToolSpec{
		{
			Definition: types.ToolDefinition{
				Name:        "add",
				Description: "Add two integers and return their exact sum.",
				Parameters: []types.ParamSpec{
					{Name: "a", Type: types.TypeInteger, Required: true, Description: "First addend."},
					{Name: "b", Type: types.TypeInteger, Required: true, Description: "Second addend."},
				},
				Returns: types.TypeInteger,
			},
			Handler: addHandler,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "divide",
				Description: "Divide a by b in floating point. Division by zero is an error.",
				Parameters: []types.ParamSpec{
					{Name: "a", Type: types.TypeNumber, Required: true, Description: "Dividend."},
					{Name: "b", Type: types.TypeNumber, Required: true, Description: "Divisor. Must not be zero."},
				},
				Returns: types.TypeNumber,
			},
			Handler: divideHandler,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "factorial",
				Description: "Return the factorial of a non-negative integer n.",
				Parameters: []types.ParamSpec{
					{Name: "n", Type: types.TypeInteger, Required: true, Description: "Non-negative integer input."},
				},
				Returns: types.TypeInteger,
			},
			Handler: factorialHandler,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "multiply",
				Description: "Multiply two integers and return their exact product.",
				Parameters: []types.ParamSpec{
					{Name: "a", Type: types.TypeInteger, Required: true, Description: "First factor."},
					{Name: "b", Type: types.TypeInteger, Required: true, Description: "Second factor."},
				},
				Returns: types.TypeInteger,
			},
			Handler: multiplyHandler,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "square_root",
				Description: "Return the square root of x. Negative inputs are an error.",
				Parameters: []types.ParamSpec{
					{Name: "x", Type: types.TypeNumber, Required: true, Description: "Non-negative number to take the root of."},
				},
				Returns: types.TypeNumber,
			},
			Handler: squareRootHandler,
		},
	}
}
