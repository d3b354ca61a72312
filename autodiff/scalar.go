// Package autodiff provides the numeric representations residual evaluations run on:
// plain floats for diagnostics and tests, and first-order dual numbers ("jets") that
// carry derivatives through the exact same arithmetic used for plain evaluation.
package autodiff

import "math"

// Scalar constrains the numeric types a residual evaluation may be instantiated with.
// Implementations must propagate derivatives (or not) through each operation; callers
// may branch only on Value(), never on derivative content, and only where the
// computation stays continuous across the branch.
type Scalar[T any] interface {
	Add(T) T
	Sub(T) T
	Mul(T) T
	Div(T) T
	Neg() T
	// Scale multiplies by a plain constant, such as an interpolation fraction.
	Scale(c float64) T
	// Const returns a constant of the same shape as the receiver. For jets the
	// shape is the gradient width; the receiver supplies it.
	Const(c float64) T
	Sqrt() T
	Sin() T
	Cos() T
	// Atan2 treats the receiver as y and the argument as x.
	Atan2(x T) T
	Value() float64
}

// Float is the plain float64 Scalar. It carries no derivatives and exists so the
// same generic evaluation can be run cheaply outside the optimizer.
type Float float64

// Add returns f+g.
func (f Float) Add(g Float) Float { return f + g }

// Sub returns f-g.
func (f Float) Sub(g Float) Float { return f - g }

// Mul returns f*g.
func (f Float) Mul(g Float) Float { return f * g }

// Div returns f/g.
func (f Float) Div(g Float) Float { return f / g }

// Neg returns -f.
func (f Float) Neg() Float { return -f }

// Scale returns f*c.
func (f Float) Scale(c float64) Float { return f * Float(c) }

// Const returns c.
func (f Float) Const(c float64) Float { return Float(c) }

// Sqrt returns the square root of f.
func (f Float) Sqrt() Float { return Float(math.Sqrt(float64(f))) }

// Sin returns the sine of f.
func (f Float) Sin() Float { return Float(math.Sin(float64(f))) }

// Cos returns the cosine of f.
func (f Float) Cos() Float { return Float(math.Cos(float64(f))) }

// Atan2 returns atan2(f, x).
func (f Float) Atan2(x Float) Float { return Float(math.Atan2(float64(f), float64(x))) }

// Value returns f as a float64.
func (f Float) Value() float64 { return float64(f) }
