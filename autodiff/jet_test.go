package autodiff

import (
	"math"
	"testing"

	"go.viam.com/test"
)

// numericDerivative computes a central difference of f at x.
func numericDerivative(f func(float64) float64, x float64) float64 {
	const h = 1e-6
	return (f(x+h) - f(x-h)) / (2 * h)
}

func TestFloatArithmetic(t *testing.T) {
	a, b := Float(3), Float(4)
	test.That(t, a.Add(b).Value(), test.ShouldEqual, 7)
	test.That(t, a.Sub(b).Value(), test.ShouldEqual, -1)
	test.That(t, a.Mul(b).Value(), test.ShouldEqual, 12)
	test.That(t, a.Div(b).Value(), test.ShouldEqual, 0.75)
	test.That(t, a.Neg().Value(), test.ShouldEqual, -3)
	test.That(t, a.Scale(2).Value(), test.ShouldEqual, 6)
	test.That(t, a.Const(9.5).Value(), test.ShouldEqual, 9.5)
	test.That(t, b.Sqrt().Value(), test.ShouldEqual, 2)
	test.That(t, Float(0).Sin().Value(), test.ShouldEqual, 0)
	test.That(t, Float(0).Cos().Value(), test.ShouldEqual, 1)
	test.That(t, Float(1).Atan2(Float(1)).Value(), test.ShouldAlmostEqual, math.Pi/4)
}

func TestJetSeeding(t *testing.T) {
	c := NewJet(2.5, 3)
	test.That(t, c.Val, test.ShouldEqual, 2.5)
	test.That(t, c.Grad, test.ShouldResemble, []float64{0, 0, 0})

	v := NewVariable(1.5, 3, 1)
	test.That(t, v.Val, test.ShouldEqual, 1.5)
	test.That(t, v.Grad, test.ShouldResemble, []float64{0, 1, 0})
}

func TestJetChainRule(t *testing.T) {
	// f(x) = x² sin(x); f'(x) = 2x sin(x) + x² cos(x)
	f := func(x float64) float64 { return x * x * math.Sin(x) }
	x := NewVariable(1.3, 1, 0)
	got := x.Mul(x).Mul(x.Sin())
	test.That(t, got.Val, test.ShouldAlmostEqual, f(1.3))
	test.That(t, got.Grad[0], test.ShouldAlmostEqual, numericDerivative(f, 1.3), 1e-6)
}

func TestJetDivision(t *testing.T) {
	// f(x, y) = x/y at (3, 2): ∂f/∂x = 1/y, ∂f/∂y = -x/y²
	x := NewVariable(3, 2, 0)
	y := NewVariable(2, 2, 1)
	got := x.Div(y)
	test.That(t, got.Val, test.ShouldAlmostEqual, 1.5)
	test.That(t, got.Grad[0], test.ShouldAlmostEqual, 0.5)
	test.That(t, got.Grad[1], test.ShouldAlmostEqual, -0.75)
}

func TestJetSqrt(t *testing.T) {
	x := NewVariable(4, 1, 0)
	got := x.Sqrt()
	test.That(t, got.Val, test.ShouldEqual, 2)
	test.That(t, got.Grad[0], test.ShouldAlmostEqual, 0.25)
}

func TestJetTrig(t *testing.T) {
	x := NewVariable(0.7, 1, 0)
	test.That(t, x.Sin().Val, test.ShouldAlmostEqual, math.Sin(0.7))
	test.That(t, x.Sin().Grad[0], test.ShouldAlmostEqual, math.Cos(0.7))
	test.That(t, x.Cos().Val, test.ShouldAlmostEqual, math.Cos(0.7))
	test.That(t, x.Cos().Grad[0], test.ShouldAlmostEqual, -math.Sin(0.7))
}

func TestJetAtan2(t *testing.T) {
	// f(y, x) = atan2(y, x) at (1, 2)
	y := NewVariable(1, 2, 0)
	x := NewVariable(2, 2, 1)
	got := y.Atan2(x)
	test.That(t, got.Val, test.ShouldAlmostEqual, math.Atan2(1, 2))
	test.That(t, got.Grad[0], test.ShouldAlmostEqual, 2.0/5.0) // x/(x²+y²)
	test.That(t, got.Grad[1], test.ShouldAlmostEqual, -1.0/5.0)
}

func TestJetMatchesFloat(t *testing.T) {
	// The same generic expression must produce identical values on both types.
	eval := func(x, y Float) float64 {
		return x.Mul(y).Add(x.Sqrt()).Div(y.Sin().Add(y.Cos())).Value()
	}
	evalJet := func(x, y Jet) float64 {
		return x.Mul(y).Add(x.Sqrt()).Div(y.Sin().Add(y.Cos())).Value()
	}
	xv, yv := 2.25, 0.4
	test.That(t, evalJet(NewVariable(xv, 2, 0), NewVariable(yv, 2, 1)),
		test.ShouldAlmostEqual, eval(Float(xv), Float(yv)))
}
