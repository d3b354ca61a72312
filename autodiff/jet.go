package autodiff

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Jet is a first-order dual number: a value together with its gradient with respect
// to some fixed set of independent variables. Arithmetic on jets applies the chain
// rule alongside the value computation, so evaluating a function on jets yields both
// the function value and one row of its Jacobian.
//
// All jets flowing through a single evaluation must share the same gradient width.
// Operations perform no width checks; mismatches are a programming error in the
// caller, consistent with the rest of the hot numeric path.
type Jet struct {
	Val  float64
	Grad []float64
}

// NewJet returns a constant jet: value c, all derivatives zero.
func NewJet(c float64, n int) Jet {
	return Jet{Val: c, Grad: make([]float64, n)}
}

// NewVariable returns a jet holding the value of the variable occupying the given
// gradient slot, seeded with a unit derivative with respect to itself.
func NewVariable(val float64, n, slot int) Jet {
	g := make([]float64, n)
	g[slot] = 1
	return Jet{Val: val, Grad: g}
}

// Add returns j+k.
func (j Jet) Add(k Jet) Jet {
	g := make([]float64, len(j.Grad))
	floats.AddTo(g, j.Grad, k.Grad)
	return Jet{Val: j.Val + k.Val, Grad: g}
}

// Sub returns j-k.
func (j Jet) Sub(k Jet) Jet {
	g := make([]float64, len(j.Grad))
	floats.SubTo(g, j.Grad, k.Grad)
	return Jet{Val: j.Val - k.Val, Grad: g}
}

// Mul returns j*k, with d(jk) = k dj + j dk.
func (j Jet) Mul(k Jet) Jet {
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, k.Val, j.Grad)
	floats.AddScaledTo(g, g, j.Val, k.Grad)
	return Jet{Val: j.Val * k.Val, Grad: g}
}

// Div returns j/k, with d(j/k) = dj/k - j dk/k².
func (j Jet) Div(k Jet) Jet {
	inv := 1 / k.Val
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, inv, j.Grad)
	floats.AddScaledTo(g, g, -j.Val*inv*inv, k.Grad)
	return Jet{Val: j.Val * inv, Grad: g}
}

// Neg returns -j.
func (j Jet) Neg() Jet {
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, -1, j.Grad)
	return Jet{Val: -j.Val, Grad: g}
}

// Scale returns j*c for a plain constant c.
func (j Jet) Scale(c float64) Jet {
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, c, j.Grad)
	return Jet{Val: j.Val * c, Grad: g}
}

// Const returns a constant jet of the receiver's gradient width.
func (j Jet) Const(c float64) Jet {
	return Jet{Val: c, Grad: make([]float64, len(j.Grad))}
}

// Sqrt returns sqrt(j), with d(sqrt j) = dj/(2 sqrt j).
func (j Jet) Sqrt() Jet {
	s := math.Sqrt(j.Val)
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, 1/(2*s), j.Grad)
	return Jet{Val: s, Grad: g}
}

// Sin returns sin(j).
func (j Jet) Sin() Jet {
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, math.Cos(j.Val), j.Grad)
	return Jet{Val: math.Sin(j.Val), Grad: g}
}

// Cos returns cos(j).
func (j Jet) Cos() Jet {
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, -math.Sin(j.Val), j.Grad)
	return Jet{Val: math.Cos(j.Val), Grad: g}
}

// Atan2 returns atan2(j, x), with derivative (x dj - j dx)/(j² + x²).
func (j Jet) Atan2(x Jet) Jet {
	den := j.Val*j.Val + x.Val*x.Val
	g := make([]float64, len(j.Grad))
	floats.ScaleTo(g, x.Val/den, j.Grad)
	floats.AddScaledTo(g, g, -j.Val/den, x.Grad)
	return Jet{Val: math.Atan2(j.Val, x.Val), Grad: g}
}

// Value returns the value part of the jet.
func (j Jet) Value() float64 { return j.Val }
