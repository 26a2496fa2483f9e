package robust

// Floating-point expansion arithmetic after Shewchuk's "Adaptive Precision
// Floating-Point Arithmetic and Fast Robust Geometric Predicates". An
// expansion is a slice of float64 components sorted by increasing magnitude
// whose exact sum is the represented value. All operations below are exact.

import "math"

const (
	// splitter is 2^ceil(53/2)+1, used to split a float64 into two
	// 26-bit halves for exact multiplication.
	splitter = 1<<27 + 1
	// epsilon is the rounding unit 2^-53.
	epsilon = 0x1p-53
)

// Forward error bounds for the single-evaluation fast paths. A determinant
// whose magnitude exceeds bound*permanent has a trustworthy sign.
var (
	resultErrBound = (3 + 8*epsilon) * epsilon
	ccwErrBoundA   = (3 + 16*epsilon) * epsilon
	o3dErrBoundA   = (7 + 56*epsilon) * epsilon
	iccErrBoundA   = (10 + 96*epsilon) * epsilon
	ispErrBoundA   = (16 + 224*epsilon) * epsilon
)

// twoSum returns x+y = a+b exactly, with x the rounded sum and y the
// roundoff term.
func twoSum(a, b float64) (x, y float64) {
	x = a + b
	bv := x - a
	av := x - bv
	br := b - bv
	ar := a - av
	return x, ar + br
}

// twoDiff returns x+y = a-b exactly.
func twoDiff(a, b float64) (x, y float64) {
	x = a - b
	bv := a - x
	av := x + bv
	br := bv - b
	ar := a - av
	return x, ar + br
}

// split returns hi+lo = a with both halves representable in 26 bits.
func split(a float64) (hi, lo float64) {
	c := splitter * a
	abig := c - a
	hi = c - abig
	return hi, a - hi
}

// twoProduct returns x+y = a*b exactly.
func twoProduct(a, b float64) (x, y float64) {
	x = a * b
	ahi, alo := split(a)
	bhi, blo := split(b)
	err1 := x - ahi*bhi
	err2 := err1 - alo*bhi
	err3 := err2 - ahi*blo
	return x, alo*blo - err3
}

// square returns x+y = a*a exactly. Slightly cheaper than twoProduct.
func square(a float64) (x, y float64) {
	x = a * a
	hi, lo := split(a)
	err1 := x - hi*hi
	err3 := err1 - (hi+hi)*lo
	return x, lo*lo - err3
}

// expSum returns the zero-eliminated sum of expansions e and f
// (fast_expansion_sum_zeroelim). The result is a valid expansion.
func expSum(e, f []float64) []float64 {
	if len(e) == 0 {
		return f
	}
	if len(f) == 0 {
		return e
	}
	h := make([]float64, 0, len(e)+len(f))
	var q, qnew, hh float64
	ei, fi := 0, 0
	enow, fnow := e[0], f[0]
	if (fnow > enow) == (fnow > -enow) {
		q = enow
		ei++
	} else {
		q = fnow
		fi++
	}
	if ei < len(e) && fi < len(f) {
		enow, fnow = e[ei], f[fi]
		if (fnow > enow) == (fnow > -enow) {
			qnew, hh = twoSum(enow, q)
			ei++
		} else {
			qnew, hh = twoSum(fnow, q)
			fi++
		}
		q = qnew
		if hh != 0 {
			h = append(h, hh)
		}
		for ei < len(e) && fi < len(f) {
			enow, fnow = e[ei], f[fi]
			if (fnow > enow) == (fnow > -enow) {
				qnew, hh = twoSum(q, enow)
				ei++
			} else {
				qnew, hh = twoSum(q, fnow)
				fi++
			}
			q = qnew
			if hh != 0 {
				h = append(h, hh)
			}
		}
	}
	for ei < len(e) {
		qnew, hh = twoSum(q, e[ei])
		ei++
		q = qnew
		if hh != 0 {
			h = append(h, hh)
		}
	}
	for fi < len(f) {
		qnew, hh = twoSum(q, f[fi])
		fi++
		q = qnew
		if hh != 0 {
			h = append(h, hh)
		}
	}
	if q != 0 || len(h) == 0 {
		h = append(h, q)
	}
	return h
}

// expScale returns the zero-eliminated product of expansion e by scalar b
// (scale_expansion_zeroelim).
func expScale(e []float64, b float64) []float64 {
	if len(e) == 0 || b == 0 {
		return []float64{0}
	}
	h := make([]float64, 0, 2*len(e))
	q, hh := twoProduct(e[0], b)
	if hh != 0 {
		h = append(h, hh)
	}
	for i := 1; i < len(e); i++ {
		t1, t0 := twoProduct(e[i], b)
		sum, hh := twoSum(q, t0)
		if hh != 0 {
			h = append(h, hh)
		}
		q, hh = twoSum(t1, sum)
		if hh != 0 {
			h = append(h, hh)
		}
	}
	if q != 0 || len(h) == 0 {
		h = append(h, q)
	}
	return h
}

// expNeg negates e into a fresh expansion.
func expNeg(e []float64) []float64 {
	h := make([]float64, len(e))
	for i, v := range e {
		h[i] = -v
	}
	return h
}

// expApprox returns a float64 approximation of e. For a zero-eliminated
// expansion the sign of the last (largest) component is the sign of the sum.
func expApprox(e []float64) float64 {
	var s float64
	for _, v := range e {
		s += v
	}
	return s
}

// expSign returns the sign of the exact value of expansion e.
func expSign(e []float64) float64 {
	if len(e) == 0 {
		return 0
	}
	return e[len(e)-1]
}

// twoTwoDiff returns the 4-component expansion of (a1+a0)-(b1+b0) where
// (a1,a0) and (b1,b0) are two-component expansions.
func twoTwoDiff(a1, a0, b1, b0 float64) []float64 {
	var x [4]float64
	i, x0 := twoDiff(a0, b0)
	j, r0 := twoSum(a1, i)
	k, x1 := twoDiff(r0, b1)
	x3, x2 := twoSum(j, k)
	x[0], x[1], x[2], x[3] = x0, x1, x2, x3
	// Zero elimination keeps downstream sums short.
	h := make([]float64, 0, 4)
	for _, v := range x {
		if v != 0 {
			h = append(h, v)
		}
	}
	if len(h) == 0 {
		h = append(h, 0)
	}
	return h
}

// crossExpansion returns the exact expansion of ax*by - bx*ay.
func crossExpansion(ax, ay, bx, by float64) []float64 {
	p1, p0 := twoProduct(ax, by)
	q1, q0 := twoProduct(bx, ay)
	return twoTwoDiff(p1, p0, q1, q0)
}

func abs(a float64) float64 { return math.Abs(a) }
