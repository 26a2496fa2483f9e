package robust

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func TestOrient3Basic(t *testing.T) {
	a := r3.Vec{}
	b := r3.Vec{X: 1}
	c := r3.Vec{Y: 1}
	below := r3.Vec{Z: -1}
	above := r3.Vec{Z: 1}
	if Orient3(a, b, c, below) <= 0 {
		t.Error("point below the ccw plane must be positive")
	}
	if Orient3(a, b, c, above) >= 0 {
		t.Error("point above the ccw plane must be negative")
	}
	if Orient3(a, b, c, r3.Vec{X: 0.3, Y: 0.3}) != 0 {
		t.Error("coplanar point must be exactly zero")
	}
}

func TestOrient3ExactlyZeroOnPlane(t *testing.T) {
	// Awkward coordinates; the third point is the midpoint of the first
	// two, so all four points are exactly coplanar in exact arithmetic
	// even though floating evaluation is noisy.
	a := r3.Vec{X: 0.125, Y: 0.25, Z: 0.5}
	b := r3.Vec{X: 0.625, Y: 0.125, Z: 0.25}
	mid := func(p, q r3.Vec) r3.Vec {
		return r3.Vec{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2, Z: (p.Z + q.Z) / 2}
	}
	c := mid(a, b)
	d := r3.Vec{X: 0.75, Y: 0.875, Z: 0.8125}
	// a, b, c are collinear, so any fourth point is coplanar with them.
	if got := Orient3(a, b, c, d); got != 0 {
		t.Errorf("degenerate tetrahedron must give exactly 0, got %g", got)
	}
}

func TestOrient3Antisymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a := randVec(rng)
		b := randVec(rng)
		c := randVec(rng)
		d := randVec(rng)
		s := sign(Orient3(a, b, c, d))
		if got := sign(Orient3(b, a, c, d)); got != -s {
			t.Fatalf("swap of first pair must flip sign: %d vs %d", s, got)
		}
		if got := sign(Orient3(a, c, b, d)); got != -s {
			t.Fatalf("swap of middle pair must flip sign: %d vs %d", s, got)
		}
		if got := sign(Orient3(b, c, a, d)); got != s {
			t.Fatalf("3-cycle must keep sign: %d vs %d", s, got)
		}
	}
}

func TestOrient3NearDegenerate(t *testing.T) {
	// Sweep a point across a plane in steps of one ulp; the sign sequence
	// must be monotone: negative, zero, positive with no flutter.
	a := r3.Vec{X: 0, Y: 0, Z: 1}
	b := r3.Vec{X: 1, Y: 0, Z: 1}
	c := r3.Vec{X: 0, Y: 1, Z: 1}
	z := 1.0
	for i := -4; i <= 4; i++ {
		zi := z
		for k := 0; k < i; k++ {
			zi = math.Nextafter(zi, 0) // step below the plane
		}
		for k := 0; k < -i; k++ {
			zi = math.Nextafter(zi, 2) // step above the plane
		}
		got := sign(Orient3(a, b, c, r3.Vec{X: 0.25, Y: 0.25, Z: zi}))
		want := 0
		if i > 0 {
			want = 1
		} else if i < 0 {
			want = -1
		}
		if got != want {
			t.Fatalf("ulp offset %d: sign %d, want %d", i, got, want)
		}
	}
}

func TestInSphereBasic(t *testing.T) {
	a := r3.Vec{X: 1}
	b := r3.Vec{X: -1}
	c := r3.Vec{Y: 1}
	d := r3.Vec{Z: 1}
	if Orient3(a, b, c, d) <= 0 {
		t.Fatal("test tetrahedron must be positively oriented")
	}
	if InSphere(a, b, c, d, r3.Vec{}) <= 0 {
		t.Error("center of the unit sphere must be inside")
	}
	if InSphere(a, b, c, d, r3.Vec{X: 2}) >= 0 {
		t.Error("far point must be outside")
	}
	if InSphere(a, b, c, d, r3.Vec{Y: -1}) != 0 {
		t.Error("cospherical point must give exactly zero")
	}
}

func TestInSphereFastExactAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		a, b, c, d, e := randVec(rng), randVec(rng), randVec(rng), randVec(rng), randVec(rng)
		if Orient3(a, b, c, d) <= 0 {
			a, b = b, a
		}
		fast := InSphere(a, b, c, d, e)
		exact := inSphereExact(a, b, c, d, e)
		if sign(fast) != sign(exact) {
			t.Fatalf("fast and exact signs disagree: %g vs %g", fast, exact)
		}
	}
}

func TestOrient3FastExactAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for i := 0; i < 500; i++ {
		a, b, c, d := randVec(rng), randVec(rng), randVec(rng), randVec(rng)
		if sign(Orient3(a, b, c, d)) != sign(orient3Exact(a, b, c, d)) {
			t.Fatalf("fast and exact orientation disagree")
		}
	}
}

func TestInSpherePerturbedNeverZero(t *testing.T) {
	// Octahedron: every five of the six vertices are cospherical.
	pts := []r3.Vec{
		{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
	}
	got := InSpherePerturbed(pts[0], pts[2], pts[4], pts[1], pts[3], 0, 2, 4, 1, 3)
	if got == 0 {
		t.Fatal("perturbed predicate returned zero on a cospherical tie")
	}
	// Determinism.
	for i := 0; i < 10; i++ {
		if InSpherePerturbed(pts[0], pts[2], pts[4], pts[1], pts[3], 0, 2, 4, 1, 3) != got {
			t.Fatal("perturbed predicate is not deterministic")
		}
	}
	// Antisymmetry under a swap of two of the first four arguments.
	swapped := InSpherePerturbed(pts[2], pts[0], pts[4], pts[1], pts[3], 2, 0, 4, 1, 3)
	if sign(swapped) != -sign(got) {
		t.Fatalf("perturbed predicate must be antisymmetric: %g vs %g", got, swapped)
	}
}

func TestInCircleTie(t *testing.T) {
	// Square corners are cocircular.
	a := r2.Vec{X: 0, Y: 0}
	b := r2.Vec{X: 1, Y: 0}
	c := r2.Vec{X: 1, Y: 1}
	d := r2.Vec{X: 0, Y: 1}
	if InCircle(a, b, c, d) != 0 {
		t.Error("cocircular square must give exactly zero")
	}
	if InCircle(a, b, c, r2.Vec{X: 0.5, Y: 0.5}) <= 0 {
		t.Error("square center must be inside")
	}
	if InCircle(a, b, c, r2.Vec{X: 3, Y: 3}) >= 0 {
		t.Error("far point must be outside")
	}
}

func TestOrient2Collinear(t *testing.T) {
	a := r2.Vec{X: 1e20, Y: 1e20}
	b := r2.Vec{X: 2e20, Y: 2e20}
	c := r2.Vec{X: 3e20, Y: 3e20}
	if Orient2(a, b, c) != 0 {
		t.Error("collinear points at large magnitude must give exactly zero")
	}
}

func randVec(rng *rand.Rand) r3.Vec {
	return r3.Vec{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
}

func BenchmarkOrient3(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	p := make([]r3.Vec, 64)
	for i := range p {
		p[i] = randVec(rng)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Orient3(p[i%64], p[(i+1)%64], p[(i+2)%64], p[(i+3)%64])
	}
}

func BenchmarkInSphere(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	p := make([]r3.Vec, 64)
	for i := range p {
		p[i] = randVec(rng)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InSphere(p[i%64], p[(i+1)%64], p[(i+2)%64], p[(i+3)%64], p[(i+4)%64])
	}
}
