package tetra_test

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/soypat/tetra"
	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r3"
)

func quietBehavior() tetra.Behavior {
	b := tetra.NewBehavior()
	b.Quiet = true
	b.DoCheck = true
	return b
}

// TestSingleTetrahedron meshes the four corners of a regular tetrahedron.
func TestSingleTetrahedron(t *testing.T) {
	in := &tetra.IO{Points: []r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0.5, Y: math.Sqrt(3) / 2, Z: 0},
		{X: 0.5, Y: math.Sqrt(3) / 6, Z: math.Sqrt(2.0 / 3.0)},
	}}
	out, err := tetra.Tetrahedralize(quietBehavior(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Points) != 4 {
		t.Fatalf("got %d points, want 4", len(out.Points))
	}
	if len(out.Tetrahedra) != 1 {
		t.Fatalf("got %d tetrahedra, want 1", len(out.Tetrahedra))
	}
	c := out.Tetrahedra[0]
	vol := tetra.CellVolume(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
	if math.Abs(vol-math.Sqrt2/12) > 1e-9 {
		t.Errorf("volume %g, want sqrt(2)/12 = %g", vol, math.Sqrt2/12)
	}
	ratio := tetra.RadiusEdgeRatio(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
	if math.Abs(ratio-math.Sqrt(3.0/8.0)) > 1e-9 {
		t.Errorf("radius-edge ratio %g, want sqrt(3/8) = %g", ratio, math.Sqrt(3.0/8.0))
	}
}

func randomPoints(n int, seed int64) []r3.Vec {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{
			X: rng.Float64()*2 - 1,
			Y: rng.Float64()*2 - 1,
			Z: rng.Float64()*2 - 1,
		}
	}
	return pts
}

// TestDelaunayProperty checks the empty circumsphere property over every
// output cell and vertex.
func TestDelaunayProperty(t *testing.T) {
	in := &tetra.IO{Points: randomPoints(50, 42)}
	out, err := tetra.Tetrahedralize(quietBehavior(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	for ti, c := range out.Tetrahedra {
		a, b, cc, d := out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]]
		for pi, p := range out.Points {
			if pi == c[0] || pi == c[1] || pi == c[2] || pi == c[3] {
				continue
			}
			if robust.InSphere(a, b, cc, d, p) > 0 {
				t.Fatalf("vertex %d strictly inside circumsphere of cell %d", pi, ti)
			}
		}
	}
}

// TestConvexHull compares the boundary triangles of a meshed point cloud
// with a brute-force convex hull, and their volumes.
func TestConvexHull(t *testing.T) {
	pts := randomPoints(20, 7)
	b := quietBehavior()
	b.Convex = true
	b.FacesOut = true
	out, err := tetra.Tetrahedralize(b, &tetra.IO{Points: pts}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Points) != 20 {
		t.Fatalf("got %d points, want 20", len(out.Points))
	}
	want := bruteHullFaces(t, pts)
	got := map[[3]int]bool{}
	for _, f := range out.Faces {
		got[sortedTri(f[0], f[1], f[2])] = true
	}
	if len(got) != len(want) {
		t.Fatalf("got %d boundary faces, want %d", len(got), len(want))
	}
	for f := range want {
		if !got[f] {
			t.Fatalf("hull face %v missing from boundary", f)
		}
	}
	vol := 0.0
	for _, c := range out.Tetrahedra {
		vol += tetra.CellVolume(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
	}
	if math.Abs(vol-bruteHullVolume(pts, want)) > 1e-9 {
		t.Errorf("mesh volume %g differs from hull volume %g", vol, bruteHullVolume(pts, want))
	}
}

// bruteHullFaces finds convex hull facets by testing every vertex triple
// against all remaining points.
func bruteHullFaces(t *testing.T, pts []r3.Vec) map[[3]int]bool {
	t.Helper()
	faces := map[[3]int]bool{}
	n := len(pts)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				pos, neg := 0, 0
				for l := 0; l < n; l++ {
					if l == i || l == j || l == k {
						continue
					}
					s := robust.Orient3(pts[i], pts[j], pts[k], pts[l])
					if s > 0 {
						pos++
					} else if s < 0 {
						neg++
					} else {
						pos, neg = 1, 1 // coplanar spoils the triple
						break
					}
				}
				if pos == 0 || neg == 0 {
					faces[sortedTri(i, j, k)] = true
				}
			}
		}
	}
	return faces
}

func bruteHullVolume(pts []r3.Vec, faces map[[3]int]bool) float64 {
	var c r3.Vec
	for _, p := range pts {
		c = r3.Add(c, p)
	}
	c = r3.Scale(1/float64(len(pts)), c)
	vol := 0.0
	for f := range faces {
		vol += tetra.CellVolume(pts[f[0]], pts[f[1]], pts[f[2]], c)
	}
	return vol
}

func sortedTri(a, b, c int) [3]int {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return [3]int{a, b, c}
}

// TestCosphericalOctahedron triggers in-sphere ties; perturbation must
// yield a valid deterministic triangulation.
func TestCosphericalOctahedron(t *testing.T) {
	pts := []r3.Vec{
		{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
	}
	run := func() *tetra.IO {
		out, err := tetra.Tetrahedralize(quietBehavior(), &tetra.IO{Points: pts}, nil)
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	out1 := run()
	if len(out1.Tetrahedra) != 4 {
		t.Fatalf("got %d tetrahedra, want 4", len(out1.Tetrahedra))
	}
	total := 0.0
	for _, c := range out1.Tetrahedra {
		vol := tetra.CellVolume(out1.Points[c[0]], out1.Points[c[1]], out1.Points[c[2]], out1.Points[c[3]])
		if vol < 1e-12 {
			t.Fatalf("zero-volume cell %v", c)
		}
		total += vol
	}
	if math.Abs(total-4.0/3.0) > 1e-12 {
		t.Errorf("octahedron volume %g, want 4/3", total)
	}
	out2 := run()
	if !reflect.DeepEqual(out1.Tetrahedra, out2.Tetrahedra) || !reflect.DeepEqual(out1.Points, out2.Points) {
		t.Error("two runs over the same input differ")
	}
}

// TestVoronoiDual checks that the .v.node listing is the circumcenters of
// the output cells, in cell order.
func TestVoronoiDual(t *testing.T) {
	b := quietBehavior()
	b.VoroOut = true
	out, err := tetra.Tetrahedralize(b, &tetra.IO{Points: randomPoints(30, 3)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.VoronoiPoints) != len(out.Tetrahedra) {
		t.Fatalf("%d Voronoi vertices for %d cells", len(out.VoronoiPoints), len(out.Tetrahedra))
	}
	for i, c := range out.Tetrahedra {
		center, radius := tetra.Circumcenter(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
		if r3.Norm(r3.Sub(center, out.VoronoiPoints[i])) > 1e-12 {
			t.Fatalf("Voronoi vertex %d is not the circumcenter of cell %d", i, i)
		}
		for corner := 0; corner < 4; corner++ {
			d := r3.Norm(r3.Sub(center, out.Points[c[corner]]))
			if math.Abs(d-radius) > 1e-8*(1+radius) {
				t.Fatalf("circumcenter of cell %d not equidistant from corners", i)
			}
		}
	}
}

func TestDuplicatePointsRejected(t *testing.T) {
	pts := randomPoints(10, 5)
	pts = append(pts, pts[3])
	_, err := tetra.Tetrahedralize(quietBehavior(), &tetra.IO{Points: pts}, nil)
	if !errors.Is(err, tetra.ErrCoincident) {
		t.Fatalf("got %v, want ErrCoincident", err)
	}
}

func TestMalformedInput(t *testing.T) {
	b := quietBehavior()
	if _, err := tetra.Tetrahedralize(b, &tetra.IO{Points: randomPoints(3, 1)}, nil); !errors.Is(err, tetra.ErrInput) {
		t.Errorf("3 points: got %v, want ErrInput", err)
	}
	pts := randomPoints(5, 1)
	pts[2].Y = math.NaN()
	if _, err := tetra.Tetrahedralize(b, &tetra.IO{Points: pts}, nil); !errors.Is(err, tetra.ErrInput) {
		t.Errorf("NaN coordinate: got %v, want ErrInput", err)
	}
	if _, err := tetra.Tetrahedralize(b, nil, nil); !errors.Is(err, tetra.ErrInput) {
		t.Errorf("nil input: got %v, want ErrInput", err)
	}
}

func TestCancellation(t *testing.T) {
	b := quietBehavior()
	b.Interrupt = func() bool { return true }
	out, err := tetra.Tetrahedralize(b, &tetra.IO{Points: randomPoints(100, 9)}, nil)
	if !errors.Is(err, tetra.ErrCancelled) {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
	if out != nil {
		t.Error("cancelled run must not return a mesh")
	}
}

func TestAdditionalPoints(t *testing.T) {
	b := quietBehavior()
	b.InsertAddPoints = true
	in := &tetra.IO{Points: randomPoints(12, 21)}
	add := &tetra.IO{Points: []r3.Vec{{X: 0.05, Y: 0.03, Z: 0.01}, {X: -0.2, Y: 0.4, Z: 0.1}}}
	out, err := tetra.Tetrahedralize(b, in, add)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Points) != 14 {
		t.Fatalf("got %d points, want 14", len(out.Points))
	}
}
