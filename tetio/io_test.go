package tetio_test

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/soypat/tetra"
	"github.com/soypat/tetra/tetio"
	"gonum.org/v1/gonum/spatial/r3"
)

func meshedCube(t testing.TB) *tetra.IO {
	t.Helper()
	b := tetra.NewBehavior()
	b.Quiet = true
	b.PLC = true
	b.FacesOut = true
	b.EdgesOut = true
	in := &tetra.IO{
		Points: []r3.Vec{
			{}, {X: 1}, {X: 1, Y: 1}, {Y: 1},
			{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1},
		},
		Facets: []tetra.Facet{
			{Polygons: []tetra.Polygon{{Vertices: []int{0, 1, 2, 3}}}, Marker: 1},
			{Polygons: []tetra.Polygon{{Vertices: []int{4, 5, 6, 7}}}, Marker: 2},
			{Polygons: []tetra.Polygon{{Vertices: []int{0, 1, 5, 4}}}, Marker: 3},
			{Polygons: []tetra.Polygon{{Vertices: []int{1, 2, 6, 5}}}, Marker: 4},
			{Polygons: []tetra.Polygon{{Vertices: []int{2, 3, 7, 6}}}, Marker: 5},
			{Polygons: []tetra.Polygon{{Vertices: []int{3, 0, 4, 7}}}, Marker: 6},
		},
	}
	out, err := tetra.Tetrahedralize(b, in, nil)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

// sortedCells canonicalizes a cell list for topology comparison: vertex
// indices sorted within each cell, cells sorted.
func sortedCells(cells [][4]int) [][4]int {
	out := make([][4]int, len(cells))
	for i, c := range cells {
		s := c[:]
		sort.Ints(s)
		copy(out[i][:], s)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < 4; k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}

// TestNodeEleRoundTrip writes a mesh and reads it back; the topology must
// be isomorphic.
func TestNodeEleRoundTrip(t *testing.T) {
	out := meshedCube(t)
	var nodeBuf, eleBuf bytes.Buffer
	if err := tetio.WriteNode(&nodeBuf, out); err != nil {
		t.Fatal(err)
	}
	if err := tetio.WriteEle(&eleBuf, out); err != nil {
		t.Fatal(err)
	}
	back, err := tetio.ReadNode(bytes.NewReader(nodeBuf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if err := tetio.ReadEle(bytes.NewReader(eleBuf.Bytes()), back); err != nil {
		t.Fatal(err)
	}
	if len(back.Points) != len(out.Points) {
		t.Fatalf("point count changed: %d -> %d", len(out.Points), len(back.Points))
	}
	for i := range back.Points {
		if back.Points[i] != out.Points[i] {
			t.Fatalf("point %d changed: %v -> %v", i, out.Points[i], back.Points[i])
		}
	}
	want := sortedCells(out.Tetrahedra)
	got := sortedCells(back.Tetrahedra)
	if len(want) != len(got) {
		t.Fatalf("cell count changed: %d -> %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("cell %d changed: %v -> %v", i, want[i], got[i])
		}
	}
}

func TestReadNodeOneBased(t *testing.T) {
	src := `# four corners
4 3 0 1
1  0 0 0  5
2  1 0 0  5
3  0 1 0  0
4  0 0 1  0
`
	io, err := tetio.ReadNode(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if io.FirstNumber != 1 {
		t.Errorf("FirstNumber = %d, want 1", io.FirstNumber)
	}
	if len(io.Points) != 4 {
		t.Fatalf("got %d points", len(io.Points))
	}
	if io.PointMarkers[0] != 5 || io.PointMarkers[3] != 0 {
		t.Error("markers not read")
	}
}

func TestReadPoly(t *testing.T) {
	src := `# unit square slab
8 3 0 0
0  0 0 0
1  1 0 0
2  1 1 0
3  0 1 0
4  0 0 1
5  1 0 1
6  1 1 1
7  0 1 1
6 1
1 0 1   # bottom
4  0 1 2 3
1 0 2
4  4 5 6 7
1 0 3
4  0 1 5 4
1 0 4
4  1 2 6 5
1 0 5
4  2 3 7 6
1 0 6
4  3 0 4 7
0
0
`
	io, err := tetio.ReadPoly(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(io.Points) != 8 || len(io.Facets) != 6 {
		t.Fatalf("got %d points, %d facets", len(io.Points), len(io.Facets))
	}
	if io.Facets[0].Marker != 1 || io.Facets[5].Marker != 6 {
		t.Error("facet markers not read")
	}
	if got := io.Facets[2].Polygons[0].Vertices; len(got) != 4 || got[0] != 0 || got[3] != 4 {
		t.Errorf("facet polygon read wrong: %v", got)
	}
	// The parsed PLC must mesh.
	b := tetra.NewBehavior()
	b.Quiet = true
	b.PLC = true
	if _, err := tetra.Tetrahedralize(b, io, nil); err != nil {
		t.Fatal(err)
	}
}

func TestReadPolyOneBasedIndices(t *testing.T) {
	src := `4 3 0 0
1  0 0 0
2  1 0 0
3  0 1 0
4  0 0 1
1 0
1 0
3  1 2 3
0
0
`
	io, err := tetio.ReadPoly(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	got := io.Facets[0].Polygons[0].Vertices
	if got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("1-based indices not normalized: %v", got)
	}
}

func TestWriteFaceEdgeVoronoi(t *testing.T) {
	out := meshedCube(t)
	out.VoronoiPoints = []r3.Vec{{X: 0.5, Y: 0.5, Z: 0.5}}
	var buf bytes.Buffer
	if err := tetio.WriteFace(&buf, out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "12 1\n") {
		t.Errorf("face header = %q, want 12 faces with markers", strings.SplitN(buf.String(), "\n", 2)[0])
	}
	buf.Reset()
	if err := tetio.WriteEdge(&buf, out); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := tetio.WriteVoronoiNode(&buf, out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "1 3 0 0\n") {
		t.Errorf("voronoi header = %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
}

func TestVoronoiListingMatchesCircumcenters(t *testing.T) {
	b := tetra.NewBehavior()
	b.Quiet = true
	b.VoroOut = true
	rng := rand.New(rand.NewSource(17))
	pts := make([]r3.Vec, 25)
	for i := range pts {
		pts[i] = r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
	}
	out, err := tetra.Tetrahedralize(b, &tetra.IO{Points: pts}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := tetio.WriteVoronoiNode(&buf, out); err != nil {
		t.Fatal(err)
	}
	back, err := tetio.ReadNode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Points) != len(out.Tetrahedra) {
		t.Fatalf("%d Voronoi vertices for %d cells", len(back.Points), len(out.Tetrahedra))
	}
	for i, c := range out.Tetrahedra {
		center, _ := tetra.Circumcenter(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
		if r3.Norm(r3.Sub(center, back.Points[i])) > 1e-9 {
			t.Fatalf("Voronoi vertex %d drifted through the file round trip", i)
		}
	}
}

func TestZeroIndexOutput(t *testing.T) {
	out := meshedCube(t)
	out.FirstNumber = 0
	var buf bytes.Buffer
	if err := tetio.WriteEle(&buf, out); err != nil {
		t.Fatal(err)
	}
	first := strings.SplitN(buf.String(), "\n", 3)[1]
	if !strings.HasPrefix(first, "0 ") {
		t.Errorf("zero-based .ele must start cells at 0, got line %q", first)
	}
}

func TestHistogram(t *testing.T) {
	out := meshedCube(t)
	vals := tetio.RatioValues(out)
	if len(vals) != len(out.Tetrahedra) {
		t.Fatalf("got %d ratio values", len(vals))
	}
	for _, v := range vals {
		if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			t.Fatalf("bad ratio value %g", v)
		}
	}
	dir := t.TempDir()
	if err := tetio.SaveHistogram(vals, 8, "radius-edge ratio", dir+"/ratio.svg"); err != nil {
		t.Fatal(err)
	}
	if err := tetio.SaveHistogram(tetio.DihedralValues(out), 18, "dihedral angles", dir+"/dihedral.svg"); err != nil {
		t.Fatal(err)
	}
}
