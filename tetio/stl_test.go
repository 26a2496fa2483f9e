package tetio_test

import (
	"bytes"
	"math"
	"os"
	"testing"

	"github.com/deadsy/sdfx/obj"
	sdfxrender "github.com/deadsy/sdfx/render"
	"github.com/soypat/tetra"
	"github.com/soypat/tetra/tetio"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSTLRoundTrip(t *testing.T) {
	out := meshedCube(t)
	var buf bytes.Buffer
	if err := tetio.WriteSTL(&buf, out); err != nil {
		t.Fatal(err)
	}
	tris, err := tetio.ReadSTL(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != len(out.Faces) {
		t.Fatalf("got %d triangles, want %d", len(tris), len(out.Faces))
	}
	// Total boundary area of the unit cube is 6; float32 storage loses a
	// little precision.
	area := 0.0
	for _, tr := range tris {
		area += 0.5 * r3.Norm(r3.Cross(r3.Sub(tr[1], tr[0]), r3.Sub(tr[2], tr[0])))
	}
	if math.Abs(area-6) > 1e-5 {
		t.Errorf("boundary area %g, want 6", area)
	}
	pts := tetio.STLPoints(tris)
	if len(pts) != 8 {
		t.Errorf("cube surface has %d distinct vertices, want 8", len(pts))
	}
}

func TestSTLRejectsEmpty(t *testing.T) {
	if err := tetio.WriteSTL(&bytes.Buffer{}, &tetra.IO{}); err == nil {
		t.Error("empty mesh must not produce an STL")
	}
	if _, err := tetio.ReadSTL(bytes.NewReader(make([]byte, 84))); err == nil {
		t.Error("zero-triangle STL must be rejected")
	}
}

// BenchmarkRemeshSDFXBolt generates a real model with the sdfx kernel,
// then re-meshes its surface vertex cloud. Mirrors how the sdfx renderer
// is benchmarked against this package's output path.
func BenchmarkRemeshSDFXBolt(b *testing.B) {
	stdout := os.Stdout
	defer func() {
		os.Stdout = stdout // pesky sdfx prints out stuff
	}()
	os.Stdout, _ = os.Open(os.DevNull)
	const output = "sdfx_bolt.stl"
	defer os.Remove(output)
	object, err := obj.Bolt(&obj.BoltParms{
		Thread:      "npt_1/2",
		Style:       "hex",
		Tolerance:   0.1,
		TotalLength: 20,
		ShankLength: 10,
	})
	if err != nil {
		b.Fatal(err)
	}
	sdfxrender.ToSTL(object, 60, output, &sdfxrender.MarchingCubesOctree{})
	tris, err := tetio.ReadSTLFile(output)
	if err != nil {
		b.Fatal(err)
	}
	pts := tetio.STLPoints(tris)
	if len(pts) > 2000 {
		pts = pts[:2000]
	}
	bh := tetra.NewBehavior()
	bh.Quiet = true
	bh.Convex = true
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tetra.Tetrahedralize(bh, &tetra.IO{Points: pts}, nil); err != nil {
			b.Fatal(err)
		}
	}
}
