package tetra_test

import (
	"errors"
	"math"
	"testing"

	"github.com/soypat/tetra"
)

// maxRatioOf returns the worst radius-edge ratio of the output cells.
func maxRatioOf(out *tetra.IO) float64 {
	worst := 0.0
	for _, c := range out.Tetrahedra {
		r := tetra.RadiusEdgeRatio(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
		if r > worst {
			worst = r
		}
	}
	return worst
}

func totalVolumeOf(out *tetra.IO) float64 {
	total := 0.0
	for _, c := range out.Tetrahedra {
		total += tetra.CellVolume(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
	}
	return total
}

// TestQualityCubeDefaultRatio refines the unit cube to the default bound.
func TestQualityCubeDefaultRatio(t *testing.T) {
	b := quietBehavior()
	b.PLC = true
	b.Quality = true // default MinRatio 2.0
	out, err := tetra.Tetrahedralize(b, cubePLC(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if worst := maxRatioOf(out); worst > b.MinRatio+1e-9 {
		t.Errorf("worst radius-edge ratio %g exceeds bound %g", worst, b.MinRatio)
	}
	if vol := totalVolumeOf(out); math.Abs(vol-1) > 1e-9 {
		t.Errorf("refined cube volume %g, want 1", vol)
	}
	assertFacesOnCube(t, out)
}

// TestQualityCubeTightRatio pushes below sqrt(2), where only the step
// limit guarantees termination. Either the bound is met or the partial
// mesh comes back with ErrQuality; both must keep the boundary intact.
func TestQualityCubeTightRatio(t *testing.T) {
	b := quietBehavior()
	b.PLC = true
	b.Quality = true
	b.MinRatio = 1.2
	out, err := tetra.Tetrahedralize(b, cubePLC(), nil)
	if err != nil && !errors.Is(err, tetra.ErrQuality) {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("quality run must return a mesh even on non-convergence")
	}
	if err == nil {
		if worst := maxRatioOf(out); worst > 1.2+1e-9 {
			t.Errorf("worst radius-edge ratio %g exceeds bound 1.2", worst)
		}
	}
	if vol := totalVolumeOf(out); math.Abs(vol-1) > 1e-9 {
		t.Errorf("refined cube volume %g, want 1", vol)
	}
	assertFacesOnCube(t, out)
}

// assertFacesOnCube checks every boundary triangle still lies on one of
// the cube's six planes: refinement may only add points on the boundary
// features themselves.
func assertFacesOnCube(t *testing.T, out *tetra.IO) {
	t.Helper()
	for _, f := range out.Faces {
		v0, v1, v2 := out.Points[f[0]], out.Points[f[1]], out.Points[f[2]]
		matched := false
		for _, pl := range cubePlanes {
			if onPlane(v0, pl.axis, pl.value, 1e-9) && onPlane(v1, pl.axis, pl.value, 1e-9) && onPlane(v2, pl.axis, pl.value, 1e-9) {
				matched = true
				break
			}
		}
		if !matched {
			t.Fatalf("boundary triangle %v left the cube surface", f)
		}
	}
}

// TestVolumeConstraint bounds every cell volume on the cube.
func TestVolumeConstraint(t *testing.T) {
	b := quietBehavior()
	b.PLC = true
	b.FixedVolume = true
	b.MaxVolume = 0.05
	out, err := tetra.Tetrahedralize(b, cubePLC(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range out.Tetrahedra {
		vol := tetra.CellVolume(out.Points[c[0]], out.Points[c[1]], out.Points[c[2]], out.Points[c[3]])
		if vol > b.MaxVolume+1e-12 {
			t.Fatalf("cell %d volume %g exceeds bound %g", i, vol, b.MaxVolume)
		}
	}
	if vol := totalVolumeOf(out); math.Abs(vol-1) > 1e-9 {
		t.Errorf("total volume %g, want 1", vol)
	}
	if len(out.Tetrahedra) < 20 {
		t.Errorf("volume bound 0.05 should force at least 20 cells, got %d", len(out.Tetrahedra))
	}
}

// TestRefineExistingMesh runs -r style refinement on a previously built
// mesh.
func TestRefineExistingMesh(t *testing.T) {
	b := quietBehavior()
	b.PLC = true
	first, err := tetra.Tetrahedralize(b, cubePLC(), nil)
	if err != nil {
		t.Fatal(err)
	}

	rb := quietBehavior()
	rb.Refine = true
	rb.FixedVolume = true
	rb.MaxVolume = 0.1
	second, err := tetra.Tetrahedralize(rb, &tetra.IO{
		Points:     first.Points,
		Tetrahedra: first.Tetrahedra,
		Faces:      first.Faces,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Tetrahedra) <= len(first.Tetrahedra) {
		t.Errorf("refinement did not subdivide: %d -> %d cells", len(first.Tetrahedra), len(second.Tetrahedra))
	}
	for i, c := range second.Tetrahedra {
		vol := tetra.CellVolume(second.Points[c[0]], second.Points[c[1]], second.Points[c[2]], second.Points[c[3]])
		if vol > rb.MaxVolume+1e-12 {
			t.Fatalf("cell %d volume %g exceeds bound", i, vol)
		}
	}
	if vol := totalVolumeOf(second); math.Abs(vol-1) > 1e-9 {
		t.Errorf("refined volume %g, want 1", vol)
	}
}

// TestStepLimit forces early exhaustion and expects the partial mesh.
func TestStepLimit(t *testing.T) {
	b := quietBehavior()
	b.PLC = true
	b.Quality = true
	b.MinRatio = 0.5 // below the regular tetrahedron's 0.612: unreachable
	b.StepLimit = 3
	out, err := tetra.Tetrahedralize(b, cubePLC(), nil)
	if !errors.Is(err, tetra.ErrQuality) {
		t.Fatalf("got %v, want ErrQuality", err)
	}
	if out == nil || len(out.Tetrahedra) == 0 {
		t.Fatal("non-convergence must still return the best mesh so far")
	}
}
