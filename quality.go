package tetra

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Derived per-cell geometric measures. These are ordinary floating point:
// exactness matters only for the sign predicates in package robust.

// tetVolume returns the signed volume of the tetrahedron abcd. Positive for
// a positively oriented vertex tuple.
func tetVolume(a, b, c, d r3.Vec) float64 {
	ad := r3.Sub(a, d)
	bd := r3.Sub(b, d)
	cd := r3.Sub(c, d)
	return r3.Dot(ad, r3.Cross(bd, cd)) / 6
}

// circumsphere returns the circumcenter and circumradius of abcd. For a
// degenerate cell it falls back to the centroid and the largest corner
// distance.
func circumsphere(a, b, c, d r3.Vec) (center r3.Vec, radius float64) {
	ba := r3.Sub(b, a)
	ca := r3.Sub(c, a)
	da := r3.Sub(d, a)
	baLen := r3.Norm2(ba)
	caLen := r3.Norm2(ca)
	daLen := r3.Norm2(da)
	crossCD := r3.Cross(ca, da)
	crossDB := r3.Cross(da, ba)
	crossBC := r3.Cross(ba, ca)
	denom := 2 * r3.Dot(ba, crossCD)
	if math.Abs(denom) < 1e-300 {
		center = r3.Scale(0.25, r3.Add(r3.Add(a, b), r3.Add(c, d)))
		radius = math.Sqrt(math.Max(
			math.Max(r3.Norm2(r3.Sub(center, a)), r3.Norm2(r3.Sub(center, b))),
			math.Max(r3.Norm2(r3.Sub(center, c)), r3.Norm2(r3.Sub(center, d)))))
		return center, radius
	}
	rel := r3.Scale(1/denom, r3.Add(r3.Add(
		r3.Scale(baLen, crossCD),
		r3.Scale(caLen, crossDB)),
		r3.Scale(daLen, crossBC)))
	return r3.Add(a, rel), r3.Norm(rel)
}

// edgePairs lists the six edges of a cell as corner index pairs, with the
// opposite edge at the complementary position: edge i and edge 5-i do not
// share a vertex.
var edgePairs = [6][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}

// edgeExtremes returns the shortest and longest edge lengths of abcd.
func edgeExtremes(a, b, c, d r3.Vec) (min, max float64) {
	p := [4]r3.Vec{a, b, c, d}
	min = math.Inf(1)
	for _, e := range edgePairs {
		l := r3.Norm(r3.Sub(p[e[0]], p[e[1]]))
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
	}
	return min, max
}

// radiusEdgeRatio returns circumradius over shortest edge, the quality
// measure driven to at most MinRatio by refinement.
func radiusEdgeRatio(a, b, c, d r3.Vec) float64 {
	_, r := circumsphere(a, b, c, d)
	min, _ := edgeExtremes(a, b, c, d)
	if min == 0 {
		return math.Inf(1)
	}
	return r / min
}

// dihedralAngles returns the six dihedral angles of abcd in degrees.
func dihedralAngles(a, b, c, d r3.Vec) [6]float64 {
	p := [4]r3.Vec{a, b, c, d}
	var out [6]float64
	for i, e := range edgePairs {
		// The two faces meeting at edge e are spanned with the two
		// remaining corners.
		o := edgePairs[5-i]
		out[i] = dihedral(p[e[0]], p[e[1]], p[o[0]], p[o[1]])
	}
	return out
}

// dihedral returns the angle in degrees between faces (a,b,c) and (a,b,d)
// along their shared edge ab.
func dihedral(a, b, c, d r3.Vec) float64 {
	edge := r3.Sub(b, a)
	n := r3.Norm(edge)
	if n == 0 {
		return 0
	}
	edge = r3.Scale(1/n, edge)
	v1 := r3.Sub(c, a)
	v2 := r3.Sub(d, a)
	v1 = r3.Sub(v1, r3.Scale(r3.Dot(v1, edge), edge))
	v2 = r3.Sub(v2, r3.Scale(r3.Dot(v2, edge), edge))
	n1 := r3.Norm(v1)
	n2 := r3.Norm(v2)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	cos := r3.Dot(v1, v2) / (n1 * n2)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// tetCentroid returns the barycenter of abcd.
func tetCentroid(a, b, c, d r3.Vec) r3.Vec {
	return r3.Scale(0.25, r3.Add(r3.Add(a, b), r3.Add(c, d)))
}

// RadiusEdgeRatio returns circumradius over shortest edge for the
// tetrahedron abcd.
func RadiusEdgeRatio(a, b, c, d r3.Vec) float64 { return radiusEdgeRatio(a, b, c, d) }

// CellVolume returns the unsigned volume of the tetrahedron abcd.
func CellVolume(a, b, c, d r3.Vec) float64 { return math.Abs(tetVolume(a, b, c, d)) }

// Circumcenter returns the circumcenter and circumradius of the
// tetrahedron abcd.
func Circumcenter(a, b, c, d r3.Vec) (r3.Vec, float64) { return circumsphere(a, b, c, d) }

// Dihedrals returns the six dihedral angles of abcd in degrees.
func Dihedrals(a, b, c, d r3.Vec) [6]float64 { return dihedralAngles(a, b, c, d) }

func (m *mesh) tetCorners(t int32) (a, b, c, d r3.Vec) {
	v := &m.tets[t].v
	return m.pos(v[0]), m.pos(v[1]), m.pos(v[2]), m.pos(v[3])
}

func (m *mesh) tetVolumeOf(t int32) float64 {
	a, b, c, d := m.tetCorners(t)
	// The stored tuple is positively oriented, so the signed volume is
	// already positive; Abs guards freshly flipped cells mid-operation.
	return math.Abs(tetVolume(a, b, c, d))
}

func (m *mesh) circumsphereOf(t int32) (r3.Vec, float64) {
	a, b, c, d := m.tetCorners(t)
	return circumsphere(a, b, c, d)
}

func (m *mesh) ratioOf(t int32) float64 {
	a, b, c, d := m.tetCorners(t)
	return radiusEdgeRatio(a, b, c, d)
}
