package tetra

import (
	"fmt"
	"math"

	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Facet recovery: once a facet's boundary segments exist as mesh edges,
// triangulate the facet in its own plane and force every triangle of that
// triangulation to appear as a mesh face, by flipping where possible and by
// Steiner points on the facet where not.

type plcFacet struct {
	loops  [][]int32 // vertex loops, mesh indices
	holes  []r3.Vec
	marker int32
	segIDs []int32
	verts  []int32 // every vertex lying on the facet, grown by recovery

	// orthonormal plane frame
	origin r3.Vec
	uax    r3.Vec
	vax    r3.Vec
	normal r3.Vec
	diam   float64
}

func (f *plcFacet) project(p r3.Vec) r2.Vec {
	d := r3.Sub(p, f.origin)
	return r2.Vec{X: r3.Dot(d, f.uax), Y: r3.Dot(d, f.vax)}
}

func (f *plcFacet) unproject(p r2.Vec) r3.Vec {
	return r3.Add(f.origin, r3.Add(r3.Scale(p.X, f.uax), r3.Scale(p.Y, f.vax)))
}

// buildPLC converts input facets to plane frames and the segment set, and
// rejects malformed or degenerate complexes before any recovery work.
// vmap maps input point indices to mesh vertex indices.
func (k *kernel) buildPLC(in *IO, vmap []int32) error {
	m := k.m
	segOf := map[edgeKey]int32{}
	for fi, fc := range in.Facets {
		f := plcFacet{marker: int32(fc.Marker), holes: append([]r3.Vec(nil), fc.Holes...)}
		vset := map[int32]bool{}
		for pi, poly := range fc.Polygons {
			if len(poly.Vertices) < 3 {
				return fmt.Errorf("%w: facet %d polygon %d has fewer than 3 vertices", ErrInput, fi, pi)
			}
			loop := make([]int32, 0, len(poly.Vertices))
			for _, iv := range poly.Vertices {
				if iv < 0 || iv >= len(vmap) {
					return fmt.Errorf("%w: facet %d references vertex %d", ErrInput, fi, iv)
				}
				loop = append(loop, vmap[iv])
			}
			distinct := map[int32]bool{}
			for _, v := range loop {
				distinct[v] = true
			}
			if len(distinct) < 3 {
				return fmt.Errorf("%w: facet %d polygon %d has fewer than 3 distinct vertices", ErrInput, fi, pi)
			}
			f.loops = append(f.loops, loop)
			for _, v := range loop {
				vset[v] = true
			}
		}
		if err := k.fitPlane(&f, fi); err != nil {
			return err
		}
		for v := range vset {
			f.verts = append(f.verts, v)
			m.verts[v].facets = append(m.verts[v].facets, int32(fi))
		}
		sortInt32(f.verts)
		// Every polygon boundary edge is a PLC segment.
		for _, loop := range f.loops {
			n := len(loop)
			for i := 0; i < n; i++ {
				u, v := loop[i], loop[(i+1)%n]
				if u == v {
					continue
				}
				key := makeEdgeKey(u, v)
				si, ok := segOf[key]
				if !ok {
					si = int32(len(m.segs))
					m.segs = append(m.segs, segmentInfo{u: key[0], v: key[1], marker: f.marker})
					segOf[key] = si
					m.verts[u].seg = si
					m.verts[v].seg = si
				}
				seg := &m.segs[si]
				if !containsInt32(seg.facets, int32(fi)) {
					seg.facets = append(seg.facets, int32(fi))
				}
				if !containsInt32(f.segIDs, si) {
					f.segIDs = append(f.segIDs, si)
				}
			}
		}
		k.facets = append(k.facets, f)
		m.facetMarkers = append(m.facetMarkers, f.marker)
	}
	return nil
}

// fitPlane computes the facet frame with Newell's method over the first
// loop and verifies all loop vertices lie on the plane within tolerance,
// scaled by the largest vertex distance from the centroid (at least 1).
func (k *kernel) fitPlane(f *plcFacet, fi int) error {
	m := k.m
	var n r3.Vec
	var centroid r3.Vec
	count := 0
	for _, loop := range f.loops {
		for i := range loop {
			p := m.pos(loop[i])
			q := m.pos(loop[(i+1)%len(loop)])
			n = r3.Add(n, r3.Vec{
				X: (p.Y - q.Y) * (p.Z + q.Z),
				Y: (p.Z - q.Z) * (p.X + q.X),
				Z: (p.X - q.X) * (p.Y + q.Y),
			})
			centroid = r3.Add(centroid, p)
			count++
		}
		break // the first loop defines the plane
	}
	if r3.Norm(n) == 0 {
		return fmt.Errorf("%w: facet %d is collinear", ErrDegenerate, fi)
	}
	f.normal = r3.Unit(n)
	f.origin = r3.Scale(1/float64(count), centroid)
	// Any vector orthogonal to the normal works as the first axis.
	ref := r3.Vec{X: 1}
	if math.Abs(f.normal.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	f.uax = r3.Unit(r3.Cross(f.normal, ref))
	f.vax = r3.Cross(f.normal, f.uax)

	diam := 0.0
	for _, loop := range f.loops {
		for _, v := range loop {
			d := r3.Norm(r3.Sub(m.pos(v), f.origin))
			if d > diam {
				diam = d
			}
		}
	}
	f.diam = diam
	tol := k.b.Tolerance * math.Max(diam, 1)
	for _, loop := range f.loops {
		for _, v := range loop {
			if math.Abs(r3.Dot(r3.Sub(m.pos(v), f.origin), f.normal)) > tol {
				return fmt.Errorf("%w: facet %d vertex %d is off plane", ErrDegenerate, fi, v)
			}
		}
	}
	return nil
}

// facetPasses bounds recovery rounds per facet on top of the global
// Steiner budget.
const facetPasses = 512

func (k *kernel) recoverFacets() error {
	for fi := range k.facets {
		if k.b.Interrupt != nil && k.b.Interrupt() {
			return ErrCancelled
		}
		if err := k.recoverFacet(int32(fi)); err != nil {
			return err
		}
	}
	k.dropStaleSubfaces()
	return nil
}

func (k *kernel) recoverFacet(fi int32) error {
	m := k.m
	f := &k.facets[fi]
	for pass := 0; pass < facetPasses; pass++ {
		target := k.facetTriangulation(f)
		if len(target) == 0 {
			return nil
		}
		targetArea := 0.0
		for _, tr := range target {
			targetArea += triArea2(f.project(m.pos(tr.a)), f.project(m.pos(tr.b)), f.project(m.pos(tr.c)))
		}
		// The mesh may already tile the facet with a different diagonal
		// choice than the plane triangulation (cocircular ties break
		// independently in 2D and 3D). Any complete tiling by mesh faces
		// is a recovery, so compare covered area, not triangle identity.
		cand, candArea := k.facesOnFacet(f, target)
		if candArea >= targetArea*(1-1e-9) && targetArea > 0 {
			for _, key := range cand {
				m.subfaces[key] = subface{facet: fi, marker: f.marker}
			}
			return nil
		}
		missing := target[0]
		for _, tr := range target {
			if _, _, ok := m.faceExists(tr.a, tr.b, tr.c); !ok {
				missing = tr
				break
			}
		}
		if k.tryFaceFlips(missing.a, missing.b, missing.c) {
			continue
		}
		if err := k.steinerOnFacet(fi, missing); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: facet %d not recovered after %d passes", ErrRecovery, fi, facetPasses)
}

// facesOnFacet returns the mesh faces whose corners all lie on the facet
// and whose centroid falls inside the facet region described by target,
// along with their total projected area.
func (k *kernel) facesOnFacet(f *plcFacet, target []tri2) ([]triKey, float64) {
	m := k.m
	onFacet := make(map[int32]bool, len(f.verts))
	for _, v := range f.verts {
		onFacet[v] = true
	}
	seen := map[triKey]bool{}
	var keys []triKey
	area := 0.0
	for _, v := range f.verts {
		for _, t := range m.incidentTets(v, nil) {
			for i := 0; i < 4; i++ {
				tri := m.faceTriple(t, i)
				if !onFacet[tri[0]] || !onFacet[tri[1]] || !onFacet[tri[2]] {
					continue
				}
				key := makeTriKey(tri[0], tri[1], tri[2])
				if seen[key] {
					continue
				}
				seen[key] = true
				a2 := f.project(m.pos(tri[0]))
				b2 := f.project(m.pos(tri[1]))
				c2 := f.project(m.pos(tri[2]))
				cen := r2.Vec{X: (a2.X + b2.X + c2.X) / 3, Y: (a2.Y + b2.Y + c2.Y) / 3}
				if !pointInTris2(k, f, cen, target) {
					continue
				}
				keys = append(keys, key)
				area += triArea2(a2, b2, c2)
			}
		}
	}
	return keys, area
}

// pointInTris2 reports whether p lies inside any target triangle in the
// facet plane.
func pointInTris2(k *kernel, f *plcFacet, p r2.Vec, target []tri2) bool {
	m := k.m
	for _, tr := range target {
		a := f.project(m.pos(tr.a))
		b := f.project(m.pos(tr.b))
		c := f.project(m.pos(tr.c))
		if robust.Orient2(a, b, p) >= 0 && robust.Orient2(b, c, p) >= 0 && robust.Orient2(c, a, p) >= 0 {
			return true
		}
	}
	return false
}

func triArea2(a, b, c r2.Vec) float64 {
	return math.Abs((b.X-a.X)*(c.Y-a.Y)-(b.Y-a.Y)*(c.X-a.X)) / 2
}

// steinerOnFacet inserts the circumcenter of the missing facet triangle, or
// splits an encroached sub-segment instead: segments always win over
// facets.
func (k *kernel) steinerOnFacet(fi int32, tr tri2) error {
	m := k.m
	f := &k.facets[fi]
	c2 := circumcenter2(f.project(m.pos(tr.a)), f.project(m.pos(tr.b)), f.project(m.pos(tr.c)))
	p := f.unproject(c2)
	if key, ok := k.encroachedSubseg(p); ok {
		return k.splitSubseg(key)
	}
	if err := k.spendSteiner(); err != nil {
		return err
	}
	w, _, err := m.insert(p, f.marker, m.verts[tr.a].tet, insertOpts{
		kind:       kindSteinerFacet,
		walls:      true,
		crossFacet: func(g int32) bool { return g == fi },
	})
	if err == errCoincident || err == errUnreachable {
		// Center fell on an existing vertex or outside the mesh; fall back
		// to the triangle centroid, which lies strictly inside.
		cen := r3.Scale(1.0/3, r3.Add(r3.Add(m.pos(tr.a), m.pos(tr.b)), m.pos(tr.c)))
		w, _, err = m.insert(cen, f.marker, m.verts[tr.a].tet, insertOpts{
			kind:       kindSteinerFacet,
			walls:      true,
			crossFacet: func(g int32) bool { return g == fi },
		})
	}
	if err != nil {
		return fmt.Errorf("%w: facet %d Steiner insertion: %v", ErrRecovery, fi, err)
	}
	m.verts[w].facets = []int32{fi}
	f.verts = append(f.verts, w)
	return nil
}

// facetTriangulation triangulates the facet plane over all its current
// vertices, constrained to its recovered sub-segment chains, with outside
// and hole regions removed.
func (k *kernel) facetTriangulation(f *plcFacet) []tri2 {
	m := k.m
	pts := make(map[int32]r2.Vec, len(f.verts))
	for _, v := range f.verts {
		pts[v] = f.project(m.pos(v))
	}
	t := newCDT2(pts)
	for _, v := range f.verts {
		t.insert(v)
	}
	constraints := map[edge2]bool{}
	for key, si := range m.subsegs {
		if !containsInt32(m.segs[si].facets, k.facetIndexOf(f)) {
			continue
		}
		if _, oka := pts[key[0]]; !oka {
			continue
		}
		if _, okb := pts[key[1]]; !okb {
			continue
		}
		t.enforce(key[0], key[1])
		constraints[makeEdge2(key[0], key[1])] = true
	}
	holes2 := make([]r2.Vec, len(f.holes))
	for i, h := range f.holes {
		holes2[i] = f.project(h)
	}
	return t.carve(constraints, holes2)
}

func (k *kernel) facetIndexOf(f *plcFacet) int32 {
	for i := range k.facets {
		if &k.facets[i] == f {
			return int32(i)
		}
	}
	panic("tetra: foreign facet")
}

// tryFaceFlips attempts to expose face (a,b,c): first ensure the three
// edges exist, then flip ring faces around an edge until c joins the ring.
func (k *kernel) tryFaceFlips(a, b, c int32) bool {
	m := k.m
	for _, e := range [3][2]int32{{a, b}, {b, c}, {c, a}} {
		if !m.edgeExists(e[0], e[1]) && !k.tryEdgeFlips(e[0], e[1]) {
			return false
		}
	}
	if _, _, ok := m.faceExists(a, b, c); ok {
		return true
	}
	ring := m.edgeRing(a, b, nil)
	for _, t := range ring {
		for i := 0; i < 4; i++ {
			tri := m.faceTriple(t, i)
			hasA := tri[0] == a || tri[1] == a || tri[2] == a
			hasB := tri[0] == b || tri[1] == b || tri[2] == b
			if !hasA || !hasB {
				continue
			}
			if m.flip23(t, i) {
				if _, _, ok := m.faceExists(a, b, c); ok {
					return true
				}
				break // the ring changed; rescan
			}
		}
	}
	_, _, ok := m.faceExists(a, b, c)
	return ok
}

// dropStaleSubfaces removes registry entries whose triple no longer exists
// as a mesh face.
func (k *kernel) dropStaleSubfaces() {
	m := k.m
	var stale []triKey
	for key := range m.subfaces {
		if _, _, ok := m.faceExists(key[0], key[1], key[2]); !ok {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(m.subfaces, key)
	}
}

// circumcenter2 returns the circumcenter of a 2D triangle, or its centroid
// when degenerate.
func circumcenter2(a, b, c r2.Vec) r2.Vec {
	bx := b.X - a.X
	by := b.Y - a.Y
	cx := c.X - a.X
	cy := c.Y - a.Y
	d := 2 * (bx*cy - by*cx)
	if d == 0 {
		return r2.Vec{X: (a.X + b.X + c.X) / 3, Y: (a.Y + b.Y + c.Y) / 3}
	}
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	return r2.Vec{
		X: a.X + (cy*b2-by*c2)/d,
		Y: a.Y + (bx*c2-cx*b2)/d,
	}
}

func sortInt32(s []int32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func containsInt32(s []int32, v int32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
