package tetra

import (
	"fmt"

	"github.com/soypat/tetra/internal/d3"
	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r3"
)

// virtualScale sets how far the corners of the enclosing bounding simplex
// sit from the input, in multiples of the bounding box's longest side. Large
// enough that circumspheres of cells among input points never reach them.
const virtualScale = 1e6

// initBoundingSimplex seeds the triangulation with one huge tetrahedron
// whose corners are flagged virtual and excluded from output. Every input
// point then locates inside an existing cell, so insertion never needs a
// special hull case; cells touching a virtual corner play the ghost role.
func (m *mesh) initBoundingSimplex(box r3.Box) {
	c := d3.Box(box).Center()
	size := d3.Box(box).Size()
	scale := d3.Max(size)
	if scale <= 0 {
		scale = 1
	}
	r := virtualScale * scale
	dirs := [4]r3.Vec{
		{X: 1, Y: 1, Z: 1},
		{X: 1, Y: -1, Z: -1},
		{X: -1, Y: 1, Z: -1},
		{X: -1, Y: -1, Z: 1},
	}
	var vi [4]int32
	for i, d := range dirs {
		vi[i] = m.addVertex(r3.Add(c, r3.Scale(r, d)), 0, kindVirtual)
	}
	if robust.Orient3(m.pos(vi[0]), m.pos(vi[1]), m.pos(vi[2]), m.pos(vi[3])) < 0 {
		vi[0], vi[1] = vi[1], vi[0]
	}
	m.nVirtual = 4
	m.newTet(vi[0], vi[1], vi[2], vi[3])
}

// insertOpts controls cavity growth during point insertion.
type insertOpts struct {
	kind vertexKind
	// walls stops the cavity at registered subfaces, yielding a constrained
	// insertion that cannot destroy recovered boundaries.
	walls bool
	// crossFacet permits the cavity through subfaces of the given facet;
	// used when the new vertex itself lies on that facet.
	crossFacet func(facet int32) bool
}

// errCoincident is returned by insert when the point is exactly equal to an
// existing vertex. The pipeline translates it per the input policy.
var errCoincident = fmt.Errorf("point coincides with existing vertex")

// errUnreachable is returned when location cannot reach the point, either
// because a wall blocks it or the walk left the mesh.
var errUnreachable = fmt.Errorf("point not reachable inside mesh")

// insert runs Bowyer–Watson insertion of p: locate, flood the cavity of
// cells whose circumsphere contains p, replace it with the star of p over
// the cavity boundary, and rebond neighbors so the symmetry invariant holds
// on return. Returns the new vertex index and the created cells.
func (m *mesh) insert(p r3.Vec, marker int32, start int32, opts insertOpts) (vi int32, created []int32, err error) {
	var crossable func(triKey) bool
	if opts.walls {
		crossable = func(key triKey) bool {
			sf, ok := m.subfaces[key]
			return ok && opts.crossFacet != nil && opts.crossFacet(sf.facet)
		}
	}
	loc := m.locate(p, start, crossable)
	switch loc.status {
	case locVertex:
		return loc.vertex, nil, errCoincident
	case locOutside, locBlocked:
		return -1, nil, errUnreachable
	}
	vi = m.addVertex(p, marker, opts.kind)
	created, err = m.insertInCavity(vi, loc.tet, opts)
	if err != nil {
		// Roll the vertex back so the store holds no orphan.
		m.verts = m.verts[:len(m.verts)-1]
		if m.vattrs != nil {
			m.vattrs = m.vattrs[:len(m.vattrs)-1]
		}
		return -1, nil, err
	}
	return vi, created, nil
}

type cavityFace struct {
	tri       [3]int32
	outer     int32 // neighbor beyond the face, noTet on walls and hull
	outerFace int
}

// insertInCavity grows the Delaunay cavity of vertex vi from cell start and
// replaces it with the star of vi. start must contain the vertex position.
func (m *mesh) insertInCavity(vi int32, start int32, opts insertOpts) ([]int32, error) {
	p := m.pos(vi)
	ep := m.nextEpoch()
	cavity := []int32{start}
	m.tets[start].epoch = ep

	for k := 0; k < len(cavity); k++ {
		t := cavity[k]
		for i := 0; i < 4; i++ {
			u := m.tets[t].n[i]
			if u == noTet || m.tets[u].dead || m.tets[u].epoch == ep {
				continue
			}
			if opts.walls {
				if sf, ok := m.subfaces[m.faceKey(t, i)]; ok {
					if opts.crossFacet == nil || !opts.crossFacet(sf.facet) {
						continue // wall: the cavity may not grow through it
					}
				}
			}
			if m.circumsphereContains(u, vi) {
				m.tets[u].epoch = ep
				cavity = append(cavity, u)
			}
		}
	}

	// The cavity must be star shaped around p. Under exact arithmetic it is
	// for unconstrained Delaunay insertion; constrained cavities are shrunk
	// until every boundary face sees p positively.
	for shrunk := true; shrunk; {
		shrunk = false
		for k := 0; k < len(cavity); k++ {
			t := cavity[k]
			bad := false
			for i := 0; i < 4 && !bad; i++ {
				if inCavityFace(m, t, i, ep) {
					continue // interior to the cavity
				}
				tri := m.faceTriple(t, i)
				if robust.Orient3(m.pos(tri[0]), m.pos(tri[1]), m.pos(tri[2]), p) <= 0 {
					bad = true
				}
			}
			if !bad {
				continue
			}
			if t == start {
				return nil, fmt.Errorf("%w: degenerate cavity at seed cell", ErrInternal)
			}
			m.tets[t].epoch = 0 // evict
			cavity = append(cavity[:k], cavity[k+1:]...)
			k--
			shrunk = true
		}
	}

	// Collect boundary faces with their outer bonds before any deletion.
	var faces []cavityFace
	destroyedSub := make([]triKey, 0, 4)
	for _, t := range cavity {
		for i := 0; i < 4; i++ {
			u := m.tets[t].n[i]
			if u != noTet && m.live(u) && m.tets[u].epoch == ep {
				// Interior face. A subface here is being crossed and must be
				// re-derived after the star is built.
				if _, ok := m.subfaces[m.faceKey(t, i)]; ok {
					destroyedSub = append(destroyedSub, m.faceKey(t, i))
				}
				continue
			}
			cf := cavityFace{tri: m.faceTriple(t, i), outer: u, outerFace: -1}
			if u != noTet && m.live(u) {
				for j := 0; j < 4; j++ {
					if m.tets[u].n[j] == t {
						cf.outerFace = j
						break
					}
				}
			}
			faces = append(faces, cf)
		}
	}

	for _, t := range cavity {
		m.killTet(t)
	}
	for _, key := range destroyedSub {
		delete(m.subfaces, key)
	}

	// Build the star: one cell per boundary face, side faces matched up
	// through the boundary edges they share.
	created := make([]int32, 0, len(faces))
	sideBond := make(map[edgeKey][2]int32, 3*len(faces))
	for _, cf := range faces {
		a, b, c := cf.tri[0], cf.tri[1], cf.tri[2]
		nt := m.newTet(a, b, c, vi)
		created = append(created, nt)
		if cf.outer != noTet && cf.outerFace >= 0 {
			m.bondFaces(nt, 3, cf.outer, cf.outerFace)
		}
		sides := [3][2]int32{{b, c}, {a, c}, {a, b}} // edge of side face i
		for i, e := range sides {
			key := makeEdgeKey(e[0], e[1])
			if prev, ok := sideBond[key]; ok {
				m.bondFaces(nt, i, prev[0], int(prev[1]))
				delete(sideBond, key)
			} else {
				sideBond[key] = [2]int32{nt, int32(i)}
			}
		}
	}
	if len(sideBond) != 0 {
		panic("tetra: cavity boundary is not a closed surface")
	}

	if opts.walls && opts.crossFacet != nil {
		m.reregisterSubfaces(created)
	}
	return created, nil
}

// inCavityFace reports whether face i of cavity cell t leads to another
// cavity cell in the current epoch.
func inCavityFace(m *mesh, t int32, i int, ep int32) bool {
	u := m.tets[t].n[i]
	return u != noTet && m.live(u) && m.tets[u].epoch == ep
}

// circumsphereContains applies the perturbed in-sphere test of cell u
// against vertex vi. Never returns a tie, so cavities are unambiguous even
// on cospherical input.
func (m *mesh) circumsphereContains(u, vi int32) bool {
	v := &m.tets[u].v
	return robust.InSpherePerturbed(
		m.pos(v[0]), m.pos(v[1]), m.pos(v[2]), m.pos(v[3]), m.pos(vi),
		int(v[0]), int(v[1]), int(v[2]), int(v[3]), int(vi)) > 0
}

// reregisterSubfaces rebuilds constraint marks on freshly created cells:
// any face whose three corners share a common facet lies on that facet.
func (m *mesh) reregisterSubfaces(created []int32) {
	for _, t := range created {
		if m.tets[t].dead {
			continue
		}
		for i := 0; i < 4; i++ {
			tri := m.faceTriple(t, i)
			key := makeTriKey(tri[0], tri[1], tri[2])
			if _, ok := m.subfaces[key]; ok {
				continue
			}
			if f, ok := m.commonFacet(tri[0], tri[1], tri[2]); ok {
				m.subfaces[key] = subface{facet: f, marker: m.facetMarker(f)}
			}
		}
	}
}

// delaunayInsertAll inserts the given vertex indices in biased randomized
// order, walking each point from the previously created cell so locates
// stay short. interrupt is polled between insertions.
func (m *mesh) delaunayInsertAll(order []int32, interrupt func() bool) error {
	hint := m.anyLiveTet()
	for _, vi := range order {
		if interrupt != nil && interrupt() {
			return ErrCancelled
		}
		created, err := m.insertExisting(vi, hint, insertOpts{kind: m.verts[vi].kind})
		if err != nil {
			return err
		}
		if len(created) > 0 {
			hint = created[0]
		}
	}
	return nil
}

// insertExisting inserts an already stored vertex into the triangulation.
func (m *mesh) insertExisting(vi int32, start int32, opts insertOpts) ([]int32, error) {
	var crossable func(triKey) bool
	if opts.walls {
		crossable = func(key triKey) bool {
			sf, ok := m.subfaces[key]
			return ok && opts.crossFacet != nil && opts.crossFacet(sf.facet)
		}
	}
	loc := m.locate(m.pos(vi), start, crossable)
	switch loc.status {
	case locVertex:
		if loc.vertex != vi {
			return nil, fmt.Errorf("%w: vertices %d and %d", ErrCoincident, loc.vertex, vi)
		}
		return nil, nil
	case locOutside, locBlocked:
		return nil, fmt.Errorf("%w: vertex %d", errUnreachable, vi)
	}
	return m.insertInCavity(vi, loc.tet, opts)
}
