package tetra

import (
	"fmt"

	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r3"
)

// noTet marks an absent neighbor reference.
const noTet int32 = -1

type vertexKind uint8

const (
	// kindVirtual vertices belong to the enclosing bounding simplex and are
	// excluded from all output.
	kindVirtual vertexKind = iota
	kindInput
	kindSteinerSegment
	kindSteinerFacet
	kindSteinerVolume
)

// noSeg marks a vertex that lies on no input segment.
const noSeg int32 = -1

type vertex struct {
	pos    r3.Vec
	tet    int32 // one incident tetrahedron, kept current across cavity ops
	marker int32
	kind   vertexKind
	seg    int32   // segment the vertex lies on, noSeg if none
	facets []int32 // facets the vertex lies on
}

type cellStatus uint8

const (
	cellOpen cellStatus = iota
	cellInterior
	cellExterior
	cellHole
)

type tet struct {
	v      [4]int32
	n      [4]int32 // neighbor across the face opposite v[i]
	epoch  int32    // visited stamp, compared against mesh.epoch
	status cellStatus
	dead   bool
	region float64 // region attribute from flooding
	maxvol float64 // per-region volume bound, 0 for none
}

// faceIdx orders the corners of face i (the face opposite vertex i) such
// that Orient3(corner0, corner1, corner2, v[i]) > 0 on a valid cell.
var faceIdx = [4][3]int{
	{1, 3, 2},
	{0, 2, 3},
	{0, 3, 1},
	{0, 1, 2},
}

type triKey [3]int32
type edgeKey [2]int32

func makeTriKey(a, b, c int32) triKey {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return triKey{a, b, c}
}

func makeEdgeKey(a, b int32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

type subface struct {
	facet  int32
	marker int32
}

type segmentInfo struct {
	u, v   int32 // original endpoints
	marker int32
	facets []int32 // facets whose boundary contains the segment
}

// mesh is the topology store: flat vertex and tetrahedron arenas addressed
// by index, with free-list reuse of deleted cells.
type mesh struct {
	verts    []vertex
	vattrs   [][]float64 // side table, nil when the input carries no attributes
	tets     []tet
	free     []int32
	epoch    int32
	nVirtual int32 // vertices [0,nVirtual) belong to the bounding simplex

	segs         []segmentInfo
	subsegs      map[edgeKey]int32  // mesh edge -> segment index
	subfaces     map[triKey]subface // mesh face -> facet constraint
	facetMarkers []int32
}

// commonFacet returns a facet shared by all three vertices, preferring the
// smallest id, and whether one exists.
func (m *mesh) commonFacet(a, b, c int32) (int32, bool) {
	best := int32(-1)
	for _, fa := range m.verts[a].facets {
		onB := false
		for _, fb := range m.verts[b].facets {
			if fb == fa {
				onB = true
				break
			}
		}
		if !onB {
			continue
		}
		for _, fc := range m.verts[c].facets {
			if fc == fa {
				if best < 0 || fa < best {
					best = fa
				}
				break
			}
		}
	}
	return best, best >= 0
}

func (m *mesh) facetMarker(f int32) int32 {
	if int(f) < len(m.facetMarkers) {
		return m.facetMarkers[f]
	}
	return 0
}

func newMesh() *mesh {
	return &mesh{
		subsegs:  make(map[edgeKey]int32),
		subfaces: make(map[triKey]subface),
	}
}

func (m *mesh) pos(v int32) r3.Vec { return m.verts[v].pos }

func (m *mesh) addVertex(p r3.Vec, marker int32, kind vertexKind) int32 {
	m.verts = append(m.verts, vertex{pos: p, tet: noTet, marker: marker, kind: kind, seg: noSeg})
	if m.vattrs != nil {
		m.vattrs = append(m.vattrs, nil)
	}
	return int32(len(m.verts) - 1)
}

// newTet allocates a cell, reusing a deleted slot when one is free.
func (m *mesh) newTet(a, b, c, d int32) int32 {
	t := tet{v: [4]int32{a, b, c, d}, n: [4]int32{noTet, noTet, noTet, noTet}}
	var ti int32
	if n := len(m.free); n > 0 {
		ti = m.free[n-1]
		m.free = m.free[:n-1]
		m.tets[ti] = t
	} else {
		m.tets = append(m.tets, t)
		ti = int32(len(m.tets) - 1)
	}
	m.verts[a].tet = ti
	m.verts[b].tet = ti
	m.verts[c].tet = ti
	m.verts[d].tet = ti
	return ti
}

// killTet marks a cell deleted and returns its slot to the free list.
// Neighbor references into the slot remain valid until the caller rebonds
// them, which must happen before the operation returns.
func (m *mesh) killTet(t int32) {
	m.tets[t].dead = true
	m.free = append(m.free, t)
}

// bond makes u the neighbor of t across t's face i and restores the
// symmetric reference on u by locating the shared face.
func (m *mesh) bond(t int32, i int, u int32) {
	m.tets[t].n[i] = u
	if u == noTet {
		return
	}
	j := m.faceIndexTo(u, t, m.faceTriple(t, i))
	m.tets[u].n[j] = t
}

// bondFaces bonds t's face i to u's face j directly when both indices are
// already known.
func (m *mesh) bondFaces(t int32, i int, u int32, j int) {
	m.tets[t].n[i] = u
	m.tets[u].n[j] = t
}

// faceIndexTo returns the face index of u whose corner triple matches key.
// Panics when u does not share the face: that is a topology bug.
func (m *mesh) faceIndexTo(u, t int32, tri [3]int32) int {
	key := makeTriKey(tri[0], tri[1], tri[2])
	for j := 0; j < 4; j++ {
		f := m.faceTriple(u, j)
		if makeTriKey(f[0], f[1], f[2]) == key {
			return j
		}
	}
	panic(fmt.Sprintf("tetra: asymmetric bond between cells %d and %d", t, u))
}

func (m *mesh) faceTriple(t int32, i int) [3]int32 {
	v := &m.tets[t].v
	return [3]int32{v[faceIdx[i][0]], v[faceIdx[i][1]], v[faceIdx[i][2]]}
}

func (m *mesh) faceKey(t int32, i int) triKey {
	f := m.faceTriple(t, i)
	return makeTriKey(f[0], f[1], f[2])
}

// vertIndexIn returns the slot of vertex v in cell t, or -1.
func (m *mesh) vertIndexIn(t, v int32) int {
	for i, w := range m.tets[t].v {
		if w == v {
			return i
		}
	}
	return -1
}

func (m *mesh) nextEpoch() int32 {
	m.epoch++
	return m.epoch
}

// ghost reports whether cell t touches the bounding simplex and therefore
// lies outside the convex hull of the input.
func (m *mesh) ghost(t int32) bool {
	for _, v := range m.tets[t].v {
		if v < m.nVirtual {
			return true
		}
	}
	return false
}

// live reports whether t is a non-deleted cell index.
func (m *mesh) live(t int32) bool {
	return t >= 0 && int(t) < len(m.tets) && !m.tets[t].dead
}

// incidentTets returns all live cells incident to vertex v, discovered by a
// breadth-first walk over face neighbors from the vertex's cached cell.
func (m *mesh) incidentTets(v int32, buf []int32) []int32 {
	buf = buf[:0]
	start := m.verts[v].tet
	if !m.live(start) || m.vertIndexIn(start, v) < 0 {
		start = m.findIncident(v)
		if start == noTet {
			return buf
		}
		m.verts[v].tet = start
	}
	ep := m.nextEpoch()
	m.tets[start].epoch = ep
	buf = append(buf, start)
	for k := 0; k < len(buf); k++ {
		t := buf[k]
		vi := m.vertIndexIn(t, v)
		for i := 0; i < 4; i++ {
			if i == vi {
				continue // the face opposite v does not touch v
			}
			u := m.tets[t].n[i]
			if u == noTet || m.tets[u].dead || m.tets[u].epoch == ep {
				continue
			}
			m.tets[u].epoch = ep
			buf = append(buf, u)
		}
	}
	return buf
}

// findIncident scans for any live cell containing v. Fallback for a stale
// vertex hint; linear, so only used when the hint broke.
func (m *mesh) findIncident(v int32) int32 {
	for t := range m.tets {
		if !m.tets[t].dead && m.vertIndexIn(int32(t), v) >= 0 {
			return int32(t)
		}
	}
	return noTet
}

// edgeRing returns the live cells around edge (u,v), in no particular
// order. Empty when the edge is not in the mesh.
func (m *mesh) edgeRing(u, v int32, buf []int32) []int32 {
	buf = buf[:0]
	inc := m.incidentTets(u, nil)
	for _, t := range inc {
		if m.vertIndexIn(t, v) >= 0 {
			buf = append(buf, t)
		}
	}
	return buf
}

// edgeExists reports whether (u,v) is an edge of some live cell.
func (m *mesh) edgeExists(u, v int32) bool {
	inc := m.incidentTets(u, nil)
	for _, t := range inc {
		if m.vertIndexIn(t, v) >= 0 {
			return true
		}
	}
	return false
}

// faceExists reports whether (a,b,c) is a face of some live cell, and
// returns one such cell with the matching face index.
func (m *mesh) faceExists(a, b, c int32) (t int32, i int, ok bool) {
	key := makeTriKey(a, b, c)
	inc := m.incidentTets(a, nil)
	for _, t := range inc {
		for i := 0; i < 4; i++ {
			if m.faceKey(t, i) == key {
				return t, i, true
			}
		}
	}
	return noTet, -1, false
}

// boundaryFaces calls fn for every face separating an interior cell from a
// non-interior (or absent) one. The triple is oriented as seen from the
// interior cell.
func (m *mesh) boundaryFaces(fn func(t int32, i int, tri [3]int32)) {
	for ti := range m.tets {
		t := int32(ti)
		if m.tets[t].dead || m.tets[t].status != cellInterior {
			continue
		}
		for i := 0; i < 4; i++ {
			u := m.tets[t].n[i]
			if u == noTet || m.tets[u].dead || m.tets[u].status != cellInterior {
				fn(t, i, m.faceTriple(t, i))
			}
		}
	}
}

// orientTet returns the orientation sign of cell t's vertex tuple.
func (m *mesh) orientTet(t int32) float64 {
	v := &m.tets[t].v
	return robust.Orient3(m.pos(v[0]), m.pos(v[1]), m.pos(v[2]), m.pos(v[3]))
}

// check verifies the store invariants: positive orientation of all live
// non-ghost cells, neighbor symmetry on all four faces and matching shared
// triples. Returns the first violation found.
func (m *mesh) check() error {
	for ti := range m.tets {
		t := int32(ti)
		if m.tets[t].dead {
			continue
		}
		if !m.ghost(t) && m.orientTet(t) <= 0 {
			return fmt.Errorf("%w: cell %d has non-positive orientation", ErrInternal, t)
		}
		for i := 0; i < 4; i++ {
			u := m.tets[t].n[i]
			if u == noTet {
				continue
			}
			if !m.live(u) {
				return fmt.Errorf("%w: cell %d face %d references dead cell %d", ErrInternal, t, i, u)
			}
			key := m.faceKey(t, i)
			found := false
			for j := 0; j < 4; j++ {
				if m.tets[u].n[j] == t && m.faceKey(u, j) == key {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: asymmetric neighbors %d and %d", ErrInternal, t, u)
			}
		}
	}
	return nil
}

// liveTets calls fn for every live cell.
func (m *mesh) liveTets(fn func(t int32)) {
	for ti := range m.tets {
		if !m.tets[ti].dead {
			fn(int32(ti))
		}
	}
}

// countStatus returns the number of live cells with the given status,
// excluding ghosts.
func (m *mesh) countStatus(s cellStatus) int {
	n := 0
	m.liveTets(func(t int32) {
		if !m.ghost(t) && m.tets[t].status == s {
			n++
		}
	})
	return n
}
