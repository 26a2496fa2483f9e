package tetra

import (
	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r3"
)

// locateStatus classifies the end of a point-location walk.
type locateStatus uint8

const (
	locInside   locateStatus = iota
	locVertex                // query coincides exactly with a mesh vertex
	locBlocked               // walk stopped at a constrained wall face
	locOutside               // walk left the triangulation
)

type location struct {
	status locateStatus
	tet    int32
	face   int   // crossing face for locBlocked/locOutside
	vertex int32 // coinciding vertex for locVertex
}

// locate walks from start toward p. At every cell it evaluates the four
// face orientations; a negative sign means p lies beyond that face and the
// walk crosses it, picking the smallest face index so that degenerate
// configurations cannot produce cycles of equal signs. crossable, when non
// nil, vetoes crossings of constrained faces. The walk is correct on a
// Delaunay triangulation; a step limit guards the constrained phases, where
// visibility walks may cycle, by falling back to an exhaustive scan.
func (m *mesh) locate(p r3.Vec, start int32, crossable func(key triKey) bool) location {
	if !m.live(start) {
		start = m.anyLiveTet()
		if start == noTet {
			return location{status: locOutside, tet: noTet, face: -1, vertex: -1}
		}
	}
	t := start
	limit := 4*len(m.tets) + 64
	for step := 0; step < limit; step++ {
		if v := m.coincidentVertex(t, p); v >= 0 {
			return location{status: locVertex, tet: t, face: -1, vertex: v}
		}
		neg := -1
		for i := 0; i < 4; i++ {
			tri := m.faceTriple(t, i)
			if robust.Orient3(m.pos(tri[0]), m.pos(tri[1]), m.pos(tri[2]), p) < 0 {
				neg = i
				break
			}
		}
		if neg == -1 {
			return location{status: locInside, tet: t, face: -1, vertex: -1}
		}
		if crossable != nil {
			if _, isWall := m.subfaces[m.faceKey(t, neg)]; isWall && !crossable(m.faceKey(t, neg)) {
				return location{status: locBlocked, tet: t, face: neg, vertex: -1}
			}
		}
		u := m.tets[t].n[neg]
		if u == noTet || m.tets[u].dead {
			return location{status: locOutside, tet: t, face: neg, vertex: -1}
		}
		t = u
	}
	return m.locateByScan(p)
}

// locateByScan tests every live cell. Only reached when a walk exceeds its
// step limit, which exact predicates make rare.
func (m *mesh) locateByScan(p r3.Vec) location {
	for ti := range m.tets {
		t := int32(ti)
		if m.tets[t].dead {
			continue
		}
		if v := m.coincidentVertex(t, p); v >= 0 {
			return location{status: locVertex, tet: t, face: -1, vertex: v}
		}
		inside := true
		for i := 0; i < 4; i++ {
			tri := m.faceTriple(t, i)
			if robust.Orient3(m.pos(tri[0]), m.pos(tri[1]), m.pos(tri[2]), p) < 0 {
				inside = false
				break
			}
		}
		if inside {
			return location{status: locInside, tet: t, face: -1, vertex: -1}
		}
	}
	return location{status: locOutside, tet: noTet, face: -1, vertex: -1}
}

// coincidentVertex returns the corner of t exactly equal to p, or -1.
func (m *mesh) coincidentVertex(t int32, p r3.Vec) int32 {
	for _, v := range m.tets[t].v {
		q := m.pos(v)
		if q.X == p.X && q.Y == p.Y && q.Z == p.Z {
			return v
		}
	}
	return -1
}

func (m *mesh) anyLiveTet() int32 {
	for ti := range m.tets {
		if !m.tets[ti].dead {
			return int32(ti)
		}
	}
	return noTet
}

// pointInTet reports whether p lies inside or on the boundary of cell t.
func (m *mesh) pointInTet(t int32, p r3.Vec) bool {
	for i := 0; i < 4; i++ {
		tri := m.faceTriple(t, i)
		if robust.Orient3(m.pos(tri[0]), m.pos(tri[1]), m.pos(tri[2]), p) < 0 {
			return false
		}
	}
	return true
}
