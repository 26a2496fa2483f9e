package tetra

import (
	"github.com/soypat/tetra/robust"
)

// Bistellar flips used by constraint recovery. Both flips preserve the
// union of the flipped cells and restore neighbor symmetry before
// returning.

// replaceTets swaps the cells in old for freshly allocated cells with the
// given vertex tuples, rebonding all outer faces and matching the new cells
// against each other on their shared faces. Tuples must be positively
// oriented.
func (m *mesh) replaceTets(old []int32, tuples [][4]int32) []int32 {
	ep := m.nextEpoch()
	for _, t := range old {
		m.tets[t].epoch = ep
	}
	type outer struct {
		t int32
		f int
	}
	outerBonds := make(map[triKey]outer, 4*len(old))
	for _, t := range old {
		for i := 0; i < 4; i++ {
			u := m.tets[t].n[i]
			if u == noTet || m.tets[u].dead || m.tets[u].epoch == ep {
				continue
			}
			for j := 0; j < 4; j++ {
				if m.tets[u].n[j] == t {
					outerBonds[m.faceKey(t, i)] = outer{t: u, f: j}
					break
				}
			}
		}
	}
	for _, t := range old {
		m.killTet(t)
	}
	created := make([]int32, 0, len(tuples))
	pending := make(map[triKey]outer, 2*len(tuples))
	for _, tu := range tuples {
		nt := m.newTet(tu[0], tu[1], tu[2], tu[3])
		created = append(created, nt)
		for i := 0; i < 4; i++ {
			key := m.faceKey(nt, i)
			if o, ok := outerBonds[key]; ok {
				m.bondFaces(nt, i, o.t, o.f)
				delete(outerBonds, key)
			} else if p, ok := pending[key]; ok {
				m.bondFaces(nt, i, p.t, p.f)
				delete(pending, key)
			} else {
				pending[key] = outer{t: nt, f: i}
			}
		}
	}
	return created
}

// flip23 replaces the two cells sharing face i of t with three cells around
// the edge joining the two opposite apexes. Fails when the apex segment
// does not pass through the face, which would create inverted cells, or
// when the face is a constrained subface.
func (m *mesh) flip23(t int32, i int) bool {
	u := m.tets[t].n[i]
	if u == noTet || m.tets[u].dead {
		return false
	}
	if _, ok := m.subfaces[m.faceKey(t, i)]; ok {
		return false
	}
	tri := m.faceTriple(t, i)
	d := m.tets[t].v[i] // apex of t over the face
	e := int32(-1)      // apex of u
	for _, w := range m.tets[u].v {
		if w != tri[0] && w != tri[1] && w != tri[2] {
			e = w
			break
		}
	}
	if e < 0 {
		return false
	}
	a, b, c := tri[0], tri[1], tri[2]
	pd, pe := m.pos(d), m.pos(e)
	// Each new cell (x, y, e, d) must be positively oriented.
	if robust.Orient3(m.pos(a), m.pos(b), pe, pd) <= 0 ||
		robust.Orient3(m.pos(b), m.pos(c), pe, pd) <= 0 ||
		robust.Orient3(m.pos(c), m.pos(a), pe, pd) <= 0 {
		return false
	}
	m.replaceTets([]int32{t, u}, [][4]int32{
		{a, b, e, d},
		{b, c, e, d},
		{c, a, e, d},
	})
	return true
}

// flip32 removes edge (d,e) when exactly three cells share it, replacing
// them with two cells over the surrounding triangle. Fails when the edge
// has a different ring size, is constrained, or the result would invert.
func (m *mesh) flip32(d, e int32) bool {
	if _, ok := m.subsegs[makeEdgeKey(d, e)]; ok {
		return false
	}
	ring := m.edgeRing(d, e, nil)
	if len(ring) != 3 {
		return false
	}
	// Ring vertices: the corners besides d and e.
	var abc []int32
	seen := map[int32]bool{}
	for _, t := range ring {
		for _, w := range m.tets[t].v {
			if w != d && w != e && !seen[w] {
				seen[w] = true
				abc = append(abc, w)
			}
		}
	}
	if len(abc) != 3 {
		return false
	}
	a, b, c := abc[0], abc[1], abc[2]
	// The interior ring faces, the ones containing the edge, may not be
	// constrained.
	for _, t := range ring {
		for i := 0; i < 4; i++ {
			tri := m.faceTriple(t, i)
			hasD := tri[0] == d || tri[1] == d || tri[2] == d
			hasE := tri[0] == e || tri[1] == e || tri[2] == e
			if !hasD || !hasE {
				continue
			}
			if _, ok := m.subfaces[m.faceKey(t, i)]; ok {
				return false
			}
		}
	}
	if robust.Orient3(m.pos(a), m.pos(b), m.pos(c), m.pos(d)) <= 0 {
		a, b = b, a
	}
	if robust.Orient3(m.pos(a), m.pos(b), m.pos(c), m.pos(d)) <= 0 ||
		robust.Orient3(m.pos(b), m.pos(a), m.pos(c), m.pos(e)) <= 0 {
		return false
	}
	m.replaceTets(ring, [][4]int32{
		{a, b, c, d},
		{b, a, c, e},
	})
	return true
}
