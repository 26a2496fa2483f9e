package tetra

import (
	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r2"
)

// Small constrained Delaunay triangulator for one facet plane. Facets hold
// few vertices, so this favors simplicity: incremental Bowyer–Watson over a
// super triangle, constraint edges enforced by edge flipping, then flood
// removal of the outside and of hole regions.

// super vertex ids; never valid mesh vertex indices.
const (
	super1 int32 = -2
	super2 int32 = -3
	super3 int32 = -4
)

type tri2 struct{ a, b, c int32 } // counterclockwise

type edge2 [2]int32

func makeEdge2(a, b int32) edge2 {
	if a > b {
		a, b = b, a
	}
	return edge2{a, b}
}

type cdt2 struct {
	pts  map[int32]r2.Vec
	tris []tri2
	dead []bool
}

func newCDT2(pts map[int32]r2.Vec) *cdt2 {
	var min, max r2.Vec
	first := true
	for _, p := range pts {
		if first {
			min, max = p, p
			first = false
			continue
		}
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	span := max.X - min.X
	if max.Y-min.Y > span {
		span = max.Y - min.Y
	}
	if span <= 0 {
		span = 1
	}
	c := r2.Vec{X: (min.X + max.X) / 2, Y: (min.Y + max.Y) / 2}
	const far = 1e7
	t := &cdt2{pts: map[int32]r2.Vec{
		super1: {X: c.X - far*span, Y: c.Y - far*span},
		super2: {X: c.X + far*span, Y: c.Y - far*span},
		super3: {X: c.X, Y: c.Y + far*span},
	}}
	for id, p := range pts {
		t.pts[id] = p
	}
	t.tris = []tri2{{super1, super2, super3}}
	t.dead = []bool{false}
	return t
}

func (t *cdt2) alive(i int) bool { return !t.dead[i] }

func (t *cdt2) push(tr tri2) {
	if robust.Orient2(t.pts[tr.a], t.pts[tr.b], t.pts[tr.c]) < 0 {
		tr.b, tr.c = tr.c, tr.b
	}
	t.tris = append(t.tris, tr)
	t.dead = append(t.dead, false)
}

// insert adds point id with Bowyer–Watson cavity retriangulation.
func (t *cdt2) insert(id int32) {
	p := t.pts[id]
	var cavity []int
	for i, tr := range t.tris {
		if t.dead[i] {
			continue
		}
		if robust.InCircle(t.pts[tr.a], t.pts[tr.b], t.pts[tr.c], p) > 0 {
			cavity = append(cavity, i)
		}
	}
	if len(cavity) == 0 {
		// On or outside every circumcircle: claim the containing triangle.
		for i, tr := range t.tris {
			if t.dead[i] {
				continue
			}
			if robust.Orient2(t.pts[tr.a], t.pts[tr.b], p) >= 0 &&
				robust.Orient2(t.pts[tr.b], t.pts[tr.c], p) >= 0 &&
				robust.Orient2(t.pts[tr.c], t.pts[tr.a], p) >= 0 {
				cavity = append(cavity, i)
				break
			}
		}
		if len(cavity) == 0 {
			return
		}
	}
	edgeCount := map[edge2]int{}
	edgeDir := map[edge2][2]int32{}
	for _, i := range cavity {
		tr := t.tris[i]
		for _, e := range [3][2]int32{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			key := makeEdge2(e[0], e[1])
			edgeCount[key]++
			edgeDir[key] = e
		}
		t.dead[i] = true
	}
	for key, n := range edgeCount {
		if n != 1 {
			continue // interior to the cavity
		}
		e := edgeDir[key]
		t.push(tri2{e[0], e[1], id})
	}
}

// hasEdge reports whether (u,v) is an edge of a live triangle.
func (t *cdt2) hasEdge(u, v int32) bool {
	key := makeEdge2(u, v)
	for i, tr := range t.tris {
		if t.dead[i] {
			continue
		}
		for _, e := range [3][2]int32{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			if makeEdge2(e[0], e[1]) == key {
				return true
			}
		}
	}
	return false
}

// enforce flips crossed edges until (u,v) appears. In 2D this always
// terminates for a constraint that intersects no other constraint.
func (t *cdt2) enforce(u, v int32) bool {
	const budget = 256
	for attempt := 0; attempt < budget; attempt++ {
		if t.hasEdge(u, v) {
			return true
		}
		x, y, ok := t.findCrossing(u, v)
		if !ok {
			return false
		}
		if !t.flipEdge(x, y) {
			return false
		}
	}
	return t.hasEdge(u, v)
}

// findCrossing returns an edge properly crossing the open segment (u,v).
func (t *cdt2) findCrossing(u, v int32) (int32, int32, bool) {
	pu, pv := t.pts[u], t.pts[v]
	for i, tr := range t.tris {
		if t.dead[i] {
			continue
		}
		for _, e := range [3][2]int32{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			x, y := e[0], e[1]
			if x == u || x == v || y == u || y == v {
				continue
			}
			px, py := t.pts[x], t.pts[y]
			if robust.Orient2(pu, pv, px)*robust.Orient2(pu, pv, py) < 0 &&
				robust.Orient2(px, py, pu)*robust.Orient2(px, py, pv) < 0 {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

// flipEdge replaces edge (x,y) by the opposite diagonal of its two incident
// triangles. Fails when the quad is not strictly convex.
func (t *cdt2) flipEdge(x, y int32) bool {
	key := makeEdge2(x, y)
	var found []int
	var opp []int32
	for i, tr := range t.tris {
		if t.dead[i] {
			continue
		}
		verts := [3]int32{tr.a, tr.b, tr.c}
		for j, e := range [3][2]int32{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			if makeEdge2(e[0], e[1]) == key {
				found = append(found, i)
				opp = append(opp, verts[(j+2)%3])
			}
		}
	}
	if len(found) != 2 {
		return false
	}
	p, q := opp[0], opp[1]
	// Strict convexity of quad p-x-q-y.
	if robust.Orient2(t.pts[p], t.pts[q], t.pts[x])*robust.Orient2(t.pts[p], t.pts[q], t.pts[y]) >= 0 {
		return false
	}
	t.dead[found[0]] = true
	t.dead[found[1]] = true
	t.push(tri2{p, q, x})
	t.push(tri2{q, p, y})
	return true
}

// carve removes the outside region (connected to the super triangle) and
// hole regions, flooding across every edge that is not a constraint.
func (t *cdt2) carve(constraints map[edge2]bool, holes []r2.Vec) []tri2 {
	adj := map[edge2][]int{}
	for i, tr := range t.tris {
		if t.dead[i] {
			continue
		}
		for _, e := range [3][2]int32{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			key := makeEdge2(e[0], e[1])
			adj[key] = append(adj[key], i)
		}
	}
	remove := make([]bool, len(t.tris))
	var stack []int
	seed := func(i int) {
		if !t.dead[i] && !remove[i] {
			remove[i] = true
			stack = append(stack, i)
		}
	}
	for i, tr := range t.tris {
		if t.dead[i] {
			continue
		}
		if tr.a < -1 || tr.b < -1 || tr.c < -1 {
			seed(i)
		}
	}
	for _, h := range holes {
		for i, tr := range t.tris {
			if t.dead[i] || remove[i] {
				continue
			}
			if robust.Orient2(t.pts[tr.a], t.pts[tr.b], h) >= 0 &&
				robust.Orient2(t.pts[tr.b], t.pts[tr.c], h) >= 0 &&
				robust.Orient2(t.pts[tr.c], t.pts[tr.a], h) >= 0 {
				seed(i)
				break
			}
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		tr := t.tris[i]
		for _, e := range [3][2]int32{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			key := makeEdge2(e[0], e[1])
			if constraints[key] {
				continue
			}
			for _, j := range adj[key] {
				seed(j)
			}
		}
	}
	var out []tri2
	for i, tr := range t.tris {
		if !t.dead[i] && !remove[i] && tr.a >= 0 && tr.b >= 0 && tr.c >= 0 {
			out = append(out, tr)
		}
	}
	return out
}
