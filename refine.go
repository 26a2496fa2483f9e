package tetra

import (
	"container/heap"
	"fmt"
	"math"
)

// Delaunay refinement: a priority queue of bad cells, worst radius-edge
// ratio first. Each bad cell's circumcenter is inserted unless it
// encroaches a protected boundary feature, in which case the feature is
// split instead, segments before facets.

type badTet struct {
	t     int32
	v     [4]int32 // tuple snapshot; detects slot reuse after pop
	score float64
}

type badQueue []badTet

func (q badQueue) Len() int            { return len(q) }
func (q badQueue) Less(i, j int) bool  { return q[i].score > q[j].score }
func (q badQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *badQueue) Push(x interface{}) { *q = append(*q, x.(badTet)) }
func (q *badQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// badness scores cell t: zero when within bounds, otherwise how far the
// worst bound is exceeded. Ratio violations dominate volume violations.
func (k *kernel) badness(t int32) float64 {
	m := k.m
	if !m.live(t) || m.ghost(t) || m.tets[t].status != cellInterior {
		return 0
	}
	score := 0.0
	if k.b.Quality {
		if ratio := m.ratioOf(t); ratio > k.b.MinRatio {
			score = ratio / k.b.MinRatio
		}
	}
	bound := k.volumeBound(t)
	if bound > 0 {
		if vol := m.tetVolumeOf(t); vol > bound {
			if s := vol / bound * 1e-3; s > score {
				score = s
			}
		}
	}
	return score
}

func (k *kernel) volumeBound(t int32) float64 {
	bound := 0.0
	if k.b.FixedVolume && k.b.MaxVolume > 0 {
		bound = k.b.MaxVolume
	}
	if k.b.VarVolume {
		if mv := k.m.tets[t].maxvol; mv > 0 && (bound == 0 || mv < bound) {
			bound = mv
		}
	}
	return bound
}

// refineStepLimit returns the caller's StepLimit, or, when none is set, a
// cap on refinement iterations scaled to the mesh size. Convergence is guaranteed for ratio bounds above sqrt 2; below that the
// cap is what terminates the loop.
func (k *kernel) refineStepLimit() int {
	if k.b.StepLimit > 0 {
		return k.b.StepLimit
	}
	n := len(k.m.tets)
	limit := 100*n + 10_000
	if k.b.Quality && k.b.MinRatio <= math.Sqrt2 {
		limit = 10*n + 2_000
	}
	return limit
}

func (k *kernel) refine() error {
	m := k.m
	if k.encroach == nil {
		k.buildEncroachIndex()
	}
	q := &badQueue{}
	m.liveTets(func(t int32) {
		if s := k.badness(t); s > 0 {
			heap.Push(q, badTet{t: t, v: m.tets[t].v, score: s})
		}
	})
	limit := k.refineStepLimit()
	for steps := 0; q.Len() > 0; steps++ {
		if k.b.Interrupt != nil && k.b.Interrupt() {
			return ErrCancelled
		}
		if steps >= limit {
			return fmt.Errorf("%w: %d cells still out of bounds after %d steps", ErrQuality, q.Len(), steps)
		}
		bad := heap.Pop(q).(badTet)
		if !m.live(bad.t) || m.tets[bad.t].v != bad.v {
			continue // cell was destroyed, slot possibly reused
		}
		if k.badness(bad.t) == 0 {
			continue
		}
		created, err := k.splitBadTet(bad.t)
		if err != nil {
			return err
		}
		for _, t := range created {
			if s := k.badness(t); s > 0 {
				heap.Push(q, badTet{t: t, v: m.tets[t].v, score: s})
			}
		}
		// The bad cell may survive a feature split; requeue it.
		if m.live(bad.t) && m.tets[bad.t].v == bad.v {
			if s := k.badness(bad.t); s > 0 {
				heap.Push(q, badTet{t: bad.t, v: bad.v, score: s})
			}
		}
	}
	return nil
}

// enforceConforming splits every sub-segment whose protection ball
// contains a mesh vertex other than its endpoints, and every subface whose
// protection ball contains a vertex lying on no segment or facet, until
// none does or the pass cap is reached.
func (k *kernel) enforceConforming() error {
	if k.encroach == nil {
		k.buildEncroachIndex()
	}
	m := k.m
	for round := 0; round < facetPasses; round++ {
		if k.b.Interrupt != nil && k.b.Interrupt() {
			return ErrCancelled
		}
		split := false
		for vi := m.nVirtual; vi < int32(len(m.verts)); vi++ {
			p := m.pos(vi)
			if key, ok := k.encroachedSubseg(p); ok && key[0] != vi && key[1] != vi {
				if _, err := k.splitAndCollect(func() error { return k.splitSubseg(key) }); err != nil {
					return err
				}
				split = true
				continue
			}
			if key, ok := k.encroachedSubface(p); ok && key[0] != vi && key[1] != vi && key[2] != vi {
				if m.verts[vi].seg != noSeg || len(m.verts[vi].facets) > 0 {
					// Feature vertices legitimately sit near their own
					// boundary; only free vertices force a split.
					continue
				}
				if _, err := k.splitAndCollect(func() error { return k.splitSubface(key) }); err != nil {
					return err
				}
				split = true
			}
		}
		if !split {
			return nil
		}
	}
	return fmt.Errorf("%w: conforming enforcement did not settle", ErrRecovery)
}

// splitBadTet inserts the circumcenter of cell t, or splits the boundary
// feature the center encroaches. Returns cells created by whichever
// insertion happened.
func (k *kernel) splitBadTet(t int32) ([]int32, error) {
	m := k.m
	c, _ := m.circumsphereOf(t)
	if key, ok := k.encroachedSubseg(c); ok {
		return k.splitAndCollect(func() error { return k.splitSubseg(key) })
	}
	if key, ok := k.encroachedSubface(c); ok {
		return k.splitAndCollect(func() error { return k.splitSubface(key) })
	}
	if err := k.spendSteiner(); err != nil {
		return nil, err
	}
	// Capture the labels now: the insertion destroys t.
	region, maxvol, status := m.tets[t].region, m.tets[t].maxvol, m.tets[t].status
	_, created, err := m.insert(c, 0, t, insertOpts{kind: kindSteinerVolume, walls: true})
	if err == errCoincident || err == errUnreachable {
		// The center is hidden behind a wall the walk refused to cross: the
		// cell is boundary-pinched. Split the wall it hit instead.
		loc := m.locate(c, t, func(triKey) bool { return false })
		if loc.status == locBlocked {
			key := m.faceKey(loc.tet, loc.face)
			return k.splitAndCollect(func() error { return k.splitSubface(key) })
		}
		return nil, nil // unreachable for another reason; give up on this cell
	}
	if err != nil {
		return nil, err
	}
	k.inheritRegion(status, region, maxvol, created)
	return created, nil
}

// splitAndCollect runs a feature split and reports every cell created while
// it ran, by snapshotting the arena high-water mark and the free list.
func (k *kernel) splitAndCollect(split func() error) ([]int32, error) {
	m := k.m
	mark := len(m.tets)
	freeBefore := make(map[int32]bool, len(m.free))
	for _, f := range m.free {
		freeBefore[f] = true
	}
	if err := split(); err != nil {
		return nil, err
	}
	var created []int32
	for t := int32(mark); t < int32(len(m.tets)); t++ {
		if !m.tets[t].dead {
			created = append(created, t)
		}
	}
	for t := range freeBefore {
		if !m.tets[t].dead {
			created = append(created, t)
		}
	}
	for _, t := range created {
		k.inheritRegionFromNeighbors(t)
	}
	if k.hullWalls {
		// Splitting a hull wall rewrites boundary faces; re-derive them now
		// that the fresh cells carry labels.
		k.registerHullSubfaces()
	}
	k.refreshSubfaceIndex()
	return created, nil
}

// splitSubface inserts a Steiner point at the circumcenter of an encroached
// subface, unless that point itself encroaches a sub-segment, which then
// takes priority.
func (k *kernel) splitSubface(key triKey) error {
	m := k.m
	sf, ok := m.subfaces[key]
	if !ok {
		return nil
	}
	c, _ := triangleDiametral(m.pos(key[0]), m.pos(key[1]), m.pos(key[2]))
	if skey, enc := k.encroachedSubseg(c); enc {
		return k.splitSubseg(skey)
	}
	if err := k.spendSteiner(); err != nil {
		return err
	}
	fi := sf.facet
	w, _, err := m.insert(c, sf.marker, m.verts[key[0]].tet, insertOpts{
		kind:       kindSteinerFacet,
		walls:      true,
		crossFacet: func(g int32) bool { return g == fi },
	})
	if err == errCoincident {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: splitting subface: %v", ErrQuality, err)
	}
	if fi >= 0 {
		m.verts[w].facets = []int32{fi}
		if int(fi) < len(k.facets) {
			k.facets[fi].verts = append(k.facets[fi].verts, w)
		}
	}
	k.refreshSubfaceIndex()
	work := k.brokenSubsegs()
	if len(work) > 0 {
		return k.processSegJobs(work)
	}
	return nil
}

// inheritRegion copies region labeling from the split cell onto its
// replacements. Insertion cannot move material across subfaces, so the
// labels stay consistent.
func (k *kernel) inheritRegion(status cellStatus, region, maxvol float64, created []int32) {
	m := k.m
	for _, t := range created {
		if !m.live(t) || m.tets[t].status != cellOpen {
			continue
		}
		m.tets[t].status = status
		m.tets[t].region = region
		m.tets[t].maxvol = maxvol
	}
	for _, t := range created {
		k.inheritRegionFromNeighbors(t)
	}
}

// inheritRegionFromNeighbors labels a fresh cell from any labeled neighbor
// it can see across an unconstrained face.
func (k *kernel) inheritRegionFromNeighbors(t int32) {
	m := k.m
	if !m.live(t) || m.tets[t].status != cellOpen {
		return
	}
	if m.ghost(t) {
		m.tets[t].status = cellExterior
		return
	}
	for i := 0; i < 4; i++ {
		u := m.tets[t].n[i]
		if u == noTet || m.tets[u].dead || m.tets[u].status == cellOpen {
			continue
		}
		if _, wall := m.subfaces[m.faceKey(t, i)]; wall {
			continue
		}
		m.tets[t].status = m.tets[u].status
		m.tets[t].region = m.tets[u].region
		m.tets[t].maxvol = m.tets[u].maxvol
		return
	}
	// No labeled neighbor yet; assume interior with defaults.
	m.tets[t].status = cellInterior
}
