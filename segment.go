package tetra

import (
	"fmt"

	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r3"
)

// Segment recovery: make every PLC segment appear as a union of mesh
// edges. Missing segments are attacked with 2-3 flips across the crossed
// faces; when flipping stalls the missing sub-segment is bisected with a
// Steiner point placed on the segment itself.

// flipBudgetPerEdge bounds flip attempts for one missing edge before
// falling back to bisection.
const flipBudgetPerEdge = 32

type segJob struct{ u, v, seg int32 }

func (k *kernel) recoverSegments() error {
	work := make([]segJob, 0, len(k.m.segs))
	for si := range k.m.segs {
		s := &k.m.segs[si]
		work = append(work, segJob{s.u, s.v, int32(si)})
	}
	return k.processSegJobs(work)
}

// processSegJobs drains a sub-segment work list: each job is registered
// once its edge exists, carved out by flips when possible, and bisected
// otherwise. Insertions may break sub-segments recovered earlier; those are
// detected and requeued until the list is empty.
func (k *kernel) processSegJobs(work []segJob) error {
	m := k.m
	for len(work) > 0 {
		if k.b.Interrupt != nil && k.b.Interrupt() {
			return ErrCancelled
		}
		j := work[len(work)-1]
		work = work[:len(work)-1]
		if m.edgeExists(j.u, j.v) {
			k.registerSubseg(makeEdgeKey(j.u, j.v), j.seg)
			continue
		}
		if k.tryEdgeFlips(j.u, j.v) {
			k.registerSubseg(makeEdgeKey(j.u, j.v), j.seg)
			continue
		}
		w, err := k.bisectSegment(j.u, j.v, j.seg)
		if err != nil {
			return err
		}
		work = append(work, segJob{j.u, w, j.seg}, segJob{w, j.v, j.seg})
		work = append(work, k.brokenSubsegs()...)
	}
	return nil
}

// bisectSegment inserts the midpoint of (u,v) as a Steiner point lying on
// segment si. The midpoint is on the segment, so it cannot violate the
// segment's own protection sphere.
func (k *kernel) bisectSegment(u, v, si int32) (int32, error) {
	m := k.m
	if err := k.spendSteiner(); err != nil {
		return -1, fmt.Errorf("%w: segment %d-%d", err, u, v)
	}
	seg := &m.segs[si]
	mid := r3.Scale(0.5, r3.Add(m.pos(u), m.pos(v)))
	w, _, err := m.insert(mid, seg.marker, m.verts[u].tet, insertOpts{
		kind:       kindSteinerSegment,
		walls:      true,
		crossFacet: func(f int32) bool { return containsInt32(seg.facets, f) },
	})
	if err != nil {
		return -1, fmt.Errorf("%w: bisecting segment %d-%d: %v", ErrRecovery, u, v, err)
	}
	m.verts[w].seg = si
	m.verts[w].facets = append([]int32(nil), seg.facets...)
	return w, nil
}

// splitSubseg replaces a registered sub-segment with its two halves around
// a new midpoint vertex. Used when a candidate insertion point encroaches
// the sub-segment's protection sphere.
func (k *kernel) splitSubseg(key edgeKey) error {
	m := k.m
	si, ok := m.subsegs[key]
	if !ok {
		return nil
	}
	delete(m.subsegs, key)
	k.encroachRemoveSubseg(key)
	w, err := k.bisectSegment(key[0], key[1], si)
	if err != nil {
		return err
	}
	work := []segJob{{key[0], w, si}, {w, key[1], si}}
	work = append(work, k.brokenSubsegs()...)
	return k.processSegJobs(work)
}

func (k *kernel) registerSubseg(key edgeKey, si int32) {
	k.m.subsegs[key] = si
	k.encroachAddSubseg(key)
}

// brokenSubsegs drops registered sub-segments that no longer exist as mesh
// edges and returns them as recovery jobs.
func (k *kernel) brokenSubsegs() []segJob {
	m := k.m
	var broken []edgeKey
	for key := range m.subsegs {
		if !m.edgeExists(key[0], key[1]) {
			broken = append(broken, key)
		}
	}
	jobs := make([]segJob, 0, len(broken))
	for _, key := range broken {
		si := m.subsegs[key]
		delete(m.subsegs, key)
		k.encroachRemoveSubseg(key)
		jobs = append(jobs, segJob{key[0], key[1], si})
	}
	return jobs
}

// tryEdgeFlips attempts to carve edge (u,v) into existence by flipping the
// faces the open segment crosses. Returns true once the edge exists.
func (k *kernel) tryEdgeFlips(u, v int32) bool {
	m := k.m
	for attempt := 0; attempt < flipBudgetPerEdge; attempt++ {
		if m.edgeExists(u, v) {
			return true
		}
		t, face := k.segmentExitFace(u, v)
		if t == noTet {
			return false
		}
		if !m.flip23(t, face) {
			return false
		}
	}
	return m.edgeExists(u, v)
}

// segmentExitFace finds a cell incident to u whose opposite face is pierced
// by the open segment u->v, returning the cell and that face index.
func (k *kernel) segmentExitFace(u, v int32) (int32, int) {
	m := k.m
	pu, pv := m.pos(u), m.pos(v)
	inc := m.incidentTets(u, nil)
	for _, t := range inc {
		i := m.vertIndexIn(t, u)
		tri := m.faceTriple(t, i)
		// The segment leaves through the face when v is beyond its plane
		// and inside the three side planes through u.
		if robust.Orient3(m.pos(tri[0]), m.pos(tri[1]), m.pos(tri[2]), pv) >= 0 {
			continue
		}
		if robust.Orient3(pu, m.pos(tri[0]), m.pos(tri[1]), pv) < 0 ||
			robust.Orient3(pu, m.pos(tri[1]), m.pos(tri[2]), pv) < 0 ||
			robust.Orient3(pu, m.pos(tri[2]), m.pos(tri[0]), pv) < 0 {
			continue
		}
		return t, i
	}
	return noTet, -1
}

// spendSteiner consumes one unit of the Steiner budget.
func (k *kernel) spendSteiner() error {
	k.steinerUsed++
	if k.b.SteinerLimit > 0 && k.steinerUsed > k.b.SteinerLimit {
		return fmt.Errorf("%w: Steiner budget of %d exhausted", ErrRecovery, k.b.SteinerLimit)
	}
	return nil
}
