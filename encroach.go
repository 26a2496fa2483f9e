package tetra

import (
	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r3"
)

// Encroachment bookkeeping. Every sub-segment is protected by its diametral
// sphere and every subface by the diametral ball of its triangle; a
// candidate Steiner point falling strictly inside a protection ball must
// split the protected feature instead. The balls are held in an R-tree so
// queries stay local as the mesh grows.

type protKind uint8

const (
	protSubseg protKind = iota
	protSubface
)

type protBall struct {
	kind   protKind
	seg    edgeKey
	face   triKey
	center r3.Vec
	radius float64
	rect   *rtreego.Rect
}

func (b *protBall) Bounds() *rtreego.Rect { return b.rect }

func ballRect(center r3.Vec, radius float64) *rtreego.Rect {
	r, err := rtreego.NewRect(
		rtreego.Point{center.X - radius, center.Y - radius, center.Z - radius},
		[]float64{2 * radius, 2 * radius, 2 * radius})
	if err != nil {
		panic("tetra: degenerate protection ball")
	}
	return r
}

type encroachIndex struct {
	rt    *rtreego.Rtree
	segs  map[edgeKey]*protBall
	faces map[triKey]*protBall
}

func newEncroachIndex() *encroachIndex {
	return &encroachIndex{
		rt:    rtreego.NewTree(3, 8, 32),
		segs:  make(map[edgeKey]*protBall),
		faces: make(map[triKey]*protBall),
	}
}

// buildEncroachIndex indexes every registered sub-segment and subface.
func (k *kernel) buildEncroachIndex() {
	k.encroach = newEncroachIndex()
	for key := range k.m.subsegs {
		k.encroachAddSubseg(key)
	}
	for key := range k.m.subfaces {
		k.encroachAddSubface(key)
	}
}

func (k *kernel) encroachAddSubseg(key edgeKey) {
	if k.encroach == nil {
		return
	}
	if _, ok := k.encroach.segs[key]; ok {
		return
	}
	m := k.m
	c := r3.Scale(0.5, r3.Add(m.pos(key[0]), m.pos(key[1])))
	r := 0.5 * r3.Norm(r3.Sub(m.pos(key[1]), m.pos(key[0])))
	if r == 0 {
		return
	}
	b := &protBall{kind: protSubseg, seg: key, center: c, radius: r, rect: ballRect(c, r)}
	k.encroach.segs[key] = b
	k.encroach.rt.Insert(b)
}

func (k *kernel) encroachRemoveSubseg(key edgeKey) {
	if k.encroach == nil {
		return
	}
	if b, ok := k.encroach.segs[key]; ok {
		k.encroach.rt.Delete(b)
		delete(k.encroach.segs, key)
	}
}

func (k *kernel) encroachAddSubface(key triKey) {
	if k.encroach == nil {
		return
	}
	if _, ok := k.encroach.faces[key]; ok {
		return
	}
	m := k.m
	c, r := triangleDiametral(m.pos(key[0]), m.pos(key[1]), m.pos(key[2]))
	if r == 0 {
		return
	}
	b := &protBall{kind: protSubface, face: key, center: c, radius: r, rect: ballRect(c, r)}
	k.encroach.faces[key] = b
	k.encroach.rt.Insert(b)
}

func (k *kernel) encroachRemoveSubface(key triKey) {
	if k.encroach == nil {
		return
	}
	if b, ok := k.encroach.faces[key]; ok {
		k.encroach.rt.Delete(b)
		delete(k.encroach.faces, key)
	}
}

// triangleDiametral returns the center and radius of a triangle's
// diametral ball: the smallest sphere through its circumcircle.
func triangleDiametral(a, b, c r3.Vec) (r3.Vec, float64) {
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	n := r3.Cross(ab, ac)
	n2 := r3.Norm2(n)
	if n2 == 0 {
		center := r3.Scale(1.0/3, r3.Add(r3.Add(a, b), c))
		return center, 0
	}
	// Circumcenter of the triangle in its own plane.
	rel := r3.Scale(1/(2*n2), r3.Add(
		r3.Scale(r3.Norm2(ac), r3.Cross(n, ab)),
		r3.Scale(r3.Norm2(ab), r3.Cross(ac, n))))
	center := r3.Add(a, rel)
	return center, r3.Norm(r3.Sub(center, a))
}

// encroachedSubseg returns a sub-segment whose protection sphere strictly
// contains p. Falls back to a linear scan before the index exists.
func (k *kernel) encroachedSubseg(p r3.Vec) (edgeKey, bool) {
	m := k.m
	if k.encroach == nil {
		for key := range m.subsegs {
			c := r3.Scale(0.5, r3.Add(m.pos(key[0]), m.pos(key[1])))
			r := 0.5 * r3.Norm(r3.Sub(m.pos(key[1]), m.pos(key[0])))
			if r3.Norm2(r3.Sub(p, c)) < r*r {
				return key, true
			}
		}
		return edgeKey{}, false
	}
	for _, s := range k.encroach.rt.SearchIntersect(pointRect(p)) {
		b := s.(*protBall)
		if b.kind != protSubseg {
			continue
		}
		if r3.Norm2(r3.Sub(p, b.center)) < b.radius*b.radius {
			return b.seg, true
		}
	}
	return edgeKey{}, false
}

// encroachedSubface returns a subface whose protection ball strictly
// contains p.
func (k *kernel) encroachedSubface(p r3.Vec) (triKey, bool) {
	if k.encroach == nil {
		return triKey{}, false
	}
	for _, s := range k.encroach.rt.SearchIntersect(pointRect(p)) {
		b := s.(*protBall)
		if b.kind != protSubface {
			continue
		}
		if r3.Norm2(r3.Sub(p, b.center)) < b.radius*b.radius {
			return b.face, true
		}
	}
	return triKey{}, false
}

func pointRect(p r3.Vec) *rtreego.Rect {
	return rtreego.Point{p.X, p.Y, p.Z}.ToRect(1e-12)
}

// refreshSubfaceIndex reconciles the index with the registry after
// insertions rewrote faces near a facet.
func (k *kernel) refreshSubfaceIndex() {
	if k.encroach == nil {
		return
	}
	var gone []triKey
	for key := range k.encroach.faces {
		if _, ok := k.m.subfaces[key]; !ok {
			gone = append(gone, key)
		}
	}
	for _, key := range gone {
		k.encroachRemoveSubface(key)
	}
	for key := range k.m.subfaces {
		k.encroachAddSubface(key)
	}
}
