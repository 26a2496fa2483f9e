// Package robust implements sign-exact geometric predicates for 3D mesh
// generation: orientation and in-sphere tests that never report a wrong
// sign, plus index-based symbolic perturbation for cospherical input.
//
// Each predicate first evaluates the determinant in ordinary floating point
// guarded by a forward error bound. Only when the bound cannot certify the
// sign does it recompute the determinant exactly with expansion arithmetic.
package robust

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Orient2 returns a positive value if a, b, c occur in counterclockwise
// order, negative if clockwise and zero if collinear. The sign is exact.
func Orient2(a, b, c r2.Vec) float64 {
	detleft := (a.X - c.X) * (b.Y - c.Y)
	detright := (a.Y - c.Y) * (b.X - c.X)
	det := detleft - detright
	if detleft > 0 {
		if detright <= 0 {
			return det
		}
	} else if detleft < 0 {
		if detright >= 0 {
			return det
		}
	} else {
		return det
	}
	detsum := abs(detleft + detright)
	if abs(det) >= ccwErrBoundA*detsum {
		return det
	}
	return orient2Exact(a, b, c)
}

func orient2Exact(a, b, c r2.Vec) float64 {
	det := expSum(crossExpansion(b.X, b.Y, c.X, c.Y),
		expNeg(crossExpansion(a.X, a.Y, c.X, c.Y)))
	det = expSum(det, crossExpansion(a.X, a.Y, b.X, b.Y))
	return expSign(det)
}

// Orient3 returns a positive value if d lies below the plane through a, b,
// c, where "below" means a, b, c appear counterclockwise when viewed from
// above. Zero means coplanar. The sign is exact.
func Orient3(a, b, c, d r3.Vec) float64 {
	adx := a.X - d.X
	bdx := b.X - d.X
	cdx := c.X - d.X
	ady := a.Y - d.Y
	bdy := b.Y - d.Y
	cdy := c.Y - d.Y
	adz := a.Z - d.Z
	bdz := b.Z - d.Z
	cdz := c.Z - d.Z

	bdxcdy := bdx * cdy
	cdxbdy := cdx * bdy
	cdxady := cdx * ady
	adxcdy := adx * cdy
	adxbdy := adx * bdy
	bdxady := bdx * ady

	det := adz*(bdxcdy-cdxbdy) + bdz*(cdxady-adxcdy) + cdz*(adxbdy-bdxady)
	permanent := (abs(bdxcdy)+abs(cdxbdy))*abs(adz) +
		(abs(cdxady)+abs(adxcdy))*abs(bdz) +
		(abs(adxbdy)+abs(bdxady))*abs(cdz)
	errbound := o3dErrBoundA * permanent
	if det > errbound || -det > errbound {
		return det
	}
	return orient3Exact(a, b, c, d)
}

// det3Expansion returns the exact expansion of the 3x3 determinant with
// rows p, q, r over columns x, y, z.
func det3Expansion(p, q, r r3.Vec) []float64 {
	qr := crossExpansion(q.X, q.Y, r.X, r.Y)
	pr := crossExpansion(p.X, p.Y, r.X, r.Y)
	pq := crossExpansion(p.X, p.Y, q.X, q.Y)
	det := expSum(expScale(qr, p.Z), expScale(pr, -q.Z))
	return expSum(det, expScale(pq, r.Z))
}

func orient3Exact(a, b, c, d r3.Vec) float64 {
	// 4x4 determinant with a unit last column, expanded along that column.
	det := expSum(expNeg(det3Expansion(b, c, d)), det3Expansion(a, c, d))
	det = expSum(det, expNeg(det3Expansion(a, b, d)))
	det = expSum(det, det3Expansion(a, b, c))
	return expSign(det)
}

// InCircle returns a positive value if d lies inside the circle through a,
// b, c (given in counterclockwise order), negative if outside and zero if
// cocircular. The sign is exact.
func InCircle(a, b, c, d r2.Vec) float64 {
	adx := a.X - d.X
	bdx := b.X - d.X
	cdx := c.X - d.X
	ady := a.Y - d.Y
	bdy := b.Y - d.Y
	cdy := c.Y - d.Y

	bdxcdy := bdx * cdy
	cdxbdy := cdx * bdy
	alift := adx*adx + ady*ady
	cdxady := cdx * ady
	adxcdy := adx * cdy
	blift := bdx*bdx + bdy*bdy
	adxbdy := adx * bdy
	bdxady := bdx * ady
	clift := cdx*cdx + cdy*cdy

	det := alift*(bdxcdy-cdxbdy) + blift*(cdxady-adxcdy) + clift*(adxbdy-bdxady)
	permanent := (abs(bdxcdy)+abs(cdxbdy))*alift +
		(abs(cdxady)+abs(adxcdy))*blift +
		(abs(adxbdy)+abs(bdxady))*clift
	errbound := iccErrBoundA * permanent
	if det > errbound || -det > errbound {
		return det
	}
	return inCircleExact(a, b, c, d)
}

// lift2Expansion returns the exact expansion of p.X²+p.Y².
func lift2Expansion(p r2.Vec) []float64 {
	x1, x0 := square(p.X)
	y1, y0 := square(p.Y)
	return expSum([]float64{x0, x1}, []float64{y0, y1})
}

// minor3x2 returns the exact expansion of the 3x3 determinant with rows p,
// q, r over columns x, y, lift.
func minor3x2(p, q, r r2.Vec) []float64 {
	det := expSum(
		expMul(crossExpansion(q.X, q.Y, r.X, r.Y), lift2Expansion(p)),
		expNeg(expMul(crossExpansion(p.X, p.Y, r.X, r.Y), lift2Expansion(q))))
	return expSum(det, expMul(crossExpansion(p.X, p.Y, q.X, q.Y), lift2Expansion(r)))
}

func inCircleExact(a, b, c, d r2.Vec) float64 {
	det := expSum(expNeg(minor3x2(b, c, d)), minor3x2(a, c, d))
	det = expSum(det, expNeg(minor3x2(a, b, d)))
	det = expSum(det, minor3x2(a, b, c))
	return expSign(det)
}

// InSphere returns a positive value if e lies inside the sphere through a,
// b, c, d (with Orient3(a,b,c,d) > 0), negative if outside and zero if the
// five points are cospherical. The sign is exact.
func InSphere(a, b, c, d, e r3.Vec) float64 {
	aex := a.X - e.X
	bex := b.X - e.X
	cex := c.X - e.X
	dex := d.X - e.X
	aey := a.Y - e.Y
	bey := b.Y - e.Y
	cey := c.Y - e.Y
	dey := d.Y - e.Y
	aez := a.Z - e.Z
	bez := b.Z - e.Z
	cez := c.Z - e.Z
	dez := d.Z - e.Z

	aexbey := aex * bey
	bexaey := bex * aey
	ab := aexbey - bexaey
	bexcey := bex * cey
	cexbey := cex * bey
	bc := bexcey - cexbey
	cexdey := cex * dey
	dexcey := dex * cey
	cd := cexdey - dexcey
	dexaey := dex * aey
	aexdey := aex * dey
	da := dexaey - aexdey
	aexcey := aex * cey
	cexaey := cex * aey
	ac := aexcey - cexaey
	bexdey := bex * dey
	dexbey := dex * bey
	bd := bexdey - dexbey

	abc := aez*bc - bez*ac + cez*ab
	bcd := bez*cd - cez*bd + dez*bc
	cda := cez*da + dez*ac + aez*cd
	dab := dez*ab + aez*bd + bez*da

	alift := aex*aex + aey*aey + aez*aez
	blift := bex*bex + bey*bey + bez*bez
	clift := cex*cex + cey*cey + cez*cez
	dlift := dex*dex + dey*dey + dez*dez

	det := (dlift*abc - clift*dab) + (blift*cda - alift*bcd)

	aezplus := abs(aez)
	bezplus := abs(bez)
	cezplus := abs(cez)
	dezplus := abs(dez)
	aexbeyplus := abs(aexbey)
	bexaeyplus := abs(bexaey)
	bexceyplus := abs(bexcey)
	cexbeyplus := abs(cexbey)
	cexdeyplus := abs(cexdey)
	dexceyplus := abs(dexcey)
	dexaeyplus := abs(dexaey)
	aexdeyplus := abs(aexdey)
	aexceyplus := abs(aexcey)
	cexaeyplus := abs(cexaey)
	bexdeyplus := abs(bexdey)
	dexbeyplus := abs(dexbey)
	permanent := ((cexdeyplus+dexceyplus)*bezplus+
		(dexbeyplus+bexdeyplus)*cezplus+
		(bexceyplus+cexbeyplus)*dezplus)*alift +
		((dexaeyplus+aexdeyplus)*cezplus+
			(aexceyplus+cexaeyplus)*dezplus+
			(cexdeyplus+dexceyplus)*aezplus)*blift +
		((aexbeyplus+bexaeyplus)*dezplus+
			(bexdeyplus+dexbeyplus)*aezplus+
			(dexaeyplus+aexdeyplus)*bezplus)*clift +
		((bexceyplus+cexbeyplus)*aezplus+
			(cexaeyplus+aexceyplus)*bezplus+
			(aexbeyplus+bexaeyplus)*cezplus)*dlift
	errbound := ispErrBoundA * permanent
	if det > errbound || -det > errbound {
		return det
	}
	return inSphereExact(a, b, c, d, e)
}

// expMul returns the exact product of two expansions.
func expMul(e, f []float64) []float64 {
	res := []float64{0}
	for _, v := range f {
		if v != 0 {
			res = expSum(res, expScale(e, v))
		}
	}
	return res
}

// lift3Expansion returns the exact expansion of p.X²+p.Y²+p.Z².
func lift3Expansion(p r3.Vec) []float64 {
	x1, x0 := square(p.X)
	y1, y0 := square(p.Y)
	z1, z0 := square(p.Z)
	return expSum(expSum([]float64{x0, x1}, []float64{y0, y1}), []float64{z0, z1})
}

// minor4 returns the exact expansion of the 4x4 determinant with rows p, q,
// r, s over columns x, y, z, lift.
func minor4(p, q, r, s r3.Vec) []float64 {
	det := expSum(
		expNeg(expMul(det3Expansion(q, r, s), lift3Expansion(p))),
		expMul(det3Expansion(p, r, s), lift3Expansion(q)))
	det = expSum(det, expNeg(expMul(det3Expansion(p, q, s), lift3Expansion(r))))
	return expSum(det, expMul(det3Expansion(p, q, r), lift3Expansion(s)))
}

func inSphereExact(a, b, c, d, e r3.Vec) float64 {
	// 5x5 determinant over columns x, y, z, lift, 1 expanded along the unit
	// column.
	det := expSum(minor4(b, c, d, e), expNeg(minor4(a, c, d, e)))
	det = expSum(det, minor4(a, b, d, e))
	det = expSum(det, expNeg(minor4(a, b, c, e)))
	det = expSum(det, minor4(a, b, c, d))
	return expSign(det)
}

// InSpherePerturbed is InSphere under symbolic perturbation: when the five
// points are exactly cospherical the tie is broken deterministically from
// the vertex indices ia..ie, as if each vertex were displaced by an
// infinitesimal that shrinks as its index grows, so the lowest index
// decides first. The result is never zero for
// five distinct points spanning 3D, and is antisymmetric under swaps of the
// first four arguments.
func InSpherePerturbed(a, b, c, d, e r3.Vec, ia, ib, ic, id, ie int) float64 {
	det := InSphere(a, b, c, d, e)
	if det != 0 {
		return det
	}
	// Sort the five vertices by index with a bubble sort,
	// tracking swap parity. The perturbed determinant's sign is that of the
	// first non-vanishing orientation minor of the sorted tuple.
	pt := [5]r3.Vec{a, b, c, d, e}
	idx := [5]int{ia, ib, ic, id, ie}
	swaps := 0
	for i := 0; i < 4; i++ {
		for j := 0; j < 4-i; j++ {
			if idx[j] > idx[j+1] {
				idx[j], idx[j+1] = idx[j+1], idx[j]
				pt[j], pt[j+1] = pt[j+1], pt[j]
				swaps++
			}
		}
	}
	oriA := Orient3(pt[1], pt[2], pt[3], pt[4])
	if oriA != 0 {
		if swaps%2 != 0 {
			return -oriA
		}
		return oriA
	}
	oriB := -Orient3(pt[0], pt[2], pt[3], pt[4])
	if swaps%2 != 0 {
		return -oriB
	}
	return oriB
}
