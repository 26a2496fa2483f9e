package tetra

import (
	"fmt"
)

// Region classification: flood fills over the face adjacency graph that
// stop at recovered subfaces. Cells reachable from the ghost shell without
// crossing a facet are exterior; hole seeds erase their component; region
// seeds deposit an attribute and an optional volume bound.

func (k *kernel) floodRegions(in *IO) error {
	m := k.m
	// Exterior: everything reachable from a ghost cell.
	var stack []int32
	m.liveTets(func(t int32) {
		if m.ghost(t) {
			m.tets[t].status = cellExterior
			stack = append(stack, t)
		}
	})
	k.flood(stack, cellExterior, 0, 0)

	for hi, h := range in.Holes {
		loc := m.locate(h, m.anyLiveTet(), nil)
		if loc.status != locInside || m.tets[loc.tet].status == cellExterior || m.ghost(loc.tet) {
			return fmt.Errorf("%w: hole seed %d lies outside the domain", ErrInput, hi)
		}
		if m.tets[loc.tet].status == cellHole {
			continue
		}
		m.tets[loc.tet].status = cellHole
		k.flood([]int32{loc.tet}, cellHole, 0, 0)
	}

	for ri, r := range in.Regions {
		loc := m.locate(r.Point, m.anyLiveTet(), nil)
		if loc.status != locInside || m.ghost(loc.tet) {
			return fmt.Errorf("%w: region seed %d lies outside the domain", ErrInput, ri)
		}
		st := m.tets[loc.tet].status
		if st == cellExterior || st == cellHole {
			return fmt.Errorf("%w: region seed %d lies outside the domain", ErrInput, ri)
		}
		if st == cellInterior {
			continue // already claimed by an earlier seed
		}
		m.tets[loc.tet].status = cellInterior
		m.tets[loc.tet].region = r.Attribute
		m.tets[loc.tet].maxvol = r.MaxVolume
		k.flood([]int32{loc.tet}, cellInterior, r.Attribute, r.MaxVolume)
	}

	// Anything left unreached is interior with the default attribute.
	m.liveTets(func(t int32) {
		if m.tets[t].status == cellOpen {
			m.tets[t].status = cellInterior
		}
	})
	return nil
}

// flood expands status s from the seeded stack across faces that are not
// subfaces, onto cells still open only; the seed cells are labeled by the
// caller.
func (k *kernel) flood(stack []int32, s cellStatus, attr, maxvol float64) {
	m := k.m
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i := 0; i < 4; i++ {
			u := m.tets[t].n[i]
			if u == noTet || m.tets[u].dead {
				continue
			}
			if _, wall := m.subfaces[m.faceKey(t, i)]; wall {
				continue
			}
			if m.tets[u].status != cellOpen {
				continue
			}
			m.tets[u].status = s
			m.tets[u].region = attr
			m.tets[u].maxvol = maxvol
			stack = append(stack, u)
		}
	}
}

// classifyConvex marks every non-ghost cell interior; used when no PLC
// constraints are in play and the output is the hull of the points.
func (k *kernel) classifyConvex() {
	m := k.m
	m.liveTets(func(t int32) {
		if m.ghost(t) {
			m.tets[t].status = cellExterior
		} else {
			m.tets[t].status = cellInterior
		}
	})
}
