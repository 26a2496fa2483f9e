// Package tetra generates tetrahedral meshes: Delaunay tetrahedralizations
// of point sets, constrained tetrahedralizations of piecewise linear
// complexes, and quality meshes refined to a radius-edge ratio and volume
// bound, with the dual Voronoi vertices on request.
//
// The kernel is single threaded and owns its mesh store for the whole of a
// Tetrahedralize call. Robustness rests on the sign-exact predicates of
// package robust; cospherical ties are broken by symbolic perturbation so
// no degenerate case reaches the topology code.
package tetra

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/soypat/tetra/internal/d3"
	"github.com/soypat/tetra/robust"
	"gonum.org/v1/gonum/spatial/r3"
)

// Polygon is one vertex loop of a facet.
type Polygon struct {
	Vertices []int
}

// Facet is a planar PLC face: one or more coplanar polygons, optional hole
// points punching openings in the facet plane, and a boundary marker.
type Facet struct {
	Polygons []Polygon
	Holes    []r3.Vec
	Marker   int
}

// Region seeds a PLC-bounded component with an attribute and an optional
// maximum cell volume (zero for none).
type Region struct {
	Point     r3.Vec
	Attribute float64
	MaxVolume float64
}

// IO carries a mesh across the kernel boundary, both as input geometry and
// as generated output. Field groups mirror the classic node/poly/ele/face/
// edge files.
type IO struct {
	// FirstNumber is the index base used when the mesh is written to disk.
	FirstNumber int

	Points       []r3.Vec
	PointAttrs   [][]float64
	PointMarkers []int

	Facets  []Facet
	Holes   []r3.Vec
	Regions []Region

	Tetrahedra [][4]int
	TetAttrs   [][]float64

	Faces       [][3]int
	FaceMarkers []int

	Edges       [][2]int
	EdgeMarkers []int

	VoronoiPoints []r3.Vec

	Stats Statistics
}

type kernel struct {
	b           Behavior
	m           *mesh
	facets      []plcFacet
	encroach    *encroachIndex
	stats       Statistics
	steinerUsed int
	// hullWalls marks that the convex hull faces stand in for PLC
	// subfaces (plain point-cloud refinement).
	hullWalls bool
}

// Tetrahedralize runs the meshing pipeline configured by b on the input
// geometry. add optionally supplies extra points to insert (switch -i) and
// may be nil.
//
// Recovery and quality errors (ErrRecovery, ErrQuality) return the best
// mesh built so far together with the error; every other error returns a
// nil mesh.
func Tetrahedralize(b Behavior, in *IO, add *IO) (*IO, error) {
	start := time.Now()
	k := &kernel{b: b, m: newMesh()}
	b.vlogf("tetra: quality tetrahedral mesh generator")

	if err := validateInput(&b, in, add); err != nil {
		return nil, err
	}
	k.stats.InputPoints = len(in.Points)
	k.stats.InputFacets = len(in.Facets)

	if b.Diagnose {
		k.diagnoseFacets(in)
		return &IO{}, nil
	}

	var err error
	if b.Refine {
		err = k.rebuildFromMesh(in)
	} else {
		err = k.buildDelaunay(in, add)
	}
	if err != nil {
		return nil, err
	}

	plc := b.PLC && !b.Refine && !b.Convex
	if plc {
		err = k.recoverPLC(in)
		if err == nil && b.Conforming {
			err = k.enforceConforming()
		}
	} else if !b.Refine {
		k.classifyConvex()
	}
	partial := false
	if err != nil {
		if errors.Is(err, ErrRecovery) {
			partial = true
			k.classifyPartial()
		} else {
			return nil, err
		}
	}

	if err == nil && (b.Quality || b.FixedVolume || b.VarVolume) {
		if !plc {
			k.registerHullSubfaces()
		}
		err = k.refine()
		if err != nil {
			if errors.Is(err, ErrQuality) || errors.Is(err, ErrRecovery) {
				partial = true
			} else {
				return nil, err
			}
		}
	}

	if b.DoCheck {
		if cerr := k.m.check(); cerr != nil {
			return nil, cerr
		}
	}

	out := k.buildOutput()
	k.stats.Duration = time.Since(start)
	out.Stats = k.stats
	if !b.Quiet {
		k.printStatistics()
	}
	if partial {
		return out, err
	}
	return out, nil
}

// validateInput rejects malformed geometry before any mesh exists.
func validateInput(b *Behavior, in *IO, add *IO) error {
	if in == nil {
		return fmt.Errorf("%w: nil input", ErrInput)
	}
	if len(in.Points) < 4 && !b.Refine {
		return fmt.Errorf("%w: need at least 4 points, got %d", ErrInput, len(in.Points))
	}
	if err := validatePoints(in.Points); err != nil {
		return err
	}
	if b.InsertAddPoints && add != nil {
		if err := validatePoints(add.Points); err != nil {
			return err
		}
	}
	if in.PointAttrs != nil && len(in.PointAttrs) != len(in.Points) {
		return fmt.Errorf("%w: %d attribute rows for %d points", ErrInput, len(in.PointAttrs), len(in.Points))
	}
	if in.PointMarkers != nil && len(in.PointMarkers) != len(in.Points) {
		return fmt.Errorf("%w: %d markers for %d points", ErrInput, len(in.PointMarkers), len(in.Points))
	}
	if b.Refine {
		if len(in.Tetrahedra) == 0 {
			return fmt.Errorf("%w: refine mode needs tetrahedra", ErrInput)
		}
		for ti, tet := range in.Tetrahedra {
			for _, v := range tet {
				if v < 0 || v >= len(in.Points) {
					return fmt.Errorf("%w: tetrahedron %d references vertex %d", ErrInput, ti, v)
				}
			}
		}
	}
	return checkCoincident(in.Points, addPoints(b, add))
}

func addPoints(b *Behavior, add *IO) []r3.Vec {
	if b.InsertAddPoints && add != nil {
		return add.Points
	}
	return nil
}

func validatePoints(pts []r3.Vec) error {
	for i, p := range pts {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return fmt.Errorf("%w: point %d has a non-finite coordinate", ErrInput, i)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// checkCoincident reports the first pair of exactly equal points. Exact
// equality matches predicate-level coincidence: any separation at all is
// meshable.
func checkCoincident(pts, extra []r3.Vec) error {
	all := make([]r3.Vec, 0, len(pts)+len(extra))
	all = append(all, pts...)
	all = append(all, extra...)
	idx := make([]int, len(all))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		p, q := all[idx[a]], all[idx[b]]
		if p.X != q.X {
			return p.X < q.X
		}
		if p.Y != q.Y {
			return p.Y < q.Y
		}
		return p.Z < q.Z
	})
	for i := 1; i < len(idx); i++ {
		p, q := all[idx[i-1]], all[idx[i]]
		if p.X == q.X && p.Y == q.Y && p.Z == q.Z {
			return fmt.Errorf("%w: points %d and %d", ErrCoincident, idx[i-1], idx[i])
		}
	}
	return nil
}

// buildDelaunay constructs the Delaunay tetrahedralization of the input
// points inside the bounding simplex, in BRIO order.
func (k *kernel) buildDelaunay(in *IO, add *IO) error {
	m := k.m
	extra := addPoints(&k.b, add)
	set := make(d3.Set, 0, len(in.Points)+len(extra))
	set = append(set, in.Points...)
	set = append(set, extra...)
	box := r3.Box{Min: set.Min(), Max: set.Max()}
	m.initBoundingSimplex(box)

	if in.PointAttrs != nil {
		m.vattrs = make([][]float64, len(m.verts))
	}
	verts := make([]int32, 0, len(set))
	for i, p := range set {
		marker := int32(0)
		if i < len(in.PointMarkers) {
			marker = int32(in.PointMarkers[i])
		}
		vi := m.addVertex(p, marker, kindInput)
		if m.vattrs != nil && i < len(in.PointAttrs) {
			m.vattrs[vi] = in.PointAttrs[i]
		}
		verts = append(verts, vi)
	}
	order := m.brioOrder(verts)
	k.b.vlogf("inserting %d points", len(order))
	return m.delaunayInsertAll(order, k.b.Interrupt)
}

// recoverPLC runs segment recovery, facet recovery and region flooding.
func (k *kernel) recoverPLC(in *IO) error {
	vmap := make([]int32, len(in.Points))
	for i := range vmap {
		vmap[i] = int32(i) + k.m.nVirtual
	}
	if err := k.buildPLC(in, vmap); err != nil {
		return err
	}
	k.b.vlogf("recovering %d segments", len(k.m.segs))
	if err := k.recoverSegments(); err != nil {
		return err
	}
	k.b.vlogf("recovering %d facets", len(k.facets))
	if err := k.recoverFacets(); err != nil {
		return err
	}
	return k.floodRegions(in)
}

// classifyPartial labels whatever is unlabeled so a best-effort mesh can be
// extracted alongside a recovery error.
func (k *kernel) classifyPartial() {
	m := k.m
	m.liveTets(func(t int32) {
		if m.tets[t].status == cellOpen {
			if m.ghost(t) {
				m.tets[t].status = cellExterior
			} else {
				m.tets[t].status = cellInterior
			}
		}
	})
}

// registerHullSubfaces protects the convex hull before refining a plain
// point cloud, so circumcenter insertions cannot push material outside.
func (k *kernel) registerHullSubfaces() {
	m := k.m
	k.hullWalls = true
	m.boundaryFaces(func(t int32, i int, tri [3]int32) {
		key := makeTriKey(tri[0], tri[1], tri[2])
		if _, ok := m.subfaces[key]; !ok {
			m.subfaces[key] = subface{facet: -1}
		}
	})
}

// rebuildFromMesh loads an existing mesh for refinement: cells are rebuilt
// with positive orientation, neighbors matched through shared faces, and
// every boundary face registered as a constraint wall.
func (k *kernel) rebuildFromMesh(in *IO) error {
	m := k.m
	if in.PointAttrs != nil {
		m.vattrs = make([][]float64, 0, len(in.Points))
	}
	for i, p := range in.Points {
		marker := int32(0)
		if i < len(in.PointMarkers) {
			marker = int32(in.PointMarkers[i])
		}
		vi := m.addVertex(p, marker, kindInput)
		if m.vattrs != nil {
			if i < len(in.PointAttrs) {
				m.vattrs[vi] = in.PointAttrs[i]
			}
		}
	}
	type faceRef struct {
		t int32
		i int
	}
	open := make(map[triKey]faceRef, 2*len(in.Tetrahedra))
	for ti, tet := range in.Tetrahedra {
		a, b, c, d := int32(tet[0]), int32(tet[1]), int32(tet[2]), int32(tet[3])
		if robust.Orient3(m.pos(a), m.pos(b), m.pos(c), m.pos(d)) < 0 {
			b, c = c, b
		}
		if robust.Orient3(m.pos(a), m.pos(b), m.pos(c), m.pos(d)) <= 0 {
			return fmt.Errorf("%w: tetrahedron %d is degenerate", ErrInput, ti)
		}
		t := m.newTet(a, b, c, d)
		m.tets[t].status = cellInterior
		if k.b.RegionAttrib && ti < len(in.TetAttrs) && len(in.TetAttrs[ti]) > 0 {
			m.tets[t].region = in.TetAttrs[ti][0]
		}
		for i := 0; i < 4; i++ {
			key := m.faceKey(t, i)
			if prev, ok := open[key]; ok {
				m.bondFaces(t, i, prev.t, prev.i)
				delete(open, key)
			} else {
				open[key] = faceRef{t, i}
			}
		}
	}
	// Unpaired faces are the boundary; they become constraint walls.
	inputMarkers := make(map[triKey]int32, len(in.Faces))
	for i, f := range in.Faces {
		if i < len(in.FaceMarkers) {
			inputMarkers[makeTriKey(int32(f[0]), int32(f[1]), int32(f[2]))] = int32(in.FaceMarkers[i])
		}
	}
	for key := range open {
		m.subfaces[key] = subface{facet: -1, marker: inputMarkers[key]}
	}
	return nil
}

// diagnoseFacets reports facet pairs whose boundaries properly cross each
// other's polygons. Detection triangulates each polygon as a fan, so it is
// a diagnostic aid rather than an exact intersection oracle.
func (k *kernel) diagnoseFacets(in *IO) {
	type tri struct{ a, b, c r3.Vec }
	facetTris := make([][]tri, len(in.Facets))
	for fi, f := range in.Facets {
		for _, poly := range f.Polygons {
			n := len(poly.Vertices)
			for i := 1; i+1 < n; i++ {
				facetTris[fi] = append(facetTris[fi], tri{
					in.Points[poly.Vertices[0]],
					in.Points[poly.Vertices[i]],
					in.Points[poly.Vertices[i+1]],
				})
			}
		}
	}
	edgesOf := func(f Facet) [][2]r3.Vec {
		var out [][2]r3.Vec
		for _, poly := range f.Polygons {
			n := len(poly.Vertices)
			for i := 0; i < n; i++ {
				out = append(out, [2]r3.Vec{
					in.Points[poly.Vertices[i]],
					in.Points[poly.Vertices[(i+1)%n]],
				})
			}
		}
		return out
	}
	count := 0
	for i := range in.Facets {
		for j := i + 1; j < len(in.Facets); j++ {
			hit := false
			for _, e := range edgesOf(in.Facets[i]) {
				for _, t := range facetTris[j] {
					if segmentCrossesTriangle(e[0], e[1], t.a, t.b, t.c) {
						hit = true
					}
				}
			}
			for _, e := range edgesOf(in.Facets[j]) {
				for _, t := range facetTris[i] {
					if segmentCrossesTriangle(e[0], e[1], t.a, t.b, t.c) {
						hit = true
					}
				}
			}
			if hit {
				count++
				k.b.logf("facets %d and %d intersect", i, j)
			}
		}
	}
	k.b.logf("diagnosis: %d intersecting facet pairs", count)
}

// segmentCrossesTriangle reports a proper crossing: the open segment pq
// pierces the open triangle abc.
func segmentCrossesTriangle(p, q, a, b, c r3.Vec) bool {
	sp := robust.Orient3(a, b, c, p)
	sq := robust.Orient3(a, b, c, q)
	if sp == 0 || sq == 0 || (sp > 0) == (sq > 0) {
		return false
	}
	s1 := robust.Orient3(p, q, a, b)
	s2 := robust.Orient3(p, q, b, c)
	s3 := robust.Orient3(p, q, c, a)
	return (s1 > 0 && s2 > 0 && s3 > 0) || (s1 < 0 && s2 < 0 && s3 < 0)
}

// buildOutput extracts the interior cells into a fresh IO.
func (k *kernel) buildOutput() *IO {
	m := k.m
	b := &k.b
	out := &IO{FirstNumber: 1}
	if b.ZeroIndex {
		out.FirstNumber = 0
	}

	// Output vertex numbering skips the bounding simplex corners.
	vmap := make([]int, len(m.verts))
	for i := range vmap {
		vmap[i] = -1
	}
	for vi := int(m.nVirtual); vi < len(m.verts); vi++ {
		vmap[vi] = len(out.Points)
		out.Points = append(out.Points, m.verts[vi].pos)
		out.PointMarkers = append(out.PointMarkers, int(m.verts[vi].marker))
		if m.vattrs != nil {
			out.PointAttrs = append(out.PointAttrs, m.vattrs[vi])
		}
	}
	if m.vattrs == nil {
		out.PointAttrs = nil
	}

	var cells []int32
	m.liveTets(func(t int32) {
		if !m.ghost(t) && m.tets[t].status == cellInterior {
			cells = append(cells, t)
		}
	})
	sortInt32(cells)
	for _, t := range cells {
		v := m.tets[t].v
		out.Tetrahedra = append(out.Tetrahedra, [4]int{
			vmap[v[0]], vmap[v[1]], vmap[v[2]], vmap[v[3]],
		})
		if b.RegionAttrib {
			out.TetAttrs = append(out.TetAttrs, []float64{m.tets[t].region})
		}
	}

	if b.FacesOut || b.PLC || b.Convex {
		m.boundaryFaces(func(t int32, i int, tri [3]int32) {
			out.Faces = append(out.Faces, [3]int{vmap[tri[0]], vmap[tri[1]], vmap[tri[2]]})
			marker := 0
			if sf, ok := m.subfaces[makeTriKey(tri[0], tri[1], tri[2])]; ok {
				marker = int(sf.marker)
			}
			out.FaceMarkers = append(out.FaceMarkers, marker)
		})
	}

	if b.EdgesOut {
		seen := map[edgeKey]bool{}
		for _, t := range cells {
			v := m.tets[t].v
			for _, e := range edgePairs {
				key := makeEdgeKey(v[e[0]], v[e[1]])
				if seen[key] {
					continue
				}
				seen[key] = true
				out.Edges = append(out.Edges, [2]int{vmap[key[0]], vmap[key[1]]})
				marker := 0
				if si, ok := m.subsegs[key]; ok {
					marker = int(m.segs[si].marker)
				}
				out.EdgeMarkers = append(out.EdgeMarkers, marker)
			}
		}
	}

	if b.VoroOut {
		out.VoronoiPoints = k.voronoiVertices(cells)
	}

	k.stats.OutputPoints = len(out.Points)
	k.stats.OutputFaces = len(out.Faces)
	k.stats.OutputEdges = len(out.Edges)
	k.computeStatistics(cells)
	return out
}
