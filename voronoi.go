package tetra

import "gonum.org/v1/gonum/spatial/r3"

// voronoiVertices returns the circumcenters of the output cells, in the
// same order the cells are written, forming the vertex set of the dual
// Voronoi diagram.
func (k *kernel) voronoiVertices(cells []int32) []r3.Vec {
	out := make([]r3.Vec, len(cells))
	for i, t := range cells {
		c, _ := k.m.circumsphereOf(t)
		out[i] = c
	}
	return out
}
