package tetra

import (
	"math"
	"time"
)

// Statistics summarizes a tetrahedralization run. Attached to the output
// and printed unless the run is quiet.
type Statistics struct {
	InputPoints  int
	InputFacets  int
	OutputPoints int
	OutputCells  int
	OutputFaces  int
	OutputEdges  int
	SteinerPoints int

	MinRatio    float64
	MaxRatio    float64
	MinDihedral float64 // degrees
	MaxDihedral float64
	TotalVolume float64

	Duration time.Duration
}

// computeStatistics measures the output cells.
func (k *kernel) computeStatistics(cells []int32) {
	s := &k.stats
	s.OutputCells = len(cells)
	s.SteinerPoints = k.steinerUsed
	if len(cells) == 0 {
		return
	}
	s.MinRatio = math.Inf(1)
	s.MinDihedral = math.Inf(1)
	for _, t := range cells {
		a, b, c, d := k.m.tetCorners(t)
		s.TotalVolume += math.Abs(tetVolume(a, b, c, d))
		ratio := radiusEdgeRatio(a, b, c, d)
		if ratio < s.MinRatio {
			s.MinRatio = ratio
		}
		if ratio > s.MaxRatio {
			s.MaxRatio = ratio
		}
		for _, ang := range dihedralAngles(a, b, c, d) {
			if ang < s.MinDihedral {
				s.MinDihedral = ang
			}
			if ang > s.MaxDihedral {
				s.MaxDihedral = ang
			}
		}
	}
}

func (k *kernel) printStatistics() {
	b := &k.b
	s := &k.stats
	b.logf("mesh generation completed in %v", s.Duration)
	b.logf("  input points: %d, facets: %d", s.InputPoints, s.InputFacets)
	b.logf("  output points: %d, tetrahedra: %d", s.OutputPoints, s.OutputCells)
	if s.SteinerPoints > 0 {
		b.logf("  Steiner points: %d", s.SteinerPoints)
	}
	if s.OutputCells > 0 {
		b.logf("  radius-edge ratio range: %.3f - %.3f", s.MinRatio, s.MaxRatio)
		b.logf("  dihedral angle range: %.1f - %.1f degrees", s.MinDihedral, s.MaxDihedral)
		b.logf("  total volume: %.6e", s.TotalVolume)
	}
}
