package tetra

import (
	"math/rand"
	"sort"

	"github.com/soypat/tetra/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Biased randomized insertion order: points are shuffled, partitioned into
// rounds of geometrically increasing size and sorted along a Hilbert curve
// inside each round, so consecutive insertions locate near one another.
// The shuffle uses a fixed seed: correctness never depends on the order and
// a deterministic order keeps repeated runs bit identical.

const brioSeed = 0x7e7a

// brioOrder returns a permutation of verts (mesh vertex indices) in
// BRIO+Hilbert order.
func (m *mesh) brioOrder(verts []int32) []int32 {
	n := len(verts)
	order := make([]int32, n)
	copy(order, verts)
	if n < 2 {
		return order
	}
	rng := rand.New(rand.NewSource(brioSeed))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	keys := m.hilbertKeys(order)
	// Rounds grow by halving from the back: the final round holds half the
	// points, the one before a quarter, and so on down to a small seed.
	cuts := []int{0}
	for hi := n; hi > 16; hi = (hi + 1) / 2 {
		cuts = append(cuts, hi)
	}
	sort.Ints(cuts)
	if cuts[len(cuts)-1] != n {
		cuts = append(cuts, n)
	}
	for k := 0; k+1 < len(cuts); k++ {
		lo, hi := cuts[k], cuts[k+1]
		sort.Sort(&byKey{order[lo:hi], keys[lo:hi]})
	}
	return order
}

type byKey struct {
	idx  []int32
	keys []uint64
}

func (s *byKey) Len() int { return len(s.idx) }
func (s *byKey) Less(i, j int) bool {
	if s.keys[i] != s.keys[j] {
		return s.keys[i] < s.keys[j]
	}
	return s.idx[i] < s.idx[j]
}
func (s *byKey) Swap(i, j int) {
	s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
}

const hilbertBits = 10

// hilbertKeys quantizes the vertex positions onto a 2^10 grid over their
// bounding box and maps each to its 30-bit Hilbert index.
func (m *mesh) hilbertKeys(verts []int32) []uint64 {
	if len(verts) == 0 {
		return nil
	}
	set := make(d3.Set, len(verts))
	for i, v := range verts {
		set[i] = m.pos(v)
	}
	min, max := set.Min(), set.Max()
	size := r3.Sub(max, min)
	span := d3.Max(size)
	if span <= 0 {
		span = 1
	}
	const side = 1<<hilbertBits - 1
	keys := make([]uint64, len(verts))
	for i, v := range verts {
		p := r3.Scale(side/span, r3.Sub(m.pos(v), min))
		x := clampGrid(p.X)
		y := clampGrid(p.Y)
		z := clampGrid(p.Z)
		keys[i] = hilbert3(x, y, z)
	}
	return keys
}

func clampGrid(v float64) uint32 {
	if v < 0 {
		return 0
	}
	if v > 1<<hilbertBits-1 {
		return 1<<hilbertBits - 1
	}
	return uint32(v)
}

// hilbert3 maps grid coordinates to their Hilbert curve index using
// Skilling's transposition algorithm.
func hilbert3(x, y, z uint32) uint64 {
	X := [3]uint32{x, y, z}
	M := uint32(1) << (hilbertBits - 1)
	// Inverse undo excess work.
	for Q := M; Q > 1; Q >>= 1 {
		P := Q - 1
		for i := 0; i < 3; i++ {
			if X[i]&Q != 0 {
				X[0] ^= P
			} else {
				t := (X[0] ^ X[i]) & P
				X[0] ^= t
				X[i] ^= t
			}
		}
	}
	// Gray encode.
	for i := 1; i < 3; i++ {
		X[i] ^= X[i-1]
	}
	t := uint32(0)
	for Q := M; Q > 1; Q >>= 1 {
		if X[2]&Q != 0 {
			t ^= Q - 1
		}
	}
	for i := 0; i < 3; i++ {
		X[i] ^= t
	}
	// Interleave the transposed form, X[0] carrying the highest bits.
	var key uint64
	for b := hilbertBits - 1; b >= 0; b-- {
		for i := 0; i < 3; i++ {
			key = key<<1 | uint64(X[i]>>uint(b)&1)
		}
	}
	return key
}
