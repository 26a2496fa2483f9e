package tetra

import "errors"

// Error kinds distinguishable with errors.Is. Malformed input, coincident
// vertices and degenerate PLCs are rejected before any mesh is built;
// recovery and quality failures return the best mesh built so far alongside
// the error; cancellation returns no mesh.
var (
	// ErrInput reports malformed input: non-finite coordinates, bad
	// indices, facet polygons with fewer than three distinct vertices, or
	// region and hole seeds outside the domain.
	ErrInput = errors.New("malformed input")
	// ErrCoincident reports two input vertices with exactly equal
	// coordinates.
	ErrCoincident = errors.New("coincident vertices")
	// ErrDegenerate reports a PLC defect: facet vertices non-coplanar
	// beyond tolerance or self-intersecting facets.
	ErrDegenerate = errors.New("degenerate piecewise linear complex")
	// ErrRecovery reports that a segment or facet could not be recovered
	// within the Steiner point budget.
	ErrRecovery = errors.New("constraint recovery failed")
	// ErrQuality reports that refinement exhausted its step limit before
	// meeting the quality bounds.
	ErrQuality = errors.New("quality refinement did not converge")
	// ErrCancelled reports that the caller's interrupt flag was observed.
	ErrCancelled = errors.New("tetrahedralization cancelled")
	// ErrInternal reports an invariant violation. It indicates a bug in the
	// predicate layer or the topology maintenance, not in the input.
	ErrInternal = errors.New("internal invariant violation")
)
