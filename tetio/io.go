// Package tetio reads and writes the classic TetGen text formats (.node,
// .poly, .ele, .face, .edge, .v.node) and a binary STL rendition of mesh
// boundaries. Indices in the files may start at 0 or 1; readers normalize
// to 0-based and writers honor IO.FirstNumber.
package tetio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/soypat/tetra"
	"gonum.org/v1/gonum/spatial/r3"
)

// tokenizer yields whitespace-separated fields, skipping blank lines and
// '#' comments.
type tokenizer struct {
	sc   *bufio.Scanner
	toks []string
	pos  int
	line int
}

func newTokenizer(r io.Reader) *tokenizer {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &tokenizer{sc: sc}
}

func (t *tokenizer) next() (string, error) {
	for t.pos >= len(t.toks) {
		if !t.sc.Scan() {
			if err := t.sc.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		t.line++
		line := t.sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		t.toks = strings.Fields(line)
		t.pos = 0
	}
	tok := t.toks[t.pos]
	t.pos++
	return tok, nil
}

func (t *tokenizer) int() (int, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("line %d: %q is not an integer", t.line, tok)
	}
	return v, nil
}

func (t *tokenizer) float() (float64, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %q is not a number", t.line, tok)
	}
	return v, nil
}

func (t *tokenizer) vec() (r3.Vec, error) {
	x, err := t.float()
	if err != nil {
		return r3.Vec{}, err
	}
	y, err := t.float()
	if err != nil {
		return r3.Vec{}, err
	}
	z, err := t.float()
	if err != nil {
		return r3.Vec{}, err
	}
	return r3.Vec{X: x, Y: y, Z: z}, nil
}

// ReadNode parses a .node stream: "N dim nattr nmarkers" then N points.
func ReadNode(r io.Reader) (*tetra.IO, error) {
	t := newTokenizer(r)
	out := &tetra.IO{}
	if err := readNodeSection(t, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readNodeSection(t *tokenizer, out *tetra.IO) error {
	n, err := t.int()
	if err != nil {
		return fmt.Errorf("node header: %v", err)
	}
	dim, err := t.int()
	if err != nil {
		return err
	}
	if dim != 3 {
		return fmt.Errorf("node header: dimension %d, want 3", dim)
	}
	nattr, err := t.int()
	if err != nil {
		return err
	}
	nmark, err := t.int()
	if err != nil {
		return err
	}
	if n < 0 || nattr < 0 || nmark < 0 || nmark > 1 {
		return errors.New("node header: bad counts")
	}
	out.Points = make([]r3.Vec, 0, n)
	if nattr > 0 {
		out.PointAttrs = make([][]float64, 0, n)
	}
	out.PointMarkers = make([]int, 0, n)
	first := 0
	for i := 0; i < n; i++ {
		idx, err := t.int()
		if err != nil {
			return fmt.Errorf("point %d: %v", i, err)
		}
		if i == 0 {
			if idx != 0 && idx != 1 {
				return fmt.Errorf("point indices must start at 0 or 1, got %d", idx)
			}
			first = idx
			out.FirstNumber = first
		}
		if idx != i+first {
			return fmt.Errorf("point %d: expected index %d, got %d", i, i+first, idx)
		}
		p, err := t.vec()
		if err != nil {
			return fmt.Errorf("point %d: %v", i, err)
		}
		out.Points = append(out.Points, p)
		if nattr > 0 {
			attrs := make([]float64, nattr)
			for a := range attrs {
				if attrs[a], err = t.float(); err != nil {
					return fmt.Errorf("point %d attribute: %v", i, err)
				}
			}
			out.PointAttrs = append(out.PointAttrs, attrs)
		}
		marker := 0
		if nmark == 1 {
			if marker, err = t.int(); err != nil {
				return fmt.Errorf("point %d marker: %v", i, err)
			}
		}
		out.PointMarkers = append(out.PointMarkers, marker)
	}
	return nil
}

// ReadPoly parses a .poly stream: a node section, facets, holes and
// regions. The point section must be inline (a zero point count referring
// to a separate .node file is not supported by this reader).
func ReadPoly(r io.Reader) (*tetra.IO, error) {
	t := newTokenizer(r)
	out := &tetra.IO{}
	if err := readNodeSection(t, out); err != nil {
		return nil, err
	}
	if len(out.Points) == 0 {
		return nil, errors.New("poly: point section must be inline")
	}
	base := out.FirstNumber

	nf, err := t.int()
	if err != nil {
		return nil, fmt.Errorf("facet header: %v", err)
	}
	fmark, err := t.int()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nf; i++ {
		np, err := t.int()
		if err != nil {
			return nil, fmt.Errorf("facet %d: %v", i, err)
		}
		nh, err := t.int()
		if err != nil {
			return nil, err
		}
		marker := 0
		if fmark == 1 {
			if marker, err = t.int(); err != nil {
				return nil, fmt.Errorf("facet %d marker: %v", i, err)
			}
		}
		f := tetra.Facet{Marker: marker}
		for p := 0; p < np; p++ {
			k, err := t.int()
			if err != nil {
				return nil, fmt.Errorf("facet %d polygon %d: %v", i, p, err)
			}
			poly := tetra.Polygon{Vertices: make([]int, k)}
			for v := 0; v < k; v++ {
				iv, err := t.int()
				if err != nil {
					return nil, fmt.Errorf("facet %d polygon %d: %v", i, p, err)
				}
				poly.Vertices[v] = iv - base
			}
			f.Polygons = append(f.Polygons, poly)
		}
		for h := 0; h < nh; h++ {
			hp, err := t.vec()
			if err != nil {
				return nil, fmt.Errorf("facet %d hole %d: %v", i, h, err)
			}
			f.Holes = append(f.Holes, hp)
		}
		out.Facets = append(out.Facets, f)
	}

	nh, err := t.int()
	if err != nil {
		if err == io.EOF {
			return out, nil
		}
		return nil, fmt.Errorf("hole header: %v", err)
	}
	for i := 0; i < nh; i++ {
		if _, err := t.int(); err != nil { // hole index
			return nil, fmt.Errorf("hole %d: %v", i, err)
		}
		hp, err := t.vec()
		if err != nil {
			return nil, fmt.Errorf("hole %d: %v", i, err)
		}
		out.Holes = append(out.Holes, hp)
	}

	nr, err := t.int()
	if err != nil {
		if err == io.EOF {
			return out, nil
		}
		return nil, fmt.Errorf("region header: %v", err)
	}
	for i := 0; i < nr; i++ {
		if _, err := t.int(); err != nil { // region index
			return nil, fmt.Errorf("region %d: %v", i, err)
		}
		rp, err := t.vec()
		if err != nil {
			return nil, fmt.Errorf("region %d: %v", i, err)
		}
		attr, err := t.float()
		if err != nil {
			return nil, fmt.Errorf("region %d attribute: %v", i, err)
		}
		vol, err := t.float()
		if err != nil {
			return nil, fmt.Errorf("region %d volume: %v", i, err)
		}
		out.Regions = append(out.Regions, tetra.Region{Point: rp, Attribute: attr, MaxVolume: vol})
	}
	return out, nil
}

// ReadEle parses a .ele stream into dst.Tetrahedra. Corner indices are
// normalized with dst.FirstNumber, as set by the node reader; the element
// numbering itself must start at 0 or 1.
func ReadEle(r io.Reader, dst *tetra.IO) error {
	t := newTokenizer(r)
	n, err := t.int()
	if err != nil {
		return fmt.Errorf("ele header: %v", err)
	}
	corners, err := t.int()
	if err != nil {
		return err
	}
	if corners != 4 {
		return fmt.Errorf("ele header: %d corners per cell, want 4", corners)
	}
	nattr, err := t.int()
	if err != nil {
		return err
	}
	base := -1
	for i := 0; i < n; i++ {
		idx, err := t.int()
		if err != nil {
			return fmt.Errorf("cell %d: %v", i, err)
		}
		if i == 0 {
			if idx != 0 && idx != 1 {
				return fmt.Errorf("cell indices must start at 0 or 1, got %d", idx)
			}
			base = idx
		}
		var cell [4]int
		for c := 0; c < 4; c++ {
			v, err := t.int()
			if err != nil {
				return fmt.Errorf("cell %d: %v", i, err)
			}
			cell[c] = v - dst.FirstNumber
			if cell[c] < 0 || cell[c] >= len(dst.Points) {
				return fmt.Errorf("cell %d references point %d of %d", i+base, v, len(dst.Points))
			}
		}
		dst.Tetrahedra = append(dst.Tetrahedra, cell)
		if nattr > 0 {
			attrs := make([]float64, nattr)
			for a := range attrs {
				if attrs[a], err = t.float(); err != nil {
					return fmt.Errorf("cell %d attribute: %v", i, err)
				}
			}
			dst.TetAttrs = append(dst.TetAttrs, attrs)
		}
	}
	return nil
}

// WriteNode writes the point set as a .node stream.
func WriteNode(w io.Writer, src *tetra.IO) error {
	return writeNodeSection(w, src, src.Points, true)
}

func writeNodeSection(w io.Writer, src *tetra.IO, pts []r3.Vec, markers bool) error {
	bw := bufio.NewWriter(w)
	nattr := 0
	if src.PointAttrs != nil {
		for _, a := range src.PointAttrs {
			if len(a) > nattr {
				nattr = len(a)
			}
		}
	}
	nmark := 0
	if markers && src.PointMarkers != nil {
		nmark = 1
	}
	fmt.Fprintf(bw, "%d 3 %d %d\n", len(pts), nattr, nmark)
	for i, p := range pts {
		fmt.Fprintf(bw, "%d %.17g %.17g %.17g", i+src.FirstNumber, p.X, p.Y, p.Z)
		if nattr > 0 {
			var attrs []float64
			if i < len(src.PointAttrs) {
				attrs = src.PointAttrs[i]
			}
			for a := 0; a < nattr; a++ {
				v := 0.0
				if a < len(attrs) {
					v = attrs[a]
				}
				fmt.Fprintf(bw, " %.17g", v)
			}
		}
		if nmark == 1 {
			marker := 0
			if i < len(src.PointMarkers) {
				marker = src.PointMarkers[i]
			}
			fmt.Fprintf(bw, " %d", marker)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteEle writes the cells as an .ele stream.
func WriteEle(w io.Writer, src *tetra.IO) error {
	bw := bufio.NewWriter(w)
	nattr := 0
	for _, a := range src.TetAttrs {
		if len(a) > nattr {
			nattr = len(a)
		}
	}
	fmt.Fprintf(bw, "%d 4 %d\n", len(src.Tetrahedra), nattr)
	for i, c := range src.Tetrahedra {
		fmt.Fprintf(bw, "%d %d %d %d %d", i+src.FirstNumber,
			c[0]+src.FirstNumber, c[1]+src.FirstNumber, c[2]+src.FirstNumber, c[3]+src.FirstNumber)
		if nattr > 0 {
			var attrs []float64
			if i < len(src.TetAttrs) {
				attrs = src.TetAttrs[i]
			}
			for a := 0; a < nattr; a++ {
				v := 0.0
				if a < len(attrs) {
					v = attrs[a]
				}
				fmt.Fprintf(bw, " %.17g", v)
			}
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteFace writes the boundary faces as a .face stream.
func WriteFace(w io.Writer, src *tetra.IO) error {
	bw := bufio.NewWriter(w)
	nmark := 0
	if src.FaceMarkers != nil {
		nmark = 1
	}
	fmt.Fprintf(bw, "%d %d\n", len(src.Faces), nmark)
	for i, f := range src.Faces {
		fmt.Fprintf(bw, "%d %d %d %d", i+src.FirstNumber,
			f[0]+src.FirstNumber, f[1]+src.FirstNumber, f[2]+src.FirstNumber)
		if nmark == 1 {
			marker := 0
			if i < len(src.FaceMarkers) {
				marker = src.FaceMarkers[i]
			}
			fmt.Fprintf(bw, " %d", marker)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteEdge writes the mesh edges as an .edge stream.
func WriteEdge(w io.Writer, src *tetra.IO) error {
	bw := bufio.NewWriter(w)
	nmark := 0
	if src.EdgeMarkers != nil {
		nmark = 1
	}
	fmt.Fprintf(bw, "%d %d\n", len(src.Edges), nmark)
	for i, e := range src.Edges {
		fmt.Fprintf(bw, "%d %d %d", i+src.FirstNumber, e[0]+src.FirstNumber, e[1]+src.FirstNumber)
		if nmark == 1 {
			marker := 0
			if i < len(src.EdgeMarkers) {
				marker = src.EdgeMarkers[i]
			}
			fmt.Fprintf(bw, " %d", marker)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteVoronoiNode writes the dual Voronoi vertices, one per output cell,
// in .node schema.
func WriteVoronoiNode(w io.Writer, src *tetra.IO) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d 3 0 0\n", len(src.VoronoiPoints))
	for i, p := range src.VoronoiPoints {
		fmt.Fprintf(bw, "%d %.17g %.17g %.17g\n", i+src.FirstNumber, p.X, p.Y, p.Z)
	}
	return bw.Flush()
}

// ReadNodeFile, WriteNodeFile and friends wrap the stream functions with
// file handling.

func ReadNodeFile(path string) (*tetra.IO, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ReadNode(fp)
}

func ReadPolyFile(path string) (*tetra.IO, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ReadPoly(fp)
}

func ReadEleFile(path string, dst *tetra.IO) error {
	fp, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fp.Close()
	return ReadEle(fp, dst)
}

func writeFile(path string, fn func(io.Writer) error) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(fp); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}

func WriteNodeFile(path string, src *tetra.IO) error {
	return writeFile(path, func(w io.Writer) error { return WriteNode(w, src) })
}

func WriteEleFile(path string, src *tetra.IO) error {
	return writeFile(path, func(w io.Writer) error { return WriteEle(w, src) })
}

func WriteFaceFile(path string, src *tetra.IO) error {
	return writeFile(path, func(w io.Writer) error { return WriteFace(w, src) })
}

func WriteEdgeFile(path string, src *tetra.IO) error {
	return writeFile(path, func(w io.Writer) error { return WriteEdge(w, src) })
}

func WriteVoronoiNodeFile(path string, src *tetra.IO) error {
	return writeFile(path, func(w io.Writer) error { return WriteVoronoiNode(w, src) })
}
