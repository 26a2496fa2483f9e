package tetio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/chewxy/math32"
	"github.com/soypat/tetra"
	"gonum.org/v1/gonum/spatial/r3"
)

// Binary STL of the mesh boundary surface. 84-byte header, then 50-byte
// triangles: normal, three vertices, attribute count.

// WriteSTL writes the boundary faces of src to w in binary STL format.
func WriteSTL(w io.Writer, src *tetra.IO) error {
	if len(src.Faces) == 0 {
		return errors.New("mesh has no boundary faces")
	}
	bw := bufio.NewWriter(w)
	header := stlHeader{Count: uint32(len(src.Faces))}
	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return err
	}
	var b [50]byte
	var d stlTriangle
	for _, f := range src.Faces {
		v0, v1, v2 := src.Points[f[0]], src.Points[f[1]], src.Points[f[2]]
		n := r3.Unit(r3.Cross(r3.Sub(v1, v0), r3.Sub(v2, v0)))
		d.Normal = toF32(n)
		d.Vertex1 = toF32(v0)
		d.Vertex2 = toF32(v1)
		d.Vertex3 = toF32(v2)
		d.put(b[:])
		if _, err := bw.Write(b[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// CreateSTL writes the boundary of src to the file at path.
func CreateSTL(path string, src *tetra.IO) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSTL(fp, src); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}

// ReadSTL parses a binary STL stream into triangles.
func ReadSTL(r io.Reader) ([]r3.Triangle, error) {
	var header stlHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.New("EOF while reading STL header")
		}
		return nil, fmt.Errorf("STL header read failed: %w", err)
	}
	if header.Count == 0 {
		return nil, errors.New("STL header indicates 0 triangles")
	}
	var (
		buf [50]byte
		d   stlTriangle
		out []r3.Triangle
	)
	for i := 0; i < int(header.Count); i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%d/%d STL triangles read: %w", i, header.Count, err)
		}
		d.get(buf[:])
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("triangle %d: %w", i, err)
		}
		out = append(out, d.toTriangle())
	}
	return out, nil
}

// ReadSTLFile parses the binary STL file at path.
func ReadSTLFile(path string) ([]r3.Triangle, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ReadSTL(bufio.NewReader(fp))
}

// STLPoints returns the distinct vertices of a triangle soup, suitable as
// input to a fresh tetrahedralization.
func STLPoints(tris []r3.Triangle) []r3.Vec {
	seen := make(map[[3]float64]bool, 3*len(tris))
	var pts []r3.Vec
	for _, t := range tris {
		for _, v := range t {
			key := [3]float64{v.X, v.Y, v.Z}
			if !seen[key] {
				seen[key] = true
				pts = append(pts, v)
			}
		}
	}
	return pts
}

// stlHeader defines the STL file header.
type stlHeader struct {
	_     [80]uint8
	Count uint32
}

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
	_       uint16 // attribute byte count
}

func (t stlTriangle) put(b []byte) {
	if len(b) < 50 {
		panic("need length 50 to marshal stlTriangle")
	}
	put3F32(b, t.Normal)
	put3F32(b[12:], t.Vertex1)
	put3F32(b[24:], t.Vertex2)
	put3F32(b[36:], t.Vertex3)
	binary.LittleEndian.PutUint16(b[48:], 0)
}

func (t *stlTriangle) get(b []byte) {
	if len(b) < 50 {
		panic("need length 50 to unmarshal stlTriangle")
	}
	get3F32(b, &t.Normal)
	get3F32(b[12:], &t.Vertex1)
	get3F32(b[24:], &t.Vertex2)
	get3F32(b[36:], &t.Vertex3)
}

func put3F32(b []byte, f [3]float32) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(f[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(f[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(f[2]))
}

func get3F32(b []byte, f *[3]float32) {
	_ = b[11] // early bounds check
	f[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	f[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	f[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
}

func bad3F32(f [3]float32) bool {
	return math32.IsNaN(f[0]) || math32.IsInf(f[0], 0) ||
		math32.IsNaN(f[1]) || math32.IsInf(f[1], 0) ||
		math32.IsNaN(f[2]) || math32.IsInf(f[2], 0)
}

func (t stlTriangle) validate() error {
	if bad3F32(t.Normal) {
		return errors.New("inf/NaN STL triangle normal")
	}
	if bad3F32(t.Vertex1) || bad3F32(t.Vertex2) || bad3F32(t.Vertex3) {
		return errors.New("inf/NaN STL triangle vertex")
	}
	return nil
}

func toF32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func fromF32(f [3]float32) r3.Vec {
	return r3.Vec{X: float64(f[0]), Y: float64(f[1]), Z: float64(f[2])}
}

func (t stlTriangle) toTriangle() r3.Triangle {
	return r3.Triangle{fromF32(t.Vertex1), fromF32(t.Vertex2), fromF32(t.Vertex3)}
}
