// Command tetra is a quality tetrahedral mesh generator and 3D Delaunay
// triangulator over the classic node/poly/ele/face/edge file formats.
//
// Usage:
//
//	tetra [-switches] input.node
//	tetra [-switches] input.poly
//
// Switches concatenate after a single dash, e.g. -pq1.414a0.1fe. See
// tetra.ParseSwitches for the full list. Output files reuse the input base
// name with an incremented iteration number: cube.poly produces
// cube.1.node and cube.1.ele; refining cube.1.node produces cube.2.*.
// With -i, additional points are read from <base>.a.node.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/soypat/tetra"
	"github.com/soypat/tetra/tetio"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := log.New(os.Stderr, "", 0)
	switches := ""
	var inputs []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			switches += strings.TrimPrefix(a, "-")
		} else {
			inputs = append(inputs, a)
		}
	}
	if len(inputs) != 1 {
		logger.Println("usage: tetra [-switches] input.node|input.poly")
		return 1
	}
	b, err := tetra.ParseSwitches(switches)
	if err != nil {
		logger.Println(err)
		return 1
	}
	b.Logger = logger

	path := inputs[0]
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	var in *tetra.IO
	switch {
	case b.Refine:
		in, err = tetio.ReadNodeFile(base + ".node")
		if err == nil {
			err = tetio.ReadEleFile(base+".ele", in)
		}
	case ext == ".poly":
		in, err = tetio.ReadPolyFile(path)
		if !b.PLC && err == nil {
			b.PLC = len(in.Facets) > 0
		}
	case ext == ".node":
		in, err = tetio.ReadNodeFile(path)
	default:
		err = fmt.Errorf("unrecognized input extension %q", ext)
	}
	if err != nil {
		logger.Println(err)
		return 1
	}

	var add *tetra.IO
	if b.InsertAddPoints {
		add, err = tetio.ReadNodeFile(base + ".a.node")
		if err != nil {
			logger.Println(err)
			return 1
		}
	}

	out, err := tetra.Tetrahedralize(b, in, add)
	code := 0
	if err != nil {
		logger.Println(err)
		switch {
		case errors.Is(err, tetra.ErrRecovery), errors.Is(err, tetra.ErrQuality):
			code = 2 // partial mesh still written below
		default:
			return 1
		}
	}
	if out == nil {
		return 1
	}

	outBase := nextIteration(base)
	if err := tetio.WriteNodeFile(outBase+".node", out); err != nil {
		logger.Println(err)
		return 1
	}
	if err := tetio.WriteEleFile(outBase+".ele", out); err != nil {
		logger.Println(err)
		return 1
	}
	if b.FacesOut {
		if err := tetio.WriteFaceFile(outBase+".face", out); err != nil {
			logger.Println(err)
			return 1
		}
	}
	if b.EdgesOut {
		if err := tetio.WriteEdgeFile(outBase+".edge", out); err != nil {
			logger.Println(err)
			return 1
		}
	}
	if b.VoroOut {
		if err := tetio.WriteVoronoiNodeFile(outBase+".v.node", out); err != nil {
			logger.Println(err)
			return 1
		}
	}
	return code
}

// nextIteration appends or increments the numeric suffix of a base name:
// cube -> cube.1, cube.1 -> cube.2.
func nextIteration(base string) string {
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		if n, err := strconv.Atoi(base[i+1:]); err == nil {
			return fmt.Sprintf("%s.%d", base[:i], n+1)
		}
	}
	return base + ".1"
}
