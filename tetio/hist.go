package tetio

import (
	"errors"

	"github.com/soypat/tetra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Quality histograms of a generated mesh, for eyeballing refinement
// results.

// RatioValues returns the radius-edge ratio of every output cell.
func RatioValues(src *tetra.IO) plotter.Values {
	vals := make(plotter.Values, 0, len(src.Tetrahedra))
	for _, c := range src.Tetrahedra {
		vals = append(vals, tetra.RadiusEdgeRatio(
			src.Points[c[0]], src.Points[c[1]], src.Points[c[2]], src.Points[c[3]]))
	}
	return vals
}

// DihedralValues returns all six dihedral angles of every output cell, in
// degrees.
func DihedralValues(src *tetra.IO) plotter.Values {
	vals := make(plotter.Values, 0, 6*len(src.Tetrahedra))
	for _, c := range src.Tetrahedra {
		for _, ang := range tetra.Dihedrals(
			src.Points[c[0]], src.Points[c[1]], src.Points[c[2]], src.Points[c[3]]) {
			vals = append(vals, ang)
		}
	}
	return vals
}

// SaveHistogram plots vals as a histogram with the given number of bins
// and writes it to path; the format follows the file extension (.png,
// .svg, .pdf).
func SaveHistogram(vals plotter.Values, bins int, title, path string) error {
	if len(vals) == 0 {
		return errors.New("no values to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "count"
	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(5*vg.Inch, 3*vg.Inch, path)
}
