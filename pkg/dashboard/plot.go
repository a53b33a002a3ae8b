package dashboard

import (
	"sort"

	"github.com/guptarohit/asciigraph"
)

// resample interpolates ys(xs) linearly onto n evenly spaced points
// spanning xs. xs must be non-decreasing.
func resample(xs, ys []float64, n int) []float64 {
	if len(xs) == 0 || n <= 0 {
		return nil
	}
	if len(xs) == 1 || n == 1 {
		out := make([]float64, n)
		for i := range out {
			out[i] = ys[0]
		}
		return out
	}

	lo, hi := xs[0], xs[len(xs)-1]
	out := make([]float64, n)
	for i := range out {
		x := lo + (hi-lo)*float64(i)/float64(n-1)
		j := sort.SearchFloat64s(xs, x)
		switch {
		case j == 0:
			out[i] = ys[0]
		case j >= len(xs):
			out[i] = ys[len(ys)-1]
		case xs[j] == xs[j-1]:
			out[i] = ys[j]
		default:
			f := (x - xs[j-1]) / (xs[j] - xs[j-1])
			out[i] = ys[j-1] + f*(ys[j]-ys[j-1])
		}
	}
	return out
}

// plotTwiss renders beta_a and beta_b against s.
func plotTwiss(pos, betaA, betaB []float64, width, height int) string {
	a := resample(pos, betaA, width)
	b := resample(pos, betaB, width)
	if len(a) < 2 {
		return ""
	}
	return asciigraph.PlotMany([][]float64{a, b},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
		asciigraph.Caption("beta_a (blue), beta_b (red) [m] vs s"),
	)
}
