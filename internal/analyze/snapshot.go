// Package analyze turns captured frames into summary statistics and compares
// before/after pairs to decide whether a camera parameter change took effect.
//
// All functions are pure. A Snapshot is computed from a decoded image on
// demand and should not be reused across test cases.
package analyze

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"
)

// edgeKernel is the 3x3 Laplacian-style edge finder applied to luminance.
var edgeKernel = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

// Snapshot holds the statistics the analyzers compare.
type Snapshot struct {
	Width  int
	Height int

	// Means are the per-channel means in R, G, B order, on a 0..255 scale.
	Means [3]float64

	// Luma is the ITU-R 601-2 luminance of every pixel in row-major order.
	Luma       []float64
	LumaMean   float64
	LumaStdDev float64

	// SaturationMean is the mean HSV saturation scaled to 0..255.
	SaturationMean float64

	// Edges is the edge map of Luma, clamped to 0..255, in row-major order.
	// The outer pixel ring holds Luma unchanged.
	Edges []float64
}

// TakeSnapshot computes a Snapshot for img. Alpha is ignored.
func TakeSnapshot(img image.Image) Snapshot {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	n := w * h

	s := Snapshot{Width: w, Height: h}
	if n == 0 {
		return s
	}

	channels := [3][]float64{make([]float64, n), make([]float64, n), make([]float64, n)}
	sat := make([]float64, n)
	for i := 0; i < n; i++ {
		p := src.Pix[i*4 : i*4+3]
		for c := 0; c < 3; c++ {
			channels[c][i] = float64(p[c])
		}
		col := colorful.Color{R: float64(p[0]) / 255, G: float64(p[1]) / 255, B: float64(p[2]) / 255}
		_, sv, _ := col.Hsv()
		sat[i] = math.Round(sv * 255)
	}
	for c := 0; c < 3; c++ {
		s.Means[c] = stat.Mean(channels[c], nil)
	}
	s.SaturationMean = stat.Mean(sat, nil)

	gray := imaging.Grayscale(src)
	s.Luma = firstChannel(gray, n)
	var variance float64
	s.LumaMean, variance = stat.PopMeanVariance(s.Luma, nil)
	s.LumaStdDev = math.Sqrt(variance)

	s.Edges = firstChannel(imaging.Convolve3x3(gray, edgeKernel, nil), n)
	passBorder(s.Edges, s.Luma, w, h)
	return s
}

// passBorder overwrites the outer pixel ring of edges with luma. Border
// pixels have no full neighbourhood, so the edge filter copies them through
// rather than extending the image past its edge.
func passBorder(edges, luma []float64, w, h int) {
	for x := 0; x < w; x++ {
		edges[x] = luma[x]
		edges[(h-1)*w+x] = luma[(h-1)*w+x]
	}
	for y := 0; y < h; y++ {
		edges[y*w] = luma[y*w]
		edges[y*w+w-1] = luma[y*w+w-1]
	}
}

// Brightness is the mean of the per-channel means.
func (s Snapshot) Brightness() float64 {
	return (s.Means[0] + s.Means[1] + s.Means[2]) / 3
}

func firstChannel(img *image.NRGBA, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(img.Pix[i*4])
	}
	return out
}
