package analyze

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ErrSizeMismatch is returned when two snapshots must be compared pixel by
// pixel but have different dimensions.
var ErrSizeMismatch = errors.New("snapshot dimensions differ")

// Analyzer names used in verdicts.
const (
	NameBrightness   = "brightness"
	NameContrast     = "contrast"
	NameSaturation   = "saturation"
	NameSharpness    = "sharpness"
	NameWhiteBalance = "white_balance"
)

// Verdict is the outcome of one before/after comparison.
type Verdict struct {
	Analyzer string  `json:"analyzer"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	// Delta is the signed change in the direction the analyzer expects, or
	// the largest per-channel change for white balance.
	Delta     float64   `json:"delta"`
	Deltas    []float64 `json:"deltas,omitempty"`
	Threshold float64   `json:"threshold"`
	Detected  bool      `json:"detected"`
}

func (v Verdict) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s before=%.2f after=%.2f delta=%.2f", v.Analyzer, v.Before, v.After, v.Delta)
	if len(v.Deltas) > 0 {
		parts := make([]string, len(v.Deltas))
		for i, d := range v.Deltas {
			parts[i] = fmt.Sprintf("%.2f", d)
		}
		fmt.Fprintf(&b, " deltas=[%s]", strings.Join(parts, " "))
	}
	fmt.Fprintf(&b, " threshold=%.2f detected=%t", v.Threshold, v.Detected)
	return b.String()
}

// Brightness detects an increase in overall brightness.
func Brightness(before, after Snapshot, threshold float64) Verdict {
	b, a := before.Brightness(), after.Brightness()
	return Verdict{
		Analyzer:  NameBrightness,
		Before:    b,
		After:     a,
		Delta:     a - b,
		Threshold: threshold,
		Detected:  a-b >= threshold,
	}
}

// Contrast detects an increase in luminance standard deviation.
func Contrast(before, after Snapshot, threshold float64) Verdict {
	b, a := before.LumaStdDev, after.LumaStdDev
	return Verdict{
		Analyzer:  NameContrast,
		Before:    b,
		After:     a,
		Delta:     a - b,
		Threshold: threshold,
		Detected:  a-b >= threshold,
	}
}

// Saturation detects a decrease in mean saturation. Delta is positive when
// saturation dropped.
func Saturation(before, after Snapshot, threshold float64) Verdict {
	b, a := before.SaturationMean, after.SaturationMean
	return Verdict{
		Analyzer:  NameSaturation,
		Before:    b,
		After:     a,
		Delta:     b - a,
		Threshold: threshold,
		Detected:  b-a >= threshold,
	}
}

// Sharpness detects a change in edge strength: the mean absolute difference
// between the two edge maps. Before and After are the mean edge strengths.
func Sharpness(before, after Snapshot, threshold float64) (Verdict, error) {
	if before.Width != after.Width || before.Height != after.Height {
		return Verdict{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch,
			before.Width, before.Height, after.Width, after.Height)
	}
	diff := 0.0
	if n := len(before.Edges); n > 0 {
		diff = floats.Distance(before.Edges, after.Edges, 1) / float64(n)
	}
	return Verdict{
		Analyzer:  NameSharpness,
		Before:    mean(before.Edges),
		After:     mean(after.Edges),
		Delta:     diff,
		Threshold: threshold,
		Detected:  diff >= threshold,
	}, nil
}

// WhiteBalance detects a color cast change: at least one channel mean moved
// by threshold or more.
func WhiteBalance(before, after Snapshot, threshold float64) Verdict {
	deltas := make([]float64, 3)
	detected := false
	for c := range deltas {
		deltas[c] = math.Abs(after.Means[c] - before.Means[c])
		if deltas[c] >= threshold {
			detected = true
		}
	}
	return Verdict{
		Analyzer:  NameWhiteBalance,
		Before:    before.Brightness(),
		After:     after.Brightness(),
		Delta:     floats.Max(deltas),
		Deltas:    deltas,
		Threshold: threshold,
		Detected:  detected,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs) / float64(len(xs))
}
