package testutil

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/roach88/camconform/internal/config"
)

// Default scene dimensions for still captures.
const (
	SceneWidth  = 96
	SceneHeight = 72
)

// State is the fake daemon's camera parameter state. Zero values are not
// meaningful; use DefaultState.
type State struct {
	Brightness   int
	Contrast     int
	Saturation   int
	Sharpness    int
	WhiteBalance string
	Rotation     int
	Flip         int
	Exposure     int
	Metering     string
	Quality      int
	Bitrate      int
	ISO          int
	AnalogGain   [2]int
	Preview      PreviewParams
	Video        VideoParams
	Recording    bool
	Motion       bool
}

// PreviewParams mirror the pv command arguments.
type PreviewParams struct {
	Quality int
	Width   int
	Divider int
}

// VideoParams mirror the px command arguments.
type VideoParams struct {
	Width       int
	Height      int
	FPS         int
	BoxFPS      int
	ImageWidth  int
	ImageHeight int
	Divider     int
}

// DefaultState matches the daemon's power-on settings. The stream settings
// come from config.Default so restores written against the configured
// defaults land back on them.
func DefaultState() State {
	d := config.Default().Defaults
	return State{
		Brightness:   50,
		WhiteBalance: "auto",
		Metering:     "average",
		Quality:      85,
		Bitrate:      d.Bitrate,
		ISO:          100,
		AnalogGain:   [2]int{100, 100},
		Preview:      PreviewParams(d.Preview),
		Video:        VideoParams(d.Video),
	}
}

// whiteBalanceTint is the per-channel offset (R, B) applied by each white
// balance mode relative to auto.
var whiteBalanceTint = map[string][2]int{
	"auto":         {0, 0},
	"off":          {0, 0},
	"sun":          {8, -8},
	"cloudy":       {25, -25},
	"shade":        {30, -30},
	"tungsten":     {-25, 25},
	"fluorescent":  {-15, 15},
	"incandescent": {-20, 20},
	"flash":        {5, -5},
	"horizon":      {20, -20},
}

// Render draws the synthetic scene as the camera would see it with the given
// parameters. The scene is a two-tone warm checkerboard, so every analyzer has
// something to measure: brightness shifts the mean, contrast stretches the
// tones apart, saturation pulls the channels toward gray, sharpness removes a
// blur and white balance tints the red and blue channels.
func Render(s State, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	offset := (s.Brightness-50)*2 + s.Exposure*10
	gain := 1 + float64(s.Contrast)/50
	satScale := 1 + float64(s.Saturation)/100
	if satScale < 0 {
		satScale = 0
	}
	tint := whiteBalanceTint[s.WhiteBalance]

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			base := 90.0
			if ((x/8)+(y/8))%2 == 0 {
				base = 150
			}
			r, g, b := base+30, base, base-30

			// Contrast stretches around mid-gray.
			r = 128 + (r-128)*gain
			g = 128 + (g-128)*gain
			b = 128 + (b-128)*gain

			// Saturation blends toward the pixel's luma.
			l := 0.299*r + 0.587*g + 0.114*b
			r = l + (r-l)*satScale
			g = l + (g-l)*satScale
			b = l + (b-l)*satScale

			r += float64(offset + tint[0])
			g += float64(offset)
			b += float64(offset + tint[1])

			img.SetNRGBA(x, y, color.NRGBA{R: clamp(r), G: clamp(g), B: clamp(b), A: 255})
		}
	}

	out := img
	if s.Sharpness <= 0 {
		out = imaging.Blur(out, 1.5)
	}
	switch s.Rotation {
	case 90:
		out = imaging.Rotate270(out)
	case 180:
		out = imaging.Rotate180(out)
	case 270:
		out = imaging.Rotate90(out)
	}
	if s.Flip&1 != 0 {
		out = imaging.FlipH(out)
	}
	if s.Flip&2 != 0 {
		out = imaging.FlipV(out)
	}
	return out
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
