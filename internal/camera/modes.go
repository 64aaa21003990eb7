// Package camera discovers the sensor modes the attached camera supports by
// parsing the output of the libcamera listing tool.
package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoModes is returned by Highest when no mode was parsed.
var ErrNoModes = errors.New("no valid video resolutions found")

// Mode is one sensor mode.
type Mode struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d @ %.2f fps", m.Width, m.Height, m.FPS)
}

// Area is the pixel count of the mode.
func (m Mode) Area() int {
	return m.Width * m.Height
}

// modeRE matches "1640x1232 [41.85 fps" anywhere on a line.
var modeRE = regexp.MustCompile(`(\d+)x(\d+)\s*\[\s*([0-9.]+)\s*fps`)

// ParseModes extracts the modes listed in out. Only lines mentioning fps are
// considered; the sensor's full-array size line is not a mode.
func ParseModes(out []byte) []Mode {
	var modes []Mode
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "fps") {
			continue
		}
		for _, m := range modeRE.FindAllStringSubmatch(line, -1) {
			w, errW := strconv.Atoi(m[1])
			h, errH := strconv.Atoi(m[2])
			fps, errF := strconv.ParseFloat(m[3], 64)
			if errW != nil || errH != nil || errF != nil || w == 0 || h == 0 {
				continue
			}
			modes = append(modes, Mode{Width: w, Height: h, FPS: fps})
		}
	}
	return modes
}

// Highest returns the mode with the largest area. Ties keep the first listed.
func Highest(modes []Mode) (Mode, error) {
	var best Mode
	for _, m := range modes {
		if m.Area() > best.Area() {
			best = m
		}
	}
	if best.Area() == 0 {
		return Mode{}, ErrNoModes
	}
	return best, nil
}

var execCommand = exec.CommandContext

// ListModes runs command (e.g. libcamera-hello --list-cameras) and parses its
// output.
func ListModes(ctx context.Context, command []string) ([]Mode, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("camera list command is empty")
	}
	cmd := execCommand(ctx, command[0], command[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", command[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", command[0], err)
	}
	return ParseModes(out), nil
}
