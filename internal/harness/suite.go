package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/camconform/internal/config"
)

// Suite selects and orders a subset of the registered cases and may tighten
// or relax analyzer thresholds for one run.
type Suite struct {
	// Name identifies the suite in reports and history.
	Name string `yaml:"name"`

	// Description explains what the suite is for.
	Description string `yaml:"description"`

	// Cases lists registered case names in execution order.
	Cases []string `yaml:"cases"`

	// Thresholds override the configured analyzer thresholds. Omitted
	// analyzers keep their configured value.
	Thresholds *ThresholdOverrides `yaml:"thresholds,omitempty"`
}

// ThresholdOverrides are optional per-analyzer thresholds.
type ThresholdOverrides struct {
	Brightness   *float64 `yaml:"brightness,omitempty"`
	Contrast     *float64 `yaml:"contrast,omitempty"`
	Saturation   *float64 `yaml:"saturation,omitempty"`
	Sharpness    *float64 `yaml:"sharpness,omitempty"`
	WhiteBalance *float64 `yaml:"white_balance,omitempty"`
}

// LoadSuite reads and parses a suite YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or names unknown cases.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateSuite(&suite); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return &suite, nil
}

// validateSuite checks that required fields are present and valid.
func validateSuite(s *Suite) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}
	if _, err := Select(s.Cases); err != nil {
		return fmt.Errorf("cases: %w", err)
	}
	if t := s.Thresholds; t != nil {
		for name, v := range map[string]*float64{
			"brightness":    t.Brightness,
			"contrast":      t.Contrast,
			"saturation":    t.Saturation,
			"sharpness":     t.Sharpness,
			"white_balance": t.WhiteBalance,
		} {
			if v != nil && *v < 0 {
				return fmt.Errorf("thresholds.%s must not be negative", name)
			}
		}
	}
	return nil
}

// TestCases returns the suite's cases in order.
func (s *Suite) TestCases() ([]TestCase, error) {
	return Select(s.Cases)
}

// Apply returns th with the suite's overrides applied.
func (s *Suite) Apply(th config.Thresholds) config.Thresholds {
	if s.Thresholds == nil {
		return th
	}
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&th.Brightness, s.Thresholds.Brightness)
	set(&th.Contrast, s.Thresholds.Contrast)
	set(&th.Saturation, s.Thresholds.Saturation)
	set(&th.Sharpness, s.Thresholds.Sharpness)
	set(&th.WhiteBalance, s.Thresholds.WhiteBalance)
	return th
}
