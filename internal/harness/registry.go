package harness

import (
	"fmt"
	"path/filepath"
)

// Lookup finds a registered case by name.
func Lookup(name string) (TestCase, bool) {
	for _, tc := range Registry() {
		if tc.Name == name {
			return tc, true
		}
	}
	return TestCase{}, false
}

// Names returns the registered case names in execution order.
func Names() []string {
	cases := Registry()
	names := make([]string, len(cases))
	for i, tc := range cases {
		names[i] = tc.Name
	}
	return names
}

// Select returns the named cases in the given order. Unknown or repeated
// names are an error.
func Select(names []string) ([]TestCase, error) {
	seen := make(map[string]bool, len(names))
	out := make([]TestCase, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("case %q listed more than once", name)
		}
		seen[name] = true
		tc, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown case %q", name)
		}
		out = append(out, tc)
	}
	return out, nil
}

// Filter keeps the cases whose name matches the glob pattern, preserving
// order. An empty pattern keeps everything.
func Filter(cases []TestCase, pattern string) ([]TestCase, error) {
	if pattern == "" {
		return cases, nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", pattern, err)
	}
	var out []TestCase
	for _, tc := range cases {
		if ok, _ := filepath.Match(pattern, tc.Name); ok {
			out = append(out, tc)
		}
	}
	return out, nil
}
