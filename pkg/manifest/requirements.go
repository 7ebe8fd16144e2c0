package manifest

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Requirement is one line of a dependency manifest: a package name with an
// optional version constraint.
type Requirement struct {
	Name     string `json:"name"`
	Operator string `json:"operator,omitempty"`
	Version  string `json:"version,omitempty"`

	// Raw is the original line, whitespace-trimmed.
	Raw string `json:"raw"`
}

// String renders the requirement in canonical name<op>version form.
func (r Requirement) String() string {
	if r.Operator == "" {
		return r.Name
	}
	return r.Name + r.Operator + r.Version
}

// requirementPattern accepts "name", "name==1.2.3", "name >= 1.0" and the
// other comparison operators. Names follow the usual package-name alphabet.
var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(==|>=|<=|~=|!=|>|<)?\s*(\S+)?$`)

// ParseRequirements parses a flat dependency manifest. Order is preserved;
// blank lines and # comments are skipped. A malformed line is an error: the
// dependency step is all-or-nothing, so a manifest that cannot be fully
// understood fails the build.
func ParseRequirements(data []byte) ([]Requirement, error) {
	var reqs []Requirement

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := requirementPattern.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("invalid requirement on line %d: %q", lineNo, line)
		}
		if m[2] != "" && m[3] == "" {
			return nil, fmt.Errorf("invalid requirement on line %d: %q has an operator but no version", lineNo, line)
		}
		if m[2] == "" && m[3] != "" {
			return nil, fmt.Errorf("invalid requirement on line %d: %q", lineNo, line)
		}

		reqs = append(reqs, Requirement{
			Name:     m[1],
			Operator: m[2],
			Version:  m[3],
			Raw:      line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requirements: %w", err)
	}
	return reqs, nil
}

// LoadRequirements reads and parses the dependency manifest at path.
// A missing file is a fatal build error by contract.
func LoadRequirements(path string) ([]Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dependency manifest %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read dependency manifest: %w", err)
	}
	return ParseRequirements(data)
}
