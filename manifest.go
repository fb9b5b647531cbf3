// manifest.go: the serval.yml project manifest.
//
// The manifest names the project, its entry point and its git dependencies.
// Decoding is strict: unknown keys fail, and structural problems are
// aggregated into one ManifestError so the user sees everything at once.

package serval

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the canonical manifest file name.
const ManifestFileName = "serval.yml"

// DependencySpec pins one dependency. Git is the clone URL; at most one of
// Rev, Tag and Branch selects the checkout (empty means the default branch).
type DependencySpec struct {
	Git    string `yaml:"git"`
	Rev    string `yaml:"rev,omitempty"`
	Tag    string `yaml:"tag,omitempty"`
	Branch string `yaml:"branch,omitempty"`
}

// Revision picks the revision spec in precedence order rev > tag > branch.
func (d *DependencySpec) Revision() string {
	switch {
	case d.Rev != "":
		return d.Rev
	case d.Tag != "":
		return d.Tag
	default:
		return d.Branch
	}
}

// Manifest is the decoded serval.yml.
type Manifest struct {
	Name         string                     `yaml:"name"`
	Version      string                     `yaml:"version,omitempty"`
	Description  string                     `yaml:"description,omitempty"`
	Entry        string                     `yaml:"entry,omitempty"`
	Dependencies map[string]*DependencySpec `yaml:"dependencies,omitempty"`
}

// DependencyNames lists dependency names sorted so fetch order is stable.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies))
	for n := range m.Dependencies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ManifestError aggregates every validation issue found in one manifest.
type ManifestError struct {
	Path   string
	Issues []string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s:\n  - %s", e.Path, strings.Join(e.Issues, "\n  - "))
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		if me, ok := err.(*ManifestError); ok {
			me.Path = path
		}
		return nil, err
	}
	return m, nil
}

// ParseManifest decodes and validates manifest bytes. Unknown keys are
// rejected so typos surface instead of silently dropping configuration.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, &ManifestError{Path: ManifestFileName, Issues: []string{err.Error()}}
	}

	var issues []string
	if m.Name == "" {
		issues = append(issues, "name is required")
	}
	if m.Entry != "" && !strings.HasSuffix(m.Entry, ".svl") {
		issues = append(issues, fmt.Sprintf("entry %q must point at a .svl file", m.Entry))
	}
	for _, name := range m.DependencyNames() {
		dep := m.Dependencies[name]
		if dep == nil {
			issues = append(issues, fmt.Sprintf("dependency %q has no spec", name))
			continue
		}
		if dep.Git == "" {
			issues = append(issues, fmt.Sprintf("dependency %q: git URL is required", name))
		}
		set := 0
		for _, s := range []string{dep.Rev, dep.Tag, dep.Branch} {
			if s != "" {
				set++
			}
		}
		if set > 1 {
			issues = append(issues, fmt.Sprintf("dependency %q: rev, tag and branch are mutually exclusive", name))
		}
	}
	if len(issues) > 0 {
		return nil, &ManifestError{Path: ManifestFileName, Issues: issues}
	}
	return &m, nil
}
