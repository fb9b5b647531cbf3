// scope.go: lexical variable scopes.

package serval

import "sort"

// Scope is one frame of the environment chain. The innermost frame shadows
// outer frames; function calls and blocks push children. Reads return deep
// clones, so a value fetched from a scope never aliases the stored binding.
type Scope struct {
	vars   map[string]Value
	parent *Scope
}

// NewScope returns an empty root scope.
func NewScope() *Scope {
	return &Scope{vars: make(map[string]Value, 16)}
}

// NewChildScope returns a fresh frame whose lookups fall back to parent.
func NewChildScope(parent *Scope) *Scope {
	return &Scope{vars: make(map[string]Value, 8), parent: parent}
}

// Define binds name in this frame, shadowing any outer binding.
func (s *Scope) Define(name string, v Value) {
	s.vars[name] = v.Clone()
}

// Assign updates the nearest visible binding. It reports false when the name
// is not defined in any reachable frame.
func (s *Scope) Assign(name string, v Value) bool {
	for f := s; f != nil; f = f.parent {
		if _, ok := f.vars[name]; ok {
			f.vars[name] = v.Clone()
			return true
		}
	}
	return false
}

// Get returns a clone of the nearest visible binding.
func (s *Scope) Get(name string) (Value, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v.Clone(), true
		}
	}
	return NullValue, false
}

// Has reports whether name is visible without cloning the value.
func (s *Scope) Has(name string) bool {
	for f := s; f != nil; f = f.parent {
		if _, ok := f.vars[name]; ok {
			return true
		}
	}
	return false
}

// Names lists every visible binding name, sorted, for "did you mean"
// suggestions in undefined-variable errors.
func (s *Scope) Names() []string {
	seen := map[string]bool{}
	var out []string
	for f := s; f != nil; f = f.parent {
		for k := range f.vars {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
