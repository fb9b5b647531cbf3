// modules.go: import resolution and git dependency fetching.
//
// An import path is either a namespace reference ("stdlib::crypto") that
// aliases a capability namespace, or a file reference ("./wallet.svl") that
// loads, parses and recursively resolves another source file. The resolver
// caches by cleaned path and detects cycles with an explicit load stack.
//
// Manifest git dependencies are checked out with go-git into a local package
// cache before file resolution runs, so `import "./.serval/pkg/..."` paths
// work offline after the first fetch.

package serval

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// capabilityNamespaces lists the namespace names a `stdlib::` import may
// bind. The runtime validates the alias against its capability table at
// execution time; this list only shapes resolution.
var capabilityNamespaces = map[string]bool{
	"crypto": true,
	"log":    true,
	"time":   true,
	"util":   true,
	"web":    true,
}

// Resolver loads imported source files relative to a root directory.
type Resolver struct {
	root      string
	cache     map[string]*ResolvedImport
	loadStack []string
}

// NewResolver roots file imports at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{root: dir, cache: make(map[string]*ResolvedImport)}
}

// ResolveImports walks prog's top-level imports and returns the resolution
// map ExecuteProgram consumes. Nested file imports resolve recursively; a
// cyclic chain fails with the full cycle in the message.
func (r *Resolver) ResolveImports(prog *Program) (map[string]*ResolvedImport, error) {
	out := make(map[string]*ResolvedImport)
	for _, stmt := range prog.Statements {
		imp, ok := stmt.(*ImportStatement)
		if !ok {
			continue
		}
		ri, err := r.resolve(imp.Path)
		if err != nil {
			return nil, err
		}
		out[imp.Path] = ri
	}
	return out, nil
}

func (r *Resolver) resolve(path string) (*ResolvedImport, error) {
	if ns, ok := namespaceOf(path); ok {
		if !capabilityNamespaces[ns] {
			return nil, fmt.Errorf("unknown import namespace %q", path)
		}
		return &ResolvedImport{Namespace: ns}, nil
	}
	return r.resolveFile(path)
}

// namespaceOf recognizes "stdlib::name" and bare "ns" references that match
// a capability namespace.
func namespaceOf(path string) (string, bool) {
	if strings.HasPrefix(path, "stdlib::") {
		return strings.TrimPrefix(path, "stdlib::"), true
	}
	if !strings.Contains(path, "/") && !strings.Contains(path, ".") && capabilityNamespaces[path] {
		return path, true
	}
	return "", false
}

func (r *Resolver) resolveFile(path string) (*ResolvedImport, error) {
	full := filepath.Clean(filepath.Join(r.root, path))
	if ri, ok := r.cache[full]; ok {
		return ri, nil
	}
	for _, active := range r.loadStack {
		if active == full {
			return nil, fmt.Errorf("import cycle: %s -> %s", strings.Join(r.loadStack, " -> "), full)
		}
	}

	src, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("import %q: %w", path, err)
	}
	prog, err := ParseSource(string(src))
	if err != nil {
		return nil, WrapErrorWithName(err, path, string(src))
	}

	r.loadStack = append(r.loadStack, full)
	defer func() { r.loadStack = r.loadStack[:len(r.loadStack)-1] }()

	// Nested imports resolve relative to the imported file's directory.
	nested := &Resolver{root: filepath.Dir(full), cache: r.cache, loadStack: r.loadStack}
	if _, err := nested.ResolveImports(prog); err != nil {
		return nil, err
	}

	ri := &ResolvedImport{Prog: prog}
	r.cache[full] = ri
	return ri, nil
}

// pkgCacheDir is where fetched dependencies live, relative to the project
// root.
const pkgCacheDir = ".serval/pkg/src"

// FetchDependencies clones every git dependency of the manifest into the
// package cache under <root>/.serval/pkg/src/<name>/<rev>. Existing
// checkouts are kept as-is.
func FetchDependencies(m *Manifest, root string) error {
	for _, name := range m.DependencyNames() {
		dep := m.Dependencies[name]
		if dep.Git == "" {
			continue
		}
		rev := dep.Revision()
		dest := filepath.Join(root, pkgCacheDir, name, checkoutDirName(rev))
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := cloneAtRevision(dep.Git, rev, dest); err != nil {
			return fmt.Errorf("dependency %s: %w", name, err)
		}
	}
	return nil
}

// cloneAtRevision clones url into dest and checks out rev (a hash, tag or
// branch name; empty means the default branch).
func cloneAtRevision(url, rev, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	repo, err := git.PlainClone(dest, false, &git.CloneOptions{URL: url})
	if err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}
	if rev == "" {
		return nil
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("resolve %q in %s: %w", rev, url, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		os.RemoveAll(dest)
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("checkout %s at %q: %w", url, rev, err)
	}
	return nil
}

// checkoutDirName keeps cache directory names filesystem-safe.
func checkoutDirName(rev string) string {
	if rev == "" {
		return "default"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, rev)
	return safe
}
