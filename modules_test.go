// modules_test.go
package serval

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func resolveSource(t *testing.T, dir, src string) (*Program, map[string]*ResolvedImport) {
	t.Helper()
	prog, err := ParseSource(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resolved, err := NewResolver(dir).ResolveImports(prog)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return prog, resolved
}

func Test_Modules_NamespaceImportForms(t *testing.T) {
	_, resolved := resolveSource(t, t.TempDir(), `
import stdlib::crypto;
import log;
`)
	if len(resolved) != 2 {
		t.Fatalf("resolved %v", resolved)
	}
	if ri := resolved["stdlib::crypto"]; ri == nil || ri.Namespace != "crypto" {
		t.Fatalf("stdlib::crypto -> %+v", ri)
	}
	if ri := resolved["log"]; ri == nil || ri.Namespace != "log" {
		t.Fatalf("log -> %+v", ri)
	}
}

func Test_Modules_UnknownNamespaceRejected(t *testing.T) {
	prog, err := ParseSource(`import stdlib::teleport;`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := NewResolver(t.TempDir()).ResolveImports(prog); err == nil {
		t.Fatal("unknown namespace accepted")
	}
}

func Test_Modules_NamespaceAliasDispatch(t *testing.T) {
	rt := newTestRuntime()
	prog, resolved := resolveSource(t, t.TempDir(), `
import stdlib::crypto as hashing;
hashing::sha256("abc");
`)
	result, err := rt.ExecuteProgram(prog, resolved)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result == nil || !strings.HasPrefix(result.Data.(string), "ba7816bf") {
		t.Fatalf("result %v", result)
	}
}

func Test_Modules_FileImportExportedFunctions(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "mathlib.svl", `
export fn double(n) {
	return n * 2;
}
fn hidden() {
	return 0;
}
`)

	rt := newTestRuntime()
	prog, resolved := resolveSource(t, dir, `
import "./mathlib.svl";
mathlib::double(21);
`)
	result, err := rt.ExecuteProgram(prog, resolved)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantInt(t, *result, 42)

	// Unexported functions stay private to the file.
	rt2 := newTestRuntime()
	prog2, resolved2 := resolveSource(t, dir, `
import "./mathlib.svl";
mathlib::hidden();
`)
	if _, err := rt2.ExecuteProgram(prog2, resolved2); err == nil {
		t.Fatal("unexported function reachable through import")
	}
}

func Test_Modules_FileImportAlias(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "util.svl", `
export fn greet(name) {
	return "hi " + name;
}
`)
	rt := newTestRuntime()
	prog, resolved := resolveSource(t, dir, `
import "./util.svl" as helpers;
helpers::greet("ada");
`)
	result, err := rt.ExecuteProgram(prog, resolved)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantString(t, *result, "hi ada")
}

func Test_Modules_NestedImportsResolveRelatively(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "lib/inner.svl", `
export fn base() {
	return 10;
}
`)
	writeSource(t, dir, "lib/outer.svl", `
import "./inner.svl";
export fn answer() {
	return 42;
}
`)
	// Resolution of outer.svl must find inner.svl next to it, not next to
	// the importing program.
	_, resolved := resolveSource(t, dir, `import "./lib/outer.svl";`)
	if len(resolved) != 1 {
		t.Fatalf("resolved %v", resolved)
	}
	if ri := resolved["./lib/outer.svl"]; ri == nil || ri.Prog == nil {
		t.Fatalf("outer -> %+v", ri)
	}
}

func Test_Modules_ImportCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.svl", `import "./b.svl";`)
	writeSource(t, dir, "b.svl", `import "./a.svl";`)

	prog, err := ParseSource(`import "./a.svl";`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResolver(dir).ResolveImports(prog)
	if err == nil || !strings.Contains(err.Error(), "import cycle") {
		t.Fatalf("err: %v", err)
	}
}

func Test_Modules_MissingFile(t *testing.T) {
	prog, err := ParseSource(`import "./ghost.svl";`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(t.TempDir()).ResolveImports(prog); err == nil {
		t.Fatal("missing file accepted")
	}
}

func Test_Modules_ImportedParseErrorNamesFile(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "broken.svl", `let = ;`)
	prog, err := ParseSource(`import "./broken.svl";`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResolver(dir).ResolveImports(prog)
	if err == nil || !strings.Contains(err.Error(), "broken.svl") {
		t.Fatalf("err: %v", err)
	}
}

func Test_Modules_ImportOnlyAtTopLevel(t *testing.T) {
	// Inside a body `import` degrades to a plain identifier expression, so
	// the parse succeeds but no import is declared.
	prog, err := ParseSource(`
fn f() {
	import stdlib::crypto;
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, stmt := range prog.Statements {
		if _, ok := stmt.(*ImportStatement); ok {
			t.Fatal("nested import should not declare an import")
		}
	}
	_, resolved := resolveSource(t, t.TempDir(), `
fn f() {
	import stdlib::crypto;
}
`)
	if len(resolved) != 0 {
		t.Fatalf("nested import resolved: %+v", resolved)
	}
}

func Test_Modules_DefaultAliasDerivation(t *testing.T) {
	cases := map[string]string{
		"./wallet.svl":    "wallet",
		"./lib/tools.svl": "tools",
		"stdlib::crypto":  "crypto",
		"log":             "log",
	}
	for path, want := range cases {
		if got := importDefaultAlias(path); got != want {
			t.Errorf("importDefaultAlias(%q) = %q, want %q", path, got, want)
		}
	}
}

func Test_Modules_CheckoutDirNames(t *testing.T) {
	if got := checkoutDirName(""); got != "default" {
		t.Fatalf("empty rev -> %q", got)
	}
	if got := checkoutDirName("v1.2.3"); got != "v1.2.3" {
		t.Fatalf("tag -> %q", got)
	}
	if got := checkoutDirName("feature/risky name"); got != "feature-risky-name" {
		t.Fatalf("branch -> %q", got)
	}
}

func Test_Modules_FetchSkipsExistingCheckouts(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, pkgCacheDir, "dep", "v1")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	m := &Manifest{
		Name: "x",
		Dependencies: map[string]*DependencySpec{
			"dep": {Git: "https://example.invalid/repo.git", Tag: "v1"},
		},
	}
	// The checkout already exists, so no clone is attempted and no network
	// is touched.
	if err := FetchDependencies(m, root); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}
