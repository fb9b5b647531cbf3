// manifest_test.go
package serval

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManifest = `
name: payments
version: 1.2.0
description: payment scripting for the demo stack
entry: main.svl
dependencies:
  stdlib-extras:
    git: https://example.com/serval/stdlib-extras.git
    tag: v0.4.0
  chain-utils:
    git: https://example.com/serval/chain-utils.git
    rev: 4f2c1aa
`

func Test_Manifest_ParseComplete(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Name != "payments" || m.Version != "1.2.0" || m.Entry != "main.svl" {
		t.Fatalf("fields %+v", m)
	}
	names := m.DependencyNames()
	if len(names) != 2 || names[0] != "chain-utils" || names[1] != "stdlib-extras" {
		t.Fatalf("dependency names %v", names)
	}
	if rev := m.Dependencies["chain-utils"].Revision(); rev != "4f2c1aa" {
		t.Fatalf("revision %q", rev)
	}
	if rev := m.Dependencies["stdlib-extras"].Revision(); rev != "v0.4.0" {
		t.Fatalf("revision %q", rev)
	}
}

func Test_Manifest_RevisionPrecedence(t *testing.T) {
	d := &DependencySpec{Branch: "main"}
	if d.Revision() != "main" {
		t.Fatalf("branch fallback %q", d.Revision())
	}
	d.Tag = "v1"
	if d.Revision() != "v1" {
		t.Fatalf("tag should beat branch, got %q", d.Revision())
	}
	d.Rev = "abc123"
	if d.Revision() != "abc123" {
		t.Fatalf("rev should beat tag, got %q", d.Revision())
	}
	if (&DependencySpec{}).Revision() != "" {
		t.Fatal("empty spec should yield empty revision")
	}
}

func Test_Manifest_UnknownKeyRejected(t *testing.T) {
	_, err := ParseManifest([]byte("name: x\nentrypoint: main.svl\n"))
	if err == nil {
		t.Fatal("typoed key accepted")
	}
	var me *ManifestError
	if !errors.As(err, &me) {
		t.Fatalf("error %T", err)
	}
	if !strings.Contains(me.Error(), "entrypoint") {
		t.Fatalf("error should name the unknown key: %v", me)
	}
}

func Test_Manifest_AggregatesIssues(t *testing.T) {
	bad := `
entry: main.txt
dependencies:
  broken:
    tag: v1
    branch: main
`
	_, err := ParseManifest([]byte(bad))
	var me *ManifestError
	if !errors.As(err, &me) {
		t.Fatalf("error %T: %v", err, err)
	}
	// Missing name, bad entry suffix, missing git URL and the conflicting
	// rev selectors must all be reported at once.
	if len(me.Issues) != 4 {
		t.Fatalf("issues %v", me.Issues)
	}
	text := me.Error()
	for _, want := range []string{"name is required", ".svl", "git URL is required", "mutually exclusive"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing issue %q in:\n%s", want, text)
		}
	}
}

func Test_Manifest_LoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Name != "payments" {
		t.Fatalf("name %q", m.Name)
	}

	// Validation errors carry the real path.
	badPath := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(badPath, []byte("entry: x.txt\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadManifest(badPath)
	var me *ManifestError
	if !errors.As(err, &me) || me.Path != badPath {
		t.Fatalf("error %v", err)
	}

	if _, err := LoadManifest(filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
