package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPinParentBareVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[dependencies]\nliba = \"0.9\"\nserde = \"1.0\"\n")

	orig, err := PinParent(dir, "liba", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(orig, `liba = "0.9"`) {
		t.Fatalf("original contents not returned intact: %q", orig)
	}

	got, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), `liba = "1.0.0"`) {
		t.Fatalf("version not pinned: %q", got)
	}
	if !strings.Contains(string(got), "auto lock the dependency version, from 0.9 to 1.0.0") {
		t.Fatalf("missing annotation: %q", got)
	}
	if !strings.Contains(string(got), `serde = "1.0"`) {
		t.Fatalf("unrelated dependency was touched: %q", got)
	}
}

func TestPinParentInlineTable(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[dependencies]\nliba = { version = \"0.9\", features = [\"x\"] }\n")

	if _, err := PinParent(dir, "liba", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), `version = "1.0.0"`) {
		t.Fatalf("inline version not pinned: %q", got)
	}
	if !strings.Contains(string(got), `features = ["x"]`) {
		t.Fatalf("other inline fields were disturbed: %q", got)
	}
}

func TestPinParentIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[dependencies]\nliba = \"0.9\"\n")

	if _, err := PinParent(dir, "liba", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := PinParent(dir, "liba", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(second), "auto lock the dependency version") != 1 {
		t.Fatalf("re-patching duplicated the annotation: %q", second)
	}
	_ = first
}

func TestPinParentMissingManifest(t *testing.T) {
	dir := t.TempDir()
	if _, err := PinParent(dir, "liba", "1.0.0"); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestPinParentScopedToDependencyTables(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, ""+
		"[package.metadata.liba]\n"+
		"liba = \"0.9\"\n"+
		"[dependencies]\n"+
		"liba = \"0.9\"\n"+
		"[target.'cfg(unix)'.dev-dependencies]\n"+
		"liba = \"0.9\"\n")

	if _, err := PinParent(dir, "liba", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		t.Fatal(err)
	}
	contents := string(got)
	if strings.Count(contents, `liba = "1.0.0"`) != 2 {
		t.Fatalf("expected exactly the [dependencies] and target dev-dependencies lines pinned: %q", contents)
	}
	if !strings.Contains(contents, "[package.metadata.liba]\nliba = \"0.9\"\n") {
		t.Fatalf("a line outside the dependency tables was rewritten: %q", contents)
	}
}
