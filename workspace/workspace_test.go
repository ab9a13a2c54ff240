package workspace

import (
	"path/filepath"
	"testing"
)

func TestScratchIsolation(t *testing.T) {
	m := New("/tmp/cvereach-test")
	a, err := m.CreateNodeDir(Root, "liba", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.CreateNodeDir(Root, "libb", "0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	if m.WorkingDirOf(a) == m.WorkingDirOf(b) {
		t.Fatalf("sibling nodes share a scratch directory: %s", m.WorkingDirOf(a))
	}
	child, err := m.CreateNodeDir(a, "libc", "2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(filepath.Dir(m.WorkingDirOf(child))) != m.WorkingDirOf(a) {
		t.Fatalf("child %s is not nested under parent %s", m.WorkingDirOf(child), m.WorkingDirOf(a))
	}
	if m.ParentOf(child) != a {
		t.Fatalf("ParentOf(child) = %d, want %d", m.ParentOf(child), a)
	}
}
