// Package artifact implements the Artifact Writer: it persists each
// reached node's analyzer output to a layout keyed by CVE id and
// (name, version), which the stats post-processor later reads back.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cvereach/cvereach"
)

// Writer persists analyzer results under Root.
type Writer struct {
	Root string
}

// New constructs a Writer rooted at root, e.g. "<repo>/analysis_results".
func New(root string) *Writer {
	return &Writer{Root: root}
}

// Write persists blob, a JSON array of {file, file-content} records, to
// ⟨Root⟩/⟨cveID⟩/⟨name⟩-⟨version⟩.txt, creating parent directories on
// demand and overwriting any prior file for the same key.
func (w *Writer) Write(cveID, name, version string, blob json.RawMessage) error {
	dir := filepath.Join(w.Root, cveID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &cvereach.Error{Op: "artifact: mkdir", Kind: cvereach.ErrArtifactWriteFailed, Inner: err}
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.txt", name, version))
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return &cvereach.Error{Op: "artifact: write", Kind: cvereach.ErrArtifactWriteFailed, Inner: err}
	}
	return nil
}

// Exists reports whether an artifact has already been written for the given
// key, used by tests checking testable property 4.
func (w *Writer) Exists(cveID, name, version string) bool {
	path := filepath.Join(w.Root, cveID, fmt.Sprintf("%s-%s.txt", name, version))
	_, err := os.Stat(path)
	return err == nil
}
