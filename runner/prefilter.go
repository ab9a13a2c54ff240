package runner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Prefilter reports whether any of symbols' leaf names (the substring after
// the last "::") appears anywhere in the recursive text of root. It returns
// on the first hit, so its cost is proportional to how early a hit is found,
// not to the tree's full size.
//
// A clean "no match" is (false, nil); a search error is (false, err) — the
// two are always distinguishable.
func Prefilter(root string, symbols []string) (bool, error) {
	leaves := make([]string, len(symbols))
	for i, s := range symbols {
		leaves[i] = leafName(s)
	}

	var hit bool
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if hit {
			return filepath.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			// A file disappearing or being unreadable mid-scan is not a
			// search error; skip it and keep looking.
			return nil
		}
		text := string(data)
		for _, leaf := range leaves {
			if leaf != "" && strings.Contains(text, leaf) {
				hit = true
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return hit, nil
}

func leafName(symbol string) string {
	if i := strings.LastIndex(symbol, "::"); i >= 0 {
		return symbol[i+2:]
	}
	return symbol
}
