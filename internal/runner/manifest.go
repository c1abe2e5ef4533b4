package runner

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Manifest lists a source tree as slash-separated relative paths: at
// each level directories come before files, both in case-folded
// order, and each directory is followed immediately by its own
// subtree.
func Manifest(root string) ([]string, error) {
	return walk(root, "")
}

func walk(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	// Case folding finds more equivalences than lowercasing alone.
	fold := cases.Fold()
	folded := make(map[string]string, len(entries))
	for _, entry := range entries {
		folded[entry.Name()] = fold.String(entry.Name())
	}
	sort.Slice(entries, func(i, j int) bool {
		return folded[entries[i].Name()] < folded[entries[j].Name()]
	})

	var rels []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rel := path.Join(prefix, entry.Name())
		rels = append(rels, rel)
		sub, err := walk(filepath.Join(dir, entry.Name()), rel)
		if err != nil {
			return nil, err
		}
		rels = append(rels, sub...)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rels = append(rels, path.Join(prefix, entry.Name()))
	}
	return rels, nil
}

// filterExcluded drops manifest entries matching any exclude pattern.
// Patterns are path.Match globs tested against both the full relative
// path and the entry's base name; excluding a directory drops its
// whole subtree.
func filterExcluded(rels, patterns []string) []string {
	if len(patterns) == 0 {
		return rels
	}
	var kept []string
	var skipPrefixes []string
	for _, rel := range rels {
		if underAny(rel, skipPrefixes) {
			continue
		}
		if matchesAny(rel, patterns) {
			skipPrefixes = append(skipPrefixes, rel+"/")
			continue
		}
		kept = append(kept, rel)
	}
	return kept
}

func matchesAny(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

func underAny(rel string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}
