// Command target-inspect summarizes a backup target directory: the
// marker file that authorizes backups into it, and per-subtree file
// counts, byte totals, and newest write times. Point it at a backup
// volume to see what backupnow actually delivered there.
//
// Usage: target-inspect [dir]
package main

import (
	"encoding/json"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const markerName = ".backupnow-target.json"

type subtree struct {
	Name   string `json:"name"`
	Files  int64  `json:"files"`
	Bytes  int64  `json:"bytes"`
	Newest string `json:"newest,omitempty"`
}

type report struct {
	Root     string          `json:"root"`
	Marked   bool            `json:"marked"`
	Marker   json.RawMessage `json:"marker,omitempty"`
	Subtrees []subtree       `json:"subtrees"`
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		log.Fatalf("resolving %s: %v", root, err)
	}

	rep := report{Root: abs, Subtrees: []subtree{}}

	if raw, err := os.ReadFile(filepath.Join(abs, markerName)); err == nil {
		rep.Marked = true
		if json.Valid(raw) {
			rep.Marker = raw
		}
	} else {
		log.Printf("no %s in %s; backupnow will refuse to write here unless an ancestor carries one", markerName, abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		log.Fatalf("reading %s: %v", abs, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		st, err := scan(filepath.Join(abs, entry.Name()))
		if err != nil {
			log.Printf("scanning %s: %v", entry.Name(), err)
			continue
		}
		st.Name = entry.Name()
		rep.Subtrees = append(rep.Subtrees, st)
	}
	sort.Slice(rep.Subtrees, func(i, j int) bool {
		return rep.Subtrees[i].Name < rep.Subtrees[j].Name
	})

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatalf("encoding report: %v", err)
	}
	os.Stdout.Write(append(out, '\n'))
}

func scan(dir string) (subtree, error) {
	var st subtree
	var newest time.Time
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		st.Files++
		st.Bytes += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return subtree{}, err
	}
	if !newest.IsZero() {
		st.Newest = newest.UTC().Format(time.RFC3339)
	}
	return st, nil
}
