// Package settings owns the persisted settings document: a nested
// key-value mapping loaded from a JSON or YAML file, mutated in
// memory, and written back atomically. The document is not safe for
// concurrent use; the orchestrator goroutine owns it.
package settings

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Document is the in-memory settings document plus the path it was
// loaded from (or will be saved to). Keys the program does not
// understand are preserved across load/save.
type Document struct {
	path string
	data map[string]any
	log  zerolog.Logger

	// contentHash tracks the bytes last read from or written to disk,
	// so the file watcher can tell self-writes from user edits. It is
	// the only field touched from another goroutine.
	contentHash atomic.Uint64
}

func New(log zerolog.Logger) *Document {
	return &Document{
		data: map[string]any{},
		log:  log,
	}
}

// Path returns the file this document is bound to; empty until Load
// or SetPath.
func (d *Document) Path() string { return d.path }

// SetPath binds the document to a file without reading it, used when
// no settings file exists yet and a default location is adopted.
func (d *Document) SetPath(path string) { d.path = path }

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.data[key]
	return v, ok
}

// GetMap returns the value under key if it is a mapping.
func (d *Document) GetMap(key string) (map[string]any, bool) {
	v, ok := d.data[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func (d *Document) Set(key string, value any) {
	d.data[key] = value
}

func (d *Document) Has(key string) bool {
	_, ok := d.data[key]
	return ok
}

func (d *Document) Delete(key string) {
	delete(d.data, key)
}

// ContentHash identifies the last file content read or written; zero
// until the first Load or Save.
func (d *Document) ContentHash() uint64 {
	return d.contentHash.Load()
}
