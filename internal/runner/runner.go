// Package runner is the local job execution backend: it mirrors each
// operation's source tree into its destination.
package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"backupnow/internal/circuitbreaker"
	"backupnow/internal/domain"
)

const defaultConcurrency = 4

// Runner copies files. It never touches timers or settings; its only
// output is the result record per run and its lifetime counters.
type Runner struct {
	log     zerolog.Logger
	breaker *circuitbreaker.CircuitBreaker // optional, nil = always allowed
	root    string                         // fallback destination root
	workers int

	filesCopied atomic.Int64
	bytesCopied atomic.Int64
}

func New(log zerolog.Logger) *Runner {
	return &Runner{log: log, workers: defaultConcurrency}
}

// WithBreaker attaches a per-destination circuit breaker.
func (r *Runner) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Runner {
	r.breaker = cb
	return r
}

// WithDefaultRoot sets the destination root used by operations that
// do not name their own destination.
func (r *Runner) WithDefaultRoot(root string) *Runner {
	r.root = root
	return r
}

// WithConcurrency bounds the number of parallel file copies per
// operation.
func (r *Runner) WithConcurrency(n int) *Runner {
	if n > 0 {
		r.workers = n
	}
	return r
}

// Totals returns lifetime copy counters, for status reporting.
func (r *Runner) Totals() (files, bytes int64) {
	return r.filesCopied.Load(), r.bytesCopied.Load()
}

// Run executes every operation of the job in order. A failing
// operation does not stop the ones after it; the first failure is
// what the result record reports.
func (r *Runner) Run(name string, job domain.Job) domain.RunResult {
	start := time.Now()
	firstErr := ""
	for i, op := range job.Operations {
		if err := r.runOperation(name, i+1, op); err != nil {
			r.log.Error().
				Str("job", name).
				Int("operation", i+1).
				Err(err).
				Msg("operation failed")
			if firstErr == "" {
				firstErr = fmt.Sprintf("job '%s' operation %d: %v", name, i+1, err)
			}
		}
	}
	r.log.Info().
		Str("job", name).
		Dur("took", time.Since(start)).
		Bool("ok", firstErr == "").
		Msg("job finished")
	if firstErr != "" {
		return domain.Fail(firstErr)
	}
	return domain.Done()
}

func (r *Runner) runOperation(jobName string, index int, op domain.Operation) error {
	if op.Source == "" {
		return fmt.Errorf("missing 'source'")
	}
	srcInfo, err := os.Stat(op.Source)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	dest := op.Destination
	if dest == "" {
		if r.root == "" {
			return fmt.Errorf("no destination and no default backup root configured")
		}
		dest = filepath.Join(r.root, jobName)
	}

	if r.breaker != nil {
		if err := r.breaker.Allow(dest); err != nil {
			return fmt.Errorf("destination %s: %w", dest, err)
		}
	}
	if !isTarget(dest) {
		if r.breaker != nil {
			r.breaker.RecordFailure(dest)
		}
		return fmt.Errorf("destination %s is %w; create %s on the backup volume",
			dest, ErrNotTarget, MarkerName)
	}

	// Build the manifest before touching the destination; source-side
	// errors must not count against the destination's circuit.
	srcRoot := op.Source
	var rels []string
	if srcInfo.IsDir() {
		rels, err = Manifest(op.Source)
		if err != nil {
			return fmt.Errorf("walk source: %w", err)
		}
		rels = filterExcluded(rels, op.Exclude)
	} else {
		srcRoot = filepath.Dir(op.Source)
		rels = []string{filepath.Base(op.Source)}
	}

	if err := r.copyAll(srcRoot, dest, rels); err != nil {
		if r.breaker != nil {
			r.breaker.RecordFailure(dest)
		}
		return err
	}
	if r.breaker != nil {
		r.breaker.RecordSuccess(dest)
	}
	r.log.Info().
		Str("job", jobName).
		Int("operation", index).
		Str("source", op.Source).
		Str("destination", dest).
		Int("entries", len(rels)).
		Msg("operation complete")
	return nil
}

// copyAll recreates the manifest under dest: directories first on the
// caller's goroutine so every file's parent exists, then files on a
// bounded worker group.
func (r *Runner) copyAll(srcRoot, dest string, rels []string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	var files []string
	for _, rel := range rels {
		srcPath := filepath.Join(srcRoot, filepath.FromSlash(rel))
		info, err := os.Stat(srcPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		if info.IsDir() {
			if err := os.MkdirAll(filepath.Join(dest, filepath.FromSlash(rel)), 0o755); err != nil {
				return err
			}
			continue
		}
		files = append(files, rel)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, rel := range files {
		rel := rel
		g.Go(func() error {
			n, err := copyFile(
				filepath.Join(srcRoot, filepath.FromSlash(rel)),
				filepath.Join(dest, filepath.FromSlash(rel)),
			)
			if err != nil {
				return fmt.Errorf("copy %s: %w", rel, err)
			}
			r.filesCopied.Add(1)
			r.bytesCopied.Add(n)
			return nil
		})
	}
	return g.Wait()
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	// Keep the source's modification time on the copy.
	if err := os.Chtimes(dst, time.Now(), info.ModTime()); err != nil {
		return n, err
	}
	return n, nil
}
