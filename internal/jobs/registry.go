// Package jobs owns the job registry: the named operation sequences
// read from the settings document's "jobs" mapping, and their
// validation.
package jobs

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"backupnow/internal/domain"
	"backupnow/internal/settings"
)

// ValidationError describes one problem with a job definition. Jobs
// are user data, so validation accumulates errors instead of stopping
// at the first.
type ValidationError struct {
	Job     string
	Message string
}

func (e ValidationError) Error() string { return e.Message }

// Registry maps job names to their definitions. Decoding is lenient:
// malformed entries become empty shapes so Validate can report them
// instead of the load failing.
type Registry struct {
	log   zerolog.Logger
	order []string
	jobs  map[string]domain.Job
}

// FromDocument builds the registry from the document's "jobs"
// mapping. A missing or non-mapping "jobs" value yields an empty
// registry. Names are kept sorted so wildcard expansion and
// validation output are deterministic.
func FromDocument(doc *settings.Document, log zerolog.Logger) *Registry {
	r := &Registry{
		log:  log,
		jobs: map[string]domain.Job{},
	}
	raw, ok := doc.GetMap("jobs")
	if !ok {
		log.Warn().Str("path", doc.Path()).Msg("no 'jobs' mapping in settings")
		return r
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r.jobs[name] = decodeJob(name, raw[name])
		r.order = append(r.order, name)
	}
	return r
}

// decodeJob extracts what it can from one job entry. A nil Operations
// slice means the key was missing or not a list, which Validate
// distinguishes from a present empty list.
func decodeJob(name string, v any) domain.Job {
	job := domain.Job{Name: name}
	m, ok := v.(map[string]any)
	if !ok {
		return job
	}
	rawOps, present := m["operations"]
	if !present {
		return job
	}
	list, ok := rawOps.([]any)
	if !ok {
		return job
	}
	job.Operations = make([]domain.Operation, 0, len(list))
	for _, rawOp := range list {
		job.Operations = append(job.Operations, decodeOperation(rawOp))
	}
	return job
}

func decodeOperation(v any) domain.Operation {
	var op domain.Operation
	m, ok := v.(map[string]any)
	if !ok {
		return op
	}
	if s, ok := m["source"].(string); ok {
		op.Source = s
	}
	if s, ok := m["destination"].(string); ok {
		op.Destination = s
	}
	if list, ok := m["exclude"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				op.Exclude = append(op.Exclude, s)
			}
		}
	}
	return op
}

func (r *Registry) Get(name string) (domain.Job, bool) {
	job, ok := r.jobs[name]
	return job, ok
}

// Names returns every job name, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.jobs) }

// Validate checks every job and accumulates descriptive errors: a
// blank job name, a job without an operations list, and each
// operation missing its source, reported with the operation's
// 1-based position. It never aborts early.
func (r *Registry) Validate() []error {
	var errs []error
	for _, name := range r.order {
		job := r.jobs[name]
		if name == "" {
			errs = append(errs, ValidationError{
				Job:     name,
				Message: "There is a blank job name.",
			})
		}
		if job.Operations == nil {
			errs = append(errs, ValidationError{
				Job:     name,
				Message: fmt.Sprintf("Job '%s' has no operations.", name),
			})
			continue
		}
		for i, op := range job.Operations {
			if op.Source == "" {
				errs = append(errs, ValidationError{
					Job:     name,
					Message: fmt.Sprintf("Job '%s' operation %d missing 'source'", name, i+1),
				})
			}
		}
	}
	return errs
}
