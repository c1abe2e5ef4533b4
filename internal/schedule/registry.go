// Package schedule owns the timer registry: the named recurrence
// rules persisted under the settings document's "taskmanager" key,
// and the readiness computation over them.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"backupnow/internal/domain"
)

// Registry maps timer names to timers and preserves a deterministic
// iteration order: sorted names after deserialization, insertion
// order for programmatic adds. Owned by the orchestrator goroutine;
// not safe for concurrent use.
type Registry struct {
	log    zerolog.Logger
	order  []string
	timers map[string]*domain.Timer
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:    log,
		timers: map[string]*domain.Timer{},
	}
}

// Add inserts or replaces a timer. A replaced timer keeps its position
// in the iteration order.
func (r *Registry) Add(t *domain.Timer) {
	if _, exists := r.timers[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.timers[t.Name] = t
}

func (r *Registry) Get(name string) (*domain.Timer, bool) {
	t, ok := r.timers[name]
	return t, ok
}

func (r *Registry) Remove(name string) {
	if _, exists := r.timers[name]; !exists {
		return
	}
	delete(r.timers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Len() int { return len(r.timers) }

// Names returns the timer names in registry order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Timers returns the timers in registry order.
func (r *Registry) Timers() []*domain.Timer {
	out := make([]*domain.Timer, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.timers[name])
	}
	return out
}

// ReadyTimers returns, in registry order, every timer that is due at
// now: enabled, past its period boundary, and not already fired within
// the current period. Pure; Ran is never mutated here. Timers sharing
// a job name are evaluated independently.
func (r *Registry) ReadyTimers(now time.Time) []*domain.Timer {
	var ready []*domain.Timer
	for _, name := range r.order {
		t := r.timers[name]
		if t.Ready(now) {
			ready = append(ready, t)
		}
	}
	return ready
}

// MarkRan records that a timer fired at instant. It is the only
// mutator of a timer's Ran marker and is called only after a dispatch
// attempt, never before, so a crash mid-dispatch re-fires rather than
// skips (at-least-once bias).
func (r *Registry) MarkRan(name string, instant time.Time) error {
	t, ok := r.timers[name]
	if !ok {
		return fmt.Errorf("mark ran: no timer named %q", name)
	}
	t.SetRan(instant)
	return nil
}

// SeedDefault installs the default daily wildcard timer when the
// registry is empty. Reports whether a timer was added.
func (r *Registry) SeedDefault() bool {
	if len(r.timers) > 0 {
		return false
	}
	span, err := domain.ParseSpan("daily")
	if err != nil {
		panic(err)
	}
	t, err := domain.NewTimer(
		domain.DefaultBackupName,
		"12:00",
		span,
		[]string{domain.WildcardCommand},
		true,
		nil,
	)
	if err != nil {
		panic(err)
	}
	r.Add(t)
	r.log.Warn().Str("timer", t.Name).Msg("seeded default timer")
	return true
}

// ToMap serializes the registry into its settings-document form:
// {"timers": {name: timer}}.
func (r *Registry) ToMap() map[string]any {
	timers := make(map[string]any, len(r.timers))
	for name, t := range r.timers {
		timers[name] = t.ToMap()
	}
	return map[string]any{"timers": timers}
}

// FromMap deserializes the "taskmanager" mapping. A missing or
// malformed "timers" structure heals to an empty registry with a
// logged warning instead of failing; individual timer field problems
// accumulate as validation errors while the remaining timers still
// load. Loaded names are sorted for deterministic iteration.
func FromMap(m map[string]any, log zerolog.Logger) (*Registry, []error) {
	r := NewRegistry(log)
	if m == nil {
		log.Warn().Msg("taskmanager missing; starting with empty timer registry")
		return r, nil
	}

	rawTimers, present := m["timers"]
	if !present {
		log.Warn().Msg("taskmanager has no timers; starting with empty timer registry")
		return r, nil
	}
	timersMap, ok := rawTimers.(map[string]any)
	if !ok {
		log.Warn().
			Str("type", fmt.Sprintf("%T", rawTimers)).
			Msg("healing non-mapping timers structure")
		return r, nil
	}

	names := make([]string, 0, len(timersMap))
	for name := range timersMap {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		timerMap, ok := timersMap[name].(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("timer %q: not a mapping", name))
			continue
		}
		t, err := domain.TimerFromMap(name, timerMap)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.Add(t)
	}
	return r, errs
}
