package watcher

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"backupnow/internal/domain"
	"backupnow/internal/jobs"
	"backupnow/internal/settings"
)

// fakeStarter stands in for the execution coordinator. Results are
// keyed by job name; unlisted names succeed. Names in contend report
// already-running instead of running.
type fakeStarter struct {
	mu      sync.Mutex
	synced  []string
	spawned []string
	results map[string]domain.RunResult
	contend map[string]bool
}

func (f *fakeStarter) resultFor(name string) domain.RunResult {
	if res, ok := f.results[name]; ok {
		return res
	}
	return domain.Done()
}

func (f *fakeStarter) RunSync(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error) {
	f.mu.Lock()
	f.synced = append(f.synced, name)
	contend := f.contend[name]
	res := f.resultFor(name)
	f.mu.Unlock()

	if contend {
		return domain.Fail(name + " is already running."), nil
	}
	progress(res)
	return domain.RunResult{}, nil
}

func (f *fakeStarter) StartJob(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error) {
	f.mu.Lock()
	f.spawned = append(f.spawned, name)
	contend := f.contend[name]
	res := f.resultFor(name)
	f.mu.Unlock()

	if contend {
		return domain.Fail(name + " is already running."), nil
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		progress(res)
	}()
	return domain.RunResult{}, nil
}

func (f *fakeStarter) syncedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synced...)
}

func testJobs(t *testing.T, names ...string) *jobs.Registry {
	t.Helper()
	doc := settings.New(zerolog.Nop())
	jobsMap := map[string]any{}
	for _, name := range names {
		jobsMap[name] = map[string]any{
			"operations": []any{map[string]any{"source": "/src/" + name}},
		}
	}
	doc.Set("jobs", jobsMap)
	return jobs.FromDocument(doc, zerolog.Nop())
}

func testTimer(t *testing.T, name string, commands ...string) *domain.Timer {
	t.Helper()
	span, err := domain.ParseSpan("daily")
	if err != nil {
		t.Fatalf("ParseSpan: %v", err)
	}
	timer, err := domain.NewTimer(name, "12:00", span, commands, true, nil)
	if err != nil {
		t.Fatalf("NewTimer: %v", err)
	}
	return timer
}

func TestJobNames_DeduplicatesInFirstSeenOrder(t *testing.T) {
	w := New(&fakeStarter{}, testJobs(t, "a", "b", "c"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "b", "a"))
	w.AddTimer("weekly", testTimer(t, "weekly", "a", "c"))

	got := w.JobNames()
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("JobNames() = %v, want %v", got, want)
	}
}

func TestJobNames_WildcardExpandsToAllJobsSorted(t *testing.T) {
	w := New(&fakeStarter{}, testJobs(t, "zeta", "mail", "docs"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "*"))

	got := w.JobNames()
	want := []string{"docs", "mail", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("JobNames() = %v, want %v", got, want)
	}
}

func TestJobNames_ExplicitBeforeWildcardKeepsPosition(t *testing.T) {
	w := New(&fakeStarter{}, testJobs(t, "zeta", "mail"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "zeta", "*"))

	got := w.JobNames()
	want := []string{"zeta", "mail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("JobNames() = %v, want %v", got, want)
	}
}

func TestRunSync_CollectsFirstErrorWithoutStopping(t *testing.T) {
	starter := &fakeStarter{results: map[string]domain.RunResult{
		"b": domain.Fail("b: disk full"),
		"c": domain.Fail("c: also broken"),
	}}
	w := New(starter, testJobs(t, "a", "b", "c"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "a", "b", "c"))

	res := w.RunSync()

	if got := starter.syncedNames(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("jobs run = %v, want all three in order", got)
	}
	if res.Error != "b: disk full" {
		t.Errorf("aggregate error = %q, want first error %q", res.Error, "b: disk full")
	}
	if res.Status != domain.StatusDone {
		t.Errorf("aggregate status = %q, want %q", res.Status, domain.StatusDone)
	}
}

func TestRunSync_UnknownJobNameIsNonFatal(t *testing.T) {
	starter := &fakeStarter{}
	w := New(starter, testJobs(t, "real"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "ghost", "real"))

	res := w.RunSync()

	if got := starter.syncedNames(); !reflect.DeepEqual(got, []string{"real"}) {
		t.Errorf("jobs run = %v, want [real]", got)
	}
	if res.Error != "no job named \"ghost\"" {
		t.Errorf("aggregate error = %q, want missing-job report", res.Error)
	}
}

func TestRunSync_ContentionReportedPerName(t *testing.T) {
	starter := &fakeStarter{contend: map[string]bool{"b": true}}
	w := New(starter, testJobs(t, "a", "b", "c"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "a", "b", "c"))

	res := w.RunSync()

	if got := starter.syncedNames(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("jobs attempted = %v, want all three", got)
	}
	if res.Error != "b is already running." {
		t.Errorf("aggregate error = %q, want contention report", res.Error)
	}
}

func TestRunSync_NoErrors(t *testing.T) {
	w := New(&fakeStarter{}, testJobs(t, "a"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "*"))

	res := w.RunSync()
	if res.Failed() {
		t.Errorf("RunSync() error = %q, want none", res.Error)
	}
	if res.Status != domain.StatusDone {
		t.Errorf("RunSync() status = %q, want %q", res.Status, domain.StatusDone)
	}
}

func TestStart_ThreadedRunsAllAndAggregates(t *testing.T) {
	starter := &fakeStarter{results: map[string]domain.RunResult{
		"b": domain.Fail("b: unreachable"),
	}}
	w := New(starter, testJobs(t, "a", "b", "c"), zerolog.Nop())
	w.AddTimer("nightly", testTimer(t, "nightly", "*"))

	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for !w.IsDone() {
		if time.Now().After(deadline) {
			t.Fatal("watcher never reported done")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := w.Err(); got != "b: unreachable" {
		t.Errorf("Err() = %q, want %q", got, "b: unreachable")
	}
	res := w.Result()
	if res.Status != domain.StatusDone {
		t.Errorf("Result() status = %q, want %q", res.Status, domain.StatusDone)
	}
}

func TestIsDone_FalseBeforeStart(t *testing.T) {
	w := New(&fakeStarter{}, testJobs(t), zerolog.Nop())
	if w.IsDone() {
		t.Error("IsDone() = true before Start, want false")
	}
	w.Start()
	if !w.IsDone() {
		t.Error("IsDone() = false after Start with no jobs, want true")
	}
}

func TestRecords_CapturePerJobOutcomes(t *testing.T) {
	starter := &fakeStarter{results: map[string]domain.RunResult{
		"b": domain.Fail("b: disk full"),
	}}
	w := New(starter, testJobs(t, "a", "b"), zerolog.Nop())

	base := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	tick := 0
	w.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	w.AddTimer("nightly", testTimer(t, "nightly", "a", "b", "ghost"))
	w.RunSync()

	records := w.Records()
	if len(records) != 3 {
		t.Fatalf("len(Records()) = %d, want 3", len(records))
	}
	gotOrder := []string{records[0].Job, records[1].Job, records[2].Job}
	if want := []string{"a", "b", "ghost"}; !reflect.DeepEqual(gotOrder, want) {
		t.Errorf("record order = %v, want %v", gotOrder, want)
	}

	byJob := map[string]RunRecord{}
	for _, rec := range records {
		byJob[rec.Job] = rec
	}
	if rec := byJob["a"]; rec.Result.Failed() {
		t.Errorf("record for a carries error %q, want clean run", rec.Result.Error)
	}
	if rec := byJob["b"]; rec.Result.Error != "b: disk full" {
		t.Errorf("record for b error = %q, want %q", rec.Result.Error, "b: disk full")
	}
	if rec := byJob["ghost"]; rec.Result.Error != "no job named \"ghost\"" {
		t.Errorf("record for ghost error = %q, want missing-job report", rec.Result.Error)
	}
	for _, rec := range records {
		if rec.StartedAt.IsZero() || rec.FinishedAt.Before(rec.StartedAt) {
			t.Errorf("record for %s spans %v..%v, want start before finish", rec.Job, rec.StartedAt, rec.FinishedAt)
		}
	}
}
