package domain

// StatusDone marks a run whose execution finished, successfully or
// not. A contended start also reports done: that instance's work is
// over even though the run it collided with continues.
const StatusDone = "done"

// RunResult is the outcome record delivered through a progress
// callback, exactly once per started run.
type RunResult struct {
	Error  string
	Status string
}

// Progress receives a run's outcome record, exactly once per started
// run.
type Progress func(RunResult)

// Failed reports whether the result carries an error.
func (r RunResult) Failed() bool { return r.Error != "" }

// Done returns a successful completion result.
func Done() RunResult {
	return RunResult{Status: StatusDone}
}

// Fail returns a completed result carrying an error message.
func Fail(msg string) RunResult {
	return RunResult{Error: msg, Status: StatusDone}
}
