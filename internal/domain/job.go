package domain

// Operation is a single unit of work within a job. Source is the only
// field the core validates; the rest is the runner's concern.
type Operation struct {
	Source      string
	Destination string
	Exclude     []string
}

// Job is a named, user-defined sequence of backup operations. Jobs
// carry no enabled flag: only timers gate execution, and a job with no
// timer referencing it is latent, never auto-run.
type Job struct {
	Name       string
	Operations []Operation
}
