package state

// JobStatus is the externally visible state of a submitted job, as recorded
// in the status store. The broker remains the source of truth for delivery;
// statuses exist so the submitting service can answer "what happened to job
// X" without touching the broker.
type JobStatus string

const (
	StatusPending      JobStatus = "pending"
	StatusInFlight     JobStatus = "in_flight"
	StatusRetrying     JobStatus = "retrying"
	StatusSucceeded    JobStatus = "succeeded"
	StatusDeadLettered JobStatus = "dead_lettered"
)

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether no further status change is expected.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusDeadLettered
}

var AllStatuses = []JobStatus{
	StatusPending,
	StatusInFlight,
	StatusRetrying,
	StatusSucceeded,
	StatusDeadLettered,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusInFlight},
	// A job can die before its first execution (unknown task, malformed
	// arguments at dispatch time).
	{From: StatusPending, To: StatusDeadLettered},
	{From: StatusInFlight, To: StatusSucceeded},
	{From: StatusInFlight, To: StatusRetrying},
	{From: StatusInFlight, To: StatusDeadLettered},
	{From: StatusRetrying, To: StatusInFlight},
	{From: StatusRetrying, To: StatusDeadLettered},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
