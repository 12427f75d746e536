package tracing

import "github.com/sarchlab/memsim/timing"

// Task outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeMerged    = "merged"
	OutcomeRefused   = "refused"
	OutcomeAnnulled  = "annulled"
	OutcomeWritten   = "written"
)

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Cycle timing.VTimeInCycle `json:"cycle"`
	What  string              `json:"what"`
}

// A Task is the life of one request in one component.
type Task struct {
	ID         string              `json:"id"`
	Kind       string              `json:"kind"`
	What       string              `json:"what"`
	Where      string              `json:"where"`
	Address    uint64              `json:"address"`
	Bank       int                 `json:"bank"`
	StartCycle timing.VTimeInCycle `json:"start_cycle"`
	EndCycle   timing.VTimeInCycle `json:"end_cycle"`
	Outcome    string              `json:"outcome"`
	Steps      []TaskStep          `json:"steps"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// AllTasks accepts every task.
func AllTasks(Task) bool { return true }

// A Tracer turns the milestones of requests into tasks.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}
