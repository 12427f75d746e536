package tracing

import (
	"sync"
)

// AverageTimeTracer measures the average number of cycles between the start
// and the end of the tasks that pass the filter.
type AverageTimeTracer struct {
	filter        TaskFilter
	lock          sync.Mutex
	averageCycles float64
	inflightTasks map[string]Task
	taskCount     uint64
}

// NewAverageTimeTracer creates a new AverageTimeTracer
func NewAverageTimeTracer(filter TaskFilter) *AverageTimeTracer {
	t := &AverageTimeTracer{
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
	return t
}

// AverageCycles returns the average task duration.
func (t *AverageTimeTracer) AverageCycles() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.averageCycles
}

// TotalCount returns the total number of tasks.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the task start time
func (t *AverageTimeTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing
func (t *AverageTimeTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask records the end of the task
func (t *AverageTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	delete(t.inflightTasks, task.ID)

	if task.Outcome != OutcomeDelivered {
		return
	}

	taskCycles := float64(task.EndCycle - originalTask.StartCycle)
	t.averageCycles = (t.averageCycles*float64(t.taskCount) + taskCycles) /
		float64(t.taskCount+1)
	t.taskCount++
}
