package tracing

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/memsim/datarecording"
	"github.com/sarchlab/memsim/timing"
)

// TaskTableName is the table that DBTracer writes into.
const TaskTableName = "memsim_tasks"

type taskTableEntry struct {
	ID         string
	Kind       string
	What       string
	Location   string
	Address    uint64
	Bank       int
	StartCycle uint64
	EndCycle   uint64
	Outcome    string
	Retries    int
}

// DBTracer is a tracer that stores finished tasks into a data recorder.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder

	startCycle, endCycle timing.VTimeInCycle

	tracingTasks map[string]*dbTask
	terminated   bool
}

type dbTask struct {
	Task
	retries int
}

// NewDBTracer creates a new DBTracer.
func NewDBTracer(dataRecorder datarecording.DataRecorder) *DBTracer {
	dataRecorder.CreateTable(TaskTableName, taskTableEntry{})

	t := &DBTracer{
		backend:      dataRecorder,
		tracingTasks: make(map[string]*dbTask),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange limits the tracer to the tasks that overlap with the range.
// An end cycle of zero means no limit.
func (t *DBTracer) SetTimeRange(startCycle, endCycle timing.VTimeInCycle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startCycle = startCycle
	t.endCycle = endCycle
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startingTaskMustBeValid(task)

	if t.endCycle > 0 && task.StartCycle > t.endCycle {
		return
	}

	t.tracingTasks[task.ID] = &dbTask{Task: task}
}

func startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Where == "" {
		panic("task location must be set")
	}
}

// StepTask counts the delivery retries of a task.
func (t *DBTracer) StepTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	for _, step := range task.Steps {
		if step.What == HookPosReqRetry.Name {
			original.retries++
		}
	}
}

// EndTask writes the task into the database.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	if task.EndCycle < t.startCycle {
		return
	}

	t.backend.InsertData(TaskTableName, taskTableEntry{
		ID:         original.ID,
		Kind:       original.Kind,
		What:       original.What,
		Location:   original.Where,
		Address:    original.Address,
		Bank:       original.Bank,
		StartCycle: uint64(original.StartCycle),
		EndCycle:   uint64(task.EndCycle),
		Outcome:    task.Outcome,
		Retries:    original.retries,
	})
}

// NumInflight returns the number of tasks that have started but not ended.
func (t *DBTracer) NumInflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.tracingTasks)
}

// Terminate drops the unfinished tasks and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	t.terminated = true
	t.tracingTasks = make(map[string]*dbTask)
	t.backend.Flush()
}
