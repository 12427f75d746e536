package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar tells how many of a known number of items are done.
type ProgressBar struct {
	lock sync.Mutex

	ID         string
	Name       string
	StartTime  time.Time
	Total      uint64
	inProgress uint64
	finished   uint64
}

// Set replaces the counters of the bar.
func (b *ProgressBar) Set(inProgress, finished uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.inProgress = inProgress
	b.finished = finished
}

type progressRsp struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

func (b *ProgressBar) snapshot() progressRsp {
	b.lock.Lock()
	defer b.lock.Unlock()

	return progressRsp{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.finished,
		InProgress: b.inProgress,
	}
}
