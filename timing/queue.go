package timing

import "container/heap"

// eventQueue orders events by time. Events of the same cycle come out in
// the order they were pushed, which keeps runs reproducible.
type eventQueue struct {
	events  eventHeap
	nextSeq uint64
}

type queuedEvent struct {
	ScheduledEvent
	seq uint64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(&q.events)

	return q
}

func (q *eventQueue) Push(evt ScheduledEvent) {
	heap.Push(&q.events, &queuedEvent{ScheduledEvent: evt, seq: q.nextSeq})
	q.nextSeq++
}

func (q *eventQueue) Pop() *queuedEvent {
	if q.events.Len() == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*queuedEvent)
}

func (q *eventQueue) Peek() *queuedEvent {
	if q.events.Len() == 0 {
		return nil
	}

	return q.events[0]
}

func (q *eventQueue) Len() int {
	return q.events.Len()
}

type eventHeap []*queuedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*queuedEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return evt
}
