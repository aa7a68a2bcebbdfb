package router

import "container/heap"

// queuedTask is one pending dispatch: a task plus the thunk that actually
// runs it once a concurrency slot is free.
type queuedTask struct {
	task *pendingDispatch
	seq  uint64
	idx  int
}

type pendingDispatch struct {
	taskID string
	weight int
	run    func()
}

// dispatchQueue orders pending dispatches by priority weight, highest
// first, breaking ties by submission order — the "FIFO-within-priority"
// rule from §4.1.
type dispatchQueue []*queuedTask

func (q dispatchQueue) Len() int { return len(q) }

func (q dispatchQueue) Less(i, j int) bool {
	if q[i].task.weight != q[j].task.weight {
		return q[i].task.weight > q[j].task.weight
	}
	return q[i].seq < q[j].seq
}

func (q dispatchQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].idx, q[j].idx = i, j
}

func (q *dispatchQueue) Push(x any) {
	item := x.(*queuedTask)
	item.idx = len(*q)
	*q = append(*q, item)
}

func (q *dispatchQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.idx = -1
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*dispatchQueue)(nil)
