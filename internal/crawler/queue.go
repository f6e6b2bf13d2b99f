package crawler

import "sync"

// linkTask is one pending fetch: an address, the depth left below it, and
// the origin host its admission state is keyed by.
type linkTask struct {
	address string
	depth   int
	host    string
}

// pendingQueue is the FIFO of link tasks waiting for the orchestrator.
// Extraction tasks push, only the orchestrator pops.
type pendingQueue struct {
	mu    sync.Mutex
	tasks []linkTask
}

// Push appends a task.
func (q *pendingQueue) Push(t linkTask) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

// Pop removes the head. The boolean is false when the queue is empty.
func (q *pendingQueue) Pop() (linkTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return linkTask{}, false
	}
	t := q.tasks[0]
	q.tasks[0] = linkTask{}
	q.tasks = q.tasks[1:]
	return t, true
}

// Len returns the number of queued tasks.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
