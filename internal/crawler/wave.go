package crawler

import "sync"

// wave counts outstanding fetch and extraction tasks of one Download call.
//
// A task is registered before it is handed to anything that may run it, and
// a running task registers its children before it deregisters itself, so the
// counter cannot touch zero while work is still being handed over.
type wave struct {
	mu          sync.Mutex
	cond        *sync.Cond
	outstanding int
}

func newWave() *wave {
	w := &wave{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Register adds one outstanding task.
func (w *wave) Register() {
	w.mu.Lock()
	w.outstanding++
	w.mu.Unlock()
}

// Deregister removes one outstanding task and wakes the waiter at zero.
func (w *wave) Deregister() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.outstanding == 0 {
		panic("crawler: wave deregistered more tasks than registered")
	}
	w.outstanding--
	if w.outstanding == 0 {
		w.cond.Broadcast()
	}
}

// Drain blocks until no task is outstanding.
func (w *wave) Drain() {
	w.mu.Lock()
	for w.outstanding > 0 {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// Outstanding returns the current count.
func (w *wave) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outstanding
}
