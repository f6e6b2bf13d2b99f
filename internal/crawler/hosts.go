package crawler

import "sync"

// fetchJob is a fetch waiting for, or holding, a per-host slot.
type fetchJob struct {
	// run executes the fetch on a download worker. It must call
	// admission.release for its host when it finishes.
	run func()

	// abort settles the job when the download pool refuses it. The slot
	// is handed on by the admission controller, so abort must not release.
	abort func(err error)
}

// hostState is the admission state of one origin host.
type hostState struct {
	inFlight int
	backlog  []fetchJob
}

// admission limits how many fetches per origin host are on the download
// pool at once. Jobs over the cap wait in a per-host FIFO backlog and are
// not visible to the pool until a slot for that host is released.
//
// Design decision: A host entry is deleted once it has nothing in flight and
// nothing queued. Host cardinality grows with the crawl, and idle entries
// would otherwise outlive the crawls that created them.
type admission struct {
	limit int
	pool  *workerPool

	mu    sync.Mutex
	hosts map[string]*hostState
}

func newAdmission(limit int, pool *workerPool) *admission {
	return &admission{
		limit: limit,
		pool:  pool,
		hosts: make(map[string]*hostState),
	}
}

// submit hands job to the download pool when host has a free slot and
// queues it in the host backlog otherwise.
func (a *admission) submit(host string, job fetchJob) {
	a.mu.Lock()
	state, ok := a.hosts[host]
	if !ok {
		state = &hostState{}
		a.hosts[host] = state
	}
	if state.inFlight >= a.limit {
		state.backlog = append(state.backlog, job)
		a.mu.Unlock()
		return
	}
	state.inFlight++
	a.mu.Unlock()

	if err := a.pool.Submit(job.run); err != nil {
		job.abort(err)
		a.release(host)
	}
}

// release gives up one slot of host. The slot passes to the head of the
// backlog if there is one; otherwise the in-flight count drops.
//
// The pool is called outside the lock. A backlog job the pool refuses is
// aborted and the slot moves on to the next one, so a closed pool drains
// the backlog instead of stranding it.
func (a *admission) release(host string) {
	for {
		job, ok := a.next(host)
		if !ok {
			return
		}
		err := a.pool.Submit(job.run)
		if err == nil {
			return
		}
		job.abort(err)
	}
}

// next pops the backlog head of host, keeping the slot, or frees the slot
// when the backlog is empty.
func (a *admission) next(host string) (fetchJob, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.hosts[host]
	if !ok {
		return fetchJob{}, false
	}
	if len(state.backlog) > 0 {
		job := state.backlog[0]
		state.backlog[0] = fetchJob{}
		state.backlog = state.backlog[1:]
		return job, true
	}
	state.inFlight--
	if state.inFlight <= 0 {
		delete(a.hosts, host)
	}
	return fetchJob{}, false
}

// snapshot reports the in-flight count and backlog length of host.
func (a *admission) snapshot(host string) (inFlight, backlog int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.hosts[host]
	if !ok {
		return 0, 0
	}
	return state.inFlight, len(state.backlog)
}
