package crawler

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool(t *testing.T) {
	t.Parallel()

	t.Run("runs every queued task before close returns", func(t *testing.T) {
		t.Parallel()

		pool := newWorkerPool("test", 3, discardLogger())
		var ran atomic.Int32
		for range 50 {
			if err := pool.Submit(func() { ran.Add(1) }); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
		}
		pool.Close()

		if got := ran.Load(); got != 50 {
			t.Errorf("ran %d tasks, want 50", got)
		}
	})

	t.Run("rejects tasks after close", func(t *testing.T) {
		t.Parallel()

		pool := newWorkerPool("test", 1, discardLogger())
		pool.Close()
		pool.Close()

		err := pool.Submit(func() {})
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Submit() error = %v, want ErrPoolClosed", err)
		}
	})

	t.Run("survives a panicking task", func(t *testing.T) {
		t.Parallel()

		pool := newWorkerPool("test", 1, discardLogger())
		done := make(chan struct{})
		if err := pool.Submit(func() { panic("boom") }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if err := pool.Submit(func() { close(done) }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not run the task after a panic")
		}
		pool.Close()
	})

	t.Run("tasks may submit to their own pool", func(t *testing.T) {
		t.Parallel()

		pool := newWorkerPool("test", 1, discardLogger())
		done := make(chan struct{})
		err := pool.Submit(func() {
			if err := pool.Submit(func() { close(done) }); err != nil {
				t.Errorf("nested Submit() error = %v", err)
			}
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("nested task never ran")
		}
		pool.Close()
	})
}

func TestAdmission(t *testing.T) {
	t.Parallel()

	t.Run("backlog is served in FIFO order", func(t *testing.T) {
		t.Parallel()

		pool := newWorkerPool("download", 4, discardLogger())
		defer pool.Close()
		gate := newAdmission(1, pool)

		var (
			mu    sync.Mutex
			order []int
			wg    sync.WaitGroup
		)
		hold := make(chan struct{})
		started := make(chan struct{})

		job := func(i int) fetchJob {
			return fetchJob{
				run: func() {
					defer wg.Done()
					defer gate.release("h.test")
					if i == 0 {
						close(started)
						<-hold
					}
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
				},
				abort: func(err error) { t.Errorf("job %d aborted: %v", i, err) },
			}
		}

		wg.Add(5)
		gate.submit("h.test", job(0))
		<-started
		for i := 1; i < 5; i++ {
			gate.submit("h.test", job(i))
		}

		if inFlight, backlog := gate.snapshot("h.test"); inFlight != 1 || backlog != 4 {
			t.Errorf("snapshot = (%d, %d), want (1, 4)", inFlight, backlog)
		}

		close(hold)
		wg.Wait()

		if want := []int{0, 1, 2, 3, 4}; !slices.Equal(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
		if inFlight, backlog := gate.snapshot("h.test"); inFlight != 0 || backlog != 0 {
			t.Errorf("snapshot after drain = (%d, %d), want (0, 0)", inFlight, backlog)
		}
	})

	t.Run("hosts are limited independently", func(t *testing.T) {
		t.Parallel()

		pool := newWorkerPool("download", 4, discardLogger())
		defer pool.Close()
		gate := newAdmission(1, pool)

		hold := make(chan struct{})
		var wg sync.WaitGroup
		var running atomic.Int32
		for _, host := range []string{"x.test", "y.test"} {
			wg.Add(1)
			gate.submit(host, fetchJob{
				run: func() {
					defer wg.Done()
					defer gate.release(host)
					running.Add(1)
					<-hold
				},
				abort: func(err error) { t.Errorf("aborted: %v", err) },
			})
		}

		deadline := time.Now().Add(5 * time.Second)
		for running.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if got := running.Load(); got != 2 {
			t.Errorf("%d jobs running, want one per host", got)
		}
		close(hold)
		wg.Wait()
	})

	t.Run("closed pool aborts the job and its backlog", func(t *testing.T) {
		t.Parallel()

		pool := newWorkerPool("download", 1, discardLogger())
		gate := newAdmission(1, pool)

		hold := make(chan struct{})
		started := make(chan struct{})
		finished := make(chan struct{})
		gate.submit("h.test", fetchJob{
			run: func() {
				defer close(finished)
				defer gate.release("h.test")
				close(started)
				<-hold
			},
			abort: func(err error) { t.Errorf("first job aborted: %v", err) },
		})
		<-started

		var aborted atomic.Int32
		for range 3 {
			gate.submit("h.test", fetchJob{
				run: func() { t.Error("backlog job ran on a closed pool") },
				abort: func(err error) {
					if !errors.Is(err, ErrPoolClosed) {
						t.Errorf("abort error = %v, want ErrPoolClosed", err)
					}
					aborted.Add(1)
				},
			})
		}

		closed := make(chan struct{})
		go func() {
			pool.Close()
			close(closed)
		}()
		for !pool.isClosed() {
			time.Sleep(time.Millisecond)
		}
		close(hold)
		<-finished
		<-closed

		if got := aborted.Load(); got != 3 {
			t.Errorf("aborted %d backlog jobs, want 3", got)
		}
		if inFlight, backlog := gate.snapshot("h.test"); inFlight != 0 || backlog != 0 {
			t.Errorf("snapshot = (%d, %d), want (0, 0)", inFlight, backlog)
		}

		gate.submit("h.test", fetchJob{
			run: func() { t.Error("job ran on a closed pool") },
			abort: func(err error) {
				if !errors.Is(err, ErrPoolClosed) {
					t.Errorf("abort error = %v, want ErrPoolClosed", err)
				}
				aborted.Add(1)
			},
		})
		if got := aborted.Load(); got != 4 {
			t.Errorf("direct submit to a closed pool was not aborted")
		}
	})
}

func TestWave(t *testing.T) {
	t.Parallel()

	t.Run("drain returns at once when idle", func(t *testing.T) {
		t.Parallel()

		w := newWave()
		w.Drain()
		if got := w.Outstanding(); got != 0 {
			t.Errorf("Outstanding() = %d, want 0", got)
		}
	})

	t.Run("drain waits for every registration", func(t *testing.T) {
		t.Parallel()

		w := newWave()
		w.Register()
		w.Register()

		drained := make(chan struct{})
		go func() {
			w.Drain()
			close(drained)
		}()

		w.Deregister()
		select {
		case <-drained:
			t.Fatal("Drain() returned with a task outstanding")
		case <-time.After(20 * time.Millisecond):
		}

		w.Deregister()
		select {
		case <-drained:
		case <-time.After(5 * time.Second):
			t.Fatal("Drain() did not return at zero")
		}
	})

	t.Run("child registered before parent deregisters", func(t *testing.T) {
		t.Parallel()

		w := newWave()
		w.Register()
		w.Register()
		w.Deregister()
		if got := w.Outstanding(); got != 1 {
			t.Errorf("Outstanding() = %d, want 1", got)
		}
		w.Deregister()
	})

	t.Run("underflow panics", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if recover() == nil {
				t.Error("Deregister() on an idle wave did not panic")
			}
		}()
		newWave().Deregister()
	})
}

func TestVisitedSet(t *testing.T) {
	t.Parallel()

	v := newVisitedSet()
	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.TryAdd("http://a.test/") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("TryAdd succeeded %d times, want 1", got)
	}
	if !v.TryAdd("http://b.test/") {
		t.Error("TryAdd of a new address returned false")
	}
	if got := v.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestPendingQueue(t *testing.T) {
	t.Parallel()

	var q pendingQueue
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop() on an empty queue returned a task")
	}

	for i, address := range []string{"a", "b", "c"} {
		q.Push(linkTask{address: address, depth: i})
	}
	if got := q.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}

	for i, want := range []string{"a", "b", "c"} {
		task, ok := q.Pop()
		if !ok || task.address != want || task.depth != i {
			t.Errorf("Pop() = %+v, %v; want %s at depth %d", task, ok, want, i)
		}
	}
}
