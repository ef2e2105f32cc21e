package feedserver

import (
	"sync"
	"time"
)

// Scheduler runs periodic tasks. One instance is shared by every session of a server.
type Scheduler struct {
	mu      sync.Mutex
	stopped bool
	tasks   map[*task]struct{}
	wg      sync.WaitGroup
}

type task struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[*task]struct{})}
}

// Every runs fn immediately and then once per interval, until fn returns false
// or the returned cancel func is called. Cancel waits for a running fn to return.
func (s *Scheduler) Every(interval time.Duration, fn func() bool) (cancel func()) {
	t := &task{stop: make(chan struct{}), done: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		close(t.done)
		return func() {}
	}
	s.tasks[t] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(t, interval, fn)

	return func() {
		t.stopOnce.Do(func() { close(t.stop) })
		<-t.done
	}
}

func (s *Scheduler) run(t *task, interval time.Duration, fn func() bool) {
	defer func() {
		s.mu.Lock()
		delete(s.tasks, t)
		s.mu.Unlock()
		close(t.done)
		s.wg.Done()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		if !fn() {
			return
		}
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels every task and waits for them to exit. Later Every calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for t := range s.tasks {
		t.stopOnce.Do(func() { close(t.stop) })
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Len returns the number of running tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
