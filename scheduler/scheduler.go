// Package scheduler is the process-wide job table shared by tenant poll
// jobs and sequence steps. Jobs are keyed; adding a key that already
// exists is a no-op. Every firing runs on its own goroutine so a slow
// job never holds up the timer that fired it.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is the body of a scheduled job.
type Job func(ctx context.Context)

type entry struct {
	key      string
	interval time.Duration // zero for one-shot jobs
	nextRun  time.Time
	fn       Job
	timer    Timer
	running  atomic.Bool
}

type Scheduler struct {
	clock  Clock
	log    *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	jobs   map[string]*entry
	closed bool

	inflight sync.WaitGroup
}

// New returns an empty scheduler driven by clock.
func New(clock Clock, log *logrus.Entry) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clock,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() Clock { return s.clock }

// AddRepeating registers fn to run every interval. It returns false
// without changing anything when key is already registered. A tick that
// arrives while the previous run of the same job is still executing is
// skipped.
func (s *Scheduler) AddRepeating(key string, interval time.Duration, fn Job) (bool, error) {
	if interval <= 0 {
		return false, fmt.Errorf("scheduler: non-positive interval %s for %s", interval, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("scheduler: closed")
	}
	if _, exists := s.jobs[key]; exists {
		return false, nil
	}

	e := &entry{key: key, interval: interval, fn: fn}
	s.jobs[key] = e
	s.arm(e, interval)
	return true, nil
}

// AddOnce registers fn to run a single time at runAt. A runAt in the
// past fires immediately. It returns false when key is already registered.
func (s *Scheduler) AddOnce(key string, runAt time.Time, fn Job) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, fmt.Errorf("scheduler: closed")
	}
	if _, exists := s.jobs[key]; exists {
		s.mu.Unlock()
		return false, nil
	}

	e := &entry{key: key, fn: fn, nextRun: runAt}
	s.jobs[key] = e
	delay := runAt.Sub(s.clock.Now())
	if delay > 0 {
		s.arm(e, delay)
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	s.fire(e)
	return true, nil
}

// arm must be called with s.mu held and a positive delay.
func (s *Scheduler) arm(e *entry, delay time.Duration) {
	e.nextRun = s.clock.Now().Add(delay)
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(e) })
}

func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	if s.closed || s.jobs[e.key] != e {
		s.mu.Unlock()
		return
	}
	if e.interval > 0 {
		s.arm(e, e.interval)
	} else {
		delete(s.jobs, e.key)
	}
	if !e.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.log.WithField("job", e.key).Debug("Previous run still in flight, skipping tick")
		return
	}
	// Counted under s.mu so Shutdown, once closed, waits for every run.
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		defer e.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.WithFields(logrus.Fields{
					"job":   e.key,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Job panicked")
			}
		}()
		e.fn(s.ctx)
	}()
}

// Remove unregisters key. A run already in flight is not interrupted.
func (s *Scheduler) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[key]
	if !ok {
		return false
	}
	delete(s.jobs, key)
	if e.timer != nil {
		e.timer.Stop()
	}
	return true
}

// Has reports whether key is registered.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// NextRun returns when key fires next.
func (s *Scheduler) NextRun(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[key]
	if !ok {
		return time.Time{}, false
	}
	return e.nextRun, true
}

// JobsWithPrefix returns the registered keys starting with prefix, sorted.
func (s *Scheduler) JobsWithPrefix(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.jobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Wait blocks until every run that has started has returned.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Shutdown stops every timer, cancels the context handed to running
// jobs and waits for them until ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for key, e := range s.jobs {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.jobs, key)
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
