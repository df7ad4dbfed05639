package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *FakeClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := NewFakeClock(epoch)
	s := New(clock, logrus.NewEntry(logger))
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
	})
	return s, clock
}

func TestAddRepeatingIsInsertIfAbsent(t *testing.T) {
	s, clock := newTestScheduler(t)

	var first, second atomic.Int32
	added, err := s.AddRepeating("poll:1", time.Minute, func(context.Context) { first.Add(1) })
	if err != nil || !added {
		t.Fatalf("first AddRepeating = %v, %v; want true, nil", added, err)
	}
	added, err = s.AddRepeating("poll:1", time.Second, func(context.Context) { second.Add(1) })
	if err != nil || added {
		t.Fatalf("second AddRepeating = %v, %v; want false, nil", added, err)
	}

	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
		s.Wait()
	}

	if got := first.Load(); got != 3 {
		t.Errorf("original job ran %d times, want 3", got)
	}
	if got := second.Load(); got != 0 {
		t.Errorf("duplicate job ran %d times, want 0", got)
	}
}

func TestAddRepeatingRejectsNonPositiveInterval(t *testing.T) {
	s, _ := newTestScheduler(t)
	if _, err := s.AddRepeating("poll:1", 0, func(context.Context) {}); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if s.Has("poll:1") {
		t.Fatal("job registered despite error")
	}
}

func TestRepeatingJobSkipsTickWhileRunning(t *testing.T) {
	s, clock := newTestScheduler(t)

	release := make(chan struct{})
	started := make(chan struct{}, 10)
	var runs atomic.Int32
	_, err := s.AddRepeating("poll:7", time.Minute, func(context.Context) {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	<-started
	// Two more ticks while the first run is blocked.
	clock.Advance(time.Minute)
	clock.Advance(time.Minute)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs while blocked = %d, want 1", got)
	}

	close(release)
	s.Wait()

	clock.Advance(time.Minute)
	s.Wait()
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs after release = %d, want 2", got)
	}
}

func TestAddOnceFiresOnceAndUnregisters(t *testing.T) {
	s, clock := newTestScheduler(t)

	var runs atomic.Int32
	added, err := s.AddOnce("seq:4:2", epoch.Add(48*time.Hour), func(context.Context) { runs.Add(1) })
	if err != nil || !added {
		t.Fatalf("AddOnce = %v, %v", added, err)
	}
	next, ok := s.NextRun("seq:4:2")
	if !ok || !next.Equal(epoch.Add(48*time.Hour)) {
		t.Fatalf("NextRun = %v, %v", next, ok)
	}

	clock.Advance(47 * time.Hour)
	s.Wait()
	if runs.Load() != 0 {
		t.Fatal("one-shot fired early")
	}

	clock.Advance(time.Hour)
	s.Wait()
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", runs.Load())
	}
	if s.Has("seq:4:2") {
		t.Fatal("one-shot still registered after firing")
	}

	clock.Advance(72 * time.Hour)
	s.Wait()
	if runs.Load() != 1 {
		t.Fatalf("one-shot fired again: runs = %d", runs.Load())
	}
}

func TestAddOnceInThePastFiresImmediately(t *testing.T) {
	s, _ := newTestScheduler(t)

	done := make(chan struct{})
	if _, err := s.AddOnce("seq:1:3", epoch.Add(-time.Hour), func(context.Context) { close(done) }); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	select {
	case <-done:
	default:
		t.Fatal("past-due job did not run")
	}
}

func TestRemovePreventsFiring(t *testing.T) {
	s, clock := newTestScheduler(t)

	var runs atomic.Int32
	_, _ = s.AddOnce("seq:9:2", epoch.Add(time.Hour), func(context.Context) { runs.Add(1) })
	_, _ = s.AddRepeating("poll:9", time.Minute, func(context.Context) { runs.Add(1) })

	if !s.Remove("seq:9:2") || !s.Remove("poll:9") {
		t.Fatal("Remove returned false for registered jobs")
	}
	if s.Remove("seq:9:2") {
		t.Fatal("second Remove returned true")
	}

	clock.Advance(2 * time.Hour)
	s.Wait()
	if runs.Load() != 0 {
		t.Fatalf("removed jobs ran %d times", runs.Load())
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", clock.Pending())
	}
}

func TestJobsWithPrefix(t *testing.T) {
	s, _ := newTestScheduler(t)
	at := epoch.Add(time.Hour)
	for _, key := range []string{"seq:12:3", "seq:12:2", "seq:120:2", "poll:12"} {
		if _, err := s.AddOnce(key, at, func(context.Context) {}); err != nil {
			t.Fatal(err)
		}
	}

	got := s.JobsWithPrefix("seq:12:")
	want := []string{"seq:12:2", "seq:12:3"}
	if len(got) != len(want) {
		t.Fatalf("JobsWithPrefix = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("JobsWithPrefix = %v, want %v", got, want)
		}
	}
}

func TestPanickingJobDoesNotStopScheduler(t *testing.T) {
	s, clock := newTestScheduler(t)

	var healthy atomic.Int32
	_, _ = s.AddRepeating("poll:bad", time.Minute, func(context.Context) { panic("boom") })
	_, _ = s.AddRepeating("poll:good", time.Minute, func(context.Context) { healthy.Add(1) })

	clock.Advance(time.Minute)
	s.Wait()
	clock.Advance(time.Minute)
	s.Wait()

	if healthy.Load() != 2 {
		t.Fatalf("healthy job ran %d times, want 2", healthy.Load())
	}
	if !s.Has("poll:bad") {
		t.Fatal("panicking job was unregistered")
	}
}

func TestShutdownCancelsJobContext(t *testing.T) {
	s, clock := newTestScheduler(t)

	cancelled := make(chan struct{})
	started := make(chan struct{})
	_, _ = s.AddOnce("seq:1:2", epoch.Add(time.Minute), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	clock.Advance(time.Minute)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	<-cancelled

	if _, err := s.AddOnce("seq:1:3", epoch, func(context.Context) {}); err == nil {
		t.Fatal("AddOnce after Shutdown succeeded")
	}
}

func TestShutdownWaitsForRunsFiredConcurrently(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, _ := newTestScheduler(t)

		var started, finished atomic.Int32
		go func() {
			_, _ = s.AddOnce("seq:5:2", epoch.Add(-time.Minute), func(context.Context) {
				started.Add(1)
				time.Sleep(2 * time.Millisecond)
				finished.Add(1)
			})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Shutdown(ctx); err != nil {
			cancel()
			t.Fatalf("Shutdown: %v", err)
		}
		cancel()
		if started.Load() != finished.Load() {
			t.Fatalf("iteration %d: run still in flight after Shutdown returned", i)
		}
	}
}
