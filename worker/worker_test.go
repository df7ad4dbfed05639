package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireFreeTier(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestExpiryWorkerChecksImmediatelyAndOnTick(t *testing.T) {
	expirer := &countingExpirer{}
	w := NewExpiryWorker(expirer, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for expirer.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d after 2s, want >= 3", expirer.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestExpiryWorkerSurvivesErrors(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db down")}
	w := NewExpiryWorker(expirer, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	if expirer.calls.Load() < 2 {
		t.Fatalf("calls = %d, want the loop to keep running after errors", expirer.calls.Load())
	}
}

type fakeRestorer struct {
	n   int
	err error
	ran *[]string
	tag string
}

func (f fakeRestorer) Restore(context.Context) (int, error) {
	*f.ran = append(*f.ran, f.tag)
	return f.n, f.err
}

func TestRestoreAllRunsInOrder(t *testing.T) {
	var ran []string
	RestoreAll(context.Background(), testLogger(), map[string]Restorer{
		"sequences": fakeRestorer{n: 2, ran: &ran, tag: "sequences"},
		"polls":     fakeRestorer{err: errors.New("boom"), ran: &ran, tag: "polls"},
	}, "polls", "sequences", "missing")

	if len(ran) != 2 || ran[0] != "polls" || ran[1] != "sequences" {
		t.Fatalf("ran = %v, want [polls sequences]", ran)
	}
}
