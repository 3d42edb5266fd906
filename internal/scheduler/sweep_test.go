package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingDispatcher struct {
	resumes    atomic.Int32
	dispatches atomic.Int32
	gcs        atomic.Int32
	err        error
}

func (d *countingDispatcher) Resume(context.Context) error {
	d.resumes.Add(1)
	return d.err
}

func (d *countingDispatcher) DispatchDue(context.Context) (int, error) {
	d.dispatches.Add(1)
	return 0, d.err
}

func (d *countingDispatcher) CollectGarbage(context.Context) error {
	d.gcs.Add(1)
	return d.err
}

type countingFinisher struct {
	resumes  atomic.Int32
	finishes atomic.Int32
	err      error
}

func (f *countingFinisher) Resume(context.Context) error {
	f.resumes.Add(1)
	return f.err
}

func (f *countingFinisher) FinishDue(context.Context) (int, error) {
	f.finishes.Add(1)
	return 0, f.err
}

func TestSweepStartup(t *testing.T) {
	d := &countingDispatcher{}
	f := &countingFinisher{}
	sweep := NewSweep(d, f, time.Hour, time.Hour)

	sweep.Startup(context.Background())
	assert.Equal(t, int32(1), d.resumes.Load())
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestSweepStartupToleratesErrors(t *testing.T) {
	d := &countingDispatcher{err: errors.New("db down")}
	f := &countingFinisher{}
	sweep := NewSweep(d, f, time.Hour, time.Hour)

	// A failed reminder resume must not skip the giveaway resume.
	sweep.Startup(context.Background())
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestSweepRunTicksBothLoops(t *testing.T) {
	d := &countingDispatcher{}
	f := &countingFinisher{}
	sweep := NewSweep(d, f, 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return d.dispatches.Load() >= 2 && d.gcs.Load() >= 2 && f.finishes.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep did not stop on context cancel")
	}
}

type panickingDispatcher struct {
	countingDispatcher
}

func (d *panickingDispatcher) DispatchDue(context.Context) (int, error) {
	d.dispatches.Add(1)
	panic("dispatch blew up")
}

func TestSweepRunSurvivesPanic(t *testing.T) {
	d := &panickingDispatcher{}
	f := &countingFinisher{}
	sweep := NewSweep(d, f, 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(done)
	}()

	// Both tickers keep firing after the reminder pass panics.
	assert.Eventually(t, func() bool {
		return d.dispatches.Load() >= 2 && f.finishes.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep did not stop on context cancel")
	}
}

func TestSweepRunSurvivesErrors(t *testing.T) {
	d := &countingDispatcher{err: errors.New("db down")}
	f := &countingFinisher{err: errors.New("db down")}
	sweep := NewSweep(d, f, 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sweep.Run(ctx)

	assert.GreaterOrEqual(t, d.dispatches.Load(), int32(2), "errors must not stop the loop")
	assert.GreaterOrEqual(t, f.finishes.Load(), int32(2))
}
