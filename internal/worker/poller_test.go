package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubDispatcher struct {
	calls     int64
	processed int
	err       error
}

func (s *stubDispatcher) ProcessPendingMessages(ctx context.Context, limit int) (int, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.processed, s.err
}

func TestPoller_Defaults(t *testing.T) {
	p := NewPoller(&stubDispatcher{})

	if p.pollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %v, want %v", p.pollInterval, DefaultPollInterval)
	}
	if p.batchLimit != DefaultBatchLimit {
		t.Errorf("batchLimit = %d, want %d", p.batchLimit, DefaultBatchLimit)
	}
	if p.WorkerID() == "" {
		t.Error("WorkerID() should not be empty")
	}
}

func TestPoller_StartStop(t *testing.T) {
	d := &stubDispatcher{processed: 2}
	p := NewPoller(d)
	p.SetPollInterval(10 * time.Millisecond)

	if err := p.Start(); err != nil {
		t.Errorf("Start() error: %v", err)
	}
	if !p.IsRunning() {
		t.Error("poller should be running after Start()")
	}

	// Double start should error
	if err := p.Start(); err == nil {
		t.Error("double Start() should return error")
	}

	// Wait for at least the immediate cycle plus one tick.
	deadline := time.After(time.Second)
	for atomic.LoadInt64(&d.calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("poller never ran a second cycle")
		case <-time.After(5 * time.Millisecond):
		}
	}

	p.Stop()
	if p.IsRunning() {
		t.Error("poller should not be running after Stop()")
	}

	cycles, processed, errs := p.Stats()
	if cycles < 2 {
		t.Errorf("cycles = %d, want >= 2", cycles)
	}
	if processed < 4 {
		t.Errorf("processed = %d, want >= 4", processed)
	}
	if errs != 0 {
		t.Errorf("errors = %d, want 0", errs)
	}

	// Stop again is a no-op.
	p.Stop()
}

func TestPoller_CountsErrors(t *testing.T) {
	d := &stubDispatcher{err: errors.New("db down")}
	p := NewPoller(d)
	p.SetPollInterval(10 * time.Millisecond)

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt64(&d.calls) < 1 {
		select {
		case <-deadline:
			t.Fatal("poller never ran a cycle")
		case <-time.After(5 * time.Millisecond):
		}
	}
	p.Stop()

	_, processed, errs := p.Stats()
	if errs < 1 {
		t.Errorf("errors = %d, want >= 1", errs)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
}

func TestPoller_SettersIgnoreInvalid(t *testing.T) {
	p := NewPoller(&stubDispatcher{})
	p.SetPollInterval(0)
	p.SetBatchLimit(-1)

	if p.pollInterval != DefaultPollInterval {
		t.Errorf("zero interval should be ignored, got %v", p.pollInterval)
	}
	if p.batchLimit != DefaultBatchLimit {
		t.Errorf("negative limit should be ignored, got %d", p.batchLimit)
	}
}
