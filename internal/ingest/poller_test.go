package ingest

import (
	"context"
	"testing"

	"github.com/robfig/cron/v3"
)

type stubScheduler struct {
	specs   []string
	funcs   []func()
	addErr  error
	started bool
	stopped bool
}

func (s *stubScheduler) AddFunc(spec string, cmd func()) (cron.EntryID, error) {
	if s.addErr != nil {
		return 0, s.addErr
	}
	s.specs = append(s.specs, spec)
	s.funcs = append(s.funcs, cmd)
	return cron.EntryID(len(s.funcs)), nil
}

func (s *stubScheduler) Start() { s.started = true }

func (s *stubScheduler) Stop() context.Context {
	s.stopped = true
	return context.Background()
}

func TestPollerRegisterAndRun(t *testing.T) {
	scheduler := &stubScheduler{}
	poller := NewPoller(scheduler, nil)

	ran := 0
	err := poller.Register(Job{
		Name: "inventory-sync",
		Spec: "@hourly",
		Run: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected job context to carry a deadline")
			}
			ran++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if len(scheduler.specs) != 1 || scheduler.specs[0] != "@hourly" {
		t.Fatalf("unexpected specs %v", scheduler.specs)
	}

	scheduler.funcs[0]()
	if ran != 1 {
		t.Fatalf("expected job to run once, ran %d times", ran)
	}
}

func TestPollerJobErrorIsNotFatal(t *testing.T) {
	scheduler := &stubScheduler{}
	poller := NewPoller(scheduler, nil)

	if err := poller.Register(Job{
		Name: "cloudwatch-ingest",
		Spec: "*/15 * * * *",
		Run: func(ctx context.Context) error {
			return errStub
		},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Must not panic; failures are logged.
	scheduler.funcs[0]()
}

func TestPollerRegisterValidation(t *testing.T) {
	poller := NewPoller(&stubScheduler{}, nil)
	if err := poller.Register(Job{Name: "empty", Spec: "@hourly"}); err == nil {
		t.Fatal("expected error for job with no run function")
	}

	poller = NewPoller(&stubScheduler{addErr: errStub}, nil)
	if err := poller.Register(Job{
		Name: "bad-spec",
		Spec: "not-a-spec",
		Run:  func(ctx context.Context) error { return nil },
	}); err == nil {
		t.Fatal("expected scheduler error to propagate")
	}
}

func TestPollerStartStop(t *testing.T) {
	scheduler := &stubScheduler{}
	poller := NewPoller(scheduler, nil)

	poller.Start()
	if !scheduler.started {
		t.Error("expected scheduler started")
	}
	poller.Stop()
	if !scheduler.stopped {
		t.Error("expected scheduler stopped")
	}
}
