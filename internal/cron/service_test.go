package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/newsletter-backend/pkg/logger"
	"github.com/angelmondragon/newsletter-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	boom := errors.New("boom")
	registry := mustRegistry(t, &testJob{name: "success"}, &testJob{name: "fail", err: boom})
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	err = service.runCycle(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("expected cycle error to wrap job failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected failing job name in error, got %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "idempotency-retention"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
}

func TestServiceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCronJobMetrics(reg)
	registry := mustRegistry(t, &testJob{name: "ok"}, &testJob{name: "bad", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     NewLocalLock(),
		Metrics:  collector,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err == nil {
		t.Fatal("expected the failing job to surface")
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count == 0 {
		t.Fatal("expected cron metrics to be recorded")
	}
	failures, err := testutil.GatherAndCount(reg, "newsletter_cron_job_failure_total")
	if err != nil {
		t.Fatalf("gather failures: %v", err)
	}
	if failures != 1 {
		t.Fatalf("expected one failing job series, got %d", failures)
	}
}

func TestServiceAppliesJobTimeout(t *testing.T) {
	job := &testJob{name: "idempotency-retention"}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   mustRegistry(t, job),
		Lock:       NewLocalLock(),
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !job.deadline {
		t.Fatal("expected job context to carry a deadline")
	}

	if _, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: NewLocalLock(), JobTimeout: -time.Second}); err == nil {
		t.Fatal("expected negative timeout to be rejected")
	}
}

func TestServiceRunReturnsOnCancel(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Lock:     NewLocalLock(),
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
