package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/databridge/internal/dag"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, noopmetric.MeterProvider{}.Meter("test"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndListSchedulesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cfg := ScheduleConfig{Name: "nyse_instruments", CronExpr: "0 0 * * * *", Enabled: true, MaxConcurrent: 1}
	if err := s.PutSchedule(cfg); err != nil {
		t.Fatalf("put: %v", err)
	}

	schedules, err := s.ListSchedules()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(schedules) != 1 || schedules[0].Name != cfg.Name {
		t.Fatalf("expected one roundtripped schedule, got %+v", schedules)
	}
}

func TestPutScheduleUpsertsByName(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutSchedule(ScheduleConfig{Name: "a", CronExpr: "* * * * * *"}); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	if err := s.PutSchedule(ScheduleConfig{Name: "a", CronExpr: "0 * * * * *"}); err != nil {
		t.Fatalf("put 2: %v", err)
	}

	schedules, err := s.ListSchedules()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("expected one schedule after upsert, got %d", len(schedules))
	}
	if schedules[0].CronExpr != "0 * * * * *" {
		t.Fatalf("expected the second write to win, got %q", schedules[0].CronExpr)
	}
}

func TestPutAndGetRunReportRoundTrip(t *testing.T) {
	s := openTestStore(t)
	started := time.Now().Add(-time.Second)
	finished := time.Now()

	full := &dag.RunReport{Results: make(map[uuid.UUID]dag.TaskResult)}
	if err := s.PutRunReport("run-1", "nyse_instruments", started, finished, full); err != nil {
		t.Fatalf("put run report: %v", err)
	}

	rec, found, err := s.GetRunRecord("run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected to find persisted run record")
	}
	if rec.ScheduleName != "nyse_instruments" {
		t.Fatalf("expected schedule name to roundtrip, got %q", rec.ScheduleName)
	}
	if !rec.Succeeded {
		t.Fatalf("expected an empty-results report to count as succeeded")
	}
}

func TestGetRunRecordMissingIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.GetRunRecord("does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for a missing run id")
	}
}
