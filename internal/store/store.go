// Package store persists schedule configuration and completed run
// reports across process restarts, via go.etcd.io/bbolt — never an
// in-flight run's partial state, since the dependency graph itself
// carries no persisted task state across restarts (a Non-goal this
// package is careful not to violate).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/databridge/internal/dag"
)

var (
	bucketSchedules = []byte("schedules")
	bucketRuns      = []byte("runs")
)

// ScheduleConfig is a persisted cron or event trigger for a named graph.
type ScheduleConfig struct {
	Name          string            `json:"name"`
	CronExpr      string            `json:"cron_expr,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	Enabled       bool              `json:"enabled"`
	MaxConcurrent int               `json:"max_concurrent"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RunRecord is a completed run's persisted summary: schedule name,
// wall-clock window, the report's Succeeded() outcome, and the
// RunReport itself as JSON in ReportJSON. Report is not serialized
// and GetRunRecord leaves it nil.
type RunRecord struct {
	ScheduleName string           `json:"schedule_name"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Succeeded    bool             `json:"succeeded"`
	Report       *dag.RunReport   `json:"-"`
	ReportJSON   json.RawMessage  `json:"report"`
}

// Store wraps a bbolt database with the two buckets databridge needs.
type Store struct {
	db           *bbolt.DB
	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
}

// Open opens (creating if necessary) the bbolt file at path.
func Open(path string, meter metric.Meter) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout:      time.Second,
		NoSync:       false,
		FreelistType: bbolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSchedules); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	s := &Store{db: db}
	if meter != nil {
		s.readLatency, _ = meter.Float64Histogram("databridge_store_read_latency_ms")
		s.writeLatency, _ = meter.Float64Histogram("databridge_store_write_latency_ms")
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) observe(h metric.Float64Histogram, start time.Time) {
	if h == nil {
		return
	}
	h.Record(context.Background(), float64(time.Since(start).Microseconds())/1000)
}

// PutSchedule upserts cfg under its Name.
func (s *Store) PutSchedule(cfg ScheduleConfig) error {
	defer func(start time.Time) { s.observe(s.writeLatency, start) }(time.Now())
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSchedules).Put([]byte(cfg.Name), data)
	})
}

// ListSchedules returns every persisted schedule.
func (s *Store) ListSchedules() ([]ScheduleConfig, error) {
	defer func(start time.Time) { s.observe(s.readLatency, start) }(time.Now())
	var out []ScheduleConfig
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSchedules).ForEach(func(_, v []byte) error {
			var cfg ScheduleConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("unmarshal schedule: %w", err)
			}
			out = append(out, cfg)
			return nil
		})
	})
	return out, err
}

// PutRunReport persists report under runID, alongside the schedule
// name it ran for and its wall-clock window.
func (s *Store) PutRunReport(runID, scheduleName string, started, finished time.Time, report *dag.RunReport) error {
	defer func(start time.Time) { s.observe(s.writeLatency, start) }(time.Now())
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	rec := RunRecord{
		ScheduleName: scheduleName,
		StartedAt:    started,
		FinishedAt:   finished,
		Succeeded:    report.Succeeded(),
		ReportJSON:   reportJSON,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(runID), data)
	})
}

// GetRunRecord looks up a persisted run by ID.
func (s *Store) GetRunRecord(runID string) (RunRecord, bool, error) {
	defer func(start time.Time) { s.observe(s.readLatency, start) }(time.Now())
	var rec RunRecord
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRuns).Get([]byte(runID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	return rec, found, err
}
