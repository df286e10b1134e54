// Package scheduler triggers named dag.Graph runs on a cron schedule
// or in response to an incoming event, adapted from the orchestrator
// service's cron/event scheduler with its workflow-engine bits
// replaced by calls into internal/dag and internal/store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/databridge/internal/dag"
	"github.com/swarmguard/databridge/internal/store"
)

// NamedGraph is a validated graph plus the clock its executor runs
// against, registered under the name schedules and events refer to.
type NamedGraph struct {
	Graph *dag.Graph
	Clock dag.Clock
}

// eventHandler fans one event type out to every schedule subscribed
// to it, bounding each schedule's own concurrency independently.
type eventHandler struct {
	schedules   []store.ScheduleConfig
	running     map[string]int
	mu          sync.Mutex
	lastTrigger time.Time
}

// Scheduler owns a robfig/cron dispatcher for cron-triggered graphs
// and a type-keyed fan-out table for event-triggered ones.
type Scheduler struct {
	cron   *cron.Cron
	store  *store.Store
	graphs map[string]NamedGraph

	mu            sync.RWMutex
	eventHandlers map[string]*eventHandler

	runsTotal   metric.Int64Counter
	failsTotal  metric.Int64Counter
	eventsTotal metric.Int64Counter
	tracer      trace.Tracer
}

// New builds a Scheduler backed by st for schedule/run persistence.
// Pass graphs keyed by the name ScheduleConfig.Name will reference.
func New(st *store.Store, graphs map[string]NamedGraph, meter metric.Meter) *Scheduler {
	runs, _ := meter.Int64Counter("databridge_scheduler_runs_total")
	fails, _ := meter.Int64Counter("databridge_scheduler_failures_total")
	events, _ := meter.Int64Counter("databridge_scheduler_event_triggers_total")

	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()),
		store:         st,
		graphs:        graphs,
		eventHandlers: make(map[string]*eventHandler),
		runsTotal:     runs,
		failsTotal:    fails,
		eventsTotal:   events,
		tracer:        otel.Tracer("databridge/scheduler"),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		slog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

// AddSchedule registers cfg, persists it, and (for a cron schedule)
// starts its cron entry immediately.
func (s *Scheduler) AddSchedule(ctx context.Context, cfg store.ScheduleConfig) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.add_schedule",
		trace.WithAttributes(attribute.String("name", cfg.Name), attribute.String("cron", cfg.CronExpr)))
	defer span.End()

	if _, ok := s.graphs[cfg.Name]; !ok {
		return fmt.Errorf("scheduler: no graph registered under name %q", cfg.Name)
	}

	switch {
	case cfg.CronExpr != "":
		if _, err := s.cron.AddFunc(cfg.CronExpr, func() { s.run(context.Background(), cfg) }); err != nil {
			return fmt.Errorf("add cron schedule: %w", err)
		}
	case cfg.EventType != "":
		s.registerEventHandler(cfg)
	default:
		return fmt.Errorf("scheduler: either cron_expr or event_type must be set for %q", cfg.Name)
	}

	if err := s.store.PutSchedule(cfg); err != nil {
		return fmt.Errorf("persist schedule %q: %w", cfg.Name, err)
	}
	slog.Info("schedule added", "name", cfg.Name, "cron", cfg.CronExpr, "event_type", cfg.EventType)
	return nil
}

// RestoreSchedules re-registers every enabled schedule persisted in
// the store, intended to run once at startup.
func (s *Scheduler) RestoreSchedules(ctx context.Context) error {
	schedules, err := s.store.ListSchedules()
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	var restored, failed int
	for _, cfg := range schedules {
		if !cfg.Enabled {
			continue
		}
		if err := s.AddSchedule(ctx, cfg); err != nil {
			slog.Error("failed to restore schedule", "name", cfg.Name, "error", err)
			failed++
			continue
		}
		restored++
	}
	slog.Info("schedules restored", "restored", restored, "failed", failed)
	return nil
}

// TriggerEvent fans an incoming event out to every enabled schedule
// registered for eventType, subject to each schedule's MaxConcurrent.
func (s *Scheduler) TriggerEvent(ctx context.Context, eventType string) {
	ctx, span := s.tracer.Start(ctx, "scheduler.trigger_event", trace.WithAttributes(attribute.String("event_type", eventType)))
	defer span.End()

	s.mu.RLock()
	handler, ok := s.eventHandlers[eventType]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))

	for _, cfg := range handler.schedules {
		if !cfg.Enabled {
			continue
		}
		handler.mu.Lock()
		if cfg.MaxConcurrent > 0 && handler.running[cfg.Name] >= cfg.MaxConcurrent {
			handler.mu.Unlock()
			slog.Warn("max concurrent runs reached", "name", cfg.Name, "max", cfg.MaxConcurrent)
			continue
		}
		handler.running[cfg.Name]++
		handler.lastTrigger = time.Now()
		handler.mu.Unlock()

		go func(cfg store.ScheduleConfig) {
			defer func() {
				handler.mu.Lock()
				handler.running[cfg.Name]--
				handler.mu.Unlock()
			}()
			s.run(context.Background(), cfg)
		}(cfg)
	}
}

func (s *Scheduler) registerEventHandler(cfg store.ScheduleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.eventHandlers[cfg.EventType]
	if !ok {
		h = &eventHandler{running: make(map[string]int)}
		s.eventHandlers[cfg.EventType] = h
	}
	h.schedules = append(h.schedules, cfg)
}

// run executes the graph registered under cfg.Name and persists the
// resulting report whenever Run returns one, including runs in which
// some tasks failed. A run that fails outright (Run returns an error)
// is logged and counted but nothing is persisted for it.
func (s *Scheduler) run(ctx context.Context, cfg store.ScheduleConfig) {
	ctx, span := s.tracer.Start(ctx, "scheduler.run", trace.WithAttributes(attribute.String("name", cfg.Name)))
	defer span.End()

	named, ok := s.graphs[cfg.Name]
	if !ok {
		slog.Error("graph vanished from registry", "name", cfg.Name)
		return
	}

	start := time.Now()
	report, err := named.Graph.Run(ctx, named.Clock)
	finished := time.Now()
	runID := uuid.New().String()

	if err != nil {
		slog.Error("scheduled run failed", "name", cfg.Name, "run_id", runID, "error", err, "duration_ms", finished.Sub(start).Milliseconds())
		s.failsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("name", cfg.Name)))
		return
	}

	if persistErr := s.store.PutRunReport(runID, cfg.Name, start, finished, report); persistErr != nil {
		slog.Error("failed to persist run report", "name", cfg.Name, "run_id", runID, "error", persistErr)
	}

	status := "success"
	if !report.Succeeded() {
		status = "partial_failure"
		s.failsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("name", cfg.Name)))
	}
	s.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("name", cfg.Name), attribute.String("status", status)))

	slog.Info("scheduled run completed", "name", cfg.Name, "run_id", runID, "status", status, "duration_ms", finished.Sub(start).Milliseconds())
}
