package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/swarmguard/databridge/internal/config"
	"github.com/swarmguard/databridge/internal/keymanager"
	"github.com/swarmguard/databridge/internal/logging"
	"github.com/swarmguard/databridge/internal/otelinit"
	"github.com/swarmguard/databridge/internal/relstore"
	"github.com/swarmguard/databridge/internal/resilience"
	"github.com/swarmguard/databridge/internal/scheduler"
	"github.com/swarmguard/databridge/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a databridge TOML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		return
	}

	logging.Init(cfg.Service)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, cfg.Service)
	shutdownMetrics, promHandler, _ := otelinit.InitMetrics(ctx, cfg.Service)
	meter := otel.GetMeterProvider().Meter(cfg.Service)

	st, err := store.Open(cfg.Store.BoltPath, meter)
	if err != nil {
		slog.Error("open store", "error", err)
		return
	}
	defer st.Close()

	var rel *relstore.Store
	if cfg.Postgres.DSN != "" {
		rel, err = relstore.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			slog.Error("open relational store", "error", err)
			return
		}
		defer rel.Close()
	} else {
		slog.Warn("no postgres dsn configured; staging tasks will run but persist nothing")
	}

	keys := keymanager.New(nil)
	for _, p := range cfg.Platforms {
		keys.AddPlatform(p.Name, p.Cooldown.Duration())
		for _, secret := range p.Keys {
			keys.Add(p.Name, secret)
		}
	}

	graphs := buildPipelines(rel, keys)
	sched := scheduler.New(st, graphs, meter)
	if err := sched.RestoreSchedules(ctx); err != nil {
		slog.Error("restore schedules", "error", err)
	}
	sched.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			schedules, err := st.ListSchedules()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(schedules)
		case http.MethodPost:
			var sc store.ScheduleConfig
			if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			if err := sched.AddSchedule(r.Context(), sc); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// eventLimiter protects the trigger endpoint from a misbehaving or
	// malicious webhook sender; it is independent of the vendor limiter
	// and breaker buildPipelines shares across every collector, which
	// gate outbound calls.
	eventLimiter := resilience.NewRateLimiter(20, 10, time.Minute, 200)

	mux.HandleFunc("/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !eventLimiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		eventType := r.URL.Query().Get("type")
		if eventType == "" {
			http.Error(w, "type query parameter required", http.StatusBadRequest)
			return
		}
		sched.TriggerEvent(r.Context(), eventType)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/v1/keys/status", func(w http.ResponseWriter, r *http.Request) {
		platform := r.URL.Query().Get("platform")
		if platform == "" {
			http.Error(w, "platform query parameter required", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"ready": keys.ReadyCount(platform)})
	})

	if promHandler != nil {
		if h, ok := promHandler.(http.Handler); ok {
			mux.Handle("/metrics", h)
		}
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()
	slog.Info("databridge started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	slog.Info("shutdown initiated")
	ctxSd, c2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer c2()
	_ = srv.Shutdown(ctxSd)
	_ = sched.Stop(ctxSd)
	otelinit.Flush(ctxSd, shutdownTrace)
	_ = shutdownMetrics(ctxSd)
	slog.Info("shutdown complete")
}
