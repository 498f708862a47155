package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/newspulse/newspulse/internal/app"
	"github.com/newspulse/newspulse/internal/config"
	"github.com/newspulse/newspulse/internal/logger"
	"github.com/newspulse/newspulse/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; deployments usually set the environment directly.
	_ = godotenv.Load()
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return 1
	}
	defer a.Close()

	if cfg.MonitoringEnabled {
		go startMonitoringServer(cfg.MonitoringPort, a)
	}

	// Without a schedule the process runs the pipeline once and exits,
	// which is the shape cron containers and CI jobs want.
	if cfg.ScheduleCron == "" {
		if err := a.Run(ctx); err != nil {
			return 1
		}
		return 0
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.ScheduleCron, func() {
		if err := a.Run(ctx); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("invalid cron expression", "schedule", cfg.ScheduleCron, "error", err)
		return 1
	}

	logger.Info("scheduler starting", "schedule", cfg.ScheduleCron)
	scheduler.Start()

	<-ctx.Done()
	logger.Info("shutting down, waiting for running job")
	<-scheduler.Stop().Done()
	return 0
}

func startMonitoringServer(port int, a *app.App) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.Stats())
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("monitoring server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("monitoring server failed", "error", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	w.Header().Set("Content-Type", "application/json")
	if healthy, ok := stats["is_healthy"].(bool); !ok || !healthy {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}
