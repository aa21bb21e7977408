package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annolab/annosync/internal/api"
	"github.com/annolab/annosync/internal/config"
	"github.com/annolab/annosync/internal/database"
	"github.com/annolab/annosync/internal/journal"
	"github.com/annolab/annosync/internal/refresh"
	"github.com/annolab/annosync/internal/task"
	"github.com/annolab/annosync/internal/version"
	"github.com/annolab/annosync/internal/ws"
)

func main() {
	configPath := flag.String("config", "configs/syncd.local.yaml", "path to config file")
	watchTasks := flag.String("tasks", "", "comma-separated task IDs to subscribe at startup")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"platform_url", cfg.Platform.BaseURL,
		"user_id", cfg.Platform.UserID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create REST API client
	apiClient := api.NewClient(
		cfg.Platform.BaseURL,
		cfg.Platform.AuthToken,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Platform.Timeout),
		api.WithRetries(cfg.Platform.MaxRetries, time.Second),
	)

	// Task state tracker, fed by both the push and refresh paths
	tracker := task.NewTracker(10000, logger)

	// Optional task-update journal
	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"database", cfg.Journal.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		jnl = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, logger)
		if err := jnl.Start(ctx); err != nil {
			logger.Error("failed to start journal", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			jnl.Stop(stopCtx)
		}()
	}

	// Connection manager and subscription registry. The registry is wired
	// into OnConnect so every (re)connection replays retained intent.
	var registry *ws.Registry
	manager, err := ws.NewManager(ws.ManagerConfig{
		BaseURL:              cfg.Platform.BaseURL,
		UserID:               cfg.Platform.UserID,
		AuthToken:            cfg.Platform.AuthToken,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		ReconnectDelay:       cfg.Connection.ReconnectDelay,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		BufferSize:           cfg.Connection.BufferSize,
	}, ws.Callbacks{
		OnConnect: func() {
			registry.Replay()
		},
		OnDisconnect: func() {
			logger.Info("push channel down")
		},
		OnError: func(err error) {
			logger.Warn("push channel error", "error", err)
		},
		OnTaskUpdate: func(u task.Update) {
			tracker.Apply(u)
			if jnl != nil {
				jnl.Record(u)
			}
		},
	}, logger)
	if err != nil {
		logger.Error("failed to create connection manager", "error", err)
		os.Exit(1)
	}
	registry = ws.NewRegistry(manager, logger)

	for _, id := range splitTaskIDs(*watchTasks) {
		registry.Subscribe(id)
	}

	// Refresh scheduler: periodic REST confirmation, independent of the
	// push channel.
	scheduler := refresh.NewScheduler(refresh.Config{
		BaseInterval:      cfg.Refresh.BaseInterval,
		MaxInterval:       cfg.Refresh.MaxInterval,
		BackoffMultiplier: cfg.Refresh.BackoffMultiplier,
		MaxRetries:        cfg.Refresh.MaxRetries,
		PauseOnHidden:     *cfg.Refresh.PauseOnHidden,
		PauseOnOffline:    *cfg.Refresh.PauseOnOffline,
		ResetOnSuccess:    *cfg.Refresh.ResetOnSuccess,
	}, func(ctx context.Context) error {
		return refreshTasks(ctx, apiClient, registry, tracker, jnl)
	}, logger)

	// Start health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg, manager, registry, scheduler, tracker, jnl),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Bring both channels up.
	if err := manager.Connect(ctx); err != nil {
		// Reconnection is already scheduled; keep running.
		logger.Warn("initial connect failed", "error", err)
	}
	defer manager.Disconnect()

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start refresh scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	logger.Info("syncd running",
		"instance_id", cfg.Instance.ID,
		"endpoint", manager.URL(),
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("syncd stopped")
}

// refreshTasks is the scheduler's refresh action: fetch current state for
// every subscribed task (or the full task list when nothing is subscribed)
// and fold it into the tracker.
func refreshTasks(ctx context.Context, client *api.Client, registry *ws.Registry, tracker *task.Tracker, jnl *journal.Journal) error {
	ids := registry.Subscriptions()

	var tasks []task.Task
	var err error
	if len(ids) > 0 {
		tasks, err = client.GetTasksByIDs(ctx, ids)
	} else {
		tasks, err = client.GetAllTasks(ctx, api.GetTasksOptions{})
	}
	if err != nil {
		return err
	}

	for _, t := range tasks {
		tracker.ApplyTask(t)
		if jnl != nil {
			if u, ok := tracker.Latest(t.ID); ok {
				jnl.Record(u)
			}
		}
	}
	return nil
}

// splitTaskIDs parses the -tasks flag.
func splitTaskIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(
	cfg *config.SyncConfig,
	manager *ws.Manager,
	registry *ws.Registry,
	scheduler *refresh.Scheduler,
	tracker *task.Tracker,
	jnl *journal.Journal,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(cfg.Health.Path, func(w http.ResponseWriter, r *http.Request) {
		state := manager.State()
		refreshState := scheduler.State()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["connection"] = map[string]any{
			"state":              state.String(),
			"reconnect_attempts": manager.ReconnectAttempts(),
		}
		if state != ws.StateConnected {
			health.Status = "degraded"
		}

		var next any
		if refreshState.NextRefreshTime != nil {
			next = refreshState.NextRefreshTime.UTC().Format(time.RFC3339)
		}
		health.Components["refresh"] = map[string]any{
			"error_count":      refreshState.ErrorCount,
			"current_interval": refreshState.CurrentInterval.String(),
			"is_refreshing":    refreshState.IsRefreshing,
			"is_paused":        refreshState.IsPaused,
			"next_refresh":     next,
		}

		health.Components["subscriptions"] = registry.Len()
		health.Components["tracked_tasks"] = tracker.Len()

		if jnl != nil {
			stats := jnl.Stats()
			health.Components["journal"] = map[string]any{
				"inserts": stats.Inserts,
				"flushes": stats.Flushes,
				"errors":  stats.Errors,
				"pending": jnl.Pending(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/tasks", func(w http.ResponseWriter, r *http.Request) {
		snapshot := tracker.Snapshot()

		// Limit to first 100 for debugging
		limit := 100
		showing := snapshot
		if len(showing) > limit {
			showing = showing[:limit]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   len(snapshot),
			"showing": len(showing),
			"tasks":   showing,
		})
	})

	return mux
}
