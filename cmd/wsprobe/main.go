// wsprobe connects to the platform WebSocket and streams parsed task
// updates to the console. Useful for verifying credentials and watching
// the live push channel without running a full syncd.
//
// Usage: go run ./cmd/wsprobe --config configs/syncd.local.yaml --tasks t1,t2
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/annolab/annosync/internal/config"
	"github.com/annolab/annosync/internal/task"
	"github.com/annolab/annosync/internal/ws"
)

func main() {
	configPath := flag.String("config", "configs/syncd.example.yaml", "path to config file")
	tasks := flag.String("tasks", "", "comma-separated task IDs to subscribe to")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	var registry *ws.Registry
	var updates, frames, errs atomic.Int64

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
			logger.Info("connected")
			registry.Replay()
		},
		OnDisconnect: func() {
			logger.Info("disconnected")
		},
		OnError: func(err error) {
			errs.Add(1)
			logger.Warn("connection error", "error", err)
		},
		OnTaskUpdate: func(u task.Update) {
			updates.Add(1)
			if u.Progress != nil {
				fmt.Printf("[TASK] id=%s status=%s progress=%.0f%% msg=%q\n",
					u.TaskID, u.Status, *u.Progress*100, u.Message)
			} else {
				fmt.Printf("[TASK] id=%s status=%s msg=%q\n", u.TaskID, u.Status, u.Message)
			}
		},
		OnMessage: func(env ws.Envelope) {
			frames.Add(1)
			if *verbose {
				var buf map[string]any
				if json.Unmarshal(env.Raw, &buf) == nil {
					data, _ := json.MarshalIndent(buf, "", "  ")
					fmt.Printf("[FRAME] %s\n", data)
				}
			}
		},
	}, logger)
	if err != nil {
		logger.Error("failed to create connection manager", "error", err)
		os.Exit(1)
	}

	registry = ws.NewRegistry(manager, logger)
	for _, id := range strings.Split(*tasks, ",") {
		if id = strings.TrimSpace(id); id != "" {
			registry.Subscribe(id)
		}
	}

	logger.Info("connecting", "url", manager.URL(), "subscriptions", registry.Len())
	if err := manager.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying", "error", err)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"state", manager.State(),
					"reconnect_attempts", manager.ReconnectAttempts(),
					"task_updates", updates.Load(),
					"frames", frames.Load(),
					"errors", errs.Load(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	manager.Disconnect()
	logger.Info("shutdown complete")
}
