package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nstehr/vimy/vimy-builder/agent"
	"github.com/nstehr/vimy/vimy-builder/ai"
	"github.com/nstehr/vimy/vimy-builder/catalog"
	"github.com/nstehr/vimy/vimy-builder/config"
	"github.com/nstehr/vimy/vimy-builder/ipc"
	"github.com/nstehr/vimy/vimy-builder/journal"
	"github.com/nstehr/vimy/vimy-builder/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Listen for game connections on the configured unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			color.New(color.FgCyan, color.Bold).Println(banner)
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	slog.Info("starting vimy-builder")

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	aiCfg, err := controllerConfig(cfg)
	if err != nil {
		return err
	}
	slog.Info("catalog loaded", "path", cfg.Catalog.Path, "units", len(cat.Defs()), "lists", len(cat.Lists()), "seed", aiCfg.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		collector := metrics.NewBuilderMetricsCollector()
		if err := collector.Register(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metrics.SetGlobalCollector(collector)
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		go func() {
			if err := metrics.Serve(ctx, addr, cfg.Metrics.Path); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		db, err := journal.NewConnection(&cfg.Journal)
		if err != nil {
			return err
		}
		defer journal.Close(db)
		store = journal.NewStore(db)
		slog.Info("order journal enabled", "type", cfg.Journal.Type, "trace_dir", cfg.Journal.TraceDir)
	}

	opts := agent.Options{
		Config:      aiCfg,
		Catalog:     cat,
		Store:       store,
		TraceDir:    cfg.Journal.TraceDir,
		JournalSize: cfg.Journal.Buffer,
	}
	if !cfg.Journal.Enabled {
		opts.TraceDir = ""
	}

	socketPath := cfg.IPC.Socket

	// Unix sockets leave behind a file on unclean shutdown; remove it so we can rebind.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("clean up socket %s: %w", socketPath, err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)

	slog.Info("listening on domain socket", "path", socketPath)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				slog.Info("shutting down")
				return nil
			default:
				slog.Error("failed to accept connection", "error", err)
				continue
			}
		}
		slog.Info("new connection accepted")
		go handleConn(ctx, conn, opts)
	}
}

func handleConn(ctx context.Context, conn net.Conn, opts agent.Options) {
	c := ipc.NewConnection(conn, nil)
	a := agent.New(c, opts)
	defer a.Close()

	c.RegisterHandler(ipc.TypeHello, a.HandleHello)
	c.RegisterHandler(ipc.TypeGameState, a.HandleGameState)
	c.RegisterHandler(ipc.TypeGameOver, a.HandleGameOver)
	c.ReadLoop(ctx)
}

// controllerConfig turns the loaded settings into the per-game controller
// config. A zero seed is replaced with the start time.
func controllerConfig(cfg *config.Config) (ai.Config, error) {
	q, err := cfg.Queue.Build()
	if err != nil {
		return ai.Config{}, err
	}
	seed := cfg.Scheduler.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return ai.Config{
		Scheduler:        cfg.Scheduler.Build(),
		Queue:            q,
		Economy:          cfg.Economy.Build(),
		Power:            cfg.Power.Build(),
		Stockpile:        cfg.Stockpile.Build(),
		ForecastInterval: cfg.Scheduler.ForecastInterval,
		PowerInterval:    cfg.Scheduler.PowerInterval,
		Seed:             seed,
	}, nil
}
