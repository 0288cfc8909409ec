package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/pokus/internal/config"
	"github.com/dohr-michael/pokus/internal/events"
	"github.com/dohr-michael/pokus/internal/gateway"
	"github.com/dohr-michael/pokus/internal/retention"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"gateway"},
		Usage:   "Start the pokus gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	eng, err := newEngine(ctx, cfg, bus)
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.Retention.Enabled {
		sweeper, err := retention.New(retention.Config{
			Store:    eng.stores.checkpoints,
			Locker:   eng.locker,
			Bus:      bus,
			Journal:  journalOrNil(eng),
			Schedule: cfg.Retention.Schedule,
			MaxIdle:  cfg.Retention.MaxIdle.Duration(),
		})
		if err != nil {
			return fmt.Errorf("init retention: %w", err)
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	// SIGHUP re-reads .env and the config, then rescans task catalogs even
	// when the config is unchanged, since catalog files may have been edited.
	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.OnReload(func(_, next *config.Config) { eng.reload(ctx, next) })
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloader.Watch(ctx, hup)

	server := gateway.NewServer(gateway.Config{
		Host:        cfg.Gateway.Host,
		Port:        cfg.Gateway.Port,
		Graph:       eng.graph,
		Registry:    eng.registry,
		Checkpoints: eng.stores.checkpoints,
		Bus:         bus,
		Info: gateway.Info{
			Version:     Version,
			LLMProvider: eng.models.Describe(eng.models.DefaultName()),
			WebSearch:   eng.webSearch,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// journalOrNil keeps a nil *EventLogger from becoming a non-nil interface.
func journalOrNil(e *engine) retention.Journal {
	if e.journal == nil {
		return nil
	}
	return e.journal
}
