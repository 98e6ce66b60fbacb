// Command doom-launcher coordinates kiosk machines on one network so that
// exactly one hosts a shared deathmatch session and the rest join it. A
// kiosk with no peers loops single player instead.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JPEWdev/oe-doom-launcher/internal/config"
	"github.com/JPEWdev/oe-doom-launcher/internal/discovery"
	"github.com/JPEWdev/oe-doom-launcher/internal/launcher"
	"github.com/JPEWdev/oe-doom-launcher/internal/machineid"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, close := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer close()

	env, err := config.ParseEnv()
	if err != nil {
		slog.Error("parse environment", "error", err)
		os.Exit(1)
	}

	var cfg commandConfig
	if err := cfg.Parse(os.Args[1:], env); err != nil {
		abort(cfg.FS, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: env.LogLevel}))
	slog.SetDefault(logger)

	game, err := config.Load(cfg.ConfigPath, cfg.Explicit)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if env.ZDoom != "" {
		game.ZDoom = env.ZDoom
	}

	instance := machineid.InstanceName()
	logger.Info("starting",
		slog.String("instance", instance),
		slog.String("zdoom", game.ZDoom),
		slog.Int("port", game.Multiplayer.Port),
		slog.Bool("can_host", game.Multiplayer.CanHost),
		slog.Duration("wait", game.Multiplayer.Wait))

	backend, err := discovery.ZeroconfConfig{
		Logger: logger.With(slog.String("component", "discovery")),
	}.Start()
	if err != nil {
		logger.Error("start discovery", "error", err)
		os.Exit(1)
	}

	l := launcher.Config{
		Logger:       logger.With(slog.String("component", "launcher")),
		Backend:      backend,
		Starter:      launcher.ExecStarter{},
		Game:         game,
		InstanceName: instance,
	}.NewLauncher()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return l.Run(ctx)
	})

	err = eg.Wait()
	if cerr := backend.Close(); cerr != nil {
		logger.Error("close discovery", "error", cerr)
	}
	if err != nil {
		logger.Error("launcher failed", "error", err)
		os.Exit(1)
	}

	slog.Info("bye")
}
