package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Plotter/internal/log"
	"github.com/CZERTAINLY/Plotter/internal/service"
)

func (a *app) startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "Start",
		Aliases: []string{"start"},
		Short:   "Start supervises the configured jobs until interrupted",
		Args:    cobra.NoArgs,
		RunE:    a.doStart,
	}

	d := service.DefaultConfig()
	f := cmd.Flags()
	f.String("chiaExe", d.ChiaExe, "default chia executable, used for jobs without their own")
	f.Int("maxParallel", d.MaxParallel, "maximum of concurrently running plotters, 0 is unlimited")
	f.Duration("launchStagger", d.LaunchStagger, "minimal delay between two launches")
	f.String("logDir", d.LogDir, "directory of plotter output logs")
	for _, name := range []string{"chiaExe", "maxParallel", "launchStagger", "logDir"} {
		a.bind(name, f.Lookup(name))
	}
	return cmd
}

func (a *app) doStart(cmd *cobra.Command, _ []string) error {
	cfg, err := a.settings()
	if err != nil {
		return err
	}

	attrs := slog.Group("plotter",
		slog.String("cmd", "Start"),
		slog.Int("pid", os.Getpid()),
	)
	ctx := log.ContextAttrs(cmd.Context(), attrs)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "starting", "config", cfg.ConfigFile, "status", cfg.StatusFile, "max_parallel", cfg.MaxParallel)
	supervisor := service.NewSupervisor(cfg)
	done := make(chan error, 1)
	go func() {
		done <- supervisor.Do(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	slog.InfoContext(ctx, "interrupted: waiting for supervisor", "grace", cfg.ShutdownGrace)
	return waitGrace(done, cfg.ShutdownGrace)
}

// waitGrace waits for the supervisor for at most grace, zero waits forever.
func waitGrace(done <-chan error, grace time.Duration) error {
	if grace <= 0 {
		return <-done
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("supervisor did not stop within %s: %w", grace, context.DeadlineExceeded)
	}
}
