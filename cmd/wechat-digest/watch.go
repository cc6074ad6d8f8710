package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wechat_digest/internal/scheduler"
)

func (a *app) cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", time.Hour, "time between syncs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval < time.Minute {
		return errors.New("watch: --interval must be at least 1m")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		a.logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	fmt.Printf("Syncing every %s. Ctrl-C to stop.\n", *interval)

	sched := scheduler.NewScheduler(a.sync, *interval, a.logger)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
