package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"wechat_digest/internal/discovery"
	"wechat_digest/internal/storage/sqlite"
)

// Exit codes. Auth aborts and cache-less total failures get their own codes
// so scripts can tell "log in again" apart from "try later".
const (
	exitOK       = 0
	exitError    = 1
	exitAuth     = 2
	exitNotFound = 3
	exitNoData   = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitError
	}

	configPath := os.Getenv("WECHAT_DIGEST_CONFIG")
	if args[0] == "--config" || args[0] == "-config" {
		if len(args) < 3 {
			printUsage()
			return exitError
		}
		configPath = args[1]
		args = args[2:]
	}

	cmd := args[0]
	args = args[1:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return exitOK
	}

	app, err := newApp(configPath)
	if err != nil {
		color.Red("Error: %v", err)
		return exitError
	}
	defer app.Close()

	switch cmd {
	case "login":
		err = app.cmdLogin(args)
	case "logout":
		err = app.cmdLogout(args)
	case "sub":
		err = app.cmdSub(args)
	case "view":
		err = app.cmdView(args)
	case "history":
		err = app.cmdHistory(args)
	case "read":
		err = app.cmdRead(args)
	case "open":
		err = app.cmdOpen(args)
	case "done":
		err = app.cmdMarkBatch(args, true)
	case "todo":
		err = app.cmdMarkBatch(args, false)
	case "watch":
		err = app.cmdWatch(args)
	case "status":
		err = app.cmdStatus(args)
	case "coverage":
		err = app.cmdCoverage(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		return exitError
	}

	if err != nil {
		color.Red("Error: %v", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	if errors.Is(err, sqlite.ErrNotFound) {
		return exitNotFound
	}
	var noData *noDataError
	if errors.As(err, &noData) {
		return exitNoData
	}
	var de *discovery.Error
	if errors.As(err, &de) {
		switch {
		case de.Kind.Auth():
			return exitAuth
		case de.Kind == discovery.KindNotFound:
			return exitNotFound
		case de.Kind == discovery.KindCacheUnavailable:
			return exitNoData
		}
	}
	return exitError
}

// noDataError means every subscription failed and nothing was cached.
type noDataError struct {
	date string
}

func (e *noDataError) Error() string {
	return fmt.Sprintf("no data for %s: every subscription failed and no cache is available", e.date)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: wechat-digest [--config FILE] <command> [flags]")
	fmt.Println()
	yellow.Println("Session:")
	fmt.Println("  login [--provider P] [--token T] [--expires-days N]   Log in (QR scan, or paste a token)")
	fmt.Println("  logout [--provider P]                                 Drop the stored session")
	fmt.Println()
	yellow.Println("Subscriptions:")
	fmt.Println("  sub add --name NAME [--wechat-id ID]                  Follow an official account")
	fmt.Println("  sub remove [--name NAME | --wechat-id ID]             Unfollow")
	fmt.Println("  sub bind --name NAME --account ID                     Bind a __biz account id")
	fmt.Println("  sub show --name NAME                                  Subscription detail")
	fmt.Println("  sub list                                              List subscriptions")
	fmt.Println()
	yellow.Println("Reading:")
	fmt.Println("  view [--date D] [--mode source|time|recommend] [--strict-live] [--interactive]")
	fmt.Println("  history [--date D] [--mode M]                         Stored articles, no sync")
	fmt.Println("  watch [--interval 1h]                                 Keep syncing in the background")
	fmt.Println("  open --id N [--date D]                                Print an article's link")
	fmt.Println("  read mark --id N --state read|unread [--date D]       Set one article's read state")
	fmt.Println("  done --ids 1,2,3 [--date D]                           Mark read")
	fmt.Println("  todo --ids 1,2,3 [--date D]                           Mark unread")
	fmt.Println()
	yellow.Println("Accounting:")
	fmt.Println("  status                                                Session, subscriptions, last run")
	fmt.Println("  coverage [--date D]                                   Coverage ratio vs the SLA target")
}
