package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"wechat_digest/internal/discovery"
	"wechat_digest/internal/domain"
	"wechat_digest/internal/service"
	"wechat_digest/internal/timeutil"
)

func today() string {
	return time.Now().Local().Format(timeutil.DateLayout)
}

func (a *app) cmdView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	date := fs.String("date", today(), "reading date (YYYY-MM-DD)")
	mode := fs.String("mode", a.cfg.View.DefaultMode, "source, time or recommend")
	strictLive := fs.Bool("strict-live", false, "omit cached substitutions")
	interactive := fs.Bool("interactive", false, "interactive pager (plain output for now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := timeutil.ParseDate(*date); err != nil {
		return fmt.Errorf("bad --date %q: %w", *date, err)
	}
	if *interactive {
		fmt.Fprintln(os.Stderr, "note: --interactive is not implemented, printing plain output")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.syncTimeout())
	defer cancel()

	stats, err := a.sync.Sync(ctx, "view", *date)
	if err != nil {
		return err
	}

	if stats.AuthAborted {
		for _, res := range stats.Results {
			if kind := discovery.Kind(res.ErrorKind); kind.Auth() {
				return discovery.Errf(kind, "%s; run: wechat-digest login", res.ErrorMessage)
			}
		}
	}

	view, err := a.views.Assemble(ctx, *date, *mode, stats, *strictLive)
	if err != nil {
		return err
	}

	ok, delayed, _ := stats.Counts()
	if len(view.Items) == 0 && len(stats.Results) > 0 && ok+delayed == 0 {
		return &noDataError{date: *date}
	}

	renderDay(view, stats)
	return nil
}

func (a *app) cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	date := fs.String("date", "", "reading date (YYYY-MM-DD); empty lists recent dates")
	mode := fs.String("mode", service.ModeSource, "source, time or recommend")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	if *date == "" {
		return a.historyIndex(ctx)
	}
	if _, err := timeutil.ParseDate(*date); err != nil {
		return fmt.Errorf("bad --date %q: %w", *date, err)
	}

	view, err := a.views.Assemble(ctx, *date, *mode, nil, false)
	if err != nil {
		return err
	}
	if len(view.Items) == 0 {
		fmt.Printf("Nothing stored for %s.\n", *date)
		return nil
	}

	renderDay(view, nil)
	return nil
}

func (a *app) historyIndex(ctx context.Context) error {
	counts, err := a.views.Dates(ctx, 30)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Println("No stored articles yet. Run: wechat-digest view")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tARTICLES\tREAD")
	for _, day := range counts {
		fmt.Fprintf(w, "%s\t%d\t%d\n", day.Date, day.Total, day.Read)
	}
	return w.Flush()
}

func renderDay(view *service.DayView, stats *domain.RunStats) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	yellow := color.New(color.FgYellow)

	bold.Printf("%s", view.Date)
	if stats != nil {
		ok, delayed, failed := stats.Counts()
		fmt.Printf("  (%d ok, %d delayed, %d failed)", ok, delayed, failed)
	}
	if view.StrictLive {
		yellow.Print("  [strict-live]")
	}
	fmt.Println()
	fmt.Println()

	lastSub := ""
	for _, item := range view.Items {
		if view.Mode == service.ModeSource && item.Subscription != lastSub {
			bold.Printf("%s\n", item.Subscription)
			lastSub = item.Subscription
		}

		marker := "[ ]"
		if item.IsRead {
			marker = "[x]"
		}
		line := fmt.Sprintf("  %s %3d  %s", marker, item.DayID, item.Title)
		if view.Mode != service.ModeSource {
			line = fmt.Sprintf("  %s %3d  %-20s %s", marker, item.DayID, item.Subscription, item.Title)
		}

		if item.IsRead {
			dim.Println(line)
		} else {
			fmt.Println(line)
		}
		if item.Cached {
			yellow.Printf("        cached, %s stale\n", humanDuration(item.Staleness))
		}
		if item.Summary != "" {
			dim.Printf("        %s\n", item.Summary)
		}
	}

	if len(view.Stale) > 0 {
		fmt.Println()
		for name, staleness := range view.Stale {
			yellow.Printf("%s: showing cached data, %s stale\n", name, humanDuration(staleness))
		}
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return "moments"
	}
}
