package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/samber/lo"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/service"
)

func (a *app) cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()

	bold := color.New(color.Bold)

	bold.Println("Session")
	meta, state, err := a.sessions.Status()
	if err != nil {
		return err
	}
	switch state {
	case domain.SessionValid:
		color.Green("  %s: valid until %s (%s backend)",
			meta.Provider, meta.ExpiresAt.Local().Format("2006-01-02 15:04"), meta.Backend)
	case domain.SessionExpired:
		color.Red("  %s: expired %s, run: wechat-digest login",
			meta.Provider, meta.ExpiresAt.Local().Format("2006-01-02 15:04"))
	default:
		fmt.Printf("  %s: not logged in\n", a.cfg.Session.Provider)
	}

	fmt.Println()
	bold.Println("Policy")
	fmt.Printf("  strict auth: %v\n", a.cfg.Session.StrictAuth)
	fmt.Printf("  incremental sync: %v (overlap %s)\n", a.cfg.Sync.Incremental(), a.cfg.Sync.Overlap())
	fmt.Printf("  midnight shift: %d day(s)\n", a.cfg.Sync.MidnightShiftDays)
	if a.cfg.Sync.ExtremeLocalMode {
		color.Yellow("  extreme local mode: on, serving cache only")
	}

	subs, err := a.subs.List(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	bold.Println("Subscriptions")
	fmt.Printf("  %d followed\n", len(subs))

	fmt.Println()
	bold.Println("Last sync")
	report, err := a.coverage.Latest(ctx)
	if errors.Is(err, service.ErrNoRun) {
		fmt.Println("  never synced")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("  %s: %d ok, %d delayed, %d failed of %d\n",
		report.Date, report.OK, report.Delayed, report.Failed, report.Total)
	printRatio(report)
	if line := tally(report.Details, func(r domain.SubscriptionResult) string { return r.Strategy }); line != "" {
		fmt.Printf("  strategies: %s\n", line)
	}
	if line := tally(report.Details, func(r domain.SubscriptionResult) string { return r.ErrorKind }); line != "" {
		fmt.Printf("  errors: %s\n", line)
	}
	return nil
}

// tally renders "key x count" pairs for the non-empty values of one result
// field, sorted for stable output.
func tally(details []domain.SubscriptionResult, key func(domain.SubscriptionResult) string) string {
	counts := make(map[string]int)
	for _, res := range details {
		if k := key(res); k != "" {
			counts[k]++
		}
	}
	keys := lo.Keys(counts)
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s x%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func (a *app) cmdCoverage(args []string) error {
	fs := flag.NewFlagSet("coverage", flag.ContinueOnError)
	date := fs.String("date", today(), "date to report on (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := a.coverage.Report(context.Background(), *date)
	if errors.Is(err, service.ErrNoRun) {
		fmt.Printf("No sync run recorded for %s.\n", *date)
		return nil
	}
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Printf("Coverage for %s\n", report.Date)
	fmt.Printf("  %d subscriptions: %d ok, %d delayed, %d failed\n",
		report.Total, report.OK, report.Delayed, report.Failed)
	printRatio(report)
	fmt.Printf("  strict-live ratio: %.0f%%\n", report.StrictRatio*100)

	if len(report.Details) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SUBSCRIPTION\tOUTCOME\tSTRATEGY\tNEW\tERROR")
		for _, res := range report.Details {
			errCol := "-"
			if res.ErrorKind != "" {
				errCol = res.ErrorKind
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				res.Name, res.Outcome, orDash(res.Strategy), res.NewArticles, errCol)
		}
		w.Flush()
	}
	return nil
}

func printRatio(report *domain.CoverageReport) {
	if report.Pass {
		color.Green("  coverage: %.0f%% (target %.0f%%)", report.Ratio*100, report.Target*100)
	} else {
		color.Red("  coverage: %.0f%% (below %.0f%% target)", report.Ratio*100, report.Target*100)
	}
}
