package service

import (
	"context"
	"errors"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/storage/sqlite"
	"wechat_digest/internal/timeutil"
)

// CountDelayedInNumerator fixes the default coverage policy: a delayed
// outcome still served the reader something, so it counts as covered.
// Strict-live accounting is computed alongside and never replaces this.
const CountDelayedInNumerator = true

type CoverageService struct {
	runs   RunStore
	target float64
}

func NewCoverageService(runs RunStore, target float64) *CoverageService {
	return &CoverageService{runs: runs, target: target}
}

// ErrNoRun means no sync run exists for the requested date.
var ErrNoRun = errors.New("no sync run for date")

// Report computes coverage for a date from its most recent sync run.
func (s *CoverageService) Report(ctx context.Context, date string) (*domain.CoverageReport, error) {
	day, err := timeutil.ParseDate(date)
	if err != nil {
		return nil, err
	}
	from, to := timeutil.DayBounds(day)

	run, err := s.runs.LatestBetween(ctx, from, to)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, err
	}
	return s.fromRun(date, run), nil
}

// Latest computes coverage from the most recent run regardless of date.
func (s *CoverageService) Latest(ctx context.Context) (*domain.CoverageReport, error) {
	run, err := s.runs.Latest(ctx)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, err
	}
	return s.fromRun(run.StartedAt.Local().Format(timeutil.DateLayout), run), nil
}

func (s *CoverageService) fromRun(date string, run *domain.RunStats) *domain.CoverageReport {
	ok, delayed, failed := run.Counts()
	report := &domain.CoverageReport{
		Date:    date,
		Total:   len(run.Results),
		OK:      ok,
		Delayed: delayed,
		Failed:  failed,
		Target:  s.target,
		Details: run.Results,
	}
	if report.Total > 0 {
		covered := ok
		if CountDelayedInNumerator {
			covered += delayed
		}
		report.Ratio = float64(covered) / float64(report.Total)
		report.StrictRatio = float64(ok) / float64(report.Total)
	}
	report.Pass = report.Ratio >= s.target
	return report
}
