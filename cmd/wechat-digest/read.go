package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"wechat_digest/internal/storage/sqlite"
)

func (a *app) cmdRead(args []string) error {
	if len(args) < 1 || args[0] != "mark" {
		return errors.New("usage: read mark --id N --state read|unread [--date D]")
	}

	fs := flag.NewFlagSet("read mark", flag.ContinueOnError)
	id := fs.Int("id", 0, "day id")
	state := fs.String("state", "read", "read or unread")
	date := fs.String("date", today(), "reading date (YYYY-MM-DD)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *id < 1 {
		return errors.New("read mark: --id is required")
	}

	var isRead bool
	switch *state {
	case "read":
		isRead = true
	case "unread":
		isRead = false
	default:
		return fmt.Errorf("read mark: bad --state %q, want read or unread", *state)
	}

	results, err := a.reading.Mark(context.Background(), *date, []int{*id}, isRead)
	if err != nil {
		return err
	}
	if results[0].NotFound {
		return fmt.Errorf("no article %d on %s: %w", *id, *date, sqlite.ErrNotFound)
	}
	color.Green("Marked %d (%s) as %s", *id, results[0].Title, *state)
	return nil
}

func (a *app) cmdOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	id := fs.Int("id", 0, "day id")
	date := fs.String("date", today(), "reading date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id < 1 {
		return errors.New("open: --id is required")
	}

	article, err := a.reading.Resolve(context.Background(), *date, *id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return fmt.Errorf("no article %d on %s: %w", *id, *date, sqlite.ErrNotFound)
	}
	if err != nil {
		return err
	}

	color.Cyan("%s", article.Title)
	fmt.Println(article.URL)
	return nil
}

func (a *app) cmdMarkBatch(args []string, isRead bool) error {
	name := "todo"
	if isRead {
		name = "done"
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	ids := fs.String("ids", "", "comma-separated day ids")
	date := fs.String("date", today(), "reading date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dayIDs, err := parseIDs(*ids)
	if err != nil {
		return err
	}

	results, err := a.reading.Mark(context.Background(), *date, dayIDs, isRead)
	if err != nil {
		return err
	}

	var missing int
	for _, res := range results {
		if res.NotFound {
			missing++
			color.Yellow("  %d: no such article on %s", res.DayID, *date)
			continue
		}
		fmt.Printf("  %d: %s\n", res.DayID, res.Title)
	}
	if missing == len(results) {
		return fmt.Errorf("none of the ids exist on %s: %w", *date, sqlite.ErrNotFound)
	}

	state := "unread"
	if isRead {
		state = "read"
	}
	color.Green("Marked %d article(s) as %s", len(results)-missing, state)
	return nil
}

func parseIDs(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("--ids is required, e.g. --ids 1,2,3")
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("bad day id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("--ids is required, e.g. --ids 1,2,3")
	}
	return ids, nil
}
