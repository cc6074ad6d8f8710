package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/storage/sqlite"
)

func (a *app) cmdSub(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: sub <add|remove|bind|show|list> [flags]")
	}

	ctx := context.Background()
	switch args[0] {
	case "add":
		return a.subAdd(ctx, args[1:])
	case "remove":
		return a.subRemove(ctx, args[1:])
	case "bind":
		return a.subBind(ctx, args[1:])
	case "show":
		return a.subShow(ctx, args[1:])
	case "list":
		return a.subList(ctx)
	default:
		return fmt.Errorf("unknown sub command: %s", args[0])
	}
}

func (a *app) subAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sub add", flag.ContinueOnError)
	name := fs.String("name", "", "official account display name")
	wechatID := fs.String("wechat-id", "", "official account wechat id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("sub add: --name is required")
	}

	sub := domain.Subscription{Name: *name, WechatID: *wechatID}
	if err := a.subs.Add(ctx, &sub); err != nil {
		return err
	}
	color.Green("Subscribed to %s", sub.Name)
	return nil
}

func (a *app) subRemove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sub remove", flag.ContinueOnError)
	name := fs.String("name", "", "subscription name")
	wechatID := fs.String("wechat-id", "", "official account wechat id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := *name
	if target == "" {
		if *wechatID == "" {
			return errors.New("sub remove: --name or --wechat-id is required")
		}
		subs, err := a.subs.List(ctx)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if sub.WechatID == *wechatID {
				target = sub.Name
				break
			}
		}
		if target == "" {
			return fmt.Errorf("no subscription with wechat id %s: %w", *wechatID, sqlite.ErrNotFound)
		}
	}

	if err := a.subs.Remove(ctx, target); err != nil {
		return err
	}
	color.Green("Unsubscribed from %s", target)
	return nil
}

func (a *app) subBind(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sub bind", flag.ContinueOnError)
	name := fs.String("name", "", "subscription name")
	account := fs.String("account", "", "__biz account id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *account == "" {
		return errors.New("sub bind: --name and --account are required")
	}

	sub, err := a.subs.GetByName(ctx, *name)
	if err != nil {
		return err
	}
	sub.BoundAccount = *account
	if err := a.subs.Update(ctx, sub); err != nil {
		return err
	}
	color.Green("Bound %s to account %s", sub.Name, *account)
	return nil
}

func (a *app) subShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sub show", flag.ContinueOnError)
	name := fs.String("name", "", "subscription name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("sub show: --name is required")
	}

	sub, err := a.subs.GetByName(ctx, *name)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println(sub.Name)
	fmt.Printf("  wechat id:     %s\n", orDash(sub.WechatID))
	fmt.Printf("  bound account: %s\n", orDash(sub.BoundAccount))
	fmt.Printf("  added:         %s\n", sub.CreatedAt.Local().Format("2006-01-02"))

	watermark, err := a.watermarks.Get(ctx, sub.ID)
	if err != nil {
		return err
	}
	if watermark.IsZero() {
		fmt.Println("  last sync:     never")
	} else {
		fmt.Printf("  last sync:     %s\n", watermark.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *app) subList(ctx context.Context) error {
	subs, err := a.subs.List(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Println("No subscriptions. Add one with: wechat-digest sub add --name NAME")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tWECHAT ID\tBOUND ACCOUNT\tADDED")
	for _, sub := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			sub.Name, orDash(sub.WechatID), orDash(sub.BoundAccount),
			sub.CreatedAt.Local().Format("2006-01-02"))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
