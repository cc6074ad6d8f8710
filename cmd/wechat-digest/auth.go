package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/fatih/color"

	"wechat_digest/internal/session"
)

// sessionFor returns the default session store, or a store bound to an
// explicitly requested provider.
func (a *app) sessionFor(provider string) *session.Store {
	if provider == "" || provider == a.cfg.Session.Provider {
		return a.sessions
	}
	return session.NewStore(a.vault, provider, a.cfg.Session.TTL, a.logger)
}

func (a *app) cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	provider := fs.String("provider", "", "session provider (default from config)")
	token := fs.String("token", "", "paste a credential instead of scanning")
	expiresDays := fs.Int("expires-days", 0, "override session lifetime in days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := a.sessionFor(*provider)
	ttl := a.cfg.Session.TTL
	if *expiresDays > 0 {
		ttl = time.Duration(*expiresDays) * 24 * time.Hour
	}

	if *token != "" {
		meta, err := store.LoginWithTTL(*token, ttl)
		if err != nil {
			return err
		}
		color.Green("Logged in to %s, session valid until %s",
			meta.Provider, meta.ExpiresAt.Local().Format("2006-01-02 15:04"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Session.QRTimeout+30*time.Second)
	defer cancel()

	challenger := session.NewWebChallenger(a.cfg.Sources.SessionEndpoint, a.cfg.Sources.HTTPTimeout)
	meta, err := store.LoginQR(ctx, challenger, a.cfg.Session.QRTimeout, func(qrURL string) {
		fmt.Println("Scan to log in:")
		fmt.Println()
		fmt.Printf("  %s\n", qrURL)
		fmt.Println()
		fmt.Printf("Waiting for confirmation (%s timeout)...\n", a.cfg.Session.QRTimeout)
	})
	if err != nil {
		return err
	}

	// TTL override applies to QR logins too.
	if *expiresDays > 0 {
		credential, cerr := store.Credential(ctx, store.Provider())
		if cerr == nil {
			if meta, err = store.LoginWithTTL(credential, ttl); err != nil {
				return err
			}
		}
	}

	color.Green("Logged in to %s (%s backend), session valid until %s",
		meta.Provider, meta.Backend, meta.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func (a *app) cmdLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	provider := fs.String("provider", "", "session provider (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := a.sessionFor(*provider)
	if err := store.Logout(); err != nil {
		return err
	}
	color.Green("Logged out of %s", store.Provider())
	return nil
}
