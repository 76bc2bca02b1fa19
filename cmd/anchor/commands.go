package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raknampuna/anchor/config"
	"github.com/raknampuna/anchor/internal/discord"
	"github.com/raknampuna/anchor/internal/repl"
	"github.com/raknampuna/anchor/internal/scheduler"
)

type ChatCmd struct {
	User string `help:"User identifier for the conversation." default:"local"`
}

func (c *ChatCmd) Run(cfg *config.Config) error {
	ctx := context.Background()
	a, err := setup(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// Pipes get a single exchange without prompts.
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	r := &repl.REPL{
		Sessions:    a.sessions,
		UserID:      c.User,
		In:          os.Stdin,
		Out:         os.Stdout,
		Interactive: !isPipe,
	}
	return r.Run(ctx)
}

type ServeCmd struct{}

func (c *ServeCmd) Run(cfg *config.Config) error {
	if cfg.DiscordToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is not set")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	bot, err := discord.NewBot(cfg.DiscordToken, a.sessions, a.log)
	if err != nil {
		return err
	}
	defer bot.Close()

	sched := scheduler.New(scheduler.Config{
		PurgeCron:     cfg.PurgeCron,
		RetentionDays: cfg.RetentionDays,
		MorningCron:   cfg.MorningCron,
		EveningCron:   cfg.EveningCron,
		WebhookURL:    cfg.DiscordWebhook,
		Location:      a.loc,
	}, a.store, a.sessions, bot.SendDM, a.log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	a.log.Info("bot is running. Press Ctrl+C to exit.")
	<-ctx.Done()
	a.log.Info("shutting down.")
	return nil
}

type PurgeCmd struct {
	Days int `help:"Keep this many days; defaults to CONTEXT_CLEANUP_DAYS."`
}

func (c *PurgeCmd) Run(cfg *config.Config) error {
	ctx := context.Background()
	a, err := setup(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	days := c.Days
	if days <= 0 {
		days = cfg.RetentionDays
	}
	n, err := a.store.PurgeOlderThan(ctx, days)
	if err != nil {
		return fmt.Errorf("purging: %w", err)
	}
	fmt.Printf("deleted %d context(s) older than %d day(s)\n", n, days)
	return nil
}
