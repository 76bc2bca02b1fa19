// Package scheduler runs the cron jobs: the retention purge and the
// morning/evening check-ins.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/raknampuna/anchor/internal/planning"
	"github.com/raknampuna/anchor/internal/session"
	"github.com/raknampuna/anchor/internal/store"
)

type Config struct {
	PurgeCron     string // empty disables the purge job
	RetentionDays int
	MorningCron   string // empty disables morning check-ins
	EveningCron   string // empty disables evening check-ins
	WebhookURL    string // fallback delivery when DMs fail
	Location      *time.Location
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	store    store.Store
	sessions *session.Manager
	dmSend   func(userID, content string) error
	log      *log.Logger
	now      func() time.Time
}

func New(cfg Config, s store.Store, sessions *session.Manager, dmSend func(userID, content string) error, logger *log.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = store.DefaultRetentionDays
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Location)),
		cfg:      cfg,
		store:    s,
		sessions: sessions,
		dmSend:   dmSend,
		log:      logger.WithPrefix("scheduler"),
		now:      time.Now,
	}
}

// Start registers the configured jobs and starts the cron loop. It fails if
// any expression doesn't parse.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		expr string
		run  func(context.Context)
	}{
		{"purge", s.cfg.PurgeCron, func(ctx context.Context) { s.Purge(ctx) }},
		{"morning", s.cfg.MorningCron, func(ctx context.Context) { s.CheckIns(ctx, planning.ModeMorningPlanning) }},
		{"evening", s.cfg.EveningCron, func(ctx context.Context) { s.CheckIns(ctx, planning.ModeEveningReflection) }},
	}
	for _, j := range jobs {
		if j.expr == "" {
			continue
		}
		run := j.run
		if _, err := s.cron.AddFunc(j.expr, func() { run(context.Background()) }); err != nil {
			return fmt.Errorf("scheduling %s job %q: %w", j.name, j.expr, err)
		}
		s.log.Info("job scheduled", "job", j.name, "cron", j.expr)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Purge deletes contexts older than the retention window.
func (s *Scheduler) Purge(ctx context.Context) (int, error) {
	n, err := s.store.PurgeOlderThan(ctx, s.cfg.RetentionDays)
	if err != nil {
		s.log.Error("purge failed", "err", err, "deleted", n)
		return n, err
	}
	s.log.Info("purged old contexts", "deleted", n, "days", s.cfg.RetentionDays)
	return n, nil
}

// CheckIns opens a conversation in mode with every recently active user
// and delivers the replies. Morning check-ins reach anyone seen yesterday or
// today; evening ones only today's users.
func (s *Scheduler) CheckIns(ctx context.Context, mode planning.Mode) int {
	users, err := s.recipients(ctx, mode)
	if err != nil {
		s.log.Error("listing check-in users", "mode", mode, "err", err)
		return 0
	}
	sent := 0
	for _, user := range users {
		out, err := s.sessions.CheckIn(ctx, user, mode)
		if err != nil {
			// Storage trouble still leaves a reply worth sending.
			s.log.Warn("check-in", "user", user, "err", err)
		}
		if out.Reply == "" {
			continue
		}
		if s.deliver(user, out.Text()) {
			sent++
		}
	}
	s.log.Info("check-ins done", "mode", mode, "users", len(users), "sent", sent)
	return sent
}

func (s *Scheduler) recipients(ctx context.Context, mode planning.Mode) ([]string, error) {
	today := planning.Day(s.now().In(s.cfg.Location))
	days := []time.Time{today}
	if mode == planning.ModeMorningPlanning {
		days = append(days, today.AddDate(0, 0, -1))
	}
	seen := make(map[string]bool)
	var out []string
	for _, d := range days {
		users, err := s.store.Users(ctx, d)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scheduler) deliver(userID, content string) bool {
	// Try DM first
	if s.dmSend != nil {
		err := s.dmSend(userID, content)
		if err == nil {
			return true
		}
		s.log.Warn("DM send failed", "user", userID, "err", err)
	}
	// Fall back to webhook
	if s.cfg.WebhookURL != "" {
		if err := postWebhook(s.cfg.WebhookURL, content); err != nil {
			s.log.Warn("webhook failed", "user", userID, "err", err)
			return false
		}
		return true
	}
	s.log.Warn("no delivery method available", "user", userID)
	return false
}

func postWebhook(url, content string) error {
	payload := map[string]string{"content": content}
	body, _ := json.Marshal(payload) // a string map always marshals
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
