// Package session runs turns for users: it serializes each user's turns,
// loads and saves the day's context and turns approved blocks into
// calendar links.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raknampuna/anchor/internal/agent"
	"github.com/raknampuna/anchor/internal/calendar"
	"github.com/raknampuna/anchor/internal/observe"
	"github.com/raknampuna/anchor/internal/planning"
	"github.com/raknampuna/anchor/internal/store"
)

const component = "session"

// Outcome is what a transport sends back for one turn.
type Outcome struct {
	Reply    string
	Link     string // calendar link for an approved block, if any
	Context  *planning.Context
	Decision *agent.Decision
}

// Text is the reply followed by the link, when there is one.
func (o Outcome) Text() string {
	if o.Link == "" {
		return o.Reply
	}
	return o.Reply + "\n\nAdd it to your calendar: " + o.Link
}

type Options struct {
	// Location decides the user's calendar day. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
	Calendar calendar.Builder
}

type Manager struct {
	agent *agent.Agent
	store store.Store
	obs   observe.Observer
	cal   calendar.Builder
	loc   *time.Location
	now   func() time.Time
	locks Locks
}

func NewManager(a *agent.Agent, s store.Store, obs observe.Observer, opts Options) *Manager {
	if obs == nil {
		obs = observe.Nop
	}
	m := &Manager{
		agent: a,
		store: s,
		obs:   obs,
		cal:   opts.Calendar,
		loc:   opts.Location,
		now:   opts.Now,
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) today() time.Time {
	return planning.Day(m.now().In(m.loc))
}

// Handle runs one user message through a turn.
//
// A reply is always returned. When the store can't be reached the turn runs
// without prior context, nothing is saved, and the error (wrapping
// store.ErrUnavailable) comes back alongside the reply. A record that can't
// be decoded is reported and treated as absent, so the turn's save replaces
// it.
func (m *Manager) Handle(ctx context.Context, userID, message string) (Outcome, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.run(ctx, userID, func(*planning.Context) string { return message })
}

// CheckIn starts a scheduled conversation in mode, as if the user had
// opened it.
func (m *Manager) CheckIn(ctx context.Context, userID string, mode planning.Mode) (Outcome, error) {
	if !mode.Valid() {
		return Outcome{}, fmt.Errorf("check-in: %w: %q", planning.ErrUnknownMode, mode)
	}
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.run(ctx, userID, func(c *planning.Context) string {
		c.Mode = mode
		return agent.CheckInMessage(mode, c)
	})
}

// run loads the day's context, lets prepare adjust it and produce the
// message, runs the turn and saves the result. Callers hold the user's lock.
func (m *Manager) run(ctx context.Context, userID string, prepare func(*planning.Context) string) (Outcome, error) {
	day := m.today()
	prior, loadErr := m.load(ctx, userID, day)
	if loadErr != nil {
		m.storageFailure(userID, "loading context", loadErr)
		prior = planning.NewContext(planning.DefaultMode, m.now())
	}
	message := prepare(prior)

	res := m.agent.Turn(ctx, userID, prior, message)
	out := Outcome{Reply: res.Reply, Context: res.Context, Decision: res.Decision}
	if d := res.Decision; d != nil && d.Approved {
		out.Link = m.link(userID, d, day)
	}

	if loadErr != nil {
		return out, fmt.Errorf("loading context: %w", loadErr)
	}
	if err := m.store.Save(ctx, userID, day, res.Context); err != nil {
		m.storageFailure(userID, "saving context", err)
		return out, fmt.Errorf("saving context: %w", err)
	}
	return out, nil
}

// load returns today's context, or a fresh one that carries yesterday's
// mode forward. Only ErrUnavailable fails it: an undecodable record for today
// reads as absent, and any trouble reading yesterday's falls back to the
// default mode.
func (m *Manager) load(ctx context.Context, userID string, day time.Time) (*planning.Context, error) {
	c, err := m.loadDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	mode := planning.DefaultMode
	prev, err := m.loadDay(ctx, userID, day.AddDate(0, 0, -1))
	switch {
	case err != nil:
		m.storageFailure(userID, "loading previous day", err)
	case prev != nil:
		mode = prev.Mode
	}
	return planning.NewContext(mode, m.now()), nil
}

// loadDay is store.Load with corrupt records reported and read as absent.
func (m *Manager) loadDay(ctx context.Context, userID string, day time.Time) (*planning.Context, error) {
	c, err := m.store.Load(ctx, userID, day)
	if errors.Is(err, store.ErrCorrupt) {
		m.corruptRecord(userID, err)
		return nil, nil
	}
	return c, err
}

func (m *Manager) link(userID string, d *agent.Decision, day time.Time) string {
	ev, err := calendar.BlockEvent(d.Task, d.Block, day)
	if err == nil {
		var link string
		if link, err = m.cal.Build(ev); err == nil {
			return link
		}
	}
	m.obs.Observe(observe.Event{
		Type:      observe.EventError,
		UserID:    userID,
		Component: component,
		Kind:      observe.KindCalendarLink,
		Err:       err,
	})
	return ""
}

func (m *Manager) storageFailure(userID, op string, err error) {
	m.obs.Observe(observe.Event{
		Type:      observe.EventError,
		UserID:    userID,
		Component: component,
		Kind:      observe.KindStorageUnavailable,
		Message:   op,
		Err:       err,
	})
}

func (m *Manager) corruptRecord(userID string, err error) {
	m.obs.Observe(observe.Event{
		Type:      observe.EventError,
		UserID:    userID,
		Component: component,
		Kind:      observe.KindParseFailure,
		Message:   "discarding undecodable context",
		Err:       err,
	})
}

// Current returns today's stored context, or nil if the user hasn't talked
// to us today.
func (m *Manager) Current(ctx context.Context, userID string) (*planning.Context, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.loadDay(ctx, userID, m.today())
}

// SetMode forces today's mode, creating the day's context if needed.
func (m *Manager) SetMode(ctx context.Context, userID string, mode planning.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("setting mode: %w: %q", planning.ErrUnknownMode, mode)
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	day := m.today()
	c, err := m.load(ctx, userID, day)
	if err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	c.Mode = mode
	if err := m.store.Save(ctx, userID, day, c); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	return nil
}

// Clear forgets today's context.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()
	if err := m.store.Delete(ctx, userID, m.today()); err != nil {
		return fmt.Errorf("clearing context: %w", err)
	}
	return nil
}
