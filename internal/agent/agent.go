// Package agent runs one conversational turn: prompt, model call, parse,
// merge and the schedule check.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raknampuna/anchor/internal/constraint"
	"github.com/raknampuna/anchor/internal/llm"
	"github.com/raknampuna/anchor/internal/observe"
	"github.com/raknampuna/anchor/internal/planning"
	"github.com/raknampuna/anchor/internal/response"
)

const (
	DefaultTimeout = 30 * time.Second
	component      = "agent"
)

// Decision is the outcome of checking a proposed block against the day's
// other commitments.
type Decision struct {
	Block     planning.TimeBlock
	Task      string
	Approved  bool
	Conflicts []planning.TimeBlock
}

// Result is what a turn produces. Reply is never empty.
type Result struct {
	Reply    string
	Context  *planning.Context
	Parsed   response.Parsed
	Decision *Decision // nil when the turn stated no timing
}

type Agent struct {
	client          llm.Client
	obs             observe.Observer
	timeout         time.Duration
	defaultDuration int
	now             func() time.Time
}

type Option func(*Agent)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithDefaultDuration sets the block length used when no duration is known.
func WithDefaultDuration(minutes int) Option {
	return func(a *Agent) {
		if minutes > 0 {
			a.defaultDuration = minutes
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

func New(client llm.Client, obs observe.Observer, opts ...Option) *Agent {
	if obs == nil {
		obs = observe.Nop
	}
	a := &Agent{
		client:          client,
		obs:             obs,
		timeout:         DefaultTimeout,
		defaultDuration: constraint.DefaultDurationMinutes,
		now:             time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Turn runs one exchange against prior, which may be nil. It never fails:
// model, transport and parse errors all degrade to the fallback reply and
// are reported to the observer. prior is not modified.
func (a *Agent) Turn(ctx context.Context, userID string, prior *planning.Context, message string) Result {
	now := a.now()
	priorMode := planning.DefaultMode
	if prior != nil {
		priorMode = prior.Mode.OrDefault()
	}
	a.obs.Observe(observe.Event{
		Type:      observe.EventInteraction,
		UserID:    userID,
		Component: component,
		Message:   message,
		Fields:    map[string]any{"mode": string(priorMode)},
	})

	prompt := llm.BuildPrompt(llm.PromptInput{Now: now, Message: message, Context: prior})
	parsed := a.ask(ctx, userID, prompt, priorMode)

	merged := prior.Merge(parsed.Update(), now)
	res := Result{Reply: parsed.Text, Context: merged, Parsed: parsed}
	if res.Reply == "" {
		res.Reply = response.FallbackText
	}
	if !parsed.Fallback && parsed.Timing != nil && merged.HasSchedule() {
		res.Decision = a.decide(userID, merged)
	}
	return res
}

func (a *Agent) ask(ctx context.Context, userID, prompt string, prior planning.Mode) response.Parsed {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.client.Send(ctx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("model call timed out after %s: %w", a.timeout, err)
		}
		a.obs.Observe(observe.Event{
			Type:      observe.EventError,
			UserID:    userID,
			Component: component,
			Kind:      observe.KindLLMUnavailable,
			Err:       err,
			Duration:  elapsed,
		})
		return response.Fallback(prior)
	}

	a.obs.Observe(observe.Event{
		Type:      observe.EventLLM,
		UserID:    userID,
		Component: component,
		Message:   raw,
		Duration:  elapsed,
		Fields: map[string]any{
			"prompt_tokens": llm.EstimateTokens(prompt),
			"reply_tokens":  llm.EstimateTokens(raw),
		},
	})

	parsed, err := response.Parse(raw, prior)
	if err != nil {
		a.obs.Observe(observe.Event{
			Type:      observe.EventError,
			UserID:    userID,
			Component: component,
			Kind:      observe.KindParseFailure,
			Message:   raw,
			Err:       err,
		})
	}
	return parsed
}

func (a *Agent) decide(userID string, c *planning.Context) *Decision {
	d := &Decision{Task: c.CurrentTask}
	block, ok := constraint.Candidate(c.Timing, a.defaultDuration)
	if !ok {
		a.obs.Observe(observe.Event{
			Type:      observe.EventConflict,
			UserID:    userID,
			Component: component,
			Message:   fmt.Sprintf("%q does not fit within the day", c.CurrentTask),
		})
		return d
	}
	block.Description = c.CurrentTask
	d.Block = block
	d.Conflicts = constraint.Conflicts(block, c.Timing.Constraints)
	d.Approved = constraint.Check(block, c.Timing.Constraints)
	if !d.Approved {
		a.obs.Observe(observe.Event{
			Type:      observe.EventConflict,
			UserID:    userID,
			Component: component,
			Message:   fmt.Sprintf("%s-%s overlaps %d commitment(s)", block.StartTime, block.EndTime, len(d.Conflicts)),
			Fields:    map[string]any{"task": c.CurrentTask},
		})
	}
	return d
}
