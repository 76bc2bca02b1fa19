package planning

import (
	"errors"
	"time"
)

var ErrTimingWithoutTask = errors.New("timing recorded without a current task")

// Context is the running per-user, per-day planning state.
//
// Contexts are not safe for concurrent read-modify-write: for a fixed user
// identifier, load/merge/save cycles must not overlap. Callers serialize
// turns per user.
type Context struct {
	CurrentTask     string
	Mode            Mode
	Timing          *TaskTiming
	LastInteraction time.Time
}

// Update is what one turn contributes to a context.
type Update struct {
	Task   string
	Mode   Mode
	Timing *TaskTiming
	// Parsed is false when the model output could not be parsed and the
	// update carries only fallback values.
	Parsed bool
}

// NewContext returns an empty context in the given mode.
func NewContext(mode Mode, now time.Time) *Context {
	return &Context{Mode: mode.OrDefault(), LastInteraction: now}
}

// Validate enforces that timing never exists without a task.
func (c *Context) Validate() error {
	if c.Timing != nil && c.CurrentTask == "" {
		return ErrTimingWithoutTask
	}
	if !c.Mode.Valid() {
		return ErrUnknownMode
	}
	return c.Timing.Validate()
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	out.Timing = c.Timing.Clone()
	return &out
}

// Merge applies u and returns the resulting context; c is left untouched.
// Stated fields overwrite, unstated fields keep their prior value, and the
// mode follows NextMode. Applying the same update twice yields the same
// context as applying it once.
func (c *Context) Merge(u Update, now time.Time) *Context {
	out := c.Clone()
	if out == nil {
		out = NewContext(DefaultMode, now)
	}
	if u.Task != "" {
		out.CurrentTask = u.Task
	}
	if u.Timing != nil {
		out.Timing = u.Timing.Clone()
	}
	out.Mode = NextMode(out.Mode, u.Mode, u.Parsed)
	// Timing without a task is meaningless and is never kept on its own.
	if out.CurrentTask == "" {
		out.Timing = nil
	}
	out.LastInteraction = now
	return out
}

// HasSchedule reports whether the context carries enough to place the task.
func (c *Context) HasSchedule() bool {
	return c != nil && c.CurrentTask != "" && c.Timing != nil && c.Timing.PreferredTime != nil
}
