package planning

import (
	"errors"
	"fmt"
)

// TimeBlock is either a busy constraint or a protected focus window.
type TimeBlock struct {
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time,omitempty"`
	Description  string `json:"description,omitempty"`
	IsFocusBlock bool   `json:"is_focus_block"`
}

// TaskTiming holds the timing preferences for the day's task.
// Nil pointers mean "not stated".
type TaskTiming struct {
	DurationMinutes *int        `json:"duration_minutes"`
	Deadline        *string     `json:"deadline"`
	PreferredTime   *string     `json:"preferred_time"`
	Constraints     []TimeBlock `json:"constraints"`
}

var ErrInvalidTiming = errors.New("invalid timing")

// Validate checks a block's clock fields.
func (b TimeBlock) Validate() error {
	if b.StartTime == "" {
		return fmt.Errorf("%w: time block missing start_time", ErrInvalidTiming)
	}
	if _, err := ParseClock(b.StartTime); err != nil {
		return fmt.Errorf("%w: start_time: %v", ErrInvalidTiming, err)
	}
	if b.EndTime != "" {
		if _, err := ParseClock(b.EndTime); err != nil {
			return fmt.Errorf("%w: end_time: %v", ErrInvalidTiming, err)
		}
	}
	return nil
}

// Validate checks clock formats, the duration sign and every constraint.
func (t *TaskTiming) Validate() error {
	if t == nil {
		return nil
	}
	if t.DurationMinutes != nil && *t.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration_minutes must be positive, got %d", ErrInvalidTiming, *t.DurationMinutes)
	}
	if err := checkClock("deadline", t.Deadline); err != nil {
		return err
	}
	if err := checkClock("preferred_time", t.PreferredTime); err != nil {
		return err
	}
	for i, c := range t.Constraints {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("constraint %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *TaskTiming) Clone() *TaskTiming {
	if t == nil {
		return nil
	}
	out := &TaskTiming{
		DurationMinutes: cloneInt(t.DurationMinutes),
		Deadline:        cloneStr(t.Deadline),
		PreferredTime:   cloneStr(t.PreferredTime),
	}
	if t.Constraints != nil {
		out.Constraints = append([]TimeBlock{}, t.Constraints...)
	}
	return out
}

func checkClock(field string, v *string) error {
	if v == nil {
		return nil
	}
	if _, err := ParseClock(*v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTiming, field, err)
	}
	return nil
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
