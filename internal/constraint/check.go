// Package constraint decides whether a proposed time block collides with the
// user's existing commitments.
//
// All comparisons are same-day wall-clock times. There is no date component,
// so nothing here reasons about midnight: a constraint that ends "before" it
// starts is read as running to the end of the day, and a candidate that does
// so is never approved.
package constraint

import (
	"github.com/raknampuna/anchor/internal/planning"
)

// DefaultDurationMinutes is used when the task has a preferred time but no
// stated duration.
const DefaultDurationMinutes = 30

type span struct {
	start, end planning.Clock
}

// Check reports whether candidate is free of blocking conflicts.
// Focus blocks are reservations for the task itself and never block.
func Check(candidate planning.TimeBlock, constraints []planning.TimeBlock) bool {
	c, ok := candidateSpan(candidate)
	if !ok {
		return false
	}
	for _, b := range constraints {
		if blocks(c, b) {
			return false
		}
	}
	return true
}

// Conflicts returns the constraints that block candidate. An unplaceable
// candidate conflicts with every non-focus constraint.
func Conflicts(candidate planning.TimeBlock, constraints []planning.TimeBlock) []planning.TimeBlock {
	c, ok := candidateSpan(candidate)
	var out []planning.TimeBlock
	for _, b := range constraints {
		if b.IsFocusBlock {
			continue
		}
		if !ok || blocks(c, b) {
			out = append(out, b)
		}
	}
	return out
}

// Candidate derives the block to schedule from the task timing: it starts at
// the preferred time and lasts duration_minutes, or defaultDuration when no
// duration is stated. ok is false when there is no preferred time or the
// block would run past midnight.
func Candidate(t *planning.TaskTiming, defaultDuration int) (planning.TimeBlock, bool) {
	if t == nil || t.PreferredTime == nil {
		return planning.TimeBlock{}, false
	}
	start, err := planning.ParseClock(*t.PreferredTime)
	if err != nil {
		return planning.TimeBlock{}, false
	}
	minutes := defaultDuration
	if t.DurationMinutes != nil {
		minutes = *t.DurationMinutes
	}
	if minutes <= 0 {
		return planning.TimeBlock{}, false
	}
	end, ok := start.Add(minutes)
	if !ok {
		return planning.TimeBlock{}, false
	}
	return planning.TimeBlock{StartTime: start.String(), EndTime: end.String()}, true
}

func candidateSpan(b planning.TimeBlock) (span, bool) {
	start, err := planning.ParseClock(b.StartTime)
	if err != nil {
		return span{}, false
	}
	end := start
	if b.EndTime != "" {
		if end, err = planning.ParseClock(b.EndTime); err != nil {
			return span{}, false
		}
	}
	if end < start {
		return span{}, false
	}
	return span{start, end}, true
}

func blocks(c span, b planning.TimeBlock) bool {
	if b.IsFocusBlock {
		return false
	}
	start, err := planning.ParseClock(b.StartTime)
	if err != nil {
		// Can't tell where it is, so don't schedule over it.
		return true
	}
	end := start
	if b.EndTime != "" {
		if end, err = planning.ParseClock(b.EndTime); err != nil {
			return true
		}
		if end < start {
			end = planning.EndOfDay
		}
	}
	// Either endpoint of the candidate inside [start, end], or the candidate
	// swallowing the constraint whole. Bounds are inclusive.
	return c.start <= end && c.end >= start
}
