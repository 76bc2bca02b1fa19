package planning

import (
	"errors"
	"fmt"
)

// Mode classifies where in the daily planning cycle a turn falls.
type Mode string

const (
	ModeMorningPlanning   Mode = "morning_planning"
	ModeReplanning        Mode = "replanning"
	ModeEveningReflection Mode = "evening_reflection"
	ModeAdHoc             Mode = "ad_hoc"
)

// DefaultMode is used when no prior context exists.
const DefaultMode = ModeAdHoc

var ErrUnknownMode = errors.New("unknown conversation mode")

// Modes lists every valid mode in cycle order.
var Modes = []Mode{ModeMorningPlanning, ModeReplanning, ModeEveningReflection, ModeAdHoc}

func (m Mode) Valid() bool {
	switch m {
	case ModeMorningPlanning, ModeReplanning, ModeEveningReflection, ModeAdHoc:
		return true
	}
	return false
}

// ParseMode maps a wire value to a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// OrDefault returns m, or DefaultMode when m is empty or invalid.
func (m Mode) OrDefault() Mode {
	if m.Valid() {
		return m
	}
	return DefaultMode
}

// NextMode applies the mode override policy after a turn.
//
// The model is the authority for the intra-turn mode, so a successfully
// parsed suggestion is accepted as-is. A failed parse keeps the prior mode so
// an established planning session is never reset to ad_hoc.
func NextMode(prior, suggested Mode, parsed bool) Mode {
	if parsed && suggested.Valid() {
		return suggested
	}
	return prior.OrDefault()
}
