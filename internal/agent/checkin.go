package agent

import (
	"fmt"
	"strings"

	"github.com/raknampuna/anchor/internal/planning"
)

// CheckInMessage builds the synthetic user message for a scheduled check-in.
// It stands in for the user's words so the turn goes through the normal
// prompt, parse and merge path.
func CheckInMessage(mode planning.Mode, c *planning.Context) string {
	var b strings.Builder
	switch mode {
	case planning.ModeMorningPlanning:
		b.WriteString("(Scheduled morning check-in.) Help me pick the one task that matters most today and find a time for it.")
	case planning.ModeEveningReflection:
		b.WriteString("(Scheduled evening check-in.) Ask me briefly how today's task went and what tomorrow's should be.")
	default:
		b.WriteString("(Scheduled check-in.) Ask whether today's plan still holds.")
	}
	if c != nil && c.CurrentTask != "" {
		fmt.Fprintf(&b, " Today's task so far: %s.", c.CurrentTask)
		if c.Timing != nil && c.Timing.PreferredTime != nil {
			fmt.Fprintf(&b, " Planned for %s.", *c.Timing.PreferredTime)
		}
	}
	return b.String()
}
