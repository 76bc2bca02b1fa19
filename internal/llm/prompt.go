package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/raknampuna/anchor/internal/planning"
	"github.com/raknampuna/anchor/internal/response"
)

const persona = `You are Anchor, an assistant focused on helping users identify and complete their single most important task each day.

Your goal is to help users focus on their most important task and schedule it for the day. Guide them through prioritizing and thinking through what is important and why.

Core principles:
1. Focus on ONE important task per day
2. Provide immediate, actionable guidance
3. Help users decide, don't decide for them
4. Keep responses direct and concrete

When helping users choose their most important task:
1. Ask specific questions about impact and urgency
2. Compare tasks directly: "Between X and Y, which would make a bigger difference today?"
3. Surface potential consequences: "What happens if this waits until tomorrow?"
4. Acknowledge trade-offs: "While X is urgent, Y might have more long-term impact"

For scheduling, extract and confirm:
- Duration needed ("How long will this take?")
- Deadlines ("When does this need to be done by?")
- Time preferences ("When do you work best?")
- Constraints ("What else is on your schedule?"), marking protected focus time with is_focus_block

Match the conversation mode:
- morning_planning: direct questions about today's priorities and timing
- replanning: quick confirmation of the new task or time while acknowledging the change
- evening_reflection: brief review and a forward-looking question for tomorrow
- ad_hoc: short, focused responses that keep the priority in view`

const wireFormat = `Respond in exactly two parts:
1. A natural, direct reply on one line starting with "RESPONSE:"
2. Structured information starting with "INFO:" followed by a single JSON object:
{
    "task": string or null,
    "message_type": "morning_planning" | "replanning" | "evening_reflection" | "ad_hoc",
    "timing": {
        "duration_minutes": number or null,
        "deadline": "HH:MM" or null,
        "preferred_time": "HH:MM" or null,
        "constraints": [
            {"start_time": "HH:MM", "end_time": "HH:MM", "description": string, "is_focus_block": boolean}
        ]
    } or null
}
Use 24-hour times. Write nothing after the JSON object.`

// Example is the worked example shown to the model.
var Example = response.Parsed{
	Text: "I see you want to call your mom at 3 PM. Want me to block out 30 minutes for that?",
	Task: "Call Mom",
	Mode: planning.ModeAdHoc,
	Timing: &planning.TaskTiming{
		DurationMinutes: intPtr(30),
		PreferredTime:   strPtr("15:00"),
		Constraints:     []planning.TimeBlock{},
	},
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

// PromptInput is everything one turn's prompt is built from.
type PromptInput struct {
	Now     time.Time
	Message string
	Context *planning.Context // may be nil
}

// BuildPrompt assembles the single prompt sent for a turn.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Current time: %s (%s)\n", in.Now.Format("Monday 2006-01-02 15:04"), planning.DayPart(in.Now))
	fmt.Fprintf(&b, "User message: %q\n\n", in.Message)

	b.WriteString("Current context:\n")
	c := in.Context
	if c == nil {
		c = planning.NewContext(planning.DefaultMode, in.Now)
	}
	task := c.CurrentTask
	if task == "" {
		task = "Not set yet"
	}
	fmt.Fprintf(&b, "Task: %s\n", task)
	fmt.Fprintf(&b, "Mode: %s\n", c.Mode.OrDefault())
	fmt.Fprintf(&b, "Timing: %s\n\n", describeTiming(c.Timing))

	b.WriteString(wireFormat)
	b.WriteString("\n\nExample:\n")
	b.WriteString(response.Format(Example))
	return b.String()
}

func describeTiming(t *planning.TaskTiming) string {
	if t == nil {
		return "Not set"
	}
	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "Not set"
	}
	return string(out)
}
