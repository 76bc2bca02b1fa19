package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/raknampuna/anchor/internal/planning"
)

// Record field names. Each value is JSON text on its own, so any field can
// be read without knowing the others.
const (
	FieldCurrentTask     = "current_task"
	FieldMode            = "mode"
	FieldTiming          = "timing"
	FieldLastInteraction = "last_interaction"

	// legacyFieldMode is what older records call the mode.
	legacyFieldMode = "message_type"
)

// EncodeFields flattens c into independently encoded string fields.
func EncodeFields(c *planning.Context) (map[string]string, error) {
	timing, err := encodeTiming(c.Timing)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		FieldCurrentTask:     encodeTask(c.CurrentTask),
		FieldMode:            encodeMode(c.Mode),
		FieldTiming:          timing,
		FieldLastInteraction: encodeTime(c.LastInteraction),
	}, nil
}

// DecodeFields rebuilds a context. Missing fields take their zero value and
// the mode defaults to ad_hoc.
func DecodeFields(f map[string]string) (*planning.Context, error) {
	c := &planning.Context{Mode: planning.DefaultMode}
	var err error
	if v, ok := f[FieldCurrentTask]; ok {
		if c.CurrentTask, err = decodeTask(v); err != nil {
			return nil, err
		}
	}
	v, ok := f[FieldMode]
	if !ok {
		v, ok = f[legacyFieldMode]
	}
	if ok {
		if c.Mode, err = decodeMode(v); err != nil {
			return nil, err
		}
	}
	if v, ok := f[FieldTiming]; ok {
		if c.Timing, err = decodeTiming(v); err != nil {
			return nil, err
		}
	}
	if v, ok := f[FieldLastInteraction]; ok {
		if c.LastInteraction, err = decodeTime(v); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func encodeTask(task string) string {
	if task == "" {
		return "null"
	}
	b, _ := json.Marshal(task) // strings always marshal
	return string(b)
}

func decodeTask(v string) (string, error) {
	var task *string
	if err := json.Unmarshal([]byte(v), &task); err != nil {
		return "", fmt.Errorf("decoding %s: %w", FieldCurrentTask, err)
	}
	if task == nil {
		return "", nil
	}
	return *task, nil
}

func encodeMode(m planning.Mode) string {
	b, _ := json.Marshal(string(m.OrDefault()))
	return string(b)
}

func decodeMode(v string) (planning.Mode, error) {
	var s *string
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return "", fmt.Errorf("decoding %s: %w", FieldMode, err)
	}
	if s == nil {
		return planning.DefaultMode, nil
	}
	m, err := planning.ParseMode(*s)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", FieldMode, err)
	}
	return m, nil
}

func encodeTiming(t *planning.TaskTiming) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", FieldTiming, err)
	}
	return string(b), nil
}

func decodeTiming(v string) (*planning.TaskTiming, error) {
	var t *planning.TaskTiming
	if err := json.Unmarshal([]byte(v), &t); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", FieldTiming, err)
	}
	return t, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return "null"
	}
	b, _ := json.Marshal(t.Format(time.RFC3339Nano))
	return string(b)
}

func decodeTime(v string) (time.Time, error) {
	var s *string
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return time.Time{}, fmt.Errorf("decoding %s: %w", FieldLastInteraction, err)
	}
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		// Older records carry naive ISO timestamps.
		if t, err = time.Parse("2006-01-02T15:04:05.999999999", *s); err != nil {
			return time.Time{}, fmt.Errorf("decoding %s: %w", FieldLastInteraction, err)
		}
	}
	return t, nil
}
