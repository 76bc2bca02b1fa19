// Package response turns raw model output into a typed turn result.
//
// The wire format is a free-text reply after ResponseMarker followed by a
// single JSON object after InfoMarker:
//
//	RESPONSE: Let's lock in 30 minutes at 3pm.
//	INFO: {"task":"Call Mom","message_type":"ad_hoc","timing":{...}}
//
// Any deviation degrades to a fixed fallback instead of an error reaching
// the user.
package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/raknampuna/anchor/internal/planning"
)

const (
	ResponseMarker = "RESPONSE:"
	InfoMarker     = "INFO:"
)

// FallbackText is sent whenever the model output cannot be used.
const FallbackText = "Let's focus on what matters today. What's the single most important task you want to get done?"

var ErrParse = errors.New("unparseable model output")

// Parsed is the structured result of one model reply.
type Parsed struct {
	Text     string
	Task     string
	Mode     planning.Mode
	Timing   *planning.TaskTiming
	Fallback bool
}

// Update converts p into a context update.
func (p Parsed) Update() planning.Update {
	return planning.Update{
		Task:   p.Task,
		Mode:   p.Mode,
		Timing: p.Timing,
		Parsed: !p.Fallback,
	}
}

// Fallback returns the safe default reply. The mode is carried over from the
// prior context so a failed turn never resets an established session.
func Fallback(prior planning.Mode) Parsed {
	return Parsed{
		Text:     FallbackText,
		Mode:     prior.OrDefault(),
		Fallback: true,
	}
}

type info struct {
	Task        *string              `json:"task"`
	MessageType *string              `json:"message_type"`
	Timing      *planning.TaskTiming `json:"timing"`
}

// Parse extracts the reply text and structured info from raw model output.
//
// Parse always returns a usable Parsed. When the output is unusable it
// returns Fallback(prior) together with an error wrapping ErrParse that
// describes why; callers log it and carry on.
func Parse(raw string, prior planning.Mode) (Parsed, error) {
	p, err := parse(raw)
	if err != nil {
		return Fallback(prior), fmt.Errorf("%w: %v", ErrParse, err)
	}
	return p, nil
}

func parse(raw string) (Parsed, error) {
	// The prompt carries a worked example using the same markers, so the
	// model's own block is the last one. The reply text is whatever precedes
	// that INFO block, so markers quoted inside the JSON don't move it.
	i := strings.LastIndex(raw, InfoMarker)
	if i < 0 {
		return Parsed{}, fmt.Errorf("missing %s marker", InfoMarker)
	}
	r := strings.LastIndex(raw[:i], ResponseMarker)
	if r < 0 {
		return Parsed{}, fmt.Errorf("missing %s marker before %s", ResponseMarker, InfoMarker)
	}

	text := strings.TrimSpace(raw[r+len(ResponseMarker) : i])
	if text == "" {
		return Parsed{}, errors.New("empty response text")
	}

	in, err := decodeInfo(raw[i+len(InfoMarker):])
	if err != nil {
		return Parsed{}, err
	}
	if in.MessageType == nil {
		return Parsed{}, errors.New("missing message_type")
	}
	mode, err := planning.ParseMode(*in.MessageType)
	if err != nil {
		return Parsed{}, err
	}
	if err := in.Timing.Validate(); err != nil {
		return Parsed{}, err
	}

	p := Parsed{Text: text, Mode: mode, Timing: in.Timing}
	if in.Task != nil {
		p.Task = strings.TrimSpace(*in.Task)
	}
	return p, nil
}

// decodeInfo reads exactly one JSON object with the known fields.
func decodeInfo(s string) (info, error) {
	var in info
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return info{}, fmt.Errorf("decoding info: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return info{}, errors.New("trailing data after info object")
	}
	return in, nil
}

// Format renders p in the wire format the model is asked to produce.
func Format(p Parsed) string {
	in := info{}
	if p.Task != "" {
		task := p.Task
		in.Task = &task
	}
	mode := string(p.Mode.OrDefault())
	in.MessageType = &mode
	in.Timing = p.Timing

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	_ = enc.Encode(in) // info holds only strings, ints and slices of them

	return ResponseMarker + " " + p.Text + "\n" + InfoMarker + " " + strings.TrimSpace(buf.String())
}
