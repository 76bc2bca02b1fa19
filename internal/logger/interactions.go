package logger

import (
	"io"
	"os"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/raknampuna/anchor/internal/observe"
)

const maxMessageLen = 500

// Interactions writes one JSON line per turn event. Each user gets a session
// id for the life of the process and each event its own trace id.
type Interactions struct {
	out *log.Logger
	app *log.Logger // may be nil

	mu       sync.Mutex
	sessions map[string]string
}

var _ observe.Observer = (*Interactions)(nil)

// NewInteractions logs events to w. Errors and conflicts are also mirrored
// to app when it is non-nil.
func NewInteractions(w io.Writer, app *log.Logger) *Interactions {
	return &Interactions{
		out: log.NewWithOptions(w, log.Options{
			Formatter:       log.JSONFormatter,
			ReportTimestamp: true,
			Level:           log.DebugLevel,
		}),
		app:      app,
		sessions: make(map[string]string),
	}
}

// OpenInteractions logs events to a rotating interactions.log in dir.
func OpenInteractions(dir string, app *log.Logger) (*Interactions, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return NewInteractions(rotating(dir, "interactions.log"), app), nil
}

func (l *Interactions) session(userID string) string {
	if userID == "" {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.sessions[userID]
	if !ok {
		id = uuid.NewString()
		l.sessions[userID] = id
	}
	return id
}

func (l *Interactions) Observe(e observe.Event) {
	status := "success"
	if e.Type == observe.EventError {
		status = "error"
	}
	kv := []any{
		"event_type", string(e.Type),
		"user_id", e.UserID,
		"session_id", l.session(e.UserID),
		"trace_id", uuid.NewString(),
		"component", e.Component,
		"status", status,
	}
	if e.Kind != "" {
		kv = append(kv, "error_type", e.Kind)
	}
	if e.Err != nil {
		kv = append(kv, "error", e.Err.Error())
	}
	if e.Duration > 0 {
		kv = append(kv, "duration_ms", e.Duration.Milliseconds())
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, e.Fields[k])
	}

	msg := truncate(e.Message, maxMessageLen)
	switch e.Type {
	case observe.EventError:
		l.out.Error(msg, kv...)
		if l.app != nil {
			l.app.Error(e.Component+": "+e.Kind, "user", e.UserID, "err", e.Err)
		}
	case observe.EventConflict:
		l.out.Warn(msg, kv...)
		if l.app != nil {
			l.app.Warn(e.Component+": scheduling conflict", "user", e.UserID, "detail", e.Message)
		}
	default:
		l.out.Info(msg, kv...)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
