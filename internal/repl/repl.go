// Package repl is the interactive terminal chat.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/raknampuna/anchor/internal/planning"
	"github.com/raknampuna/anchor/internal/session"
)

// Sessions is the part of session.Manager the terminal needs.
type Sessions interface {
	Handle(ctx context.Context, userID, message string) (session.Outcome, error)
	Current(ctx context.Context, userID string) (*planning.Context, error)
	SetMode(ctx context.Context, userID string, mode planning.Mode) error
	Clear(ctx context.Context, userID string) error
}

const help = `Commands:
  /help     - Show this help message
  /clear    - Clear today's context
  /context  - Show today's context
  /time     - Show current time
  /type     - Change mode (morning/replan/evening/adhoc)
  /quit     - Exit`

var modeAliases = map[string]planning.Mode{
	"morning": planning.ModeMorningPlanning,
	"replan":  planning.ModeReplanning,
	"evening": planning.ModeEveningReflection,
	"adhoc":   planning.ModeAdHoc,
}

type REPL struct {
	Sessions Sessions
	UserID   string
	In       io.Reader
	Out      io.Writer
	// Interactive prints the prompt between turns.
	Interactive bool
	Now         func() time.Time
}

// Run reads lines until EOF or /quit.
func (r *REPL) Run(ctx context.Context) error {
	if r.Now == nil {
		r.Now = time.Now
	}
	scanner := bufio.NewScanner(r.In)

	if r.Interactive {
		fmt.Fprintln(r.Out, "Type your message (or /help for commands):")
		fmt.Fprint(r.Out, "anchor> ")
	}
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			if quit := r.handle(ctx, input); quit {
				return nil
			}
		}
		if r.Interactive {
			fmt.Fprint(r.Out, "anchor> ")
		}
	}
	return scanner.Err()
}

func (r *REPL) handle(ctx context.Context, input string) (quit bool) {
	if !strings.HasPrefix(input, "/") {
		out, err := r.Sessions.Handle(ctx, r.UserID, input)
		if err != nil {
			fmt.Fprintf(r.Out, "(warning: %v)\n", err)
		}
		fmt.Fprintln(r.Out, out.Text())
		return false
	}

	cmd, arg, _ := strings.Cut(input, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.Out, help)
	case "/time":
		fmt.Fprintln(r.Out, "Current time:", r.Now().Format("Mon Jan 2 15:04 MST"))
	case "/clear":
		if err := r.Sessions.Clear(ctx, r.UserID); err != nil {
			fmt.Fprintf(r.Out, "error: %v\n", err)
			return false
		}
		fmt.Fprintln(r.Out, "Context cleared.")
	case "/context":
		r.printContext(ctx)
	case "/type":
		r.setMode(ctx, strings.TrimSpace(arg))
	default:
		fmt.Fprintf(r.Out, "Unknown command %s. Try /help.\n", cmd)
	}
	return false
}

func (r *REPL) printContext(ctx context.Context) {
	c, err := r.Sessions.Current(ctx, r.UserID)
	if err != nil {
		fmt.Fprintf(r.Out, "error: %v\n", err)
		return
	}
	if c == nil {
		fmt.Fprintln(r.Out, "No context yet today.")
		return
	}
	task := c.CurrentTask
	if task == "" {
		task = "Not set yet"
	}
	fmt.Fprintf(r.Out, "Task: %s\nMode: %s\n", task, c.Mode)
	if c.Timing != nil {
		b, _ := json.MarshalIndent(c.Timing, "", "  ") // plain struct of strings and ints
		fmt.Fprintf(r.Out, "Timing: %s\n", b)
	}
	if !c.LastInteraction.IsZero() {
		fmt.Fprintf(r.Out, "Last interaction: %s\n", humanize.RelTime(c.LastInteraction, r.Now(), "ago", "from now"))
	}
}

func (r *REPL) setMode(ctx context.Context, arg string) {
	mode, ok := modeAliases[arg]
	if !ok {
		var err error
		if mode, err = planning.ParseMode(arg); err != nil {
			fmt.Fprintln(r.Out, "Usage: /type morning|replan|evening|adhoc")
			return
		}
	}
	if err := r.Sessions.SetMode(ctx, r.UserID, mode); err != nil {
		fmt.Fprintf(r.Out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.Out, "Mode set to %s.\n", mode)
}
