// Package store persists one planning context per (user, calendar day).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raknampuna/anchor/internal/planning"
)

// DefaultRetentionDays is how long a day's context is kept.
const DefaultRetentionDays = 7

// ErrUnavailable marks failures to reach the backing store.
var ErrUnavailable = errors.New("context store unavailable")

// ErrCorrupt marks a stored record that can't be decoded.
var ErrCorrupt = errors.New("context record corrupt")

// Store is the per-user, per-day context persistence.
//
// Store does no locking of its own: a Save replaces the whole record, so two
// overlapping load/save cycles for the same user lose an update. Callers
// serialize turns per user.
type Store interface {
	// Load returns the context for userID on day, or nil when none exists
	// or it has outlived the retention window. A record that can't be
	// decoded yields an error wrapping ErrCorrupt.
	Load(ctx context.Context, userID string, day time.Time) (*planning.Context, error)
	Save(ctx context.Context, userID string, day time.Time, c *planning.Context) error
	Delete(ctx context.Context, userID string, day time.Time) error
	// PurgeOlderThan deletes records whose day is strictly older than
	// today minus days and returns how many were removed.
	PurgeOlderThan(ctx context.Context, days int) (int, error)
	// Users lists the users with a record on day.
	Users(ctx context.Context, day time.Time) ([]string, error)
	Close() error
}

// Options configures a backend.
type Options struct {
	RetentionDays int
	// Location decides which calendar day "today" is.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RetentionDays <= 0 {
		o.RetentionDays = DefaultRetentionDays
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) today() time.Time {
	return planning.Day(o.Now().In(o.Location))
}

// cutoff returns the oldest day (YYYY-MM-DD) that survives a purge of days.
func (o Options) cutoff(days int) string {
	return o.today().AddDate(0, 0, -days).Format(planning.DateFormat)
}

// expired reports whether day has left the retention window.
func (o Options) expired(day string) bool {
	return day < o.cutoff(o.RetentionDays)
}

const (
	keyPrefix = "user:"
	keyDate   = ":date:"
)

// Key returns the record key for userID on day.
func Key(userID string, day time.Time) string {
	return keyPrefix + userID + keyDate + day.Format(planning.DateFormat)
}

// ParseKey splits a record key into its user and day. ok is false for keys
// that don't follow the user:{id}:date:{YYYY-MM-DD} layout.
func ParseKey(key string) (userID, day string, ok bool) {
	rest, found := strings.CutPrefix(key, keyPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, keyDate)
	if i <= 0 {
		return "", "", false
	}
	day = rest[i+len(keyDate):]
	if _, err := time.Parse(planning.DateFormat, day); err != nil {
		return "", "", false
	}
	return rest[:i], day, true
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
