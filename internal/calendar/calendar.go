// Package calendar builds shareable "add to calendar" links. Nothing is
// written to any calendar.
package calendar

import (
	"errors"
	"net/url"
	"time"

	"github.com/raknampuna/anchor/internal/planning"
)

const (
	DefaultBaseURL = "https://calendar.google.com/calendar/render"
	stampFormat    = "20060102T150405Z"
)

var ErrInvalidRange = errors.New("event end must be after its start")

type Event struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
	// Timezone is an IANA zone name shown to the calendar as the event's
	// zone. Times are sent in UTC either way.
	Timezone string
}

type Builder struct {
	BaseURL string
}

// Build returns a Google Calendar event template link for e.
func (b Builder) Build(e Event) (string, error) {
	if !e.End.After(e.Start) {
		return "", ErrInvalidRange
	}
	base := b.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", e.Title)
	q.Set("details", e.Description)
	q.Set("dates", e.Start.UTC().Format(stampFormat)+"/"+e.End.UTC().Format(stampFormat))
	if e.Location != "" {
		q.Set("location", e.Location)
	}
	if e.Timezone != "" {
		q.Set("ctz", e.Timezone)
	}
	return base + "?" + q.Encode(), nil
}

// BlockEvent turns a same-day block into an event on day, read in day's
// location.
func BlockEvent(title string, block planning.TimeBlock, day time.Time) (Event, error) {
	start, err := planning.ParseClock(block.StartTime)
	if err != nil {
		return Event{}, err
	}
	end, err := planning.ParseClock(block.EndTime)
	if err != nil {
		return Event{}, err
	}
	e := Event{
		Title:       title,
		Description: "Today's most important task, scheduled with Anchor.",
		Start:       start.On(day),
		End:         end.On(day),
	}
	if name := day.Location().String(); name != "UTC" && name != "Local" {
		e.Timezone = name
	}
	return e, nil
}
