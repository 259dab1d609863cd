// Package calendar builds Google Calendar "add event" links.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	BaseURL         = "https://calendar.google.com/calendar/render"
	DefaultDuration = time.Hour
	DefaultDetails  = "Dinner reservation with friends"

	stampLayout = "20060102T150405"
)

// Event times are wall-clock times. Without TimeZone the link is floating and
// Google shows it in the viewer's zone; with TimeZone it is pinned via ctz.
type Event struct {
	Title    string
	Location string
	Details  string
	Start    time.Time
	Duration time.Duration
	TimeZone string
}

func (e Event) End() time.Time {
	d := e.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	return e.Start.Add(d)
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func Link(e Event) string {
	var sb strings.Builder
	sb.WriteString(BaseURL)
	sb.WriteString("?action=TEMPLATE")
	sb.WriteString("&text=")
	sb.WriteString(escape(e.Title))
	sb.WriteString("&dates=")
	sb.WriteString(e.Start.Format(stampLayout))
	sb.WriteString("/")
	sb.WriteString(e.End().Format(stampLayout))
	sb.WriteString("&details=")
	sb.WriteString(escape(e.Details))
	sb.WriteString("&location=")
	sb.WriteString(escape(e.Location))
	if e.TimeZone != "" {
		sb.WriteString("&ctz=")
		sb.WriteString(escape(e.TimeZone))
	}
	return sb.String()
}

// ParseLink reverses Link. Times come back in the ctz zone when it names a
// known location and in UTC otherwise.
func ParseLink(link string) (Event, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Event{}, fmt.Errorf("parse calendar link: %w", err)
	}
	q := u.Query()
	if q.Get("action") != "TEMPLATE" {
		return Event{}, fmt.Errorf("not a calendar template link")
	}
	start, end, ok := strings.Cut(q.Get("dates"), "/")
	if !ok {
		return Event{}, fmt.Errorf("malformed dates %q", q.Get("dates"))
	}
	e := Event{
		Title:    q.Get("text"),
		Location: q.Get("location"),
		Details:  q.Get("details"),
		TimeZone: q.Get("ctz"),
	}
	loc := time.UTC
	if e.TimeZone != "" {
		if l, err := time.LoadLocation(e.TimeZone); err == nil {
			loc = l
		}
	}
	startAt, err := time.ParseInLocation(stampLayout, strings.TrimSuffix(start, "Z"), loc)
	if err != nil {
		return Event{}, fmt.Errorf("parse start: %w", err)
	}
	endAt, err := time.ParseInLocation(stampLayout, strings.TrimSuffix(end, "Z"), loc)
	if err != nil {
		return Event{}, fmt.Errorf("parse end: %w", err)
	}
	if endAt.Before(startAt) {
		return Event{}, fmt.Errorf("event ends before it starts")
	}
	e.Start = startAt
	e.Duration = endAt.Sub(startAt)
	return e, nil
}

// Reservation builds the event for a booking at venue on date (YYYY-MM-DD) and
// clock (HH:MM).
func Reservation(venue, address, date, clock, timeZone string) (Event, error) {
	loc := time.UTC
	if timeZone != "" {
		l, err := time.LoadLocation(timeZone)
		if err != nil {
			return Event{}, fmt.Errorf("load time zone %q: %w", timeZone, err)
		}
		loc = l
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return Event{}, fmt.Errorf("parse reservation %s %s: %w", date, clock, err)
	}
	return Event{
		Title:    venue,
		Location: address,
		Details:  DefaultDetails,
		Start:    start,
		Duration: DefaultDuration,
		TimeZone: timeZone,
	}, nil
}
