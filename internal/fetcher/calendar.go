package fetcher

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Calendar is an EventSource backed by a static list of events.
type Calendar struct {
	byAsset map[string][]Event
	now     func() time.Time
}

// NewCalendar indexes events by upper-cased asset.
func NewCalendar(events []Event) *Calendar {
	c := &Calendar{byAsset: make(map[string][]Event), now: time.Now}
	for _, ev := range events {
		ev.Asset = strings.ToUpper(strings.TrimSpace(ev.Asset))
		if ev.Type == "" {
			ev.Type = "launch"
		}
		if ev.Source == "" {
			ev.Source = "calendar"
		}
		ev.Date = ev.Date.UTC()
		c.byAsset[ev.Asset] = append(c.byAsset[ev.Asset], ev)
	}
	for _, list := range c.byAsset {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
	}
	return c
}

// UpcomingEvents returns the ticker's events dated today (UTC) or later.
func (c *Calendar) UpcomingEvents(_ context.Context, ticker string) ([]Event, error) {
	now := c.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var out []Event
	for _, ev := range c.byAsset[strings.ToUpper(strings.TrimSpace(ticker))] {
		if !ev.Date.Before(today) {
			out = append(out, ev)
		}
	}
	return out, nil
}

var _ EventSource = (*Calendar)(nil)
