package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent alert log entries, or upcoming events with opts.Events.
func (a *App) Show(ctx context.Context, opts ShowOptions, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer writer.Flush()

	if opts.Events {
		events, err := store.ListUpcomingEvents(ctx, opts.Days)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "no upcoming events")
			return nil
		}
		fmt.Fprintln(writer, "Date (UTC)\tAsset\tType\tNotified\tRisk\tScore\tConfidence%")
		for _, ev := range events {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
				ev.EventDate.UTC().Format("2006-01-02"),
				ev.Asset,
				ev.EventType,
				ev.Notified,
				ev.RiskLevel,
				formatNullDecimal(ev.RiskScore, 2),
				formatNullDecimal(ev.Confidence, 1),
			)
		}
		return nil
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return nil
	}
	fmt.Fprintln(writer, "Time (UTC)\tUser\tTicker\tType\tMessage")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.UserID,
			alert.Ticker,
			alert.AlertType,
			firstLine(alert.Message),
		)
	}
	return nil
}

func formatNullDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(places)
}

func firstLine(v string) string {
	line, _, _ := strings.Cut(v, "\n")
	return strings.ReplaceAll(line, "\r", " ")
}
