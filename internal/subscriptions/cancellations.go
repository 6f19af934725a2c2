package subscriptions

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Tinuki562/junior.guru/internal/components/chrono"
)

// CancellationsExport describes the Memberful CSV export with the feedback
// members leave when cancelling.
var CancellationsExport = url.Values{"type": {"CancellationFeedbackCsvExport"}}

// CancellationColumns names the columns of the cancellations export.
type CancellationColumns struct {
	Name      string
	Email     string
	ExpiresOn string
	Reason    string
	Feedback  string
}

var DefaultCancellationColumns = CancellationColumns{
	Name:      "Member name",
	Email:     "Member email",
	ExpiresOn: "Subscription expires",
	Reason:    "Reason",
	Feedback:  "Feedback",
}

// RowsSource is a stream of CSV records, usually *memberful.Rows.
type RowsSource interface {
	Next() bool
	Row() map[string]string
	Err() error
}

var expiresLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	time.RFC3339,
}

func parseExpiresOn(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range expiresLayouts {
		t, err := time.ParseInLocation(layout, value, chrono.Prague())
		if err == nil {
			return chrono.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date format %q", value)
}

// ImportCancellations replaces the cancellations in the ledger with the
// records of an export. It returns how many were imported.
func ImportCancellations(ctx context.Context, rows RowsSource, ledger *Ledger, columns CancellationColumns) (int, error) {
	var cancellations []Cancellation
	line := 1
	for rows.Next() {
		line++
		row := rows.Row()

		name, hasName := row[columns.Name]
		email, hasEmail := row[columns.Email]
		if !hasName || !hasEmail {
			err := fmt.Errorf("cancellations line %d: missing %q or %q", line, columns.Name, columns.Email)
			ledger.tel.ReportBroken(report_ledger_cancellations, err)
			return 0, err
		}
		expiresOn, err := parseExpiresOn(row[columns.ExpiresOn])
		if err != nil {
			ledger.tel.ReportWarning(report_ledger_cancellations, fmt.Errorf("line %d: %w", line, err))
		}

		cancellations = append(cancellations, Cancellation{
			Name:      strings.TrimSpace(name),
			Email:     strings.ToLower(strings.TrimSpace(email)),
			ExpiresOn: expiresOn,
			Reason:    strings.TrimSpace(row[columns.Reason]),
			Feedback:  strings.TrimSpace(row[columns.Feedback]),
		})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read cancellations: %w", err)
	}

	err := ledger.ReplaceCancellations(ctx, cancellations)
	if err != nil {
		return 0, err
	}
	ledger.tel.ReportCount(report_ledger_cancellations, int64(len(cancellations)))
	return len(cancellations), nil
}
