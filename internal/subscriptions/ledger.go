package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tinuki562/junior.guru/internal/components/assert"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"
	"github.com/Tinuki562/junior.guru/internal/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_ledger_add           = "ledger.add"
	report_ledger_mark_trials   = "ledger.mark-trials"
	report_ledger_cancellations = "ledger.cancellations"
	report_ledger_query         = "ledger.query"
)

var tracer = otel.Tracer("juniorguru/subscriptions")

// Ledger is the subscription activity ledger, one row per type, account and
// day, which the membership statistics are computed from.
type Ledger struct {
	qry *db.Queries
	// makeTx is nil when the ledger already runs on a transaction
	makeTx db.MakeTx
	tel    telemetry.API
}

func NewLedger(database *sql.DB, tel telemetry.API) *Ledger {
	assert.NotNil(database)
	assert.NotNil(tel)
	return &Ledger{
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		tel:    telemetry.NewScopedAPI("subscriptions", tel),
	}
}

// WithTx returns a ledger running on a transaction owned by the caller.
func (l *Ledger) WithTx(tx *sql.Tx) *Ledger {
	return &Ledger{qry: l.qry.WithTx(tx), tel: l.tel}
}

// Transaction runs fn on a ledger bound to a new transaction, which is
// committed only if fn succeeds. On a ledger which already runs on a
// transaction fn runs on that one.
func (l *Ledger) Transaction(ctx context.Context, fn func(tx *Ledger) error) error {
	if l.makeTx == nil {
		return fn(l)
	}

	txqry, discard, commit, err := l.makeTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer discard()

	err = fn(&Ledger{qry: txqry, tel: l.tel})
	if err != nil {
		return err
	}
	err = commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Add inserts the activity or, when an activity of the same type, account
// and day exists, merges it in. Each known value is kept from the latest
// record which carried it, so stale records never overwrite newer ones and
// the result does not depend on the order records arrive in. Records from the
// same instant are settled by the greater value. happened_at only ever moves
// forward.
func (l *Ledger) Add(ctx context.Context, activity Activity) error {
	err := activity.validate()
	if err != nil {
		l.tel.ReportBroken(report_ledger_add, err)
		return fmt.Errorf("add activity: %w", err)
	}
	err = l.qry.AddSubscriptionActivity(ctx, activity.params())
	if err != nil {
		l.tel.ReportBroken(report_ledger_add, err, activity.AccountID)
		return fmt.Errorf("add activity: %w", err)
	}
	return nil
}

// MarkTrials reconciles trials with what they turned into. The order placed
// on the day a trial ended decides the subscription type of everything the
// account did up to that day, and trials which turned into individual
// subscriptions are marked as trials.
func (l *Ledger) MarkTrials(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ledger:mark-trials")
	defer span.End()

	err := l.Transaction(ctx, func(tx *Ledger) error {
		copied, err := tx.qry.CopyTrialEndOrderTypes(ctx)
		if err != nil {
			return fmt.Errorf("copy order types: %w", err)
		}
		marked, err := tx.qry.MarkIndividualTrials(ctx)
		if err != nil {
			return fmt.Errorf("mark individual trials: %w", err)
		}
		span.SetAttributes(
			attribute.Int64("custom.copied", copied),
			attribute.Int64("custom.marked", marked),
		)
		l.tel.ReportDebug("marked trials", copied, marked)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.tel.ReportBroken(report_ledger_mark_trials, err)
		return err
	}
	return nil
}

// Get returns the activity of the given type, account and day.
func (l *Ledger) Get(ctx context.Context, activityType ActivityType, accountId string, on time.Time) (Activity, bool, error) {
	row, err := l.qry.GetSubscriptionActivity(ctx, db.GetSubscriptionActivityParams{
		Type:       string(activityType),
		AccountID:  accountId,
		HappenedOn: formatDay(on),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Activity{}, false, nil
	}
	if err != nil {
		l.tel.ReportBroken(report_ledger_query, err)
		return Activity{}, false, err
	}
	activity, err := activityFromRow(row)
	if err != nil {
		return Activity{}, false, err
	}
	return activity, true, nil
}

// Activities returns every activity in the order they were first added.
func (l *Ledger) Activities(ctx context.Context) ([]Activity, error) {
	rows, err := l.qry.ListSubscriptionActivities(ctx)
	if err != nil {
		l.tel.ReportBroken(report_ledger_query, err)
		return nil, err
	}
	return activitiesFromRows(rows)
}

// ReplaceCancellations swaps every stored cancellation for the given ones.
func (l *Ledger) ReplaceCancellations(ctx context.Context, cancellations []Cancellation) error {
	err := l.Transaction(ctx, func(tx *Ledger) error {
		err := tx.qry.DeleteSubscriptionCancellations(ctx)
		if err != nil {
			return fmt.Errorf("delete cancellations: %w", err)
		}
		for _, c := range cancellations {
			expiresOn := ""
			if !c.ExpiresOn.IsZero() {
				expiresOn = formatDay(c.ExpiresOn)
			}
			err = tx.qry.CreateSubscriptionCancellation(ctx, db.CreateSubscriptionCancellationParams{
				Name:      c.Name,
				Email:     c.Email,
				ExpiresOn: nullString(expiresOn),
				Reason:    c.Reason,
				Feedback:  nullString(c.Feedback),
			})
			if err != nil {
				return fmt.Errorf("create cancellation of %s: %w", c.Email, err)
			}
		}
		return nil
	})
	if err != nil {
		l.tel.ReportBroken(report_ledger_cancellations, err)
		return err
	}
	return nil
}

func (l *Ledger) Cancellations(ctx context.Context) ([]Cancellation, error) {
	rows, err := l.qry.ListSubscriptionCancellations(ctx)
	if err != nil {
		l.tel.ReportBroken(report_ledger_query, err)
		return nil, err
	}
	out := make([]Cancellation, len(rows))
	for i, row := range rows {
		c := Cancellation{
			Name:     row.Name,
			Email:    row.Email,
			Reason:   row.Reason,
			Feedback: row.Feedback.String,
		}
		if row.ExpiresOn.Valid {
			c.ExpiresOn, err = parseDay(row.ExpiresOn.String)
			if err != nil {
				return nil, DataIntegrityError{Message: fmt.Sprintf("malformed expires_on %q", row.ExpiresOn.String)}
			}
		}
		out[i] = c
	}
	return out, nil
}
