package subscriptions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Tinuki562/junior.guru/internal/components/chrono"
	"github.com/Tinuki562/junior.guru/internal/db"
)

type ActivityType string

const (
	TrialStart   ActivityType = "trial_start"
	TrialEnd     ActivityType = "trial_end"
	Order        ActivityType = "order"
	Deactivation ActivityType = "deactivation"
)

var ActivityTypes = []ActivityType{TrialStart, TrialEnd, Order, Deactivation}

type Interval string

const (
	Month Interval = "month"
	Year  Interval = "year"
)

var Intervals = []Interval{Month, Year}

type SubscriptionType string

const (
	Free       SubscriptionType = "free"
	Finaid     SubscriptionType = "finaid"
	Individual SubscriptionType = "individual"
	Trial      SubscriptionType = "trial"
	Partner    SubscriptionType = "partner"
	Student    SubscriptionType = "student"
)

var SubscriptionTypes = []SubscriptionType{Free, Finaid, Individual, Trial, Partner, Student}

func oneOf[T comparable](value T, allowed []T) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// Activity is a single event in the life of a member's subscription.
//
// Empty OrderCoupon, SubscriptionInterval and SubscriptionType mean the value
// is not known, they never overwrite a known value of an existing activity.
type Activity struct {
	ID                     int64
	Type                   ActivityType
	AccountID              string
	AccountHasFeminineName bool
	// HappenedOn is the calendar day in Europe/Prague, when zero it is
	// derived from HappenedAt.
	HappenedOn           time.Time
	HappenedAt           time.Time
	OrderCoupon          string
	SubscriptionInterval Interval
	SubscriptionType     SubscriptionType
}

func (a Activity) validate() error {
	if !oneOf(a.Type, ActivityTypes) {
		return fmt.Errorf("unknown activity type %q", a.Type)
	}
	if a.AccountID == "" {
		return fmt.Errorf("activity has no account id")
	}
	if a.HappenedAt.IsZero() {
		return fmt.Errorf("activity of %s has no time", a.AccountID)
	}
	if a.SubscriptionInterval != "" && !oneOf(a.SubscriptionInterval, Intervals) {
		return fmt.Errorf("unknown subscription interval %q", a.SubscriptionInterval)
	}
	if a.SubscriptionType != "" && !oneOf(a.SubscriptionType, SubscriptionTypes) {
		return fmt.Errorf("unknown subscription type %q", a.SubscriptionType)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// sourcedAt is the time a value was recorded at, absent along with the value.
func sourcedAt(value sql.NullString, at int64) sql.NullInt64 {
	return sql.NullInt64{Int64: at, Valid: value.Valid}
}

func formatDay(t time.Time) string {
	return chrono.Day(t).Format(db.DateLayout)
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation(db.DateLayout, s, chrono.Prague())
}

func (a Activity) params() db.AddSubscriptionActivityParams {
	happenedOn := a.HappenedOn
	if happenedOn.IsZero() {
		happenedOn = a.HappenedAt
	}
	happenedAt := a.HappenedAt.Unix()
	coupon := nullString(a.OrderCoupon)
	interval := nullString(string(a.SubscriptionInterval))
	subscriptionType := nullString(string(a.SubscriptionType))
	return db.AddSubscriptionActivityParams{
		Type:                   string(a.Type),
		AccountID:              a.AccountID,
		AccountHasFeminineName: a.AccountHasFeminineName,
		HappenedOn:             formatDay(happenedOn),
		HappenedAt:             happenedAt,
		OrderCoupon:            coupon,
		SubscriptionInterval:   interval,
		SubscriptionType:       subscriptionType,
		OrderCouponAt:          sourcedAt(coupon, happenedAt),
		SubscriptionIntervalAt: sourcedAt(interval, happenedAt),
		SubscriptionTypeAt:     sourcedAt(subscriptionType, happenedAt),
	}
}

func activityFromRow(row db.SubscriptionActivity) (Activity, error) {
	happenedOn, err := parseDay(row.HappenedOn)
	if err != nil {
		return Activity{}, DataIntegrityError{
			AccountIDs: []string{row.AccountID},
			Message:    fmt.Sprintf("malformed happened_on %q", row.HappenedOn),
		}
	}
	return Activity{
		ID:                     row.ID,
		Type:                   ActivityType(row.Type),
		AccountID:              row.AccountID,
		AccountHasFeminineName: row.AccountHasFeminineName,
		HappenedOn:             happenedOn,
		HappenedAt:             time.Unix(row.HappenedAt, 0).In(chrono.Prague()),
		OrderCoupon:            row.OrderCoupon.String,
		SubscriptionInterval:   Interval(row.SubscriptionInterval.String),
		SubscriptionType:       SubscriptionType(row.SubscriptionType.String),
	}, nil
}

func activitiesFromRows(rows []db.SubscriptionActivity) ([]Activity, error) {
	out := make([]Activity, len(rows))
	for i, row := range rows {
		a, err := activityFromRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// Cancellation is a member's answer to why they cancelled.
type Cancellation struct {
	Name  string
	Email string
	// ExpiresOn is zero when the export did not say.
	ExpiresOn time.Time
	Reason    string
	Feedback  string
}
