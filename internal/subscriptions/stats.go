package subscriptions

import (
	"context"
	"math"
	"time"

	"github.com/Tinuki562/junior.guru/internal/components/chrono"
	"github.com/Tinuki562/junior.guru/internal/db"
)

// LegacyPlansDeletedOn is the day the legacy Memberful plans were deleted,
// subscription types and intervals are not known for anything before it.
var LegacyPlansDeletedOn = chrono.Date(2023, time.February, 24)

// MonthRange returns the first and the last day of the month of date.
func MonthRange(date time.Time) (time.Time, time.Time) {
	day := chrono.Day(date)
	first := chrono.Date(day.Year(), day.Month(), 1)
	last := chrono.Date(day.Year(), day.Month()+1, 0)
	return first, last
}

// IsMissingSubscriptionsData reports whether statistics which depend on
// subscription types cannot be computed for date. That is any day before
// LegacyPlansDeletedOn and any day of the month it happened in.
func IsMissingSubscriptionsData(date time.Time) bool {
	day := chrono.Day(date)
	if day.Before(LegacyPlansDeletedOn) {
		return true
	}
	first, _ := MonthRange(day)
	legacyFirst, _ := MonthRange(LegacyPlansDeletedOn)
	return first.Equal(legacyFirst)
}

// Listing returns the current state of every account as of date, which is
// its latest activity that happened on date or before. Two activities
// happening at the same time are decided by which was added later.
func (l *Ledger) Listing(ctx context.Context, date time.Time) ([]Activity, error) {
	rows, err := l.qry.ListLatestSubscriptionActivities(ctx, formatDay(date))
	if err != nil {
		l.tel.ReportBroken(report_ledger_query, err)
		return nil, err
	}
	return activitiesFromRows(rows)
}

// ActiveListing is Listing without the accounts which were deactivated.
func (l *Ledger) ActiveListing(ctx context.Context, date time.Time) ([]Activity, error) {
	listing, err := l.Listing(ctx, date)
	if err != nil {
		return nil, err
	}
	var active []Activity
	for _, a := range listing {
		if a.Type != Deactivation {
			active = append(active, a)
		}
	}
	return active, nil
}

func (l *Ledger) countActive(ctx context.Context, date time.Time, include func(Activity) bool) (int, error) {
	active, err := l.ActiveListing(ctx, date)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, a := range active {
		if include(a) {
			count++
		}
	}
	return count, nil
}

func (l *Ledger) ActiveCount(ctx context.Context, date time.Time) (int, error) {
	return l.countActive(ctx, date, func(Activity) bool { return true })
}

// ActiveIndividualsCount counts active members paying for themselves, ok is
// false when the data is missing for date.
func (l *Ledger) ActiveIndividualsCount(ctx context.Context, date time.Time) (count int, ok bool, err error) {
	if IsMissingSubscriptionsData(date) {
		return 0, false, nil
	}
	count, err = l.countActive(ctx, date, func(a Activity) bool {
		return a.SubscriptionType == Individual
	})
	return count, err == nil, err
}

func (l *Ledger) ActiveIndividualsYearlyCount(ctx context.Context, date time.Time) (count int, ok bool, err error) {
	if IsMissingSubscriptionsData(date) {
		return 0, false, nil
	}
	count, err = l.countActive(ctx, date, func(a Activity) bool {
		return a.SubscriptionType == Individual && a.SubscriptionInterval == Year
	})
	return count, err == nil, err
}

// ActiveSubscriptionTypeBreakdown counts active members per subscription
// type, the result has a key for every type.
func (l *Ledger) ActiveSubscriptionTypeBreakdown(ctx context.Context, date time.Time) (map[SubscriptionType]int, bool, error) {
	if IsMissingSubscriptionsData(date) {
		return map[SubscriptionType]int{}, false, nil
	}
	active, err := l.ActiveListing(ctx, date)
	if err != nil {
		return nil, false, err
	}

	breakdown := make(map[SubscriptionType]int, len(SubscriptionTypes))
	for _, t := range SubscriptionTypes {
		breakdown[t] = 0
	}
	var untyped []string
	for _, a := range active {
		if a.SubscriptionType == "" {
			untyped = append(untyped, a.AccountID)
			continue
		}
		breakdown[a.SubscriptionType]++
	}
	if len(untyped) > 0 {
		err = DataIntegrityError{
			AccountIDs: untyped,
			Message: "there are active members whose latest activity has no subscription type, " +
				"they are probably deactivated without it being reflected in the data, " +
				"see if more Memberful activity types should be mapped",
		}
		l.tel.ReportBroken(report_ledger_query, err)
		return nil, false, err
	}
	return breakdown, true, nil
}

func (l *Ledger) ActiveWomenCount(ctx context.Context, date time.Time) (int, error) {
	return l.countActive(ctx, date, func(a Activity) bool {
		return a.AccountHasFeminineName
	})
}

// ActiveWomenPtc is the share of active members with a feminine name in
// percent, rounded up. It is 0 when there are no active members.
func (l *Ledger) ActiveWomenPtc(ctx context.Context, date time.Time) (int, error) {
	active, err := l.ActiveListing(ctx, date)
	if err != nil {
		return 0, err
	}
	if len(active) == 0 {
		return 0, nil
	}
	women := 0
	for _, a := range active {
		if a.AccountHasFeminineName {
			women++
		}
	}
	return int(math.Ceil(float64(women*100) / float64(len(active)))), nil
}

func (l *Ledger) signups(ctx context.Context, date time.Time, subscriptionType SubscriptionType) ([]Activity, error) {
	since, until := MonthRange(date)
	rows, err := l.qry.ListFirstSubscriptionActivities(ctx, db.ListFirstSubscriptionActivitiesParams{
		Until:            formatDay(until),
		SubscriptionType: nullString(string(subscriptionType)),
		Since:            formatDay(since),
	})
	if err != nil {
		l.tel.ReportBroken(report_ledger_query, err)
		return nil, err
	}
	return activitiesFromRows(rows)
}

// Signups returns the first activity of every account which first appeared
// in the month of date.
func (l *Ledger) Signups(ctx context.Context, date time.Time) ([]Activity, error) {
	return l.signups(ctx, date, "")
}

func (l *Ledger) SignupsCount(ctx context.Context, date time.Time) (int, error) {
	signups, err := l.Signups(ctx, date)
	return len(signups), err
}

// IndividualsSignupsCount counts accounts whose first individual activity
// happened in the month of date.
func (l *Ledger) IndividualsSignupsCount(ctx context.Context, date time.Time) (count int, ok bool, err error) {
	if IsMissingSubscriptionsData(date) {
		return 0, false, nil
	}
	signups, err := l.signups(ctx, date, Individual)
	if err != nil {
		return 0, false, err
	}
	return len(signups), true, nil
}

// TotalCount counts every activity in the ledger.
func (l *Ledger) TotalCount(ctx context.Context) (int, error) {
	count, err := l.qry.CountSubscriptionActivities(ctx)
	if err != nil {
		l.tel.ReportBroken(report_ledger_query, err)
		return 0, err
	}
	return int(count), nil
}
