package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tinuki562/junior.guru/internal/components/chrono"
	"github.com/Tinuki562/junior.guru/internal/components/sqliteutil"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"
	"github.com/Tinuki562/junior.guru/internal/db"

	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *telemetry.Recorder) {
	database, err := sqliteutil.OpenDB(db.Schema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	tel := telemetry.NewRecorder()
	return NewLedger(database, tel), tel
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)
	return ctx
}

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, chrono.Prague())
}

func TestAddInserts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := testContext(t)

	err := ledger.Add(ctx, Activity{
		Type:                   Order,
		AccountID:              "1",
		AccountHasFeminineName: true,
		HappenedAt:             at(2023, 3, 1, 10),
		OrderCoupon:            "STUDENT2023",
		SubscriptionInterval:   Month,
		SubscriptionType:       Student,
	})
	require.NoError(t, err)

	activity, ok, err := ledger.Get(ctx, Order, "1", chrono.Date(2023, 3, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chrono.Date(2023, 3, 1), activity.HappenedOn)
	require.True(t, at(2023, 3, 1, 10).Equal(activity.HappenedAt))
	require.True(t, activity.AccountHasFeminineName)
	require.Equal(t, "STUDENT2023", activity.OrderCoupon)
	require.Equal(t, Month, activity.SubscriptionInterval)
	require.Equal(t, Student, activity.SubscriptionType)

	_, ok, err = ledger.Get(ctx, Order, "1", chrono.Date(2023, 3, 2))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddDerivesDayInPrague(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := testContext(t)

	// 23:30 UTC is already the next day in Prague
	err := ledger.Add(ctx, Activity{
		Type:       Deactivation,
		AccountID:  "1",
		HappenedAt: time.Date(2023, 3, 31, 23, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	activities, err := ledger.Activities(ctx)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	require.Equal(t, chrono.Date(2023, 4, 1), activities[0].HappenedOn)
}

func TestAddUpserts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := testContext(t)

	require.NoError(t, ledger.Add(ctx, Activity{
		Type:                 Order,
		AccountID:            "1",
		HappenedAt:           at(2023, 3, 1, 12),
		OrderCoupon:          "FINAID",
		SubscriptionInterval: Year,
		SubscriptionType:     Finaid,
	}))
	// same day, earlier in the day, without the details
	require.NoError(t, ledger.Add(ctx, Activity{
		Type:                   Order,
		AccountID:              "1",
		AccountHasFeminineName: true,
		HappenedAt:             at(2023, 3, 1, 8),
	}))

	activities, err := ledger.Activities(ctx)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	activity := activities[0]
	require.True(t, at(2023, 3, 1, 12).Equal(activity.HappenedAt))
	require.False(t, activity.AccountHasFeminineName)
	require.Equal(t, "FINAID", activity.OrderCoupon)
	require.Equal(t, Year, activity.SubscriptionInterval)
	require.Equal(t, Finaid, activity.SubscriptionType)

	// later in the day with a new type
	require.NoError(t, ledger.Add(ctx, Activity{
		Type:             Order,
		AccountID:        "1",
		HappenedAt:       at(2023, 3, 1, 18),
		SubscriptionType: Individual,
	}))
	activity, _, err = ledger.Get(ctx, Order, "1", chrono.Date(2023, 3, 1))
	require.NoError(t, err)
	require.True(t, at(2023, 3, 1, 18).Equal(activity.HappenedAt))
	require.Equal(t, Individual, activity.SubscriptionType)
	require.Equal(t, "FINAID", activity.OrderCoupon)
	require.False(t, activity.AccountHasFeminineName)

	count, err := ledger.TotalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestAddIgnoresStaleValues(t *testing.T) {
	fresh := Activity{
		Type:                 Order,
		AccountID:            "1",
		HappenedAt:           at(2023, 3, 1, 18),
		SubscriptionInterval: Year,
		SubscriptionType:     Individual,
	}
	stale := Activity{
		Type:                   Order,
		AccountID:              "1",
		AccountHasFeminineName: true,
		HappenedAt:             at(2023, 3, 1, 8),
		OrderCoupon:            "STUDENT2023",
		SubscriptionInterval:   Month,
		SubscriptionType:       Student,
	}

	for _, order := range [][]Activity{{fresh, stale}, {stale, fresh}} {
		ledger, _ := newTestLedger(t)
		ctx := testContext(t)
		for _, a := range order {
			require.NoError(t, ledger.Add(ctx, a))
		}

		activity, ok, err := ledger.Get(ctx, Order, "1", chrono.Date(2023, 3, 1))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, at(2023, 3, 1, 18).Equal(activity.HappenedAt))
		require.Equal(t, Individual, activity.SubscriptionType)
		require.Equal(t, Year, activity.SubscriptionInterval)
		require.False(t, activity.AccountHasFeminineName)
		// only the stale record knows the coupon
		require.Equal(t, "STUDENT2023", activity.OrderCoupon)
	}
}

func TestAddKeepsLatestKnownValue(t *testing.T) {
	oldest := Activity{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 8), SubscriptionType: Student}
	middle := Activity{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 12), SubscriptionType: Partner}
	newest := Activity{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 18)}

	orders := [][]Activity{
		{oldest, middle, newest},
		{oldest, newest, middle},
		{newest, middle, oldest},
		{middle, oldest, newest},
	}
	for _, order := range orders {
		ledger, _ := newTestLedger(t)
		ctx := testContext(t)
		for _, a := range order {
			require.NoError(t, ledger.Add(ctx, a))
		}

		activity, _, err := ledger.Get(ctx, Order, "1", chrono.Date(2023, 3, 1))
		require.NoError(t, err)
		require.Equal(t, Partner, activity.SubscriptionType)
		require.True(t, at(2023, 3, 1, 18).Equal(activity.HappenedAt))
	}
}

func TestAddSettlesSameInstant(t *testing.T) {
	first := Activity{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 8), SubscriptionType: Individual}
	second := Activity{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 8), SubscriptionType: Student, AccountHasFeminineName: true}

	for _, order := range [][]Activity{{first, second}, {second, first}} {
		ledger, _ := newTestLedger(t)
		ctx := testContext(t)
		for _, a := range order {
			require.NoError(t, ledger.Add(ctx, a))
		}

		activity, _, err := ledger.Get(ctx, Order, "1", chrono.Date(2023, 3, 1))
		require.NoError(t, err)
		require.Equal(t, Student, activity.SubscriptionType)
		require.True(t, activity.AccountHasFeminineName)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	ledger, tel := newTestLedger(t)
	ctx := testContext(t)

	table := []Activity{
		{Type: "refund", AccountID: "1", HappenedAt: at(2023, 3, 1, 8)},
		{Type: Order, HappenedAt: at(2023, 3, 1, 8)},
		{Type: Order, AccountID: "1"},
		{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 8), SubscriptionInterval: "week"},
		{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 8), SubscriptionType: "vip"},
	}
	for _, activity := range table {
		require.Error(t, ledger.Add(ctx, activity), activity)
	}

	count, err := ledger.TotalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.Len(t, tel.Reports("broken", report_ledger_add), len(table))
}

func TestTransactionRollsBack(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := testContext(t)

	failure := errors.New("failure")
	err := ledger.Transaction(ctx, func(tx *Ledger) error {
		err := tx.Add(ctx, Activity{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 8)})
		require.NoError(t, err)
		return failure
	})
	require.ErrorIs(t, err, failure)

	count, err := ledger.TotalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	err = ledger.Transaction(ctx, func(tx *Ledger) error {
		return tx.Add(ctx, Activity{Type: Order, AccountID: "1", HappenedAt: at(2023, 3, 1, 8)})
	})
	require.NoError(t, err)
	count, err = ledger.TotalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestMarkTrials(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := testContext(t)

	activities := []Activity{
		// trial turning into an individual subscription
		{Type: TrialStart, AccountID: "a", HappenedAt: at(2023, 3, 1, 8), SubscriptionType: Individual},
		{Type: Order, AccountID: "a", HappenedAt: at(2023, 3, 1, 8), SubscriptionType: Free},
		{Type: TrialEnd, AccountID: "a", HappenedAt: at(2023, 3, 11, 8)},
		{Type: Order, AccountID: "a", HappenedAt: at(2023, 3, 11, 8), SubscriptionType: Individual},
		{Type: Order, AccountID: "a", HappenedAt: at(2023, 4, 11, 8), SubscriptionType: Individual},

		// trial turning into a partner subscription
		{Type: TrialStart, AccountID: "b", HappenedAt: at(2023, 3, 1, 8)},
		{Type: TrialEnd, AccountID: "b", HappenedAt: at(2023, 3, 11, 8)},
		{Type: Order, AccountID: "b", HappenedAt: at(2023, 3, 11, 9), SubscriptionType: Partner},

		// trial which has not ended yet
		{Type: TrialStart, AccountID: "c", HappenedAt: at(2023, 3, 5, 8), SubscriptionType: Individual},
	}
	for _, a := range activities {
		require.NoError(t, ledger.Add(ctx, a))
	}
	require.NoError(t, ledger.MarkTrials(ctx))

	expected := []struct {
		activityType ActivityType
		accountId    string
		on           time.Time
		expected     SubscriptionType
	}{
		{TrialStart, "a", chrono.Date(2023, 3, 1), Trial},
		{Order, "a", chrono.Date(2023, 3, 1), Trial},
		{TrialEnd, "a", chrono.Date(2023, 3, 11), Trial},
		{Order, "a", chrono.Date(2023, 3, 11), Individual},
		{Order, "a", chrono.Date(2023, 4, 11), Individual},

		{TrialStart, "b", chrono.Date(2023, 3, 1), Partner},
		{TrialEnd, "b", chrono.Date(2023, 3, 11), Partner},
		{Order, "b", chrono.Date(2023, 3, 11), Partner},

		{TrialStart, "c", chrono.Date(2023, 3, 5), Individual},
	}
	for _, row := range expected {
		activity, ok, err := ledger.Get(ctx, row.activityType, row.accountId, row.on)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, row.expected, activity.SubscriptionType, "%s of %s on %s", row.activityType, row.accountId, row.on)
	}

	// running it again changes nothing
	before, err := ledger.Activities(ctx)
	require.NoError(t, err)
	require.NoError(t, ledger.MarkTrials(ctx))
	after, err := ledger.Activities(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)

	// syncing the same activities again ends up in the same place
	for _, a := range activities {
		require.NoError(t, ledger.Add(ctx, a))
	}
	require.NoError(t, ledger.MarkTrials(ctx))
	resynced, err := ledger.Activities(ctx)
	require.NoError(t, err)
	require.Equal(t, before, resynced)
}

func TestCancellations(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := testContext(t)

	require.NoError(t, ledger.ReplaceCancellations(ctx, []Cancellation{
		{Name: "Old", Email: "old@example.com", Reason: "other"},
	}))
	require.NoError(t, ledger.ReplaceCancellations(ctx, []Cancellation{
		{Name: "Eva", Email: "eva@example.com", ExpiresOn: chrono.Date(2024, 1, 31), Reason: "found a job", Feedback: "thanks!"},
		{Name: "Jan", Email: "jan@example.com", Reason: "too expensive"},
	}))

	cancellations, err := ledger.Cancellations(ctx)
	require.NoError(t, err)
	require.Equal(t, []Cancellation{
		{Name: "Eva", Email: "eva@example.com", ExpiresOn: chrono.Date(2024, 1, 31), Reason: "found a job", Feedback: "thanks!"},
		{Name: "Jan", Email: "jan@example.com", Reason: "too expensive"},
	}, cancellations)
}
