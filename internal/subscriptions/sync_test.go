package subscriptions

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Tinuki562/junior.guru/internal/components/chrono"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"
	"github.com/Tinuki562/junior.guru/internal/memberful"

	"github.com/stretchr/testify/require"
)

func TestIsFeminineName(t *testing.T) {
	table := []struct {
		name     string
		expected bool
	}{
		{"Jana Nováková", true},
		{"Eva Novotná", true},
		{"Lucie Dvořák", true},
		{"Alena", true},
		{"Jan Novák", false},
		{"Petr Novotný", false},
		{"Honza Svoboda", false},
		{"Nikola Tesla", false},
		{"", false},
		{"  ", false},
	}
	for _, row := range table {
		require.Equal(t, row.expected, IsFeminineName(row.name), row.name)
	}
}

func TestClassifySubscription(t *testing.T) {
	table := []struct {
		coupon   string
		plan     string
		expected SubscriptionType
	}{
		{"", "", ""},
		{"", "Měsíční členství", Individual},
		{"student2024", "Měsíční členství", Student},
		{"FINAID-42", "Roční členství", Finaid},
		{"THANKYOU", "Roční členství", Free},
		{"SUMMER", "Roční členství", Individual},
		{"", "Partner: Firma s.r.o.", Partner},
		{"", "Zdarma", Free},
	}
	for _, row := range table {
		require.Equal(t, row.expected, ClassifySubscription(DefaultCouponRules, row.coupon, row.plan), row)
	}
}

const activitiesPage = `{"data": {"activities": {
	"totalCount": 5,
	"pageInfo": {"endCursor": "x", "hasNextPage": false},
	"edges": [
		{"node": {"id": "10", "type": "NEW_TRIAL", "createdAt": %[1]d,
			"member": {"id": "1", "fullName": "Jana Nováková"},
			"order": null,
			"subscription": {"plan": {"name": "Měsíční členství", "intervalUnit": "MONTH"}}}},
		{"node": {"id": "11", "type": "TRIAL_CONVERTED", "createdAt": %[2]d,
			"member": {"id": "1", "fullName": "Jana Nováková"},
			"order": null,
			"subscription": {"plan": {"name": "Měsíční členství", "intervalUnit": "MONTH"}}}},
		{"node": {"id": "12", "type": "NEW_ORDER", "createdAt": %[2]d,
			"member": {"id": "1", "fullName": "Jana Nováková"},
			"order": {"coupon": null},
			"subscription": {"plan": {"name": "Měsíční členství", "intervalUnit": "MONTH"}}}},
		{"node": {"id": "13", "type": "NEW_ORDER", "createdAt": %[1]d,
			"member": {"id": "2", "fullName": "Petr Novotný"},
			"order": {"coupon": {"code": "STUDENT2023"}},
			"subscription": {"plan": {"name": "Roční členství", "intervalUnit": "YEAR"}}}},
		{"node": {"id": "14", "type": "MEMBER_SIGNUP", "createdAt": %[1]d,
			"member": {"id": "3", "fullName": "Eva"}}}
	]
}}}`

func TestSyncActivities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/graphql/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, activitiesPage, at(2023, 3, 1, 10).Unix(), at(2023, 3, 11, 10).Unix())
	}))
	t.Cleanup(server.Close)

	api, err := memberful.NewAPI(memberful.APIOptions{
		BaseURL: server.URL,
		APIKey:  "secret",
		Tel:     telemetry.NewRecorder(),
	})
	require.NoError(t, err)
	ledger, tel := newTestLedger(t)
	ctx := testContext(t)

	stats, err := SyncActivities(ctx, api, ledger, SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, SyncStats{Nodes: 5, Added: 4, Skipped: 1}, stats)
	require.Len(t, tel.Reports("count", report_sync_activities), 1)

	trialStart, ok, err := ledger.Get(ctx, TrialStart, "1", chrono.Date(2023, 3, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, trialStart.AccountHasFeminineName)
	require.Equal(t, Month, trialStart.SubscriptionInterval)
	// reconciled as a trial of an individual subscription
	require.Equal(t, Trial, trialStart.SubscriptionType)

	order, ok, err := ledger.Get(ctx, Order, "1", chrono.Date(2023, 3, 11))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Individual, order.SubscriptionType)

	student, ok, err := ledger.Get(ctx, Order, "2", chrono.Date(2023, 3, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, student.AccountHasFeminineName)
	require.Equal(t, "STUDENT2023", student.OrderCoupon)
	require.Equal(t, Year, student.SubscriptionInterval)
	require.Equal(t, Student, student.SubscriptionType)

	// syncing again is idempotent
	_, err = SyncActivities(ctx, api, ledger, SyncOptions{})
	require.NoError(t, err)
	count, err := ledger.TotalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestSyncActivitiesRollsBackOnInconsistency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// declares more nodes than it returns
		fmt.Fprintf(w, `{"data": {"activities": {"totalCount": 2, "pageInfo": {"endCursor": null, "hasNextPage": false}, "edges": [
			{"node": {"id": "1", "type": "NEW_ORDER", "createdAt": %d, "member": {"id": "1", "fullName": "Jan"}}}
		]}}}`, at(2023, 3, 1, 10).Unix())
	}))
	t.Cleanup(server.Close)

	api, err := memberful.NewAPI(memberful.APIOptions{BaseURL: server.URL, APIKey: "secret", Tel: telemetry.NewRecorder()})
	require.NoError(t, err)
	ledger, tel := newTestLedger(t)
	ctx := testContext(t)

	_, err = SyncActivities(ctx, api, ledger, SyncOptions{})
	var consistencyErr memberful.ConsistencyError
	require.ErrorAs(t, err, &consistencyErr)
	require.NotEmpty(t, tel.Reports("broken", report_sync_activities))

	count, err := ledger.TotalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestImportCancellations(t *testing.T) {
	ledger, tel := newTestLedger(t)
	ctx := testContext(t)

	rows := memberful.ParseCSV("Member name,Member email,Subscription expires,Reason,Feedback\n" +
		"Eva Nováková, Eva@Example.com ,2024-01-31,Found a job,\"Thanks, it helped!\"\n" +
		"Jan Novák,jan@example.com,next week,Too expensive,\n" +
		"Petr,petr@example.com,\"March 5, 2024\",Other,\n")
	count, err := ImportCancellations(ctx, rows, ledger, DefaultCancellationColumns)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Len(t, tel.Reports("warning", report_ledger_cancellations), 1)

	cancellations, err := ledger.Cancellations(ctx)
	require.NoError(t, err)
	require.Equal(t, []Cancellation{
		{Name: "Eva Nováková", Email: "eva@example.com", ExpiresOn: chrono.Date(2024, 1, 31), Reason: "Found a job", Feedback: "Thanks, it helped!"},
		{Name: "Jan Novák", Email: "jan@example.com", Reason: "Too expensive"},
		{Name: "Petr", Email: "petr@example.com", ExpiresOn: chrono.Date(2024, 3, 5), Reason: "Other"},
	}, cancellations)

	_, err = ImportCancellations(ctx, memberful.ParseCSV("Name,Email\nEva,eva@example.com\n"), ledger, DefaultCancellationColumns)
	require.Error(t, err)

	// a failed import keeps what was there
	cancellations, err = ledger.Cancellations(ctx)
	require.NoError(t, err)
	require.Len(t, cancellations, 3)
}
