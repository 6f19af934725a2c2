package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Tinuki562/junior.guru/internal/components/chrono"
	"github.com/Tinuki562/junior.guru/internal/components/cliutil"
	"github.com/Tinuki562/junior.guru/internal/db"
	"github.com/Tinuki562/junior.guru/internal/subscriptions"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statsDate string

func init() {
	statsCmd.Flags().StringVar(&statsDate, "date", "", "The day to compute statistics for as YYYY-MM-DD, defaults to today.")

	subscriptionsCmd.AddCommand(syncCmd)
	subscriptionsCmd.AddCommand(cancellationsCmd)
	subscriptionsCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(subscriptionsCmd)
}

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Commands maintaining the subscription activity ledger.",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Records Memberful activities in the ledger and reconciles trials.",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPI()
		if err != nil {
			return fmt.Errorf("create memberful api client: %w", err)
		}
		ledger, database, err := openLedger()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()

		t1 := time.Now()
		stats, err := subscriptions.SyncActivities(cmd.Context(), api, ledger, subscriptions.SyncOptions{})
		if err != nil {
			return fmt.Errorf("sync activities: %w", err)
		}
		slog.Info(
			"synced activities",
			"nodes", stats.Nodes,
			"added", stats.Added,
			"skipped", stats.Skipped,
			"seconds", time.Since(t1).Seconds(),
		)
		return nil
	},
}

var cancellationsCmd = &cobra.Command{
	Use:   "cancellations",
	Short: "Replaces the cancellations in the ledger with the Memberful export.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCSV()
		if err != nil {
			return fmt.Errorf("create memberful csv client: %w", err)
		}
		ledger, database, err := openLedger()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()

		rows, err := client.Download(cmd.Context(), subscriptions.CancellationsExport)
		if err != nil {
			return fmt.Errorf("download cancellations: %w", err)
		}
		count, err := subscriptions.ImportCancellations(cmd.Context(), rows, ledger, subscriptions.DefaultCancellationColumns)
		if err != nil {
			return fmt.Errorf("import cancellations: %w", err)
		}
		slog.Info("imported cancellations", "count", count)
		return nil
	},
}

func optional(value int, ok bool) string {
	if !ok {
		return "no data"
	}
	return fmt.Sprint(value)
}

var statsCmd = &cobra.Command{
	Use:   "stats [--date YYYY-MM-DD]",
	Short: "Prints membership statistics as of a day.",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := chrono.Day(chrono.NewStandardTime().Now())
		if statsDate != "" {
			parsed, err := time.ParseInLocation(db.DateLayout, statsDate, chrono.Prague())
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			date = parsed
		}

		ledger, database, err := openLedger()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()
		ctx := cmd.Context()

		total, err := ledger.TotalCount(ctx)
		if err != nil {
			return fmt.Errorf("count activities: %w", err)
		}
		active, err := ledger.ActiveCount(ctx, date)
		if err != nil {
			return fmt.Errorf("count active members: %w", err)
		}
		women, err := ledger.ActiveWomenCount(ctx, date)
		if err != nil {
			return fmt.Errorf("count active women: %w", err)
		}
		womenPtc, err := ledger.ActiveWomenPtc(ctx, date)
		if err != nil {
			return fmt.Errorf("compute share of women: %w", err)
		}
		signups, err := ledger.SignupsCount(ctx, date)
		if err != nil {
			return fmt.Errorf("count signups: %w", err)
		}
		individuals, individualsOk, err := ledger.ActiveIndividualsCount(ctx, date)
		if err != nil {
			return fmt.Errorf("count individuals: %w", err)
		}
		yearly, yearlyOk, err := ledger.ActiveIndividualsYearlyCount(ctx, date)
		if err != nil {
			return fmt.Errorf("count yearly individuals: %w", err)
		}
		individualsSignups, individualsSignupsOk, err := ledger.IndividualsSignupsCount(ctx, date)
		if err != nil {
			return fmt.Errorf("count individual signups: %w", err)
		}
		breakdown, breakdownOk, err := ledger.ActiveSubscriptionTypeBreakdown(ctx, date)
		if err != nil {
			return fmt.Errorf("break down subscription types: %w", err)
		}

		t := cliutil.NewTable()
		t.SetTitle(fmt.Sprintf("Membership as of %s", date.Format(db.DateLayout)))
		t.AppendHeader(table.Row{"Statistic", "Value"})
		t.AppendRows([]table.Row{
			{"activities", total},
			{"active", active},
			{"active women", women},
			{"active women %", womenPtc},
			{"signups this month", signups},
			{"active individuals", optional(individuals, individualsOk)},
			{"active yearly individuals", optional(yearly, yearlyOk)},
			{"individual signups this month", optional(individualsSignups, individualsSignupsOk)},
		})
		t.AppendSeparator()
		for _, subscriptionType := range subscriptions.SubscriptionTypes {
			t.AppendRow(table.Row{
				fmt.Sprintf("active %s", subscriptionType),
				optional(breakdown[subscriptionType], breakdownOk),
			})
		}
		t.Render()
		return nil
	},
}
