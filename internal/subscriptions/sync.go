package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tinuki562/junior.guru/internal/memberful"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const report_sync_activities = "sync.activities"

const ActivitiesQuery = `
query getActivities($cursor: String!) {
	activities(after: $cursor, first: 100) {
		totalCount
		pageInfo {
			endCursor
			hasNextPage
		}
		edges {
			node {
				id
				type
				createdAt
				member {
					id
					fullName
				}
				order {
					coupon {
						code
					}
				}
				subscription {
					plan {
						name
						intervalUnit
					}
				}
			}
		}
	}
}
`

// ActivityTypesMapping maps Memberful activity types to ledger activity types,
// Memberful activities not in the mapping are not recorded.
var ActivityTypesMapping = map[string]ActivityType{
	"new_order":                Order,
	"new_gift":                 Order,
	"renewal":                  Order,
	"subscription_reactivated": Order,
	"new_trial":                TrialStart,
	"trial_converted":          TrialEnd,
	"trial_expired":            TrialEnd,
	"subscription_deactivated": Deactivation,
}

// CouponRule assigns a subscription type to orders with a coupon whose code
// starts with Prefix.
type CouponRule struct {
	Prefix string
	Type   SubscriptionType
}

var DefaultCouponRules = []CouponRule{
	{Prefix: "STUDENT", Type: Student},
	{Prefix: "FINAID", Type: Finaid},
	{Prefix: "THANKYOU", Type: Free},
	{Prefix: "PARTNER", Type: Partner},
}

// NodesSource is anything that streams Memberful nodes, usually *memberful.API.
type NodesSource interface {
	Nodes(query string, variables map[string]any, opts memberful.NodesOptions) (*memberful.Nodes, error)
}

type SyncOptions struct {
	// Mapping defaults to ActivityTypesMapping.
	Mapping map[string]ActivityType
	// CouponRules defaults to DefaultCouponRules, the first matching rule wins.
	CouponRules []CouponRule
}

type SyncStats struct {
	Nodes   int
	Added   int
	Skipped int
}

type activityNode struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"createdAt"`
	Member    struct {
		ID       string `json:"id"`
		FullName string `json:"fullName"`
	} `json:"member"`
	Order *struct {
		Coupon *struct {
			Code string `json:"code"`
		} `json:"coupon"`
	} `json:"order"`
	Subscription *struct {
		Plan struct {
			Name         string `json:"name"`
			IntervalUnit string `json:"intervalUnit"`
		} `json:"plan"`
	} `json:"subscription"`
}

// ClassifySubscription decides the subscription type from the order's
// coupon and the plan's name. It returns "" when there is nothing to decide by.
func ClassifySubscription(rules []CouponRule, coupon, planName string) SubscriptionType {
	coupon = strings.ToUpper(strings.TrimSpace(coupon))
	if coupon != "" {
		for _, rule := range rules {
			if strings.HasPrefix(coupon, strings.ToUpper(rule.Prefix)) {
				return rule.Type
			}
		}
	}

	plan := strings.ToLower(planName)
	switch {
	case plan == "":
		return ""
	case strings.Contains(plan, "partner"), strings.Contains(plan, "firm"):
		return Partner
	case strings.Contains(plan, "student"):
		return Student
	case strings.Contains(plan, "free"), strings.Contains(plan, "zdarma"):
		return Free
	}
	return Individual
}

func (o SyncOptions) activity(node activityNode) (Activity, bool) {
	mapping := o.Mapping
	if mapping == nil {
		mapping = ActivityTypesMapping
	}
	rules := o.CouponRules
	if rules == nil {
		rules = DefaultCouponRules
	}

	activityType, ok := mapping[strings.ToLower(node.Type)]
	if !ok || node.Member.ID == "" || node.CreatedAt == 0 {
		return Activity{}, false
	}

	activity := Activity{
		Type:                   activityType,
		AccountID:              node.Member.ID,
		AccountHasFeminineName: IsFeminineName(node.Member.FullName),
		HappenedAt:             time.Unix(node.CreatedAt, 0),
	}

	coupon := ""
	if node.Order != nil && node.Order.Coupon != nil {
		coupon = node.Order.Coupon.Code
	}
	activity.OrderCoupon = coupon

	planName := ""
	if node.Subscription != nil {
		planName = node.Subscription.Plan.Name
		interval := Interval(strings.ToLower(node.Subscription.Plan.IntervalUnit))
		if oneOf(interval, Intervals) {
			activity.SubscriptionInterval = interval
		}
	}
	if activityType != Deactivation {
		activity.SubscriptionType = ClassifySubscription(rules, coupon, planName)
	}
	return activity, true
}

// SyncActivities records every Memberful activity the mapping knows in the
// ledger and reconciles trials, all in a single transaction.
func SyncActivities(ctx context.Context, source NodesSource, ledger *Ledger, opts SyncOptions) (SyncStats, error) {
	ctx, span := tracer.Start(ctx, "sync:activities")
	defer span.End()

	var stats SyncStats
	nodes, err := source.Nodes(ActivitiesQuery, nil, memberful.NodesOptions{Collection: "activities"})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return stats, err
	}

	err = ledger.Transaction(ctx, func(tx *Ledger) error {
		for nodes.Next(ctx) {
			stats.Nodes++
			var node activityNode
			err := nodes.Decode(&node)
			if err != nil {
				return fmt.Errorf("decode activity: %w", err)
			}
			activity, ok := opts.activity(node)
			if !ok {
				ledger.tel.ReportDebug("skipping activity", node.ID, node.Type)
				stats.Skipped++
				continue
			}
			err = tx.Add(ctx, activity)
			if err != nil {
				return err
			}
			stats.Added++
		}
		if err := nodes.Err(); err != nil {
			return err
		}
		return tx.MarkTrials(ctx)
	})
	span.SetAttributes(
		attribute.Int("custom.nodes", stats.Nodes),
		attribute.Int("custom.added", stats.Added),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ledger.tel.ReportBroken(report_sync_activities, err)
		return stats, err
	}

	ledger.tel.ReportCount(report_sync_activities, int64(stats.Added))
	return stats, nil
}
