package subscriptions

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Tinuki562/junior.guru/internal/components/sqliteutil"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"
	"github.com/Tinuki562/junior.guru/internal/db"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genActivity() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, len(ActivityTypes)-1),
		gen.IntRange(0, 2),
		gen.IntRange(1, 3),
		gen.IntRange(0, 23),
		gen.IntRange(0, len(SubscriptionTypes)),
		gen.Bool(),
		gen.IntRange(0, len(Intervals)),
		gen.OneConstOf("", "STUDENT", "THANKYOU"),
	).Map(func(values []interface{}) Activity {
		subscriptionType := SubscriptionType("")
		if i := values[4].(int); i < len(SubscriptionTypes) {
			subscriptionType = SubscriptionTypes[i]
		}
		interval := Interval("")
		if i := values[6].(int); i < len(Intervals) {
			interval = Intervals[i]
		}
		return Activity{
			Type:                   ActivityTypes[values[0].(int)],
			AccountID:              fmt.Sprint(values[1].(int)),
			HappenedAt:             at(2023, 3, values[2].(int), values[3].(int)),
			SubscriptionType:       subscriptionType,
			SubscriptionInterval:   interval,
			OrderCoupon:            values[7].(string),
			AccountHasFeminineName: values[5].(bool),
		}
	})
}

// stateOf describes the stored rows regardless of their ids and the order
// they were inserted in.
func stateOf(activities []Activity) string {
	rows := make([]string, len(activities))
	for i, a := range activities {
		a.ID = 0
		rows[i] = fmt.Sprintf("%+v", a)
	}
	slices.Sort(rows)
	return strings.Join(rows, "\n")
}

type activityKey struct {
	activityType ActivityType
	accountId    string
	happenedOn   string
}

func keyOf(a Activity) activityKey {
	return activityKey{a.Type, a.AccountID, formatDay(a.HappenedAt)}
}

func addAll(activities []Activity) ([]Activity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	database, err := sqliteutil.OpenDB(db.Schema, ":memory:")
	if err != nil {
		return nil, err
	}
	defer database.Close()
	ledger := NewLedger(database, telemetry.NewRecorder())

	for _, a := range activities {
		err = ledger.Add(ctx, a)
		if err != nil {
			return nil, err
		}
	}
	return ledger.Activities(ctx)
}

func latestByKey(activities []Activity) map[activityKey]int64 {
	out := map[activityKey]int64{}
	for _, a := range activities {
		key := keyOf(a)
		if a.HappenedAt.Unix() > out[key] {
			out[key] = a.HappenedAt.Unix()
		}
	}
	return out
}

func TestLedgerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("adding the same activities twice changes nothing", prop.ForAll(
		func(activities []Activity) bool {
			once, err := addAll(activities)
			if err != nil {
				t.Log(err)
				return false
			}
			twice, err := addAll(append(append([]Activity{}, activities...), activities...))
			if err != nil {
				t.Log(err)
				return false
			}
			return fmt.Sprint(once) == fmt.Sprint(twice)
		},
		gen.SliceOf(genActivity()),
	))

	properties.Property("one row per key holding the latest time", prop.ForAll(
		func(activities []Activity) bool {
			stored, err := addAll(activities)
			if err != nil {
				t.Log(err)
				return false
			}
			expected := latestByKey(activities)
			if len(stored) != len(expected) {
				return false
			}
			for _, a := range stored {
				if expected[keyOf(a)] != a.HappenedAt.Unix() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genActivity()),
	))

	properties.Property("the order of adding does not change the stored rows", prop.ForAll(
		func(activities []Activity, seed int64) bool {
			shuffled := append([]Activity{}, activities...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			forward, err := addAll(activities)
			if err != nil {
				t.Log(err)
				return false
			}
			mixed, err := addAll(shuffled)
			if err != nil {
				t.Log(err)
				return false
			}
			return stateOf(forward) == stateOf(mixed)
		},
		gen.SliceOf(genActivity()),
		gen.Int64(),
	))

	properties.Property("overlapping batches converge in either order", prop.ForAll(
		func(first, second []Activity) bool {
			oneThenTwo, err := addAll(append(append([]Activity{}, first...), second...))
			if err != nil {
				t.Log(err)
				return false
			}
			twoThenOne, err := addAll(append(append([]Activity{}, second...), first...))
			if err != nil {
				t.Log(err)
				return false
			}
			return stateOf(oneThenTwo) == stateOf(twoThenOne)
		},
		gen.SliceOf(genActivity()),
		gen.SliceOf(genActivity()),
	))

	properties.TestingRun(t)
}
