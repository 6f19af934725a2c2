package chrono

import (
	"context"
	"time"
	_ "time/tzdata"
)

var prague *time.Location

func init() {
	var err error
	prague, err = time.LoadLocation("Europe/Prague")
	if err != nil {
		panic(err)
	}
}

// Prague returns a [*time.Location] for Europe/Prague, the timezone the club lives in.
func Prague() *time.Location {
	return prague
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in Europe/Prague.
	Now() time.Time
}

// Sleeper is the interface anything that waits between attempts should use.
type Sleeper interface {
	// Sleep blocks for the given duration or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// StandardTime is the standard implementation of TimeAPI and Sleeper using the standard library.
type StandardTime struct{}

func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return time.Now().In(prague)
}

func (StandardTime) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Date returns midnight of the given calendar day in Europe/Prague.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, prague)
}

// Day truncates t to midnight of its calendar day in Europe/Prague.
func Day(t time.Time) time.Time {
	t = t.In(prague)
	return Date(t.Year(), t.Month(), t.Day())
}
