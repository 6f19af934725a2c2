package chrono

import (
	"context"
	"sync"
	"time"
)

// FakeTime is a TimeAPI and Sleeper whose clock only moves when Sleep is called.
type FakeTime struct {
	mutex  sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeTime(now time.Time) *FakeTime {
	return &FakeTime{now: now}
}

func (f *FakeTime) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *FakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	return nil
}

// Sleeps returns every duration Sleep was called with, in order.
func (f *FakeTime) Sleeps() []time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
