package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func targets(n int) []Target {
	out := make([]Target, n)
	for i := range out {
		out[i] = Target{ID: fmt.Sprint(i + 1), URL: fmt.Sprintf("https://www.tiktok.com/@u/video/%d", i+1)}
	}
	return out
}

func TestFanOut_Isolation(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	worker := func(_ context.Context, tg Target) error {
		mu.Lock()
		seen = append(seen, tg.ID)
		mu.Unlock()
		if tg.ID == "3" {
			return errors.New("comments unavailable")
		}
		return nil
	}

	failed := Dispatcher{Enabled: true, Limit: 2}.FanOut(context.Background(), targets(5), worker)

	sort.Strings(seen)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, seen)
	assert.Equal(t, 1, failed)
}

func TestFanOut_PanicIsolated(t *testing.T) {
	var calls atomic.Int32
	failed := Dispatcher{Enabled: true, Limit: 3}.FanOut(context.Background(), targets(5), func(_ context.Context, tg Target) error {
		calls.Add(1)
		if tg.ID == "3" {
			panic("boom")
		}
		return nil
	})
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, 1, failed)
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var active, peak atomic.Int32
	worker := func(context.Context, Target) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}

	Dispatcher{Enabled: true, Limit: 3}.FanOut(context.Background(), targets(12), worker)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestFanOut_Disabled(t *testing.T) {
	called := false
	failed := Dispatcher{Enabled: false, Limit: 4}.FanOut(context.Background(), targets(3), func(context.Context, Target) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.Zero(t, failed)
}

func TestFanOut_ZeroLimitRunsSerially(t *testing.T) {
	var active, peak atomic.Int32
	Dispatcher{Enabled: true}.FanOut(context.Background(), targets(4), func(context.Context, Target) error {
		if n := active.Add(1); n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return nil
	})
	assert.Equal(t, int32(1), peak.Load())
}
