package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	l := New(Config{Window: 10 * time.Second, MaxCalls: 10})

	if l.minSpacing != 500*time.Millisecond {
		t.Errorf("minSpacing = %v, want 500ms", l.minSpacing)
	}
	if l.pollJitter != 100*time.Millisecond {
		t.Errorf("pollJitter = %v, want 100ms", l.pollJitter)
	}
}

func TestAcquireImmediate(t *testing.T) {
	l := New(Config{Window: time.Second, MaxCalls: 5})

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first Acquire took %v, want immediate", elapsed)
	}
}

func TestAcquireWindowBound(t *testing.T) {
	const (
		window   = 200 * time.Millisecond
		maxCalls = 3
		callers  = 9
	)
	l := New(Config{Window: window, MaxCalls: maxCalls})

	var mu sync.Mutex
	var admitted []time.Time

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			now := time.Now()
			mu.Lock()
			admitted = append(admitted, now)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != callers {
		t.Fatalf("admitted %d callers, want %d", len(admitted), callers)
	}
	sort.Slice(admitted, func(i, j int) bool { return admitted[i].Before(admitted[j]) })

	// No window of the configured duration may contain more than maxCalls
	// admissions. Timestamps are taken just after Acquire returns, so allow
	// a small scheduling epsilon.
	const epsilon = 20 * time.Millisecond
	for i := 0; i+maxCalls < len(admitted); i++ {
		gap := admitted[i+maxCalls].Sub(admitted[i])
		if gap < window-epsilon {
			t.Errorf("admissions %d..%d within %v, window is %v", i, i+maxCalls, gap, window)
		}
	}
}

func TestAcquireMinSpacing(t *testing.T) {
	l := New(Config{
		Window:     time.Second,
		MaxCalls:   100,
		MinSpacing: 50 * time.Millisecond,
	})

	var stamps []time.Time
	for i := 0; i < 4; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		stamps = append(stamps, time.Now())
	}

	const epsilon = 10 * time.Millisecond
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 50*time.Millisecond-epsilon {
			t.Errorf("calls %d and %d spaced %v, want >= 50ms", i-1, i, gap)
		}
	}
}

func TestAcquireContextCancelled(t *testing.T) {
	l := New(Config{Window: time.Minute, MaxCalls: 1})

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// The window now blocks the second caller for a minute.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}
