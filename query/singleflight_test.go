package query

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescer_ConcurrentCallersShareOneInvocation(t *testing.T) {
	var c Coalescer
	var invocations atomic.Int64
	release := make(chan struct{})

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]any, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err, _ := c.Do("k", func() (any, error) {
				invocations.Add(1)
				<-release
				return "value", nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := invocations.Load(); got != 1 {
		t.Fatalf("expected exactly 1 loader invocation across %d concurrent callers, got %d", n, got)
	}
	for i, v := range results {
		if v != "value" {
			t.Fatalf("caller %d observed %v, want the shared value", i, v)
		}
	}
}

func TestCoalescer_FailureIsNotRetainedPastTheWindow(t *testing.T) {
	var c Coalescer
	boom := errors.New("boom")

	if _, err, _ := c.Do("k", func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected the loader failure to surface, got %v", err)
	}

	v, err, _ := c.Do("k", func() (any, error) { return "recovered", nil })
	if err != nil {
		t.Fatalf("expected the next call to retry the loader, got %v", err)
	}
	if v != "recovered" {
		t.Fatalf("expected the retried value, got %v", v)
	}
}
