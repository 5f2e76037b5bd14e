package memo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGetRunsLoaderOnceAcrossConcurrentCallers(t *testing.T) {
	c := New[string, int]()

	var calls int32
	var wg sync.WaitGroup
	results := make([]int, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := c.Get("k", func() (int, error) {
				atomic.AddInt32(&calls, 1)
				return 42, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[idx] = v
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
	for i, v := range results {
		if v != 42 {
			t.Fatalf("result[%d] = %d, want 42", i, v)
		}
	}
}

func TestGetCachesAcrossSequentialCalls(t *testing.T) {
	c := New[string, int]()
	var calls int

	loader := func() (int, error) {
		calls++
		return calls, nil
	}

	v1, _ := c.Get("k", loader)
	v2, _ := c.Get("k", loader)

	if v1 != v2 {
		t.Fatalf("expected identical values across sequential Get calls, got %d and %d", v1, v2)
	}
	if calls != 1 {
		t.Fatalf("loader ran %d times, want 1", calls)
	}
}

func TestForgetAllowsReload(t *testing.T) {
	c := New[string, int]()
	var calls int
	loader := func() (int, error) {
		calls++
		return calls, nil
	}

	v1, _ := c.Get("k", loader)
	c.Forget("k")
	v2, _ := c.Get("k", loader)

	if v1 == v2 {
		t.Fatalf("expected distinct values after Forget, got %d twice", v1)
	}
	if calls != 2 {
		t.Fatalf("loader ran %d times, want 2", calls)
	}
}

func TestGetPropagatesError(t *testing.T) {
	c := New[string, int]()
	wantErr := fmt.Errorf("boom")

	_, err := c.Get("k", func() (int, error) {
		return 0, wantErr
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	// Errors are cached too: a second call observes the same error without
	// re-running the loader.
	var calls int
	_, err = c.Get("k", func() (int, error) {
		calls++
		return 1, nil
	})
	if err == nil {
		t.Fatalf("expected cached error on second call")
	}
	if calls != 0 {
		t.Fatalf("loader re-ran after a cached error")
	}
}
