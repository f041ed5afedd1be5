package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolFairnessS8(t *testing.T) {
	p := New(2, nil)

	var running int32
	var maxObservedRunning int32
	var wg sync.WaitGroup
	results := make([]int, 4)

	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = p.Execute(context.Background(), func() error {
				cur := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&maxObservedRunning)
					if cur <= old || atomic.CompareAndSwapInt32(&maxObservedRunning, old, cur) {
						break
					}
				}
				time.Sleep(100 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				results[idx] = idx
				return nil
			})
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	if maxObservedRunning > 2 {
		t.Fatalf("expected at most 2 concurrent, observed %d", maxObservedRunning)
	}
	if elapsed < 190*time.Millisecond {
		t.Fatalf("expected at least ~200ms wall clock for 4 tasks at concurrency 2, got %v", elapsed)
	}
	for i := range results {
		if results[i] != i {
			t.Fatalf("result identity not preserved at index %d: %d", i, results[i])
		}
	}
}

func TestPoolStatus(t *testing.T) {
	p := New(1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = p.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = p.Execute(context.Background(), func() error { return nil })
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	st := p.GetStatus()
	if st.Running != 1 || st.Queued != 1 || st.MaxConcurrent != 1 {
		t.Fatalf("unexpected status %+v", st)
	}

	close(release)
	<-done

	st = p.GetStatus()
	if st.Running != 0 || st.Queued != 0 {
		t.Fatalf("expected idle pool, got %+v", st)
	}
}

func TestPoolErrorsPropagateQueueUnaffected(t *testing.T) {
	p := New(1, nil)
	errBoom := context.Canceled

	err := p.Execute(context.Background(), func() error { return errBoom })
	if err != errBoom {
		t.Fatalf("expected error to propagate, got %v", err)
	}

	// Pool must still admit subsequent work after a failure.
	ran := false
	if err := p.Execute(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatalf("expected subsequent task to run after a prior failure")
	}
}

func TestPoolSetSizeAdmitsQueuedWork(t *testing.T) {
	p := New(1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = p.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	secondStarted := make(chan struct{})
	go func() {
		_ = p.Execute(context.Background(), func() error {
			close(secondStarted)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	p.SetSize(2)

	select {
	case <-secondStarted:
	case <-time.After(time.Second):
		t.Fatalf("expected second task to be admitted after SetSize grew the pool")
	}
	close(release)
}
