package wpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/wpool"
)

func TestSubmitRunsPrepThenExecute(t *testing.T) {
	p := wpool.New("test", 2, 0)
	var prepped int32

	result, err := p.Submit(context.Background(), wpool.Task{
		Prep: func() any {
			atomic.AddInt32(&prepped, 1)
			return 41
		},
		Execute: func(v any) (any, error) {
			return v.(int) + 1, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.(int) != 42 {
		t.Fatalf("expected 42, got %v", result)
	}
	if atomic.LoadInt32(&prepped) != 1 {
		t.Fatalf("expected prep to run exactly once")
	}
}

func TestPrepDeferredUntilSlotFree(t *testing.T) {
	p := wpool.New("test", 1, 0)
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Submit(context.Background(), wpool.Task{
			Prep: func() any { return nil },
			Execute: func(any) (any, error) {
				close(started)
				<-release
				return nil, nil
			},
		})
	}()
	<-started

	var preppedSecond int32
	done := make(chan struct{})
	go func() {
		p.Submit(context.Background(), wpool.Task{
			Prep: func() any {
				atomic.AddInt32(&preppedSecond, 1)
				return nil
			},
			Execute: func(any) (any, error) { return nil, nil },
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&preppedSecond) != 0 {
		t.Fatalf("expected second task's prep to be deferred while the single slot is occupied")
	}
	close(release)
	wg.Wait()
	<-done
	if atomic.LoadInt32(&preppedSecond) != 1 {
		t.Fatalf("expected second task's prep to run once the slot freed")
	}
}

func TestBoundedQueueOverload(t *testing.T) {
	p := wpool.New("dryrun", 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	go p.Submit(context.Background(), wpool.Task{
		Prep: func() any { return nil },
		Execute: func(any) (any, error) {
			close(started)
			<-release
			return nil, nil
		},
	})
	<-started

	go p.Submit(context.Background(), wpool.Task{
		Prep:    func() any { return nil },
		Execute: func(any) (any, error) { <-release; return nil, nil },
	})
	time.Sleep(20 * time.Millisecond) // let the second caller occupy the one queue slot

	_, err := p.Submit(context.Background(), wpool.Task{
		Prep:    func() any { return nil },
		Execute: func(any) (any, error) { return nil, nil },
	})
	if !cuerr.Is(err, cuerr.KindOverloaded) {
		t.Fatalf("expected an overload error for a third caller, got %v", err)
	}
	close(release)
}

func TestStatsReportsActive(t *testing.T) {
	p := wpool.New("test", 2, 0)
	release := make(chan struct{})
	started := make(chan struct{})

	go p.Submit(context.Background(), wpool.Task{
		Prep: func() any { return nil },
		Execute: func(any) (any, error) {
			close(started)
			<-release
			return nil, nil
		},
	})
	<-started

	stats := p.Stats(2)
	if stats.Active != 1 || stats.Idle != 1 {
		t.Fatalf("expected 1 active, 1 idle, got %+v", stats)
	}
	close(release)
}
