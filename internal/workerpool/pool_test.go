package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	pidxtesting "github.com/xtxerr/pidx/internal/testing"
)

func newTestPool(t *testing.T, workers, queue int) *Pool {
	t.Helper()
	p := New(&Config{
		Workers:      workers,
		QueueSize:    queue,
		UnitTimeout:  time.Second,
		DrainTimeout: time.Second,
	})
	t.Cleanup(p.Close)
	return p
}

func TestDo_RunsOnWorker(t *testing.T) {
	p := newTestPool(t, 2, 8)

	got, err := Do(context.Background(), p, 0, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}

	s := p.Stats()
	if s.Submitted != 1 || s.Inline != 0 {
		t.Errorf("stats = %+v, want one submitted unit and no inline runs", s)
	}
}

func TestDo_PropagatesError(t *testing.T) {
	p := newTestPool(t, 1, 4)
	sentinel := errors.New("unit failed")

	_, err := Do(context.Background(), p, 0, func(ctx context.Context) (string, error) {
		return "", sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("got %v, want %v", err, sentinel)
	}
}

func TestDo_TimeoutFallsBackInline(t *testing.T) {
	p := newTestPool(t, 1, 4)
	var calls atomic.Int32

	got, err := Do(context.Background(), p, 20*time.Millisecond, func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
			return -1, nil
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 7 {
		t.Errorf("got %d, want the inline result 7", got)
	}

	s := p.Stats()
	if s.Timeouts != 1 || s.Inline != 1 {
		t.Errorf("stats = %+v, want 1 timeout and 1 inline run", s)
	}
}

func TestDo_PanicFallsBackInline(t *testing.T) {
	p := newTestPool(t, 1, 4)
	var calls atomic.Int32

	got, err := Do(context.Background(), p, 0, func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			panic("worker exploded")
		}
		return 3, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if p.Stats().Panics != 1 {
		t.Errorf("panics = %d, want 1", p.Stats().Panics)
	}
}

func TestDo_InlinePanicIsError(t *testing.T) {
	_, err := Do(context.Background(), nil, 0, func(ctx context.Context) (int, error) {
		panic("always")
	})
	if !errors.Is(err, pidxerrors.ErrUnitPanic) {
		t.Errorf("got %v, want ErrUnitPanic", err)
	}
}

func TestDo_QueueFullRunsInline(t *testing.T) {
	p := newTestPool(t, 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the only worker, then fill the queue.
	if err := p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := p.Submit(context.Background(), func(context.Context) {}); err != nil {
		t.Fatal(err)
	}

	got, err := Do(context.Background(), p, 0, func(ctx context.Context) (int, error) {
		return 9, nil
	})
	close(release)

	if err != nil || got != 9 {
		t.Fatalf("got (%d, %v), want (9, nil)", got, err)
	}
	s := p.Stats()
	if s.QueueFull != 1 || s.Inline != 1 {
		t.Errorf("stats = %+v, want 1 queue-full and 1 inline", s)
	}
}

func TestDo_ClosedPoolRunsInline(t *testing.T) {
	p := New(&Config{Workers: 1, QueueSize: 1, UnitTimeout: time.Second})
	p.Close()

	if err := p.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, pidxerrors.ErrPoolClosed) {
		t.Errorf("Submit after Close = %v, want ErrPoolClosed", err)
	}

	got, err := Do(context.Background(), p, 0, func(ctx context.Context) (string, error) {
		return "inline", nil
	})
	if err != nil || got != "inline" {
		t.Errorf("got (%q, %v)", got, err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	p := newTestPool(t, 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, p, 0, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestDo_Concurrent(t *testing.T) {
	p := newTestPool(t, 4, 64)
	gt := pidxtesting.NewGoroutineTest(t)

	for i := 0; i < 50; i++ {
		i := i
		gt.Go(func() error {
			got, err := Do(context.Background(), p, 0, func(ctx context.Context) (int, error) {
				return i * i, nil
			})
			if err != nil {
				return err
			}
			if got != i*i {
				return errors.New("wrong result")
			}
			return nil
		})
	}
	gt.Wait()
}
