package testing

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoroutineTest_CollectsNothingOnSuccess(t *testing.T) {
	gt := NewGoroutineTest(t)
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		gt.Go(func() error {
			n.Add(1)
			return nil
		})
	}
	gt.Wait()

	if n.Load() != 10 {
		t.Errorf("ran %d goroutines, want 10", n.Load())
	}
}

func TestWithTimeout(t *testing.T) {
	if err := WithTimeout(time.Second, func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	sentinel := errors.New("boom")
	if err := WithTimeout(time.Second, func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("got %v, want %v", err, sentinel)
	}

	err := WithTimeout(10*time.Millisecond, func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestEventually(t *testing.T) {
	var flag atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(true)
	}()
	if err := Eventually(time.Second, 5*time.Millisecond, flag.Load); err != nil {
		t.Error(err)
	}
	if err := Eventually(20*time.Millisecond, 5*time.Millisecond, func() bool { return false }); err == nil {
		t.Error("expected failure for a condition that never holds")
	}
}

func TestFixtures(t *testing.T) {
	if len(PiFraction50) != 50 {
		t.Errorf("PiFraction50 has %d digits", len(PiFraction50))
	}
	if len(PiHexFraction32) != 32 {
		t.Errorf("PiHexFraction32 has %d digits", len(PiHexFraction32))
	}
}
