package worker

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPoolDefaultsToNumCPU(t *testing.T) {
	for _, n := range []int{0, -3} {
		p := NewPool[string](n)
		if p.concurrency != runtime.NumCPU() {
			t.Errorf("NewPool(%d).concurrency = %d, want NumCPU", n, p.concurrency)
		}
	}
	if p := NewPool[string](4); p.concurrency != 4 {
		t.Errorf("NewPool(4).concurrency = %d", p.concurrency)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	p := NewPool[string](2)
	if results := p.Process(nil, func(s string) (string, error) { return s, nil }); results != nil {
		t.Errorf("Process(nil) = %v, want nil", results)
	}
}

func TestProcessPreservesInputOrder(t *testing.T) {
	p := NewPool[string](4)
	items := []string{"run-a", "run-b", "run-c", "run-d", "run-e"}

	results := p.Process(items, func(s string) (string, error) {
		return strings.ToUpper(s), nil
	})

	if len(results) != len(items) {
		t.Fatalf("results = %d, want %d", len(results), len(items))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("results[%d].Err = %v", i, r.Err)
		}
		if r.Index != i || r.Value != strings.ToUpper(items[i]) {
			t.Errorf("results[%d] = %+v, want index %d value %q", i, r, i, strings.ToUpper(items[i]))
		}
	}
}

func TestProcessCapturesErrorsPerSlot(t *testing.T) {
	p := NewPool[int](2)
	items := []string{"ok", "fail", "ok"}

	results := p.Process(items, func(s string) (int, error) {
		if s == "fail" {
			return 0, fmt.Errorf("broke on %s", s)
		}
		return 1, nil
	})

	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("successful slots carry errors: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Error("failing slot has no error")
	}
}

func TestProcessRunsConcurrently(t *testing.T) {
	p := NewPool[int](4)
	items := make([]string, 16)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}

	var current, peak int64
	p.Process(items, func(s string) (int, error) {
		c := atomic.AddInt64(&current, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if c <= old || atomic.CompareAndSwapInt64(&peak, old, c) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return 0, nil
	})

	if atomic.LoadInt64(&peak) < 2 {
		t.Errorf("peak concurrency = %d, want at least 2", peak)
	}
}

func TestProcessMoreWorkersThanItems(t *testing.T) {
	p := NewPool[string](64)
	results := p.Process([]string{"x", "y"}, func(s string) (string, error) {
		return s + "!", nil
	})
	if len(results) != 2 || results[0].Value != "x!" || results[1].Value != "y!" {
		t.Errorf("results = %+v", results)
	}
}
