package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Pool Creation Tests
// =============================================================================

func TestPool_Create(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewPool(n)
		expected := runtime.GOMAXPROCS(0)
		if pool.Workers() != expected {
			t.Errorf("NewPool(%d).Workers() = %d, want %d (GOMAXPROCS)", n, pool.Workers(), expected)
		}
		pool.Close()
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestPool_Run(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.Run(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestPool_RunEmpty(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	pool.Run(nil)
	pool.Run([]func(){})
}

func TestPool_RunAfterClose(t *testing.T) {
	pool := NewPool(2)
	pool.Close()

	ran := 0
	pool.Run([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d after Close, want 2 (inline execution)", ran)
	}
}

// =============================================================================
// Dispatch Tests
// =============================================================================

func TestPool_DispatchVisitsEveryGroupOnce(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z uint32
	}{
		{"1x1x1", 1, 1, 1},
		{"64x1x1", 64, 1, 1},
		{"35x35x1", 35, 35, 1},
		{"3x5x7", 3, 5, 7},
		{"odd", 17, 9, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(3)
			defer pool.Close()

			var mu sync.Mutex
			seen := make(map[Group]int)
			pool.Dispatch(tt.x, tt.y, tt.z, func(g Group) {
				mu.Lock()
				seen[g]++
				mu.Unlock()
			})

			want := int(tt.x * tt.y * tt.z)
			if len(seen) != want {
				t.Fatalf("visited %d groups, want %d", len(seen), want)
			}
			for g, n := range seen {
				if n != 1 {
					t.Errorf("group %+v visited %d times", g, n)
				}
				if g.X >= tt.x || g.Y >= tt.y || g.Z >= tt.z {
					t.Errorf("group %+v outside grid", g)
				}
			}
		})
	}
}

func TestPool_DispatchEmptyGrid(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	called := false
	pool.Dispatch(0, 4, 1, func(Group) { called = true })
	pool.Dispatch(4, 0, 1, func(Group) { called = true })
	if called {
		t.Error("Dispatch with an empty grid must not call fn")
	}
}

func TestPool_DispatchJoins(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var done atomic.Int64
	pool.Dispatch(16, 1, 1, func(Group) {
		time.Sleep(time.Millisecond)
		done.Add(1)
	})
	if done.Load() != 16 {
		t.Errorf("Dispatch returned with %d/16 groups finished", done.Load())
	}
}

func TestGroupAt(t *testing.T) {
	tests := []struct {
		i    uint64
		want Group
	}{
		{0, Group{0, 0, 0}},
		{3, Group{3, 0, 0}},
		{4, Group{0, 1, 0}},
		{11, Group{3, 2, 0}},
		{12, Group{0, 0, 1}},
		{23, Group{3, 2, 1}},
	}
	for _, tt := range tests {
		if got := groupAt(tt.i, 4, 3); got != tt.want {
			t.Errorf("groupAt(%d, 4, 3) = %+v, want %+v", tt.i, got, tt.want)
		}
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestPool_CloseIdempotent(t *testing.T) {
	pool := NewPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
}

func TestPool_Concurrent(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var total atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Dispatch(10, 10, 1, func(Group) { total.Add(1) })
		}()
	}
	wg.Wait()

	if total.Load() != 800 {
		t.Errorf("total = %d, want 800", total.Load())
	}
}

func TestPool_NoGoroutineLeak(t *testing.T) {
	before := runtime.NumGoroutine()

	for range 10 {
		pool := NewPool(4)
		pool.Dispatch(8, 8, 1, func(Group) {})
		pool.Close()
	}

	time.Sleep(10 * time.Millisecond)
	after := runtime.NumGoroutine()
	if after > before+2 {
		t.Errorf("goroutines before=%d after=%d, possible leak", before, after)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkPool_Dispatch1080p(b *testing.B) {
	pool := NewPool(0)
	defer pool.Close()

	var sink atomic.Int64
	b.ResetTimer()
	for range b.N {
		pool.Dispatch(240, 135, 1, func(g Group) { sink.Add(int64(g.X)) })
	}
}
