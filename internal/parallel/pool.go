// Package parallel executes compute workgroups on a pool of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Group identifies one workgroup of a dispatch.
type Group struct {
	X, Y, Z uint32
}

// Pool is a pool of goroutines that executes the workgroups of a dispatch.
//
// Each worker has its own queue of batches and steals from other workers
// when its queue is empty, which keeps the pool busy when some workgroups
// are slower than others (for example the integrate kernels, whose cost
// depends on the column length).
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int

	// queues holds per-worker batch queues.
	queues []chan func()

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool creates a pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	mine := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(mine)
			return
		case work := <-mine:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				drain(mine)
				return
			case work := <-mine:
				work()
			}
		}
	}
}

func drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *Pool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run executes every function and waits for all of them to complete.
// On a closed pool the functions run on the calling goroutine.
func (p *Pool) Run(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var pending sync.WaitGroup
	pending.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer pending.Done()
			fn()
		}
		select {
		case p.queues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	pending.Wait()
}

// Dispatch calls fn once for every workgroup of an x*y*z grid and returns
// after all workgroups have finished. Workgroups are batched so each worker
// receives a few contiguous ranges rather than one closure per group.
func (p *Pool) Dispatch(x, y, z uint32, fn func(Group)) {
	total := uint64(x) * uint64(y) * uint64(z)
	if total == 0 {
		return
	}

	batches := uint64(p.workers) * 4
	if batches > total {
		batches = total
	}
	size := (total + batches - 1) / batches

	work := make([]func(), 0, batches)
	for start := uint64(0); start < total; start += size {
		end := min(start+size, total)
		work = append(work, func() {
			for i := start; i < end; i++ {
				fn(groupAt(i, x, y))
			}
		})
	}
	p.Run(work)
}

// groupAt converts a linear workgroup index to grid coordinates, x fastest.
func groupAt(i uint64, x, y uint32) Group {
	gx := i % uint64(x)
	gy := (i / uint64(x)) % uint64(y)
	gz := i / (uint64(x) * uint64(y))
	return Group{X: uint32(gx), Y: uint32(gy), Z: uint32(gz)} //nolint:gosec // bounded by the grid
}

// Close stops the pool after queued work completes.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int {
	return p.workers
}

// IsRunning returns true until Close is called.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}
