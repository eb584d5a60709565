// Package queue runs event handlers on a fixed set of workers. Tasks sharing a
// key always land on the same worker, so they execute in submission order;
// tasks with different keys run in parallel.
package queue

import (
	"sync"

	"sentinel-moderation/internal/metrics"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

type Pool struct {
	mu     sync.RWMutex
	closed bool
	shards []chan func()
	wg     sync.WaitGroup
	logger *zap.Logger
}

func New(workers, buffer int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 16
	}
	if buffer < 0 {
		buffer = 0
	}
	p := &Pool{shards: make([]chan func(), workers), logger: logger}
	for i := range p.shards {
		ch := make(chan func(), buffer)
		p.shards[i] = ch
		p.wg.Add(1)
		go p.run(ch)
	}
	return p
}

// Submit enqueues task behind earlier tasks with the same key. It blocks while
// the shard buffer is full and returns false once the pool is closed.
func (p *Pool) Submit(key string, task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.QueueDroppedTotal.Inc()
		return false
	}
	p.shards[p.shard(key)] <- task
	return true
}

// TrySubmit is Submit without waiting: it returns false when the shard buffer
// is full or the pool is closed.
func (p *Pool) TrySubmit(key string, task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.QueueDroppedTotal.Inc()
		return false
	}
	select {
	case p.shards[p.shard(key)] <- task:
		return true
	default:
		metrics.QueueDroppedTotal.Inc()
		return false
	}
}

// Pending is the number of queued, not yet started tasks.
func (p *Pool) Pending() int {
	total := 0
	for _, ch := range p.shards {
		total += len(ch)
	}
	return total
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) shard(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(p.shards)))
}

func (p *Pool) run(tasks <-chan func()) {
	defer p.wg.Done()
	for task := range tasks {
		p.execute(task)
	}
}

func (p *Pool) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
