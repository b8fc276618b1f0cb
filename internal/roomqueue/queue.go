// Package roomqueue runs work for the same room one at a time, in submission
// order, while work for different rooms runs in parallel.
package roomqueue

import (
	"context"
	"sync"
)

type lane struct {
	tasks []func()
}

// Queue is a set of per-key FIFO lanes. Each non-empty lane has exactly one
// worker goroutine, which exits once the lane drains.
type Queue struct {
	mu    sync.Mutex
	lanes map[int64]*lane
	wg    sync.WaitGroup
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{lanes: make(map[int64]*lane)}
}

// Go schedules fn on the lane of key and returns immediately.
func (q *Queue) Go(key int64, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if l, ok := q.lanes[key]; ok {
		l.tasks = append(l.tasks, fn)
		return
	}
	l := &lane{tasks: []func(){fn}}
	q.lanes[key] = l
	q.wg.Add(1)
	go q.drain(key, l)
}

// Run schedules fn on the lane of key and waits for it to finish.
// If ctx ends first Run returns ctx.Err(); fn still runs when its turn comes.
func (q *Queue) Run(ctx context.Context, key int64, fn func()) error {
	done := make(chan struct{})
	q.Go(key, func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every lane has drained.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Len returns the number of keys with pending or running work.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

func (q *Queue) drain(key int64, l *lane) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(l.tasks) == 0 {
			delete(q.lanes, key)
			q.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		q.mu.Unlock()

		fn()
	}
}
