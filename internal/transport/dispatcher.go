package transport

import (
	"sync"
)

// Dispatcher is a single-goroutine event loop. Events run one at a time in
// the order they were dispatched. The queue is unbounded so Dispatch never
// blocks, including when called from an event already running on the loop.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake    chan struct{}
	done    chan struct{}
	onPanic func(recovered any)
	once    sync.Once
	wg      sync.WaitGroup
}

// NewDispatcher starts a loop whose queue initially holds size events.
// onPanic, when set, receives values recovered from panicking events.
func NewDispatcher(size int, onPanic func(recovered any)) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	d := &Dispatcher{
		queue:   make([]func(), 0, size),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}

	d.wg.Add(1)
	go d.loop()

	return d
}

// Dispatch queues fn. It returns false once the dispatcher is closed.
func (d *Dispatcher) Dispatch(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops the loop and waits for the running event to return. Queued
// events that have not started are dropped. Close must not be called from
// an event running on the loop.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.queue = nil
		d.mu.Unlock()
		close(d.done)
	})
	d.wg.Wait()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			fn, ok := d.next()
			if !ok {
				break
			}
			d.run(fn)
		}
	}
}

func (d *Dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.queue) == 0 {
		return nil, false
	}
	fn := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return fn, true
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(r)
		}
	}()
	fn()
}
