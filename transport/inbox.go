package transport

import (
	"sync"

	"post-rpc/wire"
)

// inbox serializes delivery for one endpoint. Producers enqueue from any
// goroutine; a single delivery goroutine drains the queue and invokes the
// registered handlers one message at a time. The queue is unbounded so a
// handler may send from inside delivery without deadlocking.
type inbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Message
	closed   bool
	handlers map[int]Handler
	nextID   int
}

func newInbox() *inbox {
	in := &inbox{handlers: make(map[int]Handler)}
	in.cond = sync.NewCond(&in.mu)
	go in.run()
	return in
}

func (in *inbox) push(m Message) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return wire.ErrClosed
	}
	in.queue = append(in.queue, m)
	in.cond.Signal()
	return nil
}

func (in *inbox) listen(h Handler) (cancel func()) {
	in.mu.Lock()
	defer in.mu.Unlock()
	id := in.nextID
	in.nextID++
	in.handlers[id] = h
	return func() {
		in.mu.Lock()
		delete(in.handlers, id)
		in.mu.Unlock()
	}
}

func (in *inbox) listeners() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.handlers)
}

func (in *inbox) run() {
	for {
		in.mu.Lock()
		for len(in.queue) == 0 && !in.closed {
			in.cond.Wait()
		}
		if in.closed {
			in.mu.Unlock()
			return
		}
		m := in.queue[0]
		in.queue = in.queue[1:]
		handlers := make([]Handler, 0, len(in.handlers))
		for _, h := range in.handlers {
			handlers = append(handlers, h)
		}
		in.mu.Unlock()

		for _, h := range handlers {
			h(m)
		}
	}
}

func (in *inbox) close() {
	in.mu.Lock()
	in.closed = true
	in.queue = nil
	in.cond.Broadcast()
	in.mu.Unlock()
}
