// Package bus provides the single-lane event dispatcher that serializes every
// state mutation in notehunt.
//
// Producers on any goroutine call Publish; one delivery goroutine hands each
// event to the handlers registered for its concrete type, in publish order.
// Handlers are registered with the generic Subscribe function:
//
//	d := bus.New(bus.Options{QueueSize: 1024})
//	bus.Subscribe(d, "state.changes", func(ctx context.Context, ev events.FileChanged) error {
//	    return table.ApplyChange(ctx, ev.Change, scanner.Observe)
//	})
//	d.Start(ctx)
//	defer d.Stop()
//
// Events are not persisted. A handler registered after an event was published
// never sees that event.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
)

// DefaultQueueSize is the intake capacity used when Options.QueueSize is zero.
const DefaultQueueSize = 1024

// Options configures a Dispatcher.
type Options struct {
	// QueueSize bounds the number of events waiting for delivery.
	// Publish blocks while the queue is full.
	QueueSize int
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Failed      uint64
	Unhandled   uint64
	QueueLength int
}

type subscription struct {
	name string
	fn   func(ctx context.Context, event any) error
}

// envelope is one queue slot. Exactly one of event and barrier is set.
type envelope struct {
	event   any
	barrier chan struct{}
}

// Dispatcher delivers published events to typed handlers on a single
// goroutine. It is safe for concurrent use.
type Dispatcher struct {
	queue chan envelope

	handlersMu sync.RWMutex
	handlers   map[reflect.Type][]subscription

	// intakeMu is held for reading by every in-flight Publish and for
	// writing while Stop closes the queue.
	intakeMu sync.RWMutex
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once

	lifecycleMu sync.Mutex
	started     bool
	doneCh      chan struct{}

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	unhandled atomic.Uint64
}

// New creates a dispatcher. Call Start to begin delivery.
func New(opts Options) *Dispatcher {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		queue:    make(chan envelope, size),
		handlers: make(map[reflect.Type][]subscription),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Subscribe registers fn for events of type E. Handlers of the same type run
// in registration order. The name appears in failure logs.
func Subscribe[E any](d *Dispatcher, name string, fn func(ctx context.Context, event E) error) {
	key := reflect.TypeFor[E]()
	sub := subscription{
		name: name,
		fn: func(ctx context.Context, event any) error {
			return fn(ctx, event.(E))
		},
	}

	d.handlersMu.Lock()
	d.handlers[key] = append(d.handlers[key], sub)
	d.handlersMu.Unlock()
}

// Start launches the delivery goroutine. Handlers receive a context carrying
// ctx's values; cancelling ctx does not stop delivery, Stop does.
// Calling Start more than once has no effect.
func (d *Dispatcher) Start(ctx context.Context) {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()
	if d.started {
		return
	}
	d.started = true

	go d.run(context.WithoutCancel(ctx))
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneCh)
	for env := range d.queue {
		d.deliver(ctx, env)
	}
}

// Publish enqueues event for delivery. It blocks only while the queue is
// full, and gives up when ctx is done. After Stop it returns an
// ErrCodeDispatcherStopped error.
func (d *Dispatcher) Publish(ctx context.Context, event any) error {
	if event == nil {
		return nherrors.New(nherrors.ErrCodeInvalidInput, "cannot publish a nil event", nil)
	}
	if err := d.enqueue(ctx, envelope{event: event}); err != nil {
		return err
	}
	d.published.Add(1)
	return nil
}

// Flush waits until every event published before the call has been handled.
func (d *Dispatcher) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := d.enqueue(ctx, envelope{barrier: barrier}); err != nil {
		return err
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, env envelope) error {
	d.intakeMu.RLock()
	defer d.intakeMu.RUnlock()

	if d.stopped {
		return errStopped()
	}

	select {
	case d.queue <- env:
		return nil
	case <-d.stopCh:
		return errStopped()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes intake, waits for every queued event to be delivered, then
// returns. If Start was never called the queue is drained on the calling
// goroutine. Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)

		d.intakeMu.Lock()
		d.stopped = true
		close(d.queue)
		d.intakeMu.Unlock()

		d.lifecycleMu.Lock()
		if !d.started {
			d.started = true
			go d.run(context.Background())
		}
		d.lifecycleMu.Unlock()
	})
	<-d.doneCh
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published:   d.published.Load(),
		Delivered:   d.delivered.Load(),
		Failed:      d.failed.Load(),
		Unhandled:   d.unhandled.Load(),
		QueueLength: len(d.queue),
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env envelope) {
	if env.barrier != nil {
		close(env.barrier)
		return
	}

	eventType := reflect.TypeOf(env.event)
	d.handlersMu.RLock()
	subs := d.handlers[eventType]
	d.handlersMu.RUnlock()

	if len(subs) == 0 {
		d.unhandled.Add(1)
		slog.Debug("event_unhandled", slog.String("type", eventType.String()))
		return
	}

	for _, sub := range subs {
		if err := d.invoke(ctx, sub, env.event); err != nil {
			d.failed.Add(1)
			slog.Error("event_handler_failed",
				slog.String("handler", sub.name),
				slog.String("type", eventType.String()),
				slog.String("error", err.Error()))
			continue
		}
		d.delivered.Add(1)
	}
}

// invoke runs one handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, sub subscription, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.fn(ctx, event)
}

func errStopped() error {
	return nherrors.New(nherrors.ErrCodeDispatcherStopped, "dispatcher is stopped", nil)
}
