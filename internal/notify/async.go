package notify

import (
	"context"
	"sync"
	"time"

	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

// Observer is told the outcome of every event handled by Async.
type Observer interface {
	ObserveNotification(eventType, status string)
}

// Async queues events on a bounded channel and delivers them from a
// background goroutine. When the queue is full the event is dropped.
type Async struct {
	sink     Sink
	logger   *logging.Logger
	observer Observer
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

func NewAsync(sink Sink, buffer int, logger *logging.Logger, observer Observer) *Async {
	if logger == nil {
		logger = logging.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink:     sink,
		logger:   logger.With("notify"),
		observer: observer,
		timeout:  5 * time.Second,
		queue:    make(chan Event, buffer),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Dispatch never blocks. Events dispatched after Close are dropped.
func (a *Async) Dispatch(_ context.Context, ev Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.observe(ev.Type, "dropped")
		a.logger.Warn().
			Str("event", string(ev.Type)).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("notifier closed, dropping event")
		return
	}
	select {
	case a.queue <- ev:
		a.observe(ev.Type, "queued")
	default:
		a.observe(ev.Type, "dropped")
		a.logger.Warn().
			Str("event", string(ev.Type)).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("notification queue full, dropping event")
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for ev := range a.queue {
		a.deliver(ev)
	}
}

func (a *Async) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.sink.Send(ctx, ev); err != nil {
		a.observe(ev.Type, "failed")
		a.logger.Error().Err(err).
			Str("event", string(ev.Type)).
			Str("appointment_id", ev.AppointmentID.String()).
			Msg("notification delivery failed")
		return
	}
	a.observe(ev.Type, "delivered")
}

func (a *Async) observe(eventType EventType, status string) {
	if a.observer != nil {
		a.observer.ObserveNotification(string(eventType), status)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	a.wg.Wait()
}
