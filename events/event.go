package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize      = 20
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 4
)

type EventType string

type SubscriberID int

type HandlerFunc func(Event)

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	FractalID int       `json:"fractal_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func NewEvent(eventType EventType, fractalID int, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		FractalID: fractalID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type asyncEvent struct {
	eventType EventType
	event     Event
}

// Subscriber receives events from the bus. Close must be idempotent.
type Subscriber interface {
	Deliver(Event) error
	Close()
}

// EventBus fans domain events out to subscribers. Publishing never fails the
// caller: a subscriber whose delivery errors or panics is dropped.
type EventBus struct {
	subscribers map[EventType]map[SubscriberID]Subscriber
	metrics     *busMetrics
	lastSubID   SubscriberID
	mu          sync.RWMutex
	logger      *slog.Logger

	asyncQueue chan asyncEvent
	asyncWg    sync.WaitGroup
	stopCh     chan struct{}
	stopped    bool
	stopMu     sync.RWMutex
}

func NewEventBus(promRegistry prometheus.Registerer, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[SubscriberID]Subscriber),
		logger:      logger,
		asyncQueue:  make(chan asyncEvent, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		e.metrics = newBusMetrics(promRegistry)
	}
	for range AsyncWorkerPoolSize {
		e.asyncWg.Add(1)
		go e.asyncWorker()
	}
	return e
}

func (e *EventBus) asyncWorker() {
	defer e.asyncWg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case ae := <-e.asyncQueue:
			e.Publish(ae.eventType, ae.event)
		}
	}
}

type channelSubscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func newChannelSubscriber(buffer int) *channelSubscriber {
	return &channelSubscriber{ch: make(chan Event, buffer)}
}

func (c *channelSubscriber) Deliver(evt Event) (err error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil
	}
	defer c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel deliver panic: %v", r)
		}
	}()

	c.ch <- evt
	return nil
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

func (e *EventBus) register(eventType EventType, sub Subscriber, kind string) SubscriberID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubID++
	id := e.lastSubID
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[SubscriberID]Subscriber)
	}
	e.subscribers[eventType][id] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), kind).Inc()
	}
	return id
}

// Subscribe returns a channel receiving events of one type.
func (e *EventBus) Subscribe(eventType EventType) (SubscriberID, <-chan Event) {
	sub := newChannelSubscriber(EventQueueSize)
	return e.register(eventType, sub, "channel"), sub.ch
}

// SubscribeFunc runs handler on its own goroutine for each event of the type.
func (e *EventBus) SubscribeFunc(eventType EventType, handler HandlerFunc) SubscriberID {
	id, ch := e.Subscribe(eventType)
	go func() {
		for evt := range ch {
			handler(evt)
		}
	}()
	return id
}

// RegisterSubscriber attaches an adapter such as the websocket hub.
func (e *EventBus) RegisterSubscriber(eventType EventType, sub Subscriber) SubscriberID {
	return e.register(eventType, sub, "adapter")
}

func (e *EventBus) Unsubscribe(eventType EventType, id SubscriberID) {
	e.mu.Lock()
	var toClose Subscriber
	if subs, ok := e.subscribers[eventType]; ok {
		if sub, ok := subs[id]; ok {
			toClose = sub
			delete(subs, id)
			if len(subs) == 0 {
				delete(e.subscribers, eventType)
			}
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType), subscriberKind(sub)).Dec()
			}
		}
	}
	e.mu.Unlock()

	if toClose != nil {
		toClose.Close()
	}
}

func subscriberKind(sub Subscriber) string {
	if _, ok := sub.(*channelSubscriber); ok {
		return "channel"
	}
	return "adapter"
}

// Publish delivers evt synchronously to every subscriber of eventType.
func (e *EventBus) Publish(eventType EventType, evt Event) {
	type subItem struct {
		id  SubscriberID
		sub Subscriber
	}
	e.mu.RLock()
	subs := e.subscribers[eventType]
	items := make([]subItem, 0, len(subs))
	for id, sub := range subs {
		items = append(items, subItem{id: id, sub: sub})
	}
	e.mu.RUnlock()

	for _, item := range items {
		var deliverErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					deliverErr = fmt.Errorf("subscriber deliver panic: %v", r)
				}
			}()
			deliverErr = item.sub.Deliver(evt)
		}()

		if deliverErr != nil {
			e.Unsubscribe(eventType, item.id)
			if e.metrics != nil {
				e.metrics.deliveryErrors.WithLabelValues(string(eventType), subscriberKind(item.sub)).Inc()
			}
			e.logger.Warn("event delivery failed, subscriber removed",
				slog.String("type", string(eventType)),
				slog.Any("error", deliverErr),
			)
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// PublishAsync enqueues evt and returns immediately. It reports false when
// the bus is stopped or the queue is full; the event is dropped then.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return false
	}

	select {
	case e.asyncQueue <- asyncEvent{eventType: eventType, event: evt}:
		return true
	default:
		e.logger.Warn("async event queue full, dropping event", slog.String("type", string(eventType)))
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), "async-dropped").Inc()
		}
		return false
	}
}

// Stop drains the worker pool and closes every subscriber. The bus does not
// accept events afterwards.
func (e *EventBus) Stop() {
	e.stopMu.Lock()
	if e.stopped {
		e.stopMu.Unlock()
		return
	}
	e.stopped = true
	e.stopMu.Unlock()

	close(e.stopCh)
	e.asyncWg.Wait()

	// events still queued are delivered before subscribers go away
drain:
	for {
		select {
		case ae := <-e.asyncQueue:
			e.Publish(ae.eventType, ae.event)
		default:
			break drain
		}
	}

	e.mu.Lock()
	subs := e.subscribers
	e.subscribers = make(map[EventType]map[SubscriberID]Subscriber)
	e.mu.Unlock()

	for _, byID := range subs {
		for _, sub := range byID {
			sub.Close()
		}
	}
	if e.metrics != nil {
		e.metrics.subscribers.Reset()
	}
}
