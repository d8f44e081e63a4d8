package events

import (
	"sync"
	"time"

	"moex-panic-scanner/internal/detector"
)

// EventType enumerates the scanner's event kinds.
type EventType string

const (
	EventSignalDetected EventType = "SIGNAL_DETECTED"
	EventScanStarted    EventType = "SCAN_STARTED"
	EventScanCompleted  EventType = "SCAN_COMPLETED"
	EventMarketStatus   EventType = "MARKET_STATUS"
	EventError          EventType = "ERROR"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles a published event.
type Subscriber func(Event)

// EventBus fans events out to subscribers. Delivery is asynchronous so slow
// consumers never block the scan loop.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish delivers an event to all matching subscribers.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a detected signal.
func (eb *EventBus) PublishSignal(s *detector.PanicSignal) {
	eb.Publish(Event{
		Type: EventSignalDetected,
		Data: map[string]interface{}{
			"signal":     s,
			"instrument": s.Instrument,
			"level":      string(s.FinalLevel),
		},
	})
}

// PublishScanStarted marks the beginning of a scan tick.
func (eb *EventBus) PublishScanStarted(scanID string, instruments int) {
	eb.Publish(Event{
		Type: EventScanStarted,
		Data: map[string]interface{}{
			"scan_id":     scanID,
			"instruments": instruments,
		},
	})
}

// PublishScanCompleted marks the end of a scan tick.
func (eb *EventBus) PublishScanCompleted(scanID string, scanned, signalsFound int, took time.Duration) {
	eb.Publish(Event{
		Type: EventScanCompleted,
		Data: map[string]interface{}{
			"scan_id":       scanID,
			"scanned":       scanned,
			"signals_found": signalsFound,
			"took_ms":       took.Milliseconds(),
		},
	})
}

// PublishMarketStatus publishes an open/closed transition.
func (eb *EventBus) PublishMarketStatus(open bool, reason string) {
	eb.Publish(Event{
		Type: EventMarketStatus,
		Data: map[string]interface{}{
			"open":   open,
			"reason": reason,
		},
	})
}

// PublishError publishes a component error.
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventError, Data: data})
}
