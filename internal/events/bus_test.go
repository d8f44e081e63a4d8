package events

import (
	"sync"
	"testing"
	"time"

	"moex-panic-scanner/internal/detector"
)

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	eb := NewEventBus()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})

	eb.Subscribe(EventSignalDetected, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		close(done)
	})

	eb.PublishSignal(&detector.PanicSignal{Instrument: "SBER", FinalLevel: detector.LevelRed})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Data["instrument"] != "SBER" || got[0].Data["level"] != "red" {
		t.Errorf("unexpected event data: %v", got[0].Data)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("publish should stamp the event")
	}
}

func TestSubscriberDoesNotReceiveOtherTypes(t *testing.T) {
	eb := NewEventBus()

	received := make(chan Event, 1)
	eb.Subscribe(EventScanCompleted, func(e Event) { received <- e })

	eb.PublishMarketStatus(false, "weekend")

	select {
	case e := <-received:
		t.Fatalf("subscriber received unrelated event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	eb := NewEventBus()

	var count int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)
	eb.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
		wg.Done()
	})

	eb.PublishScanStarted("scan-1", 10)
	eb.PublishScanCompleted("scan-1", 10, 2, time.Second)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("all-subscriber received %d events, want 2", count)
	}
}
