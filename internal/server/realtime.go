package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/syncjob"
)

const (
	EventCatalogUpdated = "catalog-updated"
	eventHeartbeat      = "heartbeat"
	eventBufferSize     = 16
)

// CatalogEvent announces a committed synchronization to connected browsers.
type CatalogEvent struct {
	EventType string
	RunID     string
	Report    opportunities.SyncReport
	Timestamp time.Time
}

// CatalogEvents fans catalog events out to every subscriber. Slow subscribers
// miss events rather than block the publisher.
type CatalogEvents struct {
	mu          sync.RWMutex
	subscribers map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan CatalogEvent
}

func NewCatalogEvents() *CatalogEvents {
	return &CatalogEvents{
		subscribers: make(map[int64]*eventSubscriber),
		bufferSize:  eventBufferSize,
	}
}

// Subscribe registers a stream that lives until ctx is done or cleanup is called.
func (d *CatalogEvents) Subscribe(ctx context.Context) (<-chan CatalogEvent, func()) {
	subscriber := &eventSubscriber{stream: make(chan CatalogEvent, d.bufferSize)}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		delete(d.subscribers, subscriber.id)
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *CatalogEvents) Publish(event CatalogEvent) {
	if event.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*eventSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// NotifyCatalogUpdated publishes a catalog-updated event for a committed run.
func (d *CatalogEvents) NotifyCatalogUpdated(run syncjob.SyncRun) {
	timestamp := run.FinishedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	d.Publish(CatalogEvent{
		EventType: EventCatalogUpdated,
		RunID:     run.RunID,
		Report:    run.Report(),
		Timestamp: timestamp.UTC(),
	})
}

// SubscriberCount reports the number of open streams.
func (d *CatalogEvents) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
