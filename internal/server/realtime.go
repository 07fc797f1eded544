package server

import (
	"context"
	"sync"

	"github.com/wardview/backend/internal/dashboard"
)

const (
	realtimeEventRiskUpdate = "risk-update"
	realtimeEventHeartbeat  = "heartbeat"
)

// RealtimeDispatcher fans completed risk updates out to connected dashboard
// streams. Publishing never blocks; a subscriber that falls behind its
// buffer misses the update and catches up on the next roster read.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan dashboard.RiskUpdate
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that receives every published risk update
// until the context is cancelled or the cleanup function runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan dashboard.RiskUpdate, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan dashboard.RiskUpdate, d.bufferSize),
	}

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

// Publish delivers the update to every live subscriber without blocking.
func (d *RealtimeDispatcher) Publish(update dashboard.RiskUpdate) {
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- update:
		default:
		}
	}
}
