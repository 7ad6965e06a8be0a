package main

import (
	"sync/atomic"
	"time"
)

// LiveView buffers the states of one subscribed query for a slow reader.
// When the buffer is full the oldest state is dropped, the latest always wins.
type LiveView struct {
	updates chan QueryState
	sub     *Subscription
	dropped atomic.Uint64
}

// NewLiveView returns a view with room for buffer pending states.
func NewLiveView(buffer int) *LiveView {
	if buffer < 1 {
		buffer = 1
	}
	return &LiveView{updates: make(chan QueryState, buffer)}
}

// Listener is registered on the cache. Calls are serialized by the cache.
func (lv *LiveView) Listener() Listener {
	return func(state QueryState) {
		for {
			select {
			case lv.updates <- state:
				return
			default:
			}
			select {
			case <-lv.updates:
				lv.dropped.Add(1)
			default:
			}
		}
	}
}

// Attach binds the view to the subscription it is fed by.
func (lv *LiveView) Attach(sub *Subscription) {
	lv.sub = sub
}

// Updates delivers the buffered states in order.
func (lv *LiveView) Updates() <-chan QueryState {
	return lv.updates
}

// Dropped counts the states skipped because the reader lagged.
func (lv *LiveView) Dropped() uint64 {
	return lv.dropped.Load()
}

// Close unsubscribes the view. Pending states stay readable.
func (lv *LiveView) Close() {
	if lv.sub != nil {
		lv.sub.Unsubscribe()
	}
}

// ViewEvent is the payload streamed to live view clients.
type ViewEvent struct {
	Key       QueryKey    `json:"key"`
	Version   uint64      `json:"version"`
	Status    QueryStatus `json:"status"`
	Fetching  bool        `json:"fetching"`
	Stale     bool        `json:"stale"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt *time.Time  `json:"updatedAt,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	View      *PageView   `json:"view,omitempty"`
}

// NewViewEvent converts a cache state into a client event. List payloads
// get their pagination block attached.
func NewViewEvent(state QueryState, errMessage func(error) string) ViewEvent {
	ev := ViewEvent{
		Key:      state.Key,
		Version:  state.Version,
		Status:   state.Status,
		Fetching: state.Fetching,
		Stale:    state.Stale,
		Data:     state.Data,
	}
	if !state.UpdatedAt.IsZero() {
		at := state.UpdatedAt
		ev.UpdatedAt = &at
	}
	if state.Err != nil {
		ev.Error = errMessage(state.Err)
	}

	switch data := state.Data.(type) {
	case BooksResponse:
		ev.View = NewBooksPageView(data.Pagination)
	case BorrowSummaryResponse:
		ev.View = NewSummaryPageView(data.Pagination)
	}
	return ev
}
