package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// liveHeartbeat is the interval of the comment lines keeping idle streams open.
const liveHeartbeat = 15 * time.Second

// LiveBooks streams the states of a books list query as server-sent events.
func (api *APIHandler) LiveBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := ParseBooksView(r.URL.Query())
	api.streamView(w, r, func(l Listener) (*Subscription, error) {
		return api.library.WatchBooks(q, l), nil
	})
}

// LiveBook streams the states of a single book query.
func (api *APIHandler) LiveBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	api.streamView(w, r, func(l Listener) (*Subscription, error) {
		return api.library.WatchBook(id, l)
	})
}

// LiveBorrowSummary streams the states of a borrow summary page.
func (api *APIHandler) LiveBorrowSummary(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := ParsePageQuery(r.URL.Query())
	api.streamView(w, r, func(l Listener) (*Subscription, error) {
		return api.library.WatchBorrowSummary(q, l), nil
	})
}

// streamView keeps the query mounted for as long as the client stays connected.
//
//nolint:bodyclose
func (api *APIHandler) streamView(w http.ResponseWriter, r *http.Request, watch func(Listener) (*Subscription, error)) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	rc := http.NewResponseController(w)

	view := NewLiveView(api.config.Cache.LiveBuffer)
	sub, err := watch(view.Listener())
	if err != nil {
		api.sendError(w, r, err, "failed to open live view")
		return
	}
	view.Attach(sub)
	defer view.Close()

	logger := api.logger.With(zap.String("request.id", requestID), zap.String("view.key", string(sub.Key())))

	// the stream outlives the server write timeout.
	if err = rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("http: failed to clear the write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err = rc.Flush(); err != nil {
		logger.Error("http: live view streaming not supported", zap.Error(err))
		return
	}
	logger.Info("live view opened", zap.String("view.subscription", sub.ID()))

	heartbeat := time.NewTicker(liveHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("live view closed", zap.Uint64("view.dropped", view.Dropped()))
			return
		case <-api.closing:
			logger.Info("live view closed by server shutdown")
			return
		case <-heartbeat.C:
			if _, err = fmt.Fprint(w, ": ping\n\n"); err == nil {
				err = rc.Flush()
			}
		case state := <-view.Updates():
			err = writeEvent(w, state)
			if err == nil {
				err = rc.Flush()
			}
		}
		if err != nil {
			logger.Warn("live view write failed", zap.Error(err))
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, state QueryState) error {
	payload, err := jsonCodec.Marshal(NewViewEvent(state, userMessage))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", state.Version, state.Status, payload)
	return err
}
