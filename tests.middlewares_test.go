package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMiddlewareTestAPI(validIDs bool) *APIHandler {
	clock := NewMockClocker()
	return NewAPIHandler(zap.NewNop(), &Config{}, &Statistics{started: clock.Now()}, clock, NewMockUIDHandler("1", validIDs), nil)
}

// TestMiddlewaresStacks ensures we get both public and ops middlewares
// stacks with exact number of elements in those stacks.
func TestMiddlewaresStacks(t *testing.T) {
	api := newMiddlewareTestAPI(true)
	pub, ops := api.MiddlewaresStacks()
	assert.Equal(t, 7, len(*pub))
	assert.Equal(t, 6, len(*ops))
}

// TestChain ensures each middleware in the stack is called as well the handler.
func TestChain(t *testing.T) {
	var ca, cb, cc, ch bool
	queue := make(chan int, 4)

	middlewareA := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 1
			ca = true
			next(w, r, ps)
		}
	}
	middlewareB := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 2
			cb = true
			next(w, r, ps)
		}
	}
	middlewareC := func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			queue <- 3
			cc = true
			next(w, r, ps)
		}
	}
	middlewares := Middlewares{
		middlewareA,
		middlewareB,
		middlewareC,
	}

	handler := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		queue <- 4
		ch = true
	}

	chained := (&middlewares).Chain(handler)
	req := httptest.NewRequest("GET", "/books", nil)
	w := httptest.NewRecorder()
	chained(w, req, nil)

	t.Run("check calling", func(t *testing.T) {
		assert.Equal(t, true, ca)
		assert.Equal(t, true, cb)
		assert.Equal(t, true, cc)
		assert.Equal(t, true, ch)
	})

	t.Run("check ordering", func(t *testing.T) {
		assert.Equal(t, 1, <-queue)
		assert.Equal(t, 2, <-queue)
		assert.Equal(t, 3, <-queue)
		assert.Equal(t, 4, <-queue)
	})
}

// TestRequestsCounterMiddleware ensures the request counter increment.
func TestRequestsCounterMiddleware(t *testing.T) {
	api := newMiddlewareTestAPI(true)
	req := httptest.NewRequest("GET", "/books", nil)
	w := httptest.NewRecorder()
	var num uint64
	handler := func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		num = GetRequestNumberFromContext(req.Context())
	}
	wrapped := api.RequestsCounterMiddleware(handler)
	wrapped(w, req, nil)
	wrapped(w, req, nil)
	assert.Equal(t, uint64(2), num)
	assert.Equal(t, uint64(2), api.stats.called)
}

// TestRequestIDMiddleware ensures a valid caller id is kept and echoed back.
func TestRequestIDMiddleware(t *testing.T) {
	var gotID string
	var gotLogger bool
	handler := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gotID = GetValueFromContext(r.Context(), RequestIDContextKey)
		_, gotLogger = r.Context().Value(LoggerContextKey).(*zap.Logger)
	}

	t.Run("should pass: caller id kept", func(t *testing.T) {
		api := newMiddlewareTestAPI(true)
		req := httptest.NewRequest(http.MethodGet, "/books", nil)
		req.Header.Set(RequestIDHeader, "r:caller")
		w := httptest.NewRecorder()
		api.RequestIDMiddleware(handler)(w, req, nil)
		assert.Equal(t, "r:caller", gotID)
		assert.Equal(t, "r:caller", w.Header().Get(RequestIDHeader))
		assert.True(t, gotLogger)
	})

	t.Run("should pass: invalid id replaced", func(t *testing.T) {
		api := newMiddlewareTestAPI(false)
		req := httptest.NewRequest(http.MethodGet, "/books", nil)
		req.Header.Set(RequestIDHeader, "garbage")
		w := httptest.NewRecorder()
		api.RequestIDMiddleware(handler)(w, req, nil)
		assert.Equal(t, "r:1", gotID)
		assert.Equal(t, "r:1", w.Header().Get(RequestIDHeader))
	})
}

// TestStatsMiddleware ensures sent status codes are counted.
func TestStatsMiddleware(t *testing.T) {
	api := newMiddlewareTestAPI(true)
	handler := api.StatsMiddleware(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		cw, ok := w.(*CustomResponseWriter)
		assert.True(t, ok)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
		assert.Equal(t, 3, cw.Bytes())
	})
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books", nil), nil)
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books", nil), nil)
	assert.Equal(t, uint64(2), api.stats.status[http.StatusTeapot])
}

// TestPanicRecoveryMiddleware ensures a panicking handler produces a 500 response.
func TestPanicRecoveryMiddleware(t *testing.T) {
	api := newMiddlewareTestAPI(true)

	t.Run("should pass: panic recovered", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.PanicRecoveryMiddleware(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			panic("boom")
		})(w, httptest.NewRequest(http.MethodGet, "/books", nil), nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "failed to process the request.")
	})

	t.Run("should pass: abort handler panic propagated", func(t *testing.T) {
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			api.PanicRecoveryMiddleware(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
				panic(http.ErrAbortHandler)
			})(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/live/books", nil), nil)
		})
	})
}

// TestCORSMiddleware ensures cors headers are set and the request id exposed.
func TestCORSMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	CORSMiddleware(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {})(w, httptest.NewRequest(http.MethodGet, "/books", nil), nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Equal(t, RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
}

// TestPublicStack ensures the full public chain serves a request end to end.
func TestPublicStack(t *testing.T) {
	api := newMiddlewareTestAPI(false)
	pub, _ := api.MiddlewaresStacks()
	var called bool
	handle := pub.Chain(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	handle(w, httptest.NewRequest(http.MethodGet, "/books", nil), nil)
	require.True(t, called)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "r:1", w.Header().Get(RequestIDHeader))
	assert.Equal(t, uint64(1), api.stats.status[http.StatusNoContent])
}

// TestSplitTimeoutHandler ensures live views escape the request timeout.
func TestSplitTimeoutHandler(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(100 * time.Millisecond):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	})
	h := SplitTimeoutHandler(slow, 10*time.Millisecond, "too slow", LivePrefix)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/books", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "too slow", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, LivePrefix+"books", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestSplitTimeoutHandlerProfiles ensures every unbounded prefix is honored.
func TestSplitTimeoutHandlerProfiles(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	h := SplitTimeoutHandler(slow, 10*time.Millisecond, "too slow", LivePrefix, ProfilePath, TracePath)

	for _, path := range []string{ProfilePath + "?seconds=1", TracePath, LivePrefix + "borrow-summary"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/heap", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
