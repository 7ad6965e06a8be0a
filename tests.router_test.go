package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubLibraryService answers every call with an empty successful payload.
func stubLibraryService(cache *QueryCache) *MockLibraryService {
	return &MockLibraryService{
		ListBooksFunc: func(ctx context.Context, q BooksQuery) (BooksResponse, error) {
			return BooksResponse{Success: true}, nil
		},
		GetBookFunc: func(ctx context.Context, id string) (BookResponse, error) {
			return BookResponse{Success: true, Data: Book{ID: id}}, nil
		},
		BorrowSummaryFunc: func(ctx context.Context, q PageQuery, refresh bool) (BorrowSummaryResponse, error) {
			return BorrowSummaryResponse{Success: true}, nil
		},
		CreateBookFunc: func(ctx context.Context, form BookForm) (BookResponse, error) {
			return BookResponse{Success: true}, nil
		},
		UpdateBookFunc: func(ctx context.Context, id string, form BookForm) (BookResponse, error) {
			return BookResponse{Success: true}, nil
		},
		DeleteBookFunc: func(ctx context.Context, id string) (DeleteResponse, error) {
			return DeleteResponse{Success: true}, nil
		},
		BorrowBookFunc: func(ctx context.Context, bookID string, form BorrowForm) (BorrowResponse, error) {
			return BorrowResponse{Success: true}, nil
		},
		MutationsFunc: func(ctx context.Context, limit int) ([]Mutation, error) {
			return nil, nil
		},
		WatchFunc: func(key QueryKey, listener Listener) (*Subscription, error) {
			fetch := func(ctx context.Context) (interface{}, error) { return nil, nil }
			return cache.Subscribe(key, nil, fetch, listener), nil
		},
	}
}

func newTestRouter(t *testing.T, config *Config) http.Handler {
	t.Helper()
	cache := NewQueryCache(zap.NewNop(), NewMockClocker(), NewIDsHandler(), time.Minute)
	t.Cleanup(cache.Close)
	clock := NewMockClocker()
	api := NewAPIHandler(zap.NewNop(), config, &Statistics{started: clock.Now()}, clock, NewMockUIDHandler("1", true), stubLibraryService(cache))
	t.Cleanup(api.CloseLiveViews)
	m := &MiddlewareMap{public: (&Middlewares{}).Chain, ops: (&Middlewares{}).Chain}
	return api.SetupRoutes(httprouter.New(), m)
}

// cancelledRequest builds a request whose context is already done so
// live views return as soon as they are opened.
func cancelledRequest(method, target string) *http.Request {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return httptest.NewRequest(method, target, nil).WithContext(ctx)
}

// TestRouter ensures all expected routes are implemented and unknown ones are not.
func TestRouter(t *testing.T) {
	router := newTestRouter(t, &Config{OpsEndpointsEnable: true, ProfilerEnable: true, Cache: CacheConfig{LiveBuffer: 2}})

	testCases := []struct {
		name        string
		request     *http.Request
		implemented bool
	}{
		{"index", httptest.NewRequest(http.MethodGet, "/", nil), true},
		{"status", httptest.NewRequest(http.MethodGet, "/status", nil), true},
		{"list books", httptest.NewRequest(http.MethodGet, "/books?page=2&genre=FANTASY", nil), true},
		{"get book", httptest.NewRequest(http.MethodGet, "/books/b1", nil), true},
		{"delete book", httptest.NewRequest(http.MethodDelete, "/books/b1", nil), true},
		{"create book", httptest.NewRequest(http.MethodPost, "/create-book", strings.NewReader(`{}`)), true},
		{"edit book", httptest.NewRequest(http.MethodPatch, "/edit-book/b1", strings.NewReader(`{}`)), true},
		{"borrow book", httptest.NewRequest(http.MethodPost, "/borrow/b1", strings.NewReader(`{}`)), true},
		{"borrow summary", httptest.NewRequest(http.MethodGet, "/borrow-summary", nil), true},
		{"live books", cancelledRequest(http.MethodGet, "/live/books"), true},
		{"live book", cancelledRequest(http.MethodGet, "/live/books/b1"), true},
		{"live borrow summary", cancelledRequest(http.MethodGet, "/live/borrow-summary"), true},
		{"swagger", httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil), true},
		{"ops configs", httptest.NewRequest(http.MethodGet, "/ops/configs", nil), true},
		{"ops stats", httptest.NewRequest(http.MethodGet, "/ops/stats", nil), true},
		{"ops cache", httptest.NewRequest(http.MethodGet, "/ops/cache", nil), true},
		{"ops mutations", httptest.NewRequest(http.MethodGet, "/ops/mutations", nil), true},
		{"ops maintenance", httptest.NewRequest(http.MethodGet, "/ops/maintenance?status=show", nil), true},
		{"ops memstats", httptest.NewRequest(http.MethodGet, "/ops/debug/vars", nil), true},
		{"ops gc", httptest.NewRequest(http.MethodGet, "/ops/debug/gc", nil), true},
		{"ops free os memory", httptest.NewRequest(http.MethodGet, "/ops/debug/fos", nil), true},
		{"ops pprof index", httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/", nil), true},
		{"ops pprof heap", httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/heap", nil), true},
		{"unknown", httptest.NewRequest(http.MethodGet, "/authors", nil), false},
		{"nested book path", httptest.NewRequest(http.MethodGet, "/books/b1/copies", nil), false},
		{"unknown live view", httptest.NewRequest(http.MethodGet, "/live/authors", nil), false},
		{"unknown ops", httptest.NewRequest(http.MethodGet, "/ops/unknown", nil), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tc.request)
			if tc.implemented {
				assert.NotEqual(t, http.StatusNotFound, w.Code)
			} else {
				assert.Equal(t, http.StatusNotFound, w.Code)
			}
		})
	}
}

// TestRouterOpsDisabled ensures ops endpoints are not exposed unless enabled.
func TestRouterOpsDisabled(t *testing.T) {
	router := newTestRouter(t, &Config{Cache: CacheConfig{LiveBuffer: 2}})
	for _, path := range []string{"/ops/configs", "/ops/stats", "/ops/cache", "/ops/debug/pprof/"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/books", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestNotFoundHandler ensures unknown paths get the json error envelope.
func TestNotFoundHandler(t *testing.T) {
	router := newTestRouter(t, &Config{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authors", nil))
	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "application/json")
	body := decodeBody(t, res)
	assert.Equal(t, "the requested resource does not exist.", body["message"])
}
