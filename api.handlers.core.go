package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

var EmptyData = struct{}{}

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// Maintenance holds app maintenance mode infos.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger     *zap.Logger
	config     *Config
	stats      *Statistics
	mode       *Maintenance
	clock      Clocker
	idsHandler UIDHandler
	library    LibraryServiceProvider
	closing    chan struct{}
	closeOnce  sync.Once
}

// NewAPIHandler provides a new instance of APIHandler.
func NewAPIHandler(logger *zap.Logger, config *Config, stats *Statistics, clock Clocker, idsHandler UIDHandler, ls LibraryServiceProvider) *APIHandler {
	m := &Maintenance{}
	m.enabled.Store(false)
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:     logger,
		config:     config,
		stats:      stats,
		mode:       m,
		clock:      clock,
		idsHandler: idsHandler,
		library:    ls,
		closing:    make(chan struct{}),
	}
}

// CloseLiveViews ends every open live view stream. It is called on server shutdown.
func (api *APIHandler) CloseLiveViews() {
	api.closeOnce.Do(func() {
		close(api.closing)
	})
}

// NotFound provides the handler used by the router for unknown routes.
func (api *APIHandler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
		errResp := NewAPIError(requestID, http.StatusNotFound, "the requested resource does not exist.", EmptyData)
		if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
			api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
		}
	})
}

// errorResponse maps a service failure onto the status and message sent back.
// Gateway rejections keep the upstream status and message.
func errorResponse(requestID string, err error, fallback string) *APIError {
	var verr *ValidationError
	var gerr *GatewayError

	switch {
	case errors.As(err, &verr):
		return NewAPIError(requestID, http.StatusBadRequest, ErrValidation.Error(), verr.Fields)
	case errors.Is(err, ErrMissingBookID):
		return NewAPIError(requestID, http.StatusBadRequest, err.Error(), EmptyData)
	case errors.Is(err, ErrInvalidRequestBody):
		return NewAPIError(requestID, http.StatusBadRequest, ErrInvalidRequestBody.Error(), EmptyData)
	case errors.As(err, &gerr):
		return NewAPIError(requestID, gerr.HTTPStatus(), gerr.UserMessage(fallback), EmptyData)
	case errors.Is(err, context.DeadlineExceeded):
		return NewAPIError(requestID, http.StatusGatewayTimeout, fallback, EmptyData)
	default:
		return NewAPIError(requestID, http.StatusInternalServerError, fallback, EmptyData)
	}
}

// userMessage is the text shown to live view clients for a failed query.
func userMessage(err error) string {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.UserMessage("Failed to load data. Please try again.")
	}
	return "Failed to load data. Please try again."
}

// sendError logs the failure and writes the mapped error response.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, err error, msg string, fields ...zap.Field) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	api.logger.Error(msg, append(fields, zap.String("request.id", requestID), zap.Error(err))...)
	errResp := errorResponse(requestID, err, msg)
	if werr := WriteErrorResponse(r.Context(), w, errResp); werr != nil {
		api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(werr))
	}
}

// sendResponse writes a success response.
func (api *APIHandler) sendResponse(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send response", zap.String("request.id", resp.RequestID), zap.Error(err))
	}
}

// OpsHandlerWrapper adapts a standard handler to the router.
func (api *APIHandler) OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}
