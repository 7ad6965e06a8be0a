package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// StatusClientClosedRequest is the non standard code recorded in stats
// when the caller went away before the response was written.
const StatusClientClosedRequest = 499

// CustomResponseWriter records the status code and the body size of a
// response for the stats and the request logs. It keeps the connection
// of the request so http.ResponseController can move its deadlines, which
// the live views rely on to outlive the server write timeout.
type CustomResponseWriter struct {
	http.ResponseWriter
	conn  net.Conn
	code  int
	bytes int
	wrote bool
}

// NewCustomResponseWriter provides CustomResponseWriter with 200 as status code.
func NewCustomResponseWriter(rw http.ResponseWriter, c net.Conn) *CustomResponseWriter {
	return &CustomResponseWriter{
		ResponseWriter: rw,
		conn:           c,
		code:           http.StatusOK,
	}
}

// WriteHeader only forwards the first status code.
func (cw *CustomResponseWriter) WriteHeader(code int) {
	if cw.wrote {
		return
	}
	cw.code = code
	cw.wrote = true
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *CustomResponseWriter) Write(b []byte) (int, error) {
	if !cw.wrote {
		cw.WriteHeader(cw.code)
	}
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += n
	return n, err
}

// Status returns the written status code.
func (cw *CustomResponseWriter) Status() int {
	return cw.code
}

// Bytes returns bytes written as response body, server-sent events included.
func (cw *CustomResponseWriter) Bytes() int {
	return cw.bytes
}

// Unwrap gives http.ResponseController access to the native writer, so
// Flush reaches it directly.
func (cw *CustomResponseWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// SetWriteDeadline is called by http.ResponseController. Requests served
// without a tracked connection, as in tests, are not supported.
func (cw *CustomResponseWriter) SetWriteDeadline(t time.Time) error {
	if cw.conn == nil {
		return http.ErrNotSupported
	}
	return cw.conn.SetWriteDeadline(t)
}

func (cw *CustomResponseWriter) SetReadDeadline(t time.Time) error {
	if cw.conn == nil {
		return http.ErrNotSupported
	}
	return cw.conn.SetReadDeadline(t)
}

// APIError is the data model sent when an error occurred during request processing.
// Data carries the field messages of a rejected form.
type APIError struct {
	RequestID string      `json:"requestid"`
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

// APIResponse is the data model sent when a request succeed.
// Pagination and View are only set on list responses, Meta on the books list.
type APIResponse struct {
	RequestID  string         `json:"requestid"`
	Status     int            `json:"status"`
	Message    string         `json:"message"`
	Pagination *Pagination    `json:"pagination,omitempty"`
	View       *PageView      `json:"view,omitempty"`
	Meta       *BooksListMeta `json:"meta,omitempty"`
	Data       interface{}    `json:"data"`
}

// StatusResponse is the data model sent when status endpoint is called.
type StatusResponse struct {
	RequestID string `json:"requestid"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func NewAPIError(requestid string, status int, message string, data interface{}) *APIError {
	return &APIError{
		RequestID: requestid,
		Status:    status,
		Message:   message,
		Data:      data,
	}
}

func GenericResponse(requestid string, status int, message string, data interface{}) *APIResponse {
	return &APIResponse{
		RequestID: requestid,
		Status:    status,
		Message:   message,
		Data:      data,
	}
}

// ListResponse is a GenericResponse carrying the pagination and its view block.
func ListResponse(requestid, message string, data interface{}, p *Pagination, view *PageView) *APIResponse {
	resp := GenericResponse(requestid, http.StatusOK, message, data)
	resp.Pagination = p
	resp.View = view
	return resp
}

// WriteErrorResponse sends an error envelope to the client.
func WriteErrorResponse(ctx context.Context, w http.ResponseWriter, errResp *APIError) error {
	return writeJSON(ctx, w, errResp.Status, errResp)
}

// WriteResponse sends a success envelope to the client.
func WriteResponse(ctx context.Context, w http.ResponseWriter, resp *APIResponse) error {
	return writeJSON(ctx, w, resp.Status, resp)
}

// writeJSON encodes v unless the request context is already done. In that
// case only the status is recorded: 504 once the processing deadline passed
// and 499 when the client closed the request. The timeout handler has
// already answered the client by then.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusGatewayTimeout)
		} else {
			w.WriteHeader(StatusClientClosedRequest)
		}
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	return jsonCodec.NewEncoder(w).Encode(v)
}
