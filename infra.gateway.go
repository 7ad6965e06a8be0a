package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Ensure *httpGateway implements Gateway.
var _ Gateway = (*httpGateway)(nil)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// maxErrorBodySize bounds how much of a failed response body is read to find the server message.
const maxErrorBodySize = 64 << 10

type httpGateway struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient provides the shared http client used to reach the remote api.
func NewHTTPClient(config *GatewayConfig) *http.Client {
	return &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        config.MaxIdleConns,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     config.IdleConnTimeout,
		},
	}
}

// NewHTTPGateway provides an instance of the remote library api gateway.
// A nil limiter means outbound requests are not throttled.
func NewHTTPGateway(logger *zap.Logger, baseURL string, client *http.Client, limiter *rate.Limiter) Gateway {
	return &httpGateway{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: limiter,
	}
}

// NewRateLimiter returns nil when throttling is disabled.
func NewRateLimiter(config *GatewayConfig) *rate.Limiter {
	if config.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
}

// ListBooks fetches one page of books. Page and limit are always sent.
func (g *httpGateway) ListBooks(ctx context.Context, q BooksQuery) (BooksResponse, error) {
	var out BooksResponse
	err := g.do(ctx, "list books", http.MethodGet, "/books", q.Encode(), nil, &out)
	return out, err
}

// GetBook fetches a single book. No request is issued for an empty id.
func (g *httpGateway) GetBook(ctx context.Context, id string) (BookResponse, error) {
	var out BookResponse
	if id == "" {
		return out, ErrMissingBookID
	}
	err := g.do(ctx, "get book", http.MethodGet, "/books/"+url.PathEscape(id), "", nil, &out)
	return out, err
}

// CreateBook submits a new book.
func (g *httpGateway) CreateBook(ctx context.Context, book BookInput) (BookResponse, error) {
	var out BookResponse
	err := g.do(ctx, "create book", http.MethodPost, "/books", "", book, &out)
	return out, err
}

// UpdateBook sends a full or partial book payload for the given id.
func (g *httpGateway) UpdateBook(ctx context.Context, id string, book BookInput) (BookResponse, error) {
	var out BookResponse
	if id == "" {
		return out, ErrMissingBookID
	}
	err := g.do(ctx, "update book", http.MethodPatch, "/books/"+url.PathEscape(id), "", book, &out)
	return out, err
}

// DeleteBook removes a book. The result carries no payload.
func (g *httpGateway) DeleteBook(ctx context.Context, id string) (DeleteResponse, error) {
	var out DeleteResponse
	if id == "" {
		return out, ErrMissingBookID
	}
	err := g.do(ctx, "delete book", http.MethodDelete, "/books/"+url.PathEscape(id), "", nil, &out)
	out.Data = nil
	return out, err
}

// ListBorrowSummary fetches one page of the aggregated borrow summary.
func (g *httpGateway) ListBorrowSummary(ctx context.Context, q PageQuery) (BorrowSummaryResponse, error) {
	var out BorrowSummaryResponse
	err := g.do(ctx, "borrow summary", http.MethodGet, "/borrow", q.Encode(), nil, &out)
	return out, err
}

// BorrowBook submits a borrow record.
func (g *httpGateway) BorrowBook(ctx context.Context, borrow BorrowRequest) (BorrowResponse, error) {
	var out BorrowResponse
	if borrow.Book == "" {
		return out, ErrMissingBookID
	}
	err := g.do(ctx, "borrow book", http.MethodPost, "/borrow", "", borrow, &out)
	return out, err
}

// envelopeHead is used to read the success flag and message of any response.
type envelopeHead struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// do performs the request and decodes the envelope into out. Every failure
// is returned as a *GatewayError.
func (g *httpGateway) do(ctx context.Context, op, method, path, rawQuery string, body, out interface{}) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return &GatewayError{Op: op, Kind: KindTransport, cause: err}
		}
	}

	target := g.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	var reader io.Reader
	if body != nil {
		payload, err := jsonCodec.Marshal(body)
		if err != nil {
			return &GatewayError{Op: op, Kind: KindDecode, cause: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &GatewayError{Op: op, Kind: KindTransport, cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("gateway: request failed",
			zap.String("gateway.op", op),
			zap.String("gateway.method", method),
			zap.String("gateway.path", path),
			zap.Duration("gateway.duration", time.Since(start)),
			zap.Error(err),
		)
		return &GatewayError{Op: op, Kind: KindTransport, cause: err}
	}
	defer resp.Body.Close()

	g.logger.Debug("gateway: request done",
		zap.String("gateway.op", op),
		zap.String("gateway.method", method),
		zap.String("gateway.path", path),
		zap.Int("gateway.status", resp.StatusCode),
		zap.Duration("gateway.duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		var head envelopeHead
		_ = jsonCodec.Unmarshal(data, &head)
		return &GatewayError{Op: op, Kind: KindStatus, StatusCode: resp.StatusCode, Message: head.Message}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, Kind: KindTransport, StatusCode: resp.StatusCode, cause: err}
	}

	var head envelopeHead
	if err = jsonCodec.Unmarshal(data, &head); err != nil || head.Success == nil {
		if err == nil {
			err = errors.New("missing success flag")
		}
		return &GatewayError{Op: op, Kind: KindDecode, StatusCode: resp.StatusCode, cause: err}
	}
	if !*head.Success {
		return &GatewayError{Op: op, Kind: KindStatus, StatusCode: resp.StatusCode, Message: head.Message}
	}

	if err = jsonCodec.Unmarshal(data, out); err != nil {
		return &GatewayError{Op: op, Kind: KindDecode, StatusCode: resp.StatusCode, Message: head.Message, cause: err}
	}
	return nil
}
