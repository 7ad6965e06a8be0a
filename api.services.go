package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Tags invalidated by each kind of mutation.
var (
	bookMutationTags   = []Tag{TagBooks}
	borrowMutationTags = []Tag{TagBooks, TagBorrows}
)

type LibraryServiceProvider interface {
	ListBooks(ctx context.Context, q BooksQuery) (BooksResponse, error)
	GetBook(ctx context.Context, id string) (BookResponse, error)
	BorrowSummary(ctx context.Context, q PageQuery, refresh bool) (BorrowSummaryResponse, error)
	WatchBooks(q BooksQuery, listener Listener) *Subscription
	WatchBook(id string, listener Listener) (*Subscription, error)
	WatchBorrowSummary(q PageQuery, listener Listener) *Subscription
	CreateBook(ctx context.Context, form BookForm) (BookResponse, error)
	UpdateBook(ctx context.Context, id string, form BookForm) (BookResponse, error)
	DeleteBook(ctx context.Context, id string) (DeleteResponse, error)
	BorrowBook(ctx context.Context, bookID string, form BorrowForm) (BorrowResponse, error)
	CacheStats() CacheStats
	Mutations(ctx context.Context, limit int) ([]Mutation, error)
}

type LibraryService struct {
	logger    *zap.Logger
	clock     Clocker
	ids       UIDHandler
	gateway   Gateway
	cache     *QueryCache
	validator *FormValidator
	bus       InvalidationBus
	journal   MutationJournal
}

func NewLibraryService(logger *zap.Logger, clock Clocker, ids UIDHandler, gateway Gateway, cache *QueryCache, validator *FormValidator, bus InvalidationBus, journal MutationJournal) LibraryServiceProvider {
	return &LibraryService{
		logger:    logger,
		clock:     clock,
		ids:       ids,
		gateway:   gateway,
		cache:     cache,
		validator: validator,
		bus:       bus,
		journal:   journal,
	}
}

// fetcher erases the result type so typed gateway calls can be cached.
func fetcher[T any](fetch func(context.Context) (T, error)) Fetcher {
	return func(ctx context.Context) (interface{}, error) {
		return fetch(ctx)
	}
}

// typed asserts a cached value back to its type.
func typed[T any](v interface{}, err error) (T, error) {
	out, ok := v.(T)
	if err != nil {
		return out, err
	}
	if !ok {
		return out, fmt.Errorf("cache: unexpected value type %T", v)
	}
	return out, nil
}

func (ls *LibraryService) booksFetcher(q BooksQuery) Fetcher {
	return fetcher(func(ctx context.Context) (BooksResponse, error) {
		return ls.gateway.ListBooks(ctx, q)
	})
}

func (ls *LibraryService) bookFetcher(id string) Fetcher {
	return fetcher(func(ctx context.Context) (BookResponse, error) {
		return ls.gateway.GetBook(ctx, id)
	})
}

func (ls *LibraryService) summaryFetcher(q PageQuery) Fetcher {
	return fetcher(func(ctx context.Context) (BorrowSummaryResponse, error) {
		return ls.gateway.ListBorrowSummary(ctx, q)
	})
}

func (ls *LibraryService) ListBooks(ctx context.Context, q BooksQuery) (BooksResponse, error) {
	q = q.Normalize()
	return typed[BooksResponse](ls.cache.Query(ctx, BooksKey(q), []Tag{TagBooks}, ls.booksFetcher(q)))
}

func (ls *LibraryService) GetBook(ctx context.Context, id string) (BookResponse, error) {
	if id == "" {
		return BookResponse{}, ErrMissingBookID
	}
	return typed[BookResponse](ls.cache.Query(ctx, BookKey(id), []Tag{TagBooks}, ls.bookFetcher(id)))
}

// BorrowSummary serves the summary page. refresh bypasses fresh cached data.
func (ls *LibraryService) BorrowSummary(ctx context.Context, q PageQuery, refresh bool) (BorrowSummaryResponse, error) {
	q = q.Normalize()
	key := BorrowSummaryKey(q)
	if refresh {
		return typed[BorrowSummaryResponse](ls.cache.Refetch(ctx, key, []Tag{TagBorrows}, ls.summaryFetcher(q)))
	}
	return typed[BorrowSummaryResponse](ls.cache.Query(ctx, key, []Tag{TagBorrows}, ls.summaryFetcher(q)))
}

func (ls *LibraryService) WatchBooks(q BooksQuery, listener Listener) *Subscription {
	q = q.Normalize()
	return ls.cache.Subscribe(BooksKey(q), []Tag{TagBooks}, ls.booksFetcher(q), listener)
}

func (ls *LibraryService) WatchBook(id string, listener Listener) (*Subscription, error) {
	if id == "" {
		return nil, ErrMissingBookID
	}
	return ls.cache.Subscribe(BookKey(id), []Tag{TagBooks}, ls.bookFetcher(id), listener), nil
}

func (ls *LibraryService) WatchBorrowSummary(q PageQuery, listener Listener) *Subscription {
	q = q.Normalize()
	return ls.cache.Subscribe(BorrowSummaryKey(q), []Tag{TagBorrows}, ls.summaryFetcher(q), listener)
}

func (ls *LibraryService) CreateBook(ctx context.Context, form BookForm) (BookResponse, error) {
	if err := ls.validator.Validate(form); err != nil {
		return BookResponse{}, err
	}
	resp, err := ls.gateway.CreateBook(ctx, form.Input())
	if err != nil {
		return resp, err
	}
	ls.afterMutation(ctx, MutationCreate, resp.Data.ID, resp.Message, bookMutationTags)
	return resp, nil
}

func (ls *LibraryService) UpdateBook(ctx context.Context, id string, form BookForm) (BookResponse, error) {
	if id == "" {
		return BookResponse{}, ErrMissingBookID
	}
	if err := ls.validator.Validate(form); err != nil {
		return BookResponse{}, err
	}
	resp, err := ls.gateway.UpdateBook(ctx, id, form.Input())
	if err != nil {
		return resp, err
	}
	ls.afterMutation(ctx, MutationUpdate, id, resp.Message, bookMutationTags)
	return resp, nil
}

func (ls *LibraryService) DeleteBook(ctx context.Context, id string) (DeleteResponse, error) {
	resp, err := ls.gateway.DeleteBook(ctx, id)
	if err != nil {
		return resp, err
	}
	ls.afterMutation(ctx, MutationDelete, id, resp.Message, bookMutationTags)
	return resp, nil
}

func (ls *LibraryService) BorrowBook(ctx context.Context, bookID string, form BorrowForm) (BorrowResponse, error) {
	if bookID == "" {
		return BorrowResponse{}, ErrMissingBookID
	}
	if err := ls.validator.Validate(form); err != nil {
		return BorrowResponse{}, err
	}
	resp, err := ls.gateway.BorrowBook(ctx, form.Request(bookID))
	if err != nil {
		return resp, err
	}
	ls.afterMutation(ctx, MutationBorrow, bookID, resp.Message, borrowMutationTags)
	return resp, nil
}

// afterMutation invalidates the local cache first, then tells the other
// instances and journals the write. Only the local invalidation is required
// for the mutation to be reported as successful.
func (ls *LibraryService) afterMutation(ctx context.Context, kind MutationKind, bookID, message string, tags []Tag) {
	logger := LoggerFromContext(ctx, ls.logger)
	ls.cache.Invalidate(tags...)

	if err := ls.bus.Publish(context.WithoutCancel(ctx), tags...); err != nil {
		logger.Error("service: failed to publish invalidation", zap.Any("tags", tags), zap.Error(err))
	}

	m := Mutation{
		ID:        ls.ids.Generate(MutationIDPrefix),
		Kind:      kind,
		BookID:    bookID,
		Tags:      tags,
		RequestID: GetValueFromContext(ctx, RequestIDContextKey),
		Message:   message,
		At:        ls.clock.Now(),
	}
	if err := ls.journal.Record(ctx, m); err != nil {
		logger.Error("service: failed to journal mutation", zap.String("mutation.kind", string(kind)), zap.Error(err))
	}
}

func (ls *LibraryService) CacheStats() CacheStats {
	return ls.cache.Stats()
}

func (ls *LibraryService) Mutations(ctx context.Context, limit int) ([]Mutation, error) {
	return ls.journal.List(ctx, limit)
}
