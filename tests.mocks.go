package main

import (
	"context"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

// MockGateway implements Gateway with per-operation functions.
type MockGateway struct {
	ListBooksFunc         func(ctx context.Context, q BooksQuery) (BooksResponse, error)
	GetBookFunc           func(ctx context.Context, id string) (BookResponse, error)
	CreateBookFunc        func(ctx context.Context, book BookInput) (BookResponse, error)
	UpdateBookFunc        func(ctx context.Context, id string, book BookInput) (BookResponse, error)
	DeleteBookFunc        func(ctx context.Context, id string) (DeleteResponse, error)
	ListBorrowSummaryFunc func(ctx context.Context, q PageQuery) (BorrowSummaryResponse, error)
	BorrowBookFunc        func(ctx context.Context, borrow BorrowRequest) (BorrowResponse, error)
}

// ListBooks mocks the retrieval of a books page by the gateway.
func (m *MockGateway) ListBooks(ctx context.Context, q BooksQuery) (BooksResponse, error) {
	return m.ListBooksFunc(ctx, q)
}

// GetBook mocks the retrieval of a single book by the gateway.
func (m *MockGateway) GetBook(ctx context.Context, id string) (BookResponse, error) {
	return m.GetBookFunc(ctx, id)
}

// CreateBook mocks the book creation by the gateway.
func (m *MockGateway) CreateBook(ctx context.Context, book BookInput) (BookResponse, error) {
	return m.CreateBookFunc(ctx, book)
}

// UpdateBook mocks the book update by the gateway.
func (m *MockGateway) UpdateBook(ctx context.Context, id string, book BookInput) (BookResponse, error) {
	return m.UpdateBookFunc(ctx, id, book)
}

// DeleteBook mocks the book deletion by the gateway.
func (m *MockGateway) DeleteBook(ctx context.Context, id string) (DeleteResponse, error) {
	return m.DeleteBookFunc(ctx, id)
}

// ListBorrowSummary mocks the retrieval of a borrow summary page by the gateway.
func (m *MockGateway) ListBorrowSummary(ctx context.Context, q PageQuery) (BorrowSummaryResponse, error) {
	return m.ListBorrowSummaryFunc(ctx, q)
}

// BorrowBook mocks the borrow submission by the gateway.
func (m *MockGateway) BorrowBook(ctx context.Context, borrow BorrowRequest) (BorrowResponse, error) {
	return m.BorrowBookFunc(ctx, borrow)
}

// MockBus records the published tags and never receives anything.
type MockBus struct {
	mu        sync.Mutex
	Published [][]Tag
	Err       error
}

func (m *MockBus) Publish(_ context.Context, tags ...Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, tags)
	return m.Err
}

func (m *MockBus) Receive(ctx context.Context) (Invalidation, error) {
	<-ctx.Done()
	return Invalidation{}, ctx.Err()
}

func (m *MockBus) Close() error {
	return nil
}

// Calls returns a copy of the published tags.
func (m *MockBus) Calls() [][]Tag {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Tag(nil), m.Published...)
}

// MockJournal keeps the recorded mutations in memory.
type MockJournal struct {
	mu        sync.Mutex
	Recorded  []Mutation
	RecordErr error
	ListErr   error
}

func (m *MockJournal) Record(_ context.Context, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Recorded = append(m.Recorded, mut)
	return nil
}

func (m *MockJournal) List(_ context.Context, limit int) ([]Mutation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []Mutation{}
	for i := len(m.Recorded) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Recorded[i])
	}
	return out, nil
}

func (m *MockJournal) Close() error {
	return nil
}

// MockReceiverBus replays a fixed list of receive results then blocks.
type MockReceiverBus struct {
	MockBus
	rmu     sync.Mutex
	Results []MockReceive
}

// MockReceive is one result returned by MockReceiverBus.Receive.
type MockReceive struct {
	Inv Invalidation
	Err error
}

func (m *MockReceiverBus) Receive(ctx context.Context) (Invalidation, error) {
	m.rmu.Lock()
	if len(m.Results) > 0 {
		next := m.Results[0]
		m.Results = m.Results[1:]
		m.rmu.Unlock()
		return next.Inv, next.Err
	}
	m.rmu.Unlock()
	<-ctx.Done()
	return Invalidation{}, ctx.Err()
}

// MockInvalidator records the tags it is asked to invalidate.
type MockInvalidator struct {
	mu    sync.Mutex
	Calls [][]Tag
	done  chan struct{}
	want  int
}

// NewMockInvalidator returns an invalidator whose Done channel is
// closed once it received want calls.
func NewMockInvalidator(want int) *MockInvalidator {
	return &MockInvalidator{done: make(chan struct{}), want: want}
}

func (m *MockInvalidator) Invalidate(tags ...Tag) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, tags)
	if len(m.Calls) == m.want {
		close(m.done)
	}
	return len(tags)
}

func (m *MockInvalidator) Done() <-chan struct{} {
	return m.done
}

// MockClocker implements a fake TickerClocker.
type MockClocker struct {
	mu      sync.Mutex
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{MockNow: time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	mck.mu.Lock()
	defer mck.mu.Unlock()
	return mck.MockNow
}

// Advance moves the mocked time forward.
func (mck *MockClocker) Advance(d time.Duration) {
	mck.mu.Lock()
	defer mck.mu.Unlock()
	mck.MockNow = mck.MockNow.Add(d)
}

// NewTicker returns a real ticker since tests drive sweeps directly.
func (mck *MockClocker) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}

// MockLibraryService implements LibraryServiceProvider for handlers tests.
type MockLibraryService struct {
	ListBooksFunc     func(ctx context.Context, q BooksQuery) (BooksResponse, error)
	GetBookFunc       func(ctx context.Context, id string) (BookResponse, error)
	BorrowSummaryFunc func(ctx context.Context, q PageQuery, refresh bool) (BorrowSummaryResponse, error)
	CreateBookFunc    func(ctx context.Context, form BookForm) (BookResponse, error)
	UpdateBookFunc    func(ctx context.Context, id string, form BookForm) (BookResponse, error)
	DeleteBookFunc    func(ctx context.Context, id string) (DeleteResponse, error)
	BorrowBookFunc    func(ctx context.Context, bookID string, form BorrowForm) (BorrowResponse, error)
	MutationsFunc     func(ctx context.Context, limit int) ([]Mutation, error)
	WatchFunc         func(key QueryKey, listener Listener) (*Subscription, error)
	Stats             CacheStats
}

func (m *MockLibraryService) ListBooks(ctx context.Context, q BooksQuery) (BooksResponse, error) {
	return m.ListBooksFunc(ctx, q)
}

func (m *MockLibraryService) GetBook(ctx context.Context, id string) (BookResponse, error) {
	return m.GetBookFunc(ctx, id)
}

func (m *MockLibraryService) BorrowSummary(ctx context.Context, q PageQuery, refresh bool) (BorrowSummaryResponse, error) {
	return m.BorrowSummaryFunc(ctx, q, refresh)
}

func (m *MockLibraryService) WatchBooks(q BooksQuery, listener Listener) *Subscription {
	sub, _ := m.WatchFunc(BooksKey(q), listener)
	return sub
}

func (m *MockLibraryService) WatchBook(id string, listener Listener) (*Subscription, error) {
	if id == "" {
		return nil, ErrMissingBookID
	}
	return m.WatchFunc(BookKey(id), listener)
}

func (m *MockLibraryService) WatchBorrowSummary(q PageQuery, listener Listener) *Subscription {
	sub, _ := m.WatchFunc(BorrowSummaryKey(q), listener)
	return sub
}

func (m *MockLibraryService) CreateBook(ctx context.Context, form BookForm) (BookResponse, error) {
	return m.CreateBookFunc(ctx, form)
}

func (m *MockLibraryService) UpdateBook(ctx context.Context, id string, form BookForm) (BookResponse, error) {
	return m.UpdateBookFunc(ctx, id, form)
}

func (m *MockLibraryService) DeleteBook(ctx context.Context, id string) (DeleteResponse, error) {
	return m.DeleteBookFunc(ctx, id)
}

func (m *MockLibraryService) BorrowBook(ctx context.Context, bookID string, form BorrowForm) (BorrowResponse, error) {
	return m.BorrowBookFunc(ctx, bookID, form)
}

func (m *MockLibraryService) CacheStats() CacheStats {
	return m.Stats
}

func (m *MockLibraryService) Mutations(ctx context.Context, limit int) ([]Mutation, error) {
	return m.MutationsFunc(ctx, limit)
}
