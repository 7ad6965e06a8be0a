package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeLibrary is an in-memory remote api behind a MockGateway.
type fakeLibrary struct {
	mu      sync.Mutex
	books   []Book
	borrows map[string]int
	lists   atomic.Int32
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		books: []Book{
			{ID: "b1", Title: "Dune", ISBN: "978-0441013593", Genre: GenreFantasy, Copies: 3},
			{ID: "b2", Title: "Cosmos", ISBN: "978-0345539434", Genre: GenreScience, Copies: 2},
		},
		borrows: map[string]int{},
	}
}

func (fl *fakeLibrary) gateway() *MockGateway {
	return &MockGateway{
		ListBooksFunc: func(ctx context.Context, q BooksQuery) (BooksResponse, error) {
			fl.lists.Add(1)
			fl.mu.Lock()
			defer fl.mu.Unlock()
			data := append([]Book(nil), fl.books...)
			return BooksResponse{
				Success:    true,
				Data:       data,
				Pagination: &Pagination{Page: q.Page, Limit: q.Limit, Total: len(data), TotalPage: 1},
			}, nil
		},
		GetBookFunc: func(ctx context.Context, id string) (BookResponse, error) {
			fl.mu.Lock()
			defer fl.mu.Unlock()
			for _, b := range fl.books {
				if b.ID == id {
					return BookResponse{Success: true, Data: b}, nil
				}
			}
			return BookResponse{}, &GatewayError{Op: "get book", Kind: KindStatus, StatusCode: 404, Message: "Book not found"}
		},
		CreateBookFunc: func(ctx context.Context, in BookInput) (BookResponse, error) {
			fl.mu.Lock()
			defer fl.mu.Unlock()
			b := Book{ID: "b3", Title: in.Title, ISBN: in.ISBN, Genre: in.Genre, Copies: in.Copies}
			fl.books = append(fl.books, b)
			return BookResponse{Success: true, Message: "Book created successfully", Data: b}, nil
		},
		UpdateBookFunc: func(ctx context.Context, id string, in BookInput) (BookResponse, error) {
			fl.mu.Lock()
			defer fl.mu.Unlock()
			for i := range fl.books {
				if fl.books[i].ID == id {
					fl.books[i].Copies = in.Copies
					return BookResponse{Success: true, Message: "Book updated successfully", Data: fl.books[i]}, nil
				}
			}
			return BookResponse{}, &GatewayError{Op: "update book", Kind: KindStatus, StatusCode: 404, Message: "Book not found"}
		},
		DeleteBookFunc: func(ctx context.Context, id string) (DeleteResponse, error) {
			fl.mu.Lock()
			defer fl.mu.Unlock()
			for i, b := range fl.books {
				if b.ID == id {
					fl.books = append(fl.books[:i], fl.books[i+1:]...)
					return DeleteResponse{Success: true, Message: "Book deleted successfully"}, nil
				}
			}
			return DeleteResponse{}, &GatewayError{Op: "delete book", Kind: KindStatus, StatusCode: 404, Message: "Book not found"}
		},
		ListBorrowSummaryFunc: func(ctx context.Context, q PageQuery) (BorrowSummaryResponse, error) {
			fl.mu.Lock()
			defer fl.mu.Unlock()
			items := []BorrowSummaryItem{}
			for _, b := range fl.books {
				if n := fl.borrows[b.ID]; n > 0 {
					items = append(items, BorrowSummaryItem{Book: BorrowedBook{Title: b.Title, ISBN: b.ISBN}, TotalQuantity: n})
				}
			}
			return BorrowSummaryResponse{Success: true, Data: items, Pagination: &Pagination{Page: 1, Limit: 10, Total: len(items), TotalPage: 1}}, nil
		},
		BorrowBookFunc: func(ctx context.Context, br BorrowRequest) (BorrowResponse, error) {
			fl.mu.Lock()
			defer fl.mu.Unlock()
			fl.borrows[br.Book] += br.Quantity
			return BorrowResponse{Success: true, Message: "Book borrowed successfully", Data: BorrowRecord{ID: "br1", Book: br.Book, Quantity: br.Quantity, DueDate: br.DueDate}}, nil
		},
	}
}

type serviceFixture struct {
	lib     *fakeLibrary
	gw      *MockGateway
	cache   *QueryCache
	bus     *MockBus
	journal *MockJournal
	clock   *MockClocker
	ls      LibraryServiceProvider
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{lib: newFakeLibrary(), bus: &MockBus{}, journal: &MockJournal{}, clock: NewMockClocker()}
	f.gw = f.lib.gateway()
	f.cache = NewQueryCache(zap.NewNop(), f.clock, NewIDsHandler(), time.Minute)
	t.Cleanup(f.cache.Close)
	f.ls = NewLibraryService(zap.NewNop(), f.clock, NewMockUIDHandler("1", true), f.gw, f.cache, NewFormValidator(f.clock), f.bus, f.journal)
	return f
}

func bookIDs(books []Book) []string {
	ids := make([]string, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	return ids
}

// TestLibraryServiceDeleteRefreshesMountedList ensures a deleted book disappears
// from a list view that stays subscribed.
func TestLibraryServiceDeleteRefreshesMountedList(t *testing.T) {
	f := newServiceFixture(t)

	var mu sync.Mutex
	var shown []string
	sub := f.ls.WatchBooks(BooksQuery{}, func(s QueryState) {
		if s.Status != StatusSuccess {
			return
		}
		mu.Lock()
		shown = bookIDs(s.Data.(BooksResponse).Data)
		mu.Unlock()
	})
	defer sub.Unsubscribe()
	visible := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return shown
	}

	require.Eventually(t, func() bool { return len(visible()) == 2 }, waitFor, tick)

	ctx := context.WithValue(context.Background(), RequestIDContextKey, "r:42")
	resp, err := f.ls.DeleteBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Book deleted successfully", resp.Message)

	require.Eventually(t, func() bool {
		ids := visible()
		return len(ids) == 1 && ids[0] == "b2"
	}, waitFor, tick)

	assert.Equal(t, [][]Tag{{TagBooks}}, f.bus.Calls())
	require.Len(t, f.journal.Recorded, 1)
	m := f.journal.Recorded[0]
	assert.Equal(t, MutationDelete, m.Kind)
	assert.Equal(t, "b1", m.BookID)
	assert.Equal(t, []Tag{TagBooks}, m.Tags)
	assert.Equal(t, "r:42", m.RequestID)
	assert.Equal(t, "m:1", m.ID)
	assert.Equal(t, f.clock.Now(), m.At)
}

// TestLibraryServiceBorrowInvalidatesBothTags ensures a borrow marks books and borrow summaries stale.
func TestLibraryServiceBorrowInvalidatesBothTags(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.ls.ListBooks(ctx, BooksQuery{})
	require.NoError(t, err)
	summary, err := f.ls.BorrowSummary(ctx, PageQuery{}, false)
	require.NoError(t, err)
	assert.Empty(t, summary.Data)

	resp, err := f.ls.BorrowBook(ctx, "b1", BorrowForm{Quantity: 2, DueDate: f.clock.Now().Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "br1", resp.Data.ID)
	assert.Equal(t, "2023-07-04T00:00:00.000Z", resp.Data.DueDate)

	for _, key := range []QueryKey{BooksKey(BooksQuery{}.Normalize()), BorrowSummaryKey(PageQuery{}.Normalize())} {
		s, ok := f.cache.Peek(key)
		require.True(t, ok)
		assert.True(t, s.Stale, string(key))
	}

	summary, err = f.ls.BorrowSummary(ctx, PageQuery{}, false)
	require.NoError(t, err)
	require.Len(t, summary.Data, 1)
	assert.Equal(t, 2, summary.Data[0].TotalQuantity)
	assert.Equal(t, "Dune", summary.Data[0].Book.Title)

	assert.Equal(t, [][]Tag{{TagBooks, TagBorrows}}, f.bus.Calls())
	require.Len(t, f.journal.Recorded, 1)
	assert.Equal(t, MutationBorrow, f.journal.Recorded[0].Kind)
}

// TestLibraryServiceCreateAndUpdate ensures validated writes reach the gateway and refresh cached books.
func TestLibraryServiceCreateAndUpdate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.ls.ListBooks(ctx, BooksQuery{})
	require.NoError(t, err)

	t.Run("should pass: create book", func(t *testing.T) {
		form := validBookForm()
		form.Title = "Foundation"
		resp, err := f.ls.CreateBook(ctx, form)
		require.NoError(t, err)
		assert.Equal(t, "b3", resp.Data.ID)

		books, err := f.ls.ListBooks(ctx, BooksQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{"b1", "b2", "b3"}, bookIDs(books.Data))
	})

	t.Run("should pass: update book", func(t *testing.T) {
		_, err := f.ls.GetBook(ctx, "b2")
		require.NoError(t, err)

		form := validBookForm()
		form.Copies = 9
		_, err = f.ls.UpdateBook(ctx, "b2", form)
		require.NoError(t, err)

		book, err := f.ls.GetBook(ctx, "b2")
		require.NoError(t, err)
		assert.Equal(t, 9, book.Data.Copies)
	})

	kinds := []MutationKind{}
	for _, m := range f.journal.Recorded {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []MutationKind{MutationCreate, MutationUpdate}, kinds)
}

// TestLibraryServiceRejectedWrites ensures failed writes neither invalidate nor journal anything.
func TestLibraryServiceRejectedWrites(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	var creates atomic.Int32
	f.gw.CreateBookFunc = func(ctx context.Context, in BookInput) (BookResponse, error) {
		creates.Add(1)
		return BookResponse{}, nil
	}

	_, err := f.ls.ListBooks(ctx, BooksQuery{})
	require.NoError(t, err)
	listKey := BooksKey(BooksQuery{}.Normalize())

	t.Run("should fail: invalid form never reaches the gateway", func(t *testing.T) {
		form := validBookForm()
		form.Copies = 0
		_, err := f.ls.CreateBook(ctx, form)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, int32(0), creates.Load())
	})

	t.Run("should fail: borrow due in the past", func(t *testing.T) {
		_, err := f.ls.BorrowBook(ctx, "b1", BorrowForm{Quantity: 1, DueDate: f.clock.Now().Add(-time.Hour)})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should fail: missing ids", func(t *testing.T) {
		_, err := f.ls.UpdateBook(ctx, "", validBookForm())
		assert.ErrorIs(t, err, ErrMissingBookID)
		_, err = f.ls.BorrowBook(ctx, "", BorrowForm{Quantity: 1, DueDate: f.clock.Now().Add(time.Hour)})
		assert.ErrorIs(t, err, ErrMissingBookID)
		_, err = f.ls.GetBook(ctx, "")
		assert.ErrorIs(t, err, ErrMissingBookID)
		_, err = f.ls.WatchBook("", func(QueryState) {})
		assert.ErrorIs(t, err, ErrMissingBookID)
	})

	t.Run("should fail: gateway rejection", func(t *testing.T) {
		_, err := f.ls.DeleteBook(ctx, "unknown")
		assert.ErrorIs(t, err, ErrStatus)
	})

	s, ok := f.cache.Peek(listKey)
	require.True(t, ok)
	assert.False(t, s.Stale)
	assert.Empty(t, f.bus.Calls())
	assert.Empty(t, f.journal.Recorded)
}

// TestLibraryServiceSideEffectFailures ensures bus and journal failures do not fail the mutation.
func TestLibraryServiceSideEffectFailures(t *testing.T) {
	f := newServiceFixture(t)
	f.bus.Err = errors.New("redis down")
	f.journal.RecordErr = errors.New("disk full")

	_, err := f.ls.ListBooks(context.Background(), BooksQuery{})
	require.NoError(t, err)

	_, err = f.ls.DeleteBook(context.Background(), "b2")
	require.NoError(t, err)

	s, ok := f.cache.Peek(BooksKey(BooksQuery{}.Normalize()))
	require.True(t, ok)
	assert.True(t, s.Stale)
}

// TestLibraryServiceSummaryRefresh ensures refresh bypasses a fresh cached summary.
func TestLibraryServiceSummaryRefresh(t *testing.T) {
	f := newServiceFixture(t)
	var calls atomic.Int32
	list := f.gw.ListBorrowSummaryFunc
	f.gw.ListBorrowSummaryFunc = func(ctx context.Context, q PageQuery) (BorrowSummaryResponse, error) {
		calls.Add(1)
		return list(ctx, q)
	}
	ctx := context.Background()

	_, err := f.ls.BorrowSummary(ctx, PageQuery{Page: 1}, false)
	require.NoError(t, err)
	_, err = f.ls.BorrowSummary(ctx, PageQuery{Page: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = f.ls.BorrowSummary(ctx, PageQuery{Page: 1}, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	stats := f.ls.CacheStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
}

// TestLibraryServiceMutations ensures the journal is served newest first.
func TestLibraryServiceMutations(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.ls.DeleteBook(ctx, "b1")
	require.NoError(t, err)
	_, err = f.ls.BorrowBook(ctx, "b2", BorrowForm{Quantity: 1, DueDate: f.clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	mutations, err := f.ls.Mutations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mutations, 2)
	assert.Equal(t, MutationBorrow, mutations[0].Kind)
	assert.Equal(t, MutationDelete, mutations[1].Kind)
}
