package main

import "context"

// Genre is the category of a book. The remote API only accepts
// the values of the predefined enumeration below.
type Genre string

const (
	GenreFiction    Genre = "FICTION"
	GenreNonFiction Genre = "NON_FICTION"
	GenreScience    Genre = "SCIENCE"
	GenreHistory    Genre = "HISTORY"
	GenreBiography  Genre = "BIOGRAPHY"
	GenreFantasy    Genre = "FANTASY"
)

// Genres lists the supported genres in display order.
var Genres = []Genre{
	GenreFiction,
	GenreNonFiction,
	GenreScience,
	GenreHistory,
	GenreBiography,
	GenreFantasy,
}

var genreLabels = map[Genre]string{
	GenreFiction:    "Fiction",
	GenreNonFiction: "Non-Fiction",
	GenreScience:    "Science",
	GenreHistory:    "History",
	GenreBiography:  "Biography",
	GenreFantasy:    "Fantasy",
}

// Label returns the human friendly name of the genre.
func (g Genre) Label() string {
	if l, ok := genreLabels[g]; ok {
		return l
	}
	return string(g)
}

// IsValid reports whether g belongs to the enumeration.
func (g Genre) IsValid() bool {
	_, ok := genreLabels[g]
	return ok
}

// SortableFields are the book fields offered to users for ordering the list.
// Any other book field is still passed through to the remote api verbatim.
var SortableFields = []string{"title", "author", "genre", "createdAt", "updatedAt"}

// GenreOption is a genre with its display label.
type GenreOption struct {
	Value Genre  `json:"value"`
	Label string `json:"label"`
}

// BooksListMeta tells the books list view which filters and orderings it
// can offer and which ones the current page was loaded with.
type BooksListMeta struct {
	Genres     []GenreOption `json:"genres"`
	SortFields []string      `json:"sortFields"`
	Filter     Genre         `json:"filter,omitempty"`
	Sort       string        `json:"sort"`
	SortBy     string        `json:"sortBy"`
}

func NewBooksListMeta(q BooksQuery) *BooksListMeta {
	genres := make([]GenreOption, 0, len(Genres))
	for _, g := range Genres {
		genres = append(genres, GenreOption{Value: g, Label: g.Label()})
	}
	return &BooksListMeta{
		Genres:     genres,
		SortFields: SortableFields,
		Filter:     q.Filter,
		Sort:       q.Sort,
		SortBy:     q.SortBy,
	}
}

// Book represents a book entity as served by the remote api.
type Book struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       Genre  `json:"genre"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	Copies      int    `json:"copies"`
	Available   bool   `json:"available"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// BookInput is the payload sent on book creation or update. Zero
// fields are omitted so the same shape serves partial updates.
type BookInput struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Genre       Genre  `json:"genre,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	Description string `json:"description,omitempty"`
	Copies      int    `json:"copies,omitempty"`
	Available   *bool  `json:"available,omitempty"`
}

// BorrowRequest is the payload of a borrow submission.
type BorrowRequest struct {
	Book     string `json:"book"`
	Quantity int    `json:"quantity"`
	DueDate  string `json:"dueDate"`
}

// BorrowRecord is the borrow entity created by the remote api.
type BorrowRecord struct {
	ID        string `json:"_id"`
	Book      string `json:"book"`
	Quantity  int    `json:"quantity"`
	DueDate   string `json:"dueDate"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// BorrowedBook is the short book reference inside a summary item.
type BorrowedBook struct {
	Title string `json:"title"`
	ISBN  string `json:"isbn"`
}

// BorrowSummaryItem is a server-computed aggregate of borrowed quantities.
type BorrowSummaryItem struct {
	Book          BorrowedBook `json:"book"`
	TotalQuantity int          `json:"totalQuantity"`
}

// Pagination describes a window over a server-side ordered collection.
type Pagination struct {
	Page      int `json:"page"`
	Limit     int `json:"limit"`
	Total     int `json:"total"`
	TotalPage int `json:"totalPage"`
}

// Consistent reports whether TotalPage equals ceil(Total/Limit).
func (p Pagination) Consistent() bool {
	if p.Limit <= 0 {
		return false
	}
	return p.TotalPage == (p.Total+p.Limit-1)/p.Limit
}

// Envelope is the common shape of every remote api response.
type Envelope[T any] struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       T           `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type (
	BooksResponse         = Envelope[[]Book]
	BookResponse          = Envelope[Book]
	DeleteResponse        = Envelope[any]
	BorrowResponse        = Envelope[BorrowRecord]
	BorrowSummaryResponse = Envelope[[]BorrowSummaryItem]
)

// BooksQuery holds the list parameters. Empty optional fields are not sent.
type BooksQuery struct {
	Page   int
	Limit  int
	Filter Genre
	Sort   string
	SortBy string
}

// PageQuery holds plain pagination parameters.
type PageQuery struct {
	Page  int
	Limit int
}

// Gateway defines the operations available on the remote library api.
type Gateway interface {
	ListBooks(ctx context.Context, q BooksQuery) (BooksResponse, error)
	GetBook(ctx context.Context, id string) (BookResponse, error)
	CreateBook(ctx context.Context, book BookInput) (BookResponse, error)
	UpdateBook(ctx context.Context, id string, book BookInput) (BookResponse, error)
	DeleteBook(ctx context.Context, id string) (DeleteResponse, error)
	ListBorrowSummary(ctx context.Context, q PageQuery) (BorrowSummaryResponse, error)
	BorrowBook(ctx context.Context, borrow BorrowRequest) (BorrowResponse, error)
}
