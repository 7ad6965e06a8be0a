package main

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// Ordering of the books list view when the caller sets none.
const (
	DefaultSort   = "asc"
	DefaultSortBy = "updatedAt"
)

// Normalize applies the default page and limit.
func (q BooksQuery) Normalize() BooksQuery {
	if q.Page <= 0 {
		q.Page = DefaultPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

// Encode serializes the query in a stable order: page, limit then
// filter, sort and sortBy only when they are set.
func (q BooksQuery) Encode() string {
	q = q.Normalize()
	var b strings.Builder
	writeParam(&b, "page", strconv.Itoa(q.Page))
	writeParam(&b, "limit", strconv.Itoa(q.Limit))
	if q.Filter != "" {
		writeParam(&b, "filter", string(q.Filter))
	}
	if q.Sort != "" {
		writeParam(&b, "sort", q.Sort)
	}
	if q.SortBy != "" {
		writeParam(&b, "sortBy", q.SortBy)
	}
	return b.String()
}

// Normalize applies the default page and limit.
func (q PageQuery) Normalize() PageQuery {
	if q.Page <= 0 {
		q.Page = DefaultPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

// Encode serializes page and limit.
func (q PageQuery) Encode() string {
	q = q.Normalize()
	var b strings.Builder
	writeParam(&b, "page", strconv.Itoa(q.Page))
	writeParam(&b, "limit", strconv.Itoa(q.Limit))
	return b.String()
}

func writeParam(b *strings.Builder, key, value string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(url.QueryEscape(key))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))
}

// ParseBooksQuery reads list parameters from an incoming url query.
// Invalid numbers fall back to the defaults.
func ParseBooksQuery(v url.Values) BooksQuery {
	return BooksQuery{
		Page:   atoiOrZero(v.Get("page")),
		Limit:  atoiOrZero(v.Get("limit")),
		Filter: Genre(v.Get("filter")),
		Sort:   v.Get("sort"),
		SortBy: v.Get("sortBy"),
	}.Normalize()
}

// ParseBooksView reads the parameters of the books list view. Unlike
// ParseBooksQuery it orders by last update, ascending, unless told otherwise.
func ParseBooksView(v url.Values) BooksQuery {
	q := ParseBooksQuery(v)
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	if q.SortBy == "" {
		q.SortBy = DefaultSortBy
	}
	return q
}

// ParsePageQuery reads page and limit from an incoming url query.
func ParsePageQuery(v url.Values) PageQuery {
	return PageQuery{
		Page:  atoiOrZero(v.Get("page")),
		Limit: atoiOrZero(v.Get("limit")),
	}.Normalize()
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Query operations used to build cache keys.
const (
	OpListBooks     = "listBooks"
	OpGetBook       = "getBook"
	OpBorrowSummary = "borrowSummary"
)

// QueryKey identifies a cached query: operation plus serialized parameters.
type QueryKey string

func BooksKey(q BooksQuery) QueryKey {
	return QueryKey(OpListBooks + "?" + q.Encode())
}

func BookKey(id string) QueryKey {
	return QueryKey(OpGetBook + "?id=" + url.QueryEscape(id))
}

func BorrowSummaryKey(q PageQuery) QueryKey {
	return QueryKey(OpBorrowSummary + "?" + q.Encode())
}
