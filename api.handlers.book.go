package main

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Index redirects to the books list view.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/books", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := jsonCodec.NewEncoder(w).Encode(
		StatusResponse{
			RequestID: requestID,
			Status:    fmt.Sprintf("up & running since %.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
			Message:   "Hello. Library front is available. Enjoy :)",
		},
	); err != nil {
		api.logger.Error("failed to send status response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// ListBooks godoc
// @Summary      List books
// @Description  one page of books, optionally filtered by genre and sorted
// @Tags         books
// @Produce      json
// @Param        page    query  int     false  "page number"   default(1)
// @Param        limit   query  int     false  "page size"     default(10)
// @Param        filter  query  string  false  "genre"
// @Param        sort    query  string  false  "asc or desc"  default(asc)
// @Param        sortBy  query  string  false  "book field"   default(updatedAt)
// @Success      200  {object}  APIResponse
// @Failure      502  {object}  APIError
// @Router       /books [get]
func (api *APIHandler) ListBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	q := ParseBooksView(r.URL.Query())
	books, err := api.library.ListBooks(r.Context(), q)
	if err != nil {
		api.sendError(w, r, err, "failed to load books")
		return
	}
	api.logger.Info("success to list books", zap.String("request.id", requestID))
	resp := ListResponse(requestID, books.Message, books.Data, books.Pagination, NewBooksPageView(books.Pagination))
	resp.Meta = NewBooksListMeta(q)
	api.sendResponse(w, r, resp)
}

// GetBook godoc
// @Summary      Get a book
// @Tags         books
// @Produce      json
// @Param        id   path      string  true  "book id"
// @Success      200  {object}  APIResponse
// @Failure      404  {object}  APIError
// @Router       /books/{id} [get]
func (api *APIHandler) GetBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	book, err := api.library.GetBook(r.Context(), id)
	if err != nil {
		api.sendError(w, r, err, "failed to load book details", zap.String("book.id", id))
		return
	}
	api.logger.Info("success to get book", zap.String("book.id", id), zap.String("request.id", requestID))
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, book.Message, book.Data))
}

// CreateBook godoc
// @Summary      Create a book
// @Tags         books
// @Accept       json
// @Produce      json
// @Param        book  body      BookForm  true  "book form"
// @Success      201   {object}  APIResponse
// @Failure      400   {object}  APIError
// @Router       /create-book [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	var form BookForm
	if err := DecodeRequestBody(r, &form); err != nil {
		api.sendError(w, r, err, "failed to create the book")
		return
	}
	book, err := api.library.CreateBook(r.Context(), form)
	if err != nil {
		api.sendError(w, r, err, "failed to create the book")
		return
	}
	api.logger.Info("success to create book", zap.String("book.id", book.Data.ID), zap.String("request.id", requestID))
	msg := book.Message
	if msg == "" {
		msg = "Book created successfully!"
	}
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusCreated, msg, book.Data))
}

// UpdateBook godoc
// @Summary      Edit a book
// @Tags         books
// @Accept       json
// @Produce      json
// @Param        id    path      string    true  "book id"
// @Param        book  body      BookForm  true  "book form"
// @Success      200   {object}  APIResponse
// @Failure      400   {object}  APIError
// @Router       /edit-book/{id} [patch]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	var form BookForm
	if err := DecodeRequestBody(r, &form); err != nil {
		api.sendError(w, r, err, "failed to update the book", zap.String("book.id", id))
		return
	}
	book, err := api.library.UpdateBook(r.Context(), id, form)
	if err != nil {
		api.sendError(w, r, err, "failed to update the book", zap.String("book.id", id))
		return
	}
	api.logger.Info("success to update book", zap.String("book.id", id), zap.String("request.id", requestID))
	msg := book.Message
	if msg == "" {
		msg = "Book updated successfully!"
	}
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, msg, book.Data))
}

// DeleteBook godoc
// @Summary      Delete a book
// @Tags         books
// @Produce      json
// @Param        id   path      string  true  "book id"
// @Success      200  {object}  APIResponse
// @Failure      404  {object}  APIError
// @Router       /books/{id} [delete]
func (api *APIHandler) DeleteBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	resp, err := api.library.DeleteBook(r.Context(), id)
	if err != nil {
		api.sendError(w, r, err, "failed to delete the book", zap.String("book.id", id))
		return
	}
	api.logger.Info("success to delete book", zap.String("book.id", id), zap.String("request.id", requestID))
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, resp.Message, EmptyData))
}
