package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// BorrowBook godoc
// @Summary      Borrow a book
// @Tags         borrow
// @Accept       json
// @Produce      json
// @Param        bookId  path      string      true  "book id"
// @Param        borrow  body      BorrowForm  true  "borrow form"
// @Success      201     {object}  APIResponse
// @Failure      400     {object}  APIError
// @Router       /borrow/{bookId} [post]
func (api *APIHandler) BorrowBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	bookID := ps.ByName("bookId")
	var form BorrowForm
	if err := DecodeRequestBody(r, &form); err != nil {
		api.sendError(w, r, err, "failed to borrow book", zap.String("book.id", bookID))
		return
	}
	borrow, err := api.library.BorrowBook(r.Context(), bookID, form)
	if err != nil {
		api.sendError(w, r, err, "failed to borrow book", zap.String("book.id", bookID))
		return
	}
	api.logger.Info("success to borrow book",
		zap.String("book.id", bookID),
		zap.Int("borrow.quantity", form.Quantity),
		zap.String("request.id", requestID),
	)
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusCreated, borrow.Message, borrow.Data))
}

// BorrowSummary godoc
// @Summary      Borrow summary
// @Description  aggregated borrowed quantities per book
// @Tags         borrow
// @Produce      json
// @Param        page     query  int   false  "page number"  default(1)
// @Param        limit    query  int   false  "page size"    default(10)
// @Param        refresh  query  bool  false  "bypass fresh cached data"
// @Success      200  {object}  APIResponse
// @Failure      502  {object}  APIError
// @Router       /borrow-summary [get]
func (api *APIHandler) BorrowSummary(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	q := r.URL.Query()
	summary, err := api.library.BorrowSummary(r.Context(), ParsePageQuery(q), q.Get("refresh") == "true")
	if err != nil {
		api.sendError(w, r, err, "failed to load borrow summary")
		return
	}
	api.logger.Info("success to get borrow summary", zap.String("request.id", requestID))
	resp := ListResponse(requestID, summary.Message, summary.Data, summary.Pagination, NewSummaryPageView(summary.Pagination))
	api.sendResponse(w, r, resp)
}
