package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects the books and borrow endpoints.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	router.GET("/books", m.public(api.ListBooks))
	router.GET("/books/:id", m.public(api.GetBook))
	router.DELETE("/books/:id", m.public(api.DeleteBook))
	router.POST("/create-book", m.public(api.CreateBook))
	router.PATCH("/edit-book/:id", m.public(api.UpdateBook))
	router.POST("/borrow/:bookId", m.public(api.BorrowBook))
	router.GET("/borrow-summary", m.public(api.BorrowSummary))
	return router
}

// SetupLiveRoutes injects the server-sent events views.
func (api *APIHandler) SetupLiveRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET(LivePrefix+"books", m.public(api.LiveBooks))
	router.GET(LivePrefix+"books/:id", m.public(api.LiveBook))
	router.GET(LivePrefix+"borrow-summary", m.public(api.LiveBorrowSummary))
	return router
}
