package main

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var isbnPattern = regexp.MustCompile(`^[\d-]+$`)

// BookForm is the book create and edit form.
type BookForm struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=100"`
	Genre       Genre  `json:"genre" validate:"required,genre"`
	ISBN        string `json:"isbn" validate:"required,min=6,max=20,isbnchars"`
	Description string `json:"description" validate:"required,max=1000"`
	Copies      int    `json:"copies" validate:"gte=1,lte=1000"`
	Available   bool   `json:"available"`
}

// Input converts a validated form into the remote api payload.
func (f BookForm) Input() BookInput {
	available := f.Available
	return BookInput{
		Title:       f.Title,
		Author:      f.Author,
		Genre:       f.Genre,
		ISBN:        f.ISBN,
		Description: f.Description,
		Copies:      f.Copies,
		Available:   &available,
	}
}

// BorrowForm is the borrow form of a given book.
type BorrowForm struct {
	Quantity int       `json:"quantity" validate:"gte=1,lte=1000"`
	DueDate  time.Time `json:"dueDate" validate:"required,future"`
}

// Request converts a validated form into the remote api payload.
// The due date is sent as an ISO-8601 UTC timestamp.
func (f BorrowForm) Request(bookID string) BorrowRequest {
	return BorrowRequest{
		Book:     bookID,
		Quantity: f.Quantity,
		DueDate:  f.DueDate.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

// fieldMessages holds the user facing messages keyed by field and rule.
var fieldMessages = map[string]string{
	"title.required":       "Title is required",
	"title.max":            "Title cannot exceed 200 characters",
	"author.required":      "Author is required",
	"author.max":           "Author name cannot exceed 100 characters",
	"genre.required":       "Please select a genre",
	"genre.genre":          "Please select a valid genre",
	"isbn.required":        "ISBN is required",
	"isbn.min":             "ISBN must be at least 6 characters",
	"isbn.max":             "ISBN cannot exceed 20 characters",
	"isbn.isbnchars":       "ISBN can only contain digits and hyphens",
	"description.required": "Description is required",
	"description.max":      "Description cannot exceed 1000 characters",
	"copies.gte":           "Copies must be at least 1",
	"copies.lte":           "Copies cannot exceed 1000",
	"quantity.gte":         "Quantity must be at least 1",
	"quantity.lte":         "Quantity cannot exceed 1000",
	"dueDate.required":     "Please select a due date",
	"dueDate.future":       "Due date must be in the future",
}

// FormValidator checks the forms before anything is sent to the remote api.
type FormValidator struct {
	v     *validator.Validate
	clock Clocker
}

// NewFormValidator builds a validator whose "future" rule is evaluated
// against the given clock.
func NewFormValidator(clock Clocker) *FormValidator {
	fv := &FormValidator{v: validator.New(), clock: clock}

	fv.v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// registration only fails on empty tags or nil funcs.
	_ = fv.v.RegisterValidation("isbnchars", func(fl validator.FieldLevel) bool {
		return isbnPattern.MatchString(fl.Field().String())
	})
	_ = fv.v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return Genre(fl.Field().String()).IsValid()
	})
	_ = fv.v.RegisterValidation("future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && t.After(fv.clock.Now())
	})

	return fv
}

// Validate returns a *ValidationError listing every rejected field.
func (fv *FormValidator) Validate(form interface{}) error {
	err := fv.v.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		if _, seen := fields[e.Field()]; seen {
			continue
		}
		fields[e.Field()] = friendlyMessage(e)
	}
	return &ValidationError{Fields: fields}
}

func friendlyMessage(e validator.FieldError) string {
	if msg, ok := fieldMessages[e.Field()+"."+e.Tag()]; ok {
		return msg
	}
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	default:
		return "is invalid"
	}
}
