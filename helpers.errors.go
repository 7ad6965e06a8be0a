package main

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrMissingBookID = errors.New("book id is required")
	ErrTransport     = errors.New("gateway: transport failure")
	ErrStatus        = errors.New("gateway: request rejected")
	ErrDecode        = errors.New("gateway: unexpected payload")
	ErrValidation    = errors.New("validation failed")
)

// ErrorKind classifies a gateway failure.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
)

// GatewayError is the structured failure returned by every gateway
// operation. Message holds the server-supplied text when there is one.
type GatewayError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	cause      error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	return e.cause
}

// Is matches the kind sentinels ErrTransport, ErrStatus and ErrDecode.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrStatus:
		return e.Kind == KindStatus
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}

// HTTPStatus maps the failure onto the status code sent back to our own callers.
func (e *GatewayError) HTTPStatus() int {
	if e.Kind == KindStatus && e.StatusCode >= 400 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}

// UserMessage returns the server message if provided or a generic one.
func (e *GatewayError) UserMessage(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// ValidationError holds per-field messages of a rejected form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
