// Package apierror defines the error type rendered at HTTP boundaries as a
// JSON:API error document. Every client-visible failure in this project is
// either an *Error or gets wrapped into one before rendering.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/keel-api/keel/internal/jsonapi"
)

// Error carries the JSON:API error members plus the wrapped cause
type Error struct {
	Status    int
	Title     string
	Detail    string
	Pointer   string
	Parameter string
	Meta      map[string]any

	err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.err
}

// WithCause attaches an underlying error without changing the rendered document
func (e *Error) WithCause(err error) *Error {
	e.err = err
	return e
}

// WithMeta attaches a meta member to the rendered error object
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// Object renders the error as a JSON:API error object
func (e *Error) Object() *jsonapi.ErrorObject {
	obj := &jsonapi.ErrorObject{
		Status: strconv.Itoa(e.Status),
		Title:  e.Title,
		Detail: e.Detail,
		Meta:   e.Meta,
	}
	if e.Pointer != "" || e.Parameter != "" {
		obj.Source = &jsonapi.ErrorSource{
			Pointer:   e.Pointer,
			Parameter: e.Parameter,
		}
	}
	return obj
}

// Document renders the error as a complete JSON:API error document
func (e *Error) Document() *jsonapi.ErrorDocument {
	return jsonapi.NewErrorDocument(e.Object())
}

// InvalidParameter builds a 400 error attributed to a query parameter
func InvalidParameter(parameter, detail string) *Error {
	return &Error{
		Status:    http.StatusBadRequest,
		Title:     "Invalid query parameter",
		Detail:    detail,
		Parameter: parameter,
	}
}

// InvalidFilters builds a 400 error attributed to the filter parameter
func InvalidFilters(detail string) *Error {
	return &Error{
		Status:    http.StatusBadRequest,
		Title:     "Invalid filters querystring parameter",
		Detail:    detail,
		Parameter: "filter",
	}
}

// BadRequest builds a generic 400 error
func BadRequest(detail string) *Error {
	return &Error{
		Status: http.StatusBadRequest,
		Title:  "Bad request",
		Detail: detail,
	}
}

// ValidationFailed builds a 422 error attributed to a document pointer
func ValidationFailed(pointer, detail string) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Title:   "Validation error",
		Detail:  detail,
		Pointer: pointer,
	}
}

// NotFound builds a 404 error for a missing resource
func NotFound(resourceType, id string) *Error {
	return &Error{
		Status: http.StatusNotFound,
		Title:  "Resource not found",
		Detail: fmt.Sprintf("%s with id %q was not found", resourceType, id),
	}
}

// RelatedNotFound builds a 404 error for an unknown resource type or
// relationship addressed by the request path
func RelatedNotFound(detail string) *Error {
	return &Error{
		Status: http.StatusNotFound,
		Title:  "Not found",
		Detail: detail,
	}
}

// Forbidden builds a 403 error, e.g. for a client-generated id on a
// resource that does not accept one
func Forbidden(detail string) *Error {
	return &Error{
		Status: http.StatusForbidden,
		Title:  "Forbidden",
		Detail: detail,
	}
}

// Conflict builds a 409 error, e.g. for a duplicate client-generated id
func Conflict(detail string) *Error {
	return &Error{
		Status: http.StatusConflict,
		Title:  "Conflict",
		Detail: detail,
	}
}

// UnsupportedMediaType builds a 415 error for a bad request content type
func UnsupportedMediaType() *Error {
	return &Error{
		Status: http.StatusUnsupportedMediaType,
		Title:  "Unsupported media type",
		Detail: fmt.Sprintf("request Content-Type must be %s without media type parameters", jsonapi.MediaType),
	}
}

// NotAcceptable builds a 406 error for an Accept header that rules out the
// JSON:API media type
func NotAcceptable() *Error {
	return &Error{
		Status: http.StatusNotAcceptable,
		Title:  "Not acceptable",
		Detail: fmt.Sprintf("Accept header must allow %s without media type parameters", jsonapi.MediaType),
	}
}

// Internal builds a 500 error, hiding the cause from the client
func Internal(err error) *Error {
	return &Error{
		Status: http.StatusInternalServerError,
		Title:  "Internal server error",
		err:    err,
	}
}

// As extracts an *Error from an error chain
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
