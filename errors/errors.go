package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type APIError interface {
	Error() string
	Message() string
	Code() int
	SetDetail(str string, a ...any) APIError
	SetFields(d Fields) APIError
	GetFields() Fields
	ExpectedHTTPStatus() int
	WithHTTPStatus(s int) APIError
	Extensions() map[string]any
}

type Fields map[string]any

var (
	ErrUnauthorized          = DefineError(10401, "Authorization Required", http.StatusUnauthorized)
	ErrInsufficientPrivilege = DefineError(10403, "Insufficient Privilege", http.StatusForbidden)
	ErrInvalidRequest        = DefineError(10400, "Invalid Request", http.StatusBadRequest)

	ErrUnknownUser      = DefineError(70440, "Unknown User", http.StatusNotFound)
	ErrUnknownNamespace = DefineError(70441, "Unknown Namespace", http.StatusNotFound)
	ErrNoItems          = DefineError(70410, "No Items Found", http.StatusNotFound)

	ErrInternalServerError = DefineError(70500, "Internal Server Error", http.StatusInternalServerError)
	ErrUpstreamFailure     = DefineError(70502, "Upstream Failure", http.StatusBadGateway)
)

type apiError struct {
	message            string
	code               int
	fields             Fields
	expectedHttpStatus int
}

// DefineError returns a constructor for a coded error. Each call yields a fresh value so
// details set by one caller never leak to another.
func DefineError(code int, message string, httpStatus int) func() APIError {
	return func() APIError {
		return &apiError{
			message:            strings.ToLower(message),
			code:               code,
			fields:             Fields{},
			expectedHttpStatus: httpStatus,
		}
	}
}

func (e *apiError) Error() string {
	return fmt.Sprintf("[%d] %s", e.code, e.message)
}

func (e *apiError) Message() string {
	return e.message
}

func (e *apiError) Code() int {
	return e.code
}

func (e *apiError) SetDetail(str string, a ...any) APIError {
	e.message = e.message + ": " + fmt.Sprintf(str, a...)
	return e
}

func (e *apiError) SetFields(d Fields) APIError {
	for k, v := range d {
		e.fields[k] = v
	}

	return e
}

func (e *apiError) GetFields() Fields {
	return e.fields
}

func (e *apiError) ExpectedHTTPStatus() int {
	return e.expectedHttpStatus
}

func (e *apiError) WithHTTPStatus(s int) APIError {
	e.expectedHttpStatus = s
	return e
}

// Is matches two API errors by code, so errors.Is(err, ErrUnknownUser()) works on detailed copies.
func (e *apiError) Is(target error) bool {
	var t APIError
	if !errors.As(target, &t) {
		return false
	}

	return t.Code() == e.code
}

// Compare reports whether err is an API error carrying the same code as target.
func Compare(err error, target APIError) bool {
	var e APIError
	if !errors.As(err, &e) {
		return false
	}

	return e.Code() == target.Code()
}

// From returns err as an APIError, wrapping unknown errors as internal server errors.
func From(err error) APIError {
	var e APIError
	if errors.As(err, &e) {
		return e
	}

	return ErrInternalServerError().SetDetail("%s", err.Error())
}

// Extensions exposes the code and fields to GraphQL error formatting.
func (e *apiError) Extensions() map[string]any {
	ext := map[string]any{"code": e.code}
	if len(e.fields) != 0 {
		ext["fields"] = e.fields
	}

	return ext
}
