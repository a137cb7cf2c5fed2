// Package apierror defines the single error envelope every DevLens HTTP
// handler returns, following the teacher's JobError pattern of a
// huma.StatusError-compatible struct built from a status code and message.
package apierror

import "net/http"

// Body is the wire shape of an error response: {"error": {...}}.
type Body struct {
	Error Detail `json:"error"`
}

// Detail carries the machine-readable code, a human message, and optional
// structured details (field validation errors, retry hints).
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements huma.StatusError so it can be returned directly from
// handlers and rendered without an extra wrapping layer.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"-"`
	Message string `json:"-"`
	Details any    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// GetStatus satisfies huma.StatusError.
func (e *Error) GetStatus() int {
	return e.Status
}

// Body renders the {"error": {...}} envelope huma writes for this error.
func (e *Error) Body() Body {
	return Body{Error: Detail{Code: e.Code, Message: e.Message, Details: e.Details}}
}

var codeByStatus = map[int]string{
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusUnauthorized:        "UNAUTHORIZED",
	http.StatusForbidden:           "FORBIDDEN",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusConflict:            "CONFLICT",
	http.StatusUnprocessableEntity: "VALIDATION_ERROR",
	http.StatusTooManyRequests:     "RATE_LIMITED",
	http.StatusInternalServerError: "INTERNAL_ERROR",
	http.StatusBadGateway:          "UPSTREAM_ERROR",
	http.StatusServiceUnavailable:  "SERVICE_UNAVAILABLE",
}

// New builds an Error from an HTTP status, deriving the code from the
// status→code table above (falling back to INTERNAL_ERROR for anything
// unmapped rather than leaking a blank code).
func New(status int, message string) *Error {
	code, ok := codeByStatus[status]
	if !ok {
		code = "INTERNAL_ERROR"
	}
	return &Error{Status: status, Code: code, Message: message}
}

// WithDetails attaches structured details (e.g. per-field validation errors)
// to an existing Error and returns it for chaining.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func BadRequest(message string) *Error          { return New(http.StatusBadRequest, message) }
func Unauthorized(message string) *Error        { return New(http.StatusUnauthorized, message) }
func Forbidden(message string) *Error           { return New(http.StatusForbidden, message) }
func NotFound(message string) *Error            { return New(http.StatusNotFound, message) }
func Conflict(message string) *Error            { return New(http.StatusConflict, message) }
func ValidationError(message string) *Error     { return New(http.StatusUnprocessableEntity, message) }
func RateLimited(message string) *Error         { return New(http.StatusTooManyRequests, message) }
func Internal(message string) *Error            { return New(http.StatusInternalServerError, message) }
func UpstreamError(message string) *Error       { return New(http.StatusBadGateway, message) }
func ServiceUnavailable(message string) *Error  { return New(http.StatusServiceUnavailable, message) }
