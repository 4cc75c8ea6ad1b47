package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is the JSON error envelope every service returns.
type Error struct {
	Status    int            `json:"-"`
	Code      string         `json:"code"`
	Message   string         `json:"error"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Err       error          `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Abort writes e as the response and stops the handler chain.
func Abort(c *gin.Context, e *Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, e)
}

// ErrorMiddleware renders the last error attached with c.Error when the
// handler itself wrote nothing.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		if appErr, ok := err.(*Error); ok {
			Abort(c, appErr)
			return
		}
		Abort(c, &Error{Status: http.StatusInternalServerError, Code: "internal", Message: "Internal server error", Err: err})
	}
}

// Shared envelopes
var (
	ErrBadRequest      = New(http.StatusBadRequest, "validation", "Invalid request")
	ErrUnauthorized    = New(http.StatusUnauthorized, "unauthenticated", "Unauthorized")
	ErrForbidden       = New(http.StatusForbidden, "forbidden", "Forbidden")
	ErrNotFound        = New(http.StatusNotFound, "not_found", "Not found")
	ErrTooManyRequests = New(http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
	ErrInternalServer  = New(http.StatusInternalServerError, "internal", "Internal server error")
	ErrRequestTimeout  = New(http.StatusServiceUnavailable, "transient", "Request timed out")
)
