package errors

import (
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Kind groups errors so callers can react without parsing messages.
type Kind string

const (
	KindInternal        Kind = "internal"
	KindStorage         Kind = "storage"
	KindAuthorization   Kind = "authorization"
	KindUnauthenticated Kind = "unauthenticated"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindTooManyRequests Kind = "too_many_requests"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind, so errors.Is(err, ErrAuthorization) holds for any authorization failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

var (
	ErrInternalServerError = &Error{Kind: KindInternal, Message: "internal server error", Status: http.StatusInternalServerError}
	ErrStorage             = &Error{Kind: KindStorage, Message: "storage error", Status: http.StatusInternalServerError}
	ErrAuthorization       = &Error{Kind: KindAuthorization, Message: "forbidden", Status: http.StatusForbidden}
	ErrUnauthorized        = &Error{Kind: KindUnauthenticated, Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found", Status: http.StatusNotFound}
	ErrBadRequest          = &Error{Kind: KindValidation, Message: "bad request", Status: http.StatusBadRequest}
	ErrTooManyRequests     = &Error{Kind: KindTooManyRequests, Message: "too many requests", Status: http.StatusTooManyRequests}

	ErrValidation = ErrBadRequest
)

// New builds an error from a message and an http status, deriving the kind from the status.
func New(message string, status int) *Error {
	return &Error{Kind: kindForStatus(status), Message: message, Status: status}
}

// Storage reports a store that is unreachable or refused the write.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Status: http.StatusInternalServerError, Err: err}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message, Status: http.StatusForbidden}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Status: http.StatusNotFound}
}

func Invalid(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Status: http.StatusBadRequest}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindAuthorization
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindTooManyRequests
	default:
		return KindInternal
	}
}

// ErrorHandler is the rate limiter's rejection handler.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"message":   "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
		"errors":    ErrTooManyRequests,
		"status":    http.StatusText(http.StatusTooManyRequests),
		"timestamp": time.Now().Format(time.RFC850),
	})
}
