package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/logger"
)

// statusFor maps error kinds to HTTP status codes.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.InvalidArgument, errs.FileSystemBrowse:
		return http.StatusBadRequest
	case errs.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	case errs.ResourceExhausted:
		return http.StatusTooManyRequests
	case errs.Cancelled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

// fail renders a typed error as JSON. Internal errors expose only their
// correlation id; the cause is logged server-side.
func fail(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	body := gin.H{"code": string(kind)}

	var e *errs.Error
	if errors.As(err, &e) {
		if kind == errs.Internal {
			body["message"] = "internal error"
			body["correlation_id"] = e.CorrelationID
			logger.Error("internal error", "correlation_id", e.CorrelationID, "error", err)
		} else {
			body["message"] = e.Message
			if e.Field != "" {
				body["field"] = e.Field
			}
		}
	} else {
		body["message"] = "internal error"
		logger.Error("untyped error", "error", err)
	}

	if kind == errs.Unauthenticated {
		c.Header("WWW-Authenticate",
			`Bearer error="invalid_token", error_description="`+body["message"].(string)+`"`)
	}
	c.AbortWithStatusJSON(statusFor(kind), gin.H{"error": body})
}

// idParam parses the numeric :name path parameter.
func idParam(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errs.Ef(errs.InvalidArgument, "invalid id %q", raw)
	}
	return uint(id), nil
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// uintQueryPtr parses an optional uint query parameter into a pointer.
func uintQueryPtr(c *gin.Context, name string) *uint {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	v := uint(n)
	return &v
}
