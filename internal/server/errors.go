package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/erpcore/internal/authorization"
	mfgdomain "github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	seqdomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
	Path      []string          `json:"path,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrOrgRequired        = errors.New("org_required")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var patternErr *pattern.ValidationError
	if errors.As(err, &patternErr) {
		code := patternErr.Kind.Error()
		field := validationErrorField(code)
		errs := make([]ValidationError, 0, len(patternErr.Result.Errors))
		for _, msg := range patternErr.Result.Errors {
			errs = append(errs, ValidationError{Field: field, Code: code, Message: msg})
		}
		return http.StatusBadRequest, errorPayload{
			Type:     "validation_error",
			Message:  "validation error",
			Errors:   errs,
			Warnings: patternErr.Result.Warnings,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	var cycle *mfgdomain.CircularReferenceError
	if errors.As(err, &cycle) {
		path := make([]string, 0, len(cycle.Path))
		for _, id := range cycle.Path {
			path = append(path, strconv.FormatInt(id, 10))
		}
		return http.StatusConflict, errorPayload{
			Type:    "integrity_error",
			Code:    mfgdomain.ErrCircularReference.Error(),
			Message: "bill of material contains a circular reference",
			Path:    path,
		}
	}

	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    errorCode(err),
			Message: "not found",
		}
	case errors.Is(err, mfgdomain.ErrMaxDepthExceeded):
		return http.StatusConflict, errorPayload{
			Type:    "integrity_error",
			Code:    mfgdomain.ErrMaxDepthExceeded.Error(),
			Message: "bill of material nesting exceeds the maximum depth",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    errorCode(err),
			Message: err.Error(),
		}
	case errors.Is(err, seqdomain.ErrLockTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "lock_timeout",
			Code:      seqdomain.ErrLockTimeout.Error(),
			Message:   "sequence is busy, retry the request",
			Retryable: true,
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:      "rate_limited",
			Message:   "too many requests",
			Retryable: true,
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "service_unavailable",
			Message:   "service unavailable",
			Retryable: true,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on the request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	ErrOrgRequired,
	authorization.ErrInvalidActor,
	seqdomain.ErrInvalidTenant,
	seqdomain.ErrInvalidName,
	seqdomain.ErrInvalidPattern,
	seqdomain.ErrInvalidContext,
	seqdomain.ErrInvalidPadding,
	seqdomain.ErrInvalidStepSize,
	seqdomain.ErrInvalidResetLimit,
	seqdomain.ErrInvalidResetPeriod,
	seqdomain.ErrInvalidOverride,
	seqdomain.ErrInvalidResetValue,
	seqdomain.ErrUnsupportedEvaluator,
	seqdomain.ErrInvalidPageToken,
	mfgdomain.ErrInvalidTenant,
	mfgdomain.ErrInvalidID,
	mfgdomain.ErrInvalidCode,
	mfgdomain.ErrInvalidName,
	mfgdomain.ErrInvalidProductType,
	mfgdomain.ErrInvalidUOM,
	mfgdomain.ErrInvalidCost,
	mfgdomain.ErrInvalidQuantity,
	mfgdomain.ErrInvalidScrap,
	mfgdomain.ErrInvalidComponentType,
	mfgdomain.ErrInvalidLineNumber,
	mfgdomain.ErrProductCannotHaveBOM,
	mfgdomain.ErrSelfReference,
}

var notFoundErrors = []error{
	ErrNotFound,
	seqdomain.ErrSequenceNotFound,
	mfgdomain.ErrProductNotFound,
	mfgdomain.ErrBOMNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	seqdomain.ErrSequenceExists,
	seqdomain.ErrVersionConflict,
	seqdomain.ErrDuplicateNumber,
	seqdomain.ErrNumberTaken,
	mfgdomain.ErrProductExists,
	mfgdomain.ErrBOMNotEditable,
	mfgdomain.ErrBOMEmpty,
	mfgdomain.ErrInvalidTransition,
	mfgdomain.ErrLineExists,
}

func isValidationError(err error) bool {
	return matchAny(err, validationErrors) != nil
}

func isNotFoundError(err error) bool {
	return matchAny(err, notFoundErrors) != nil
}

func isConflictError(err error) bool {
	return matchAny(err, conflictErrors) != nil
}

func matchAny(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

// errorCode is the sentinel's snake_case text, without any wrapping detail.
func errorCode(err error) string {
	for _, group := range [][]error{validationErrors, notFoundErrors, conflictErrors} {
		if target := matchAny(err, group); target != nil {
			return target.Error()
		}
	}
	return ""
}

func validationErrorCode(err error) string {
	if code := errorCode(err); code != "" {
		return code
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
