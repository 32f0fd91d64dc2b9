package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/openatrium/atrium/internal/auth/domain"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	institutiondomain "github.com/openatrium/atrium/internal/institution/domain"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	joindomain "github.com/openatrium/atrium/internal/join/domain"
	messagedomain "github.com/openatrium/atrium/internal/message/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
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

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}

	case isValidationError(err):
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: code,
		}

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case errors.Is(err, communitydomain.ErrForbidden),
		errors.Is(err, invitecodedomain.ErrForbidden),
		errors.Is(err, institutiondomain.ErrForbidden),
		errors.Is(err, institutiondomain.ErrInvalidSecret):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}

	case errors.Is(err, communitydomain.ErrLastAdmin):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_transition",
			Message: "a community must keep at least one admin",
		}

	case errors.Is(err, communitydomain.ErrProtectedCommunity):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "protected_community",
			Message: "the default community cannot be deleted",
		}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many attempts",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, communitydomain.ErrInvalidName),
		errors.Is(err, communitydomain.ErrInvalidType),
		errors.Is(err, communitydomain.ErrInvalidCommunity),
		errors.Is(err, communitydomain.ErrInvalidUser),
		errors.Is(err, communitydomain.ErrInvalidAction),
		errors.Is(err, communitydomain.ErrInvalidRole),
		errors.Is(err, invitecodedomain.ErrInvalidCodeType),
		errors.Is(err, institutiondomain.ErrInvalidName),
		errors.Is(err, messagedomain.ErrEmptyMessage):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, communitydomain.ErrCommunityNotFound),
		errors.Is(err, communitydomain.ErrMemberNotFound),
		errors.Is(err, institutiondomain.ErrInstitutionNotFound),
		errors.Is(err, joindomain.ErrRequestNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, communitydomain.ErrAlreadyMember),
		errors.Is(err, joindomain.ErrDuplicateRequest),
		errors.Is(err, invitecodedomain.ErrInvalidCode),
		errors.Is(err, institutiondomain.ErrInvalidInstitutionCode),
		errors.Is(err, institutiondomain.ErrAlreadyEnrolled),
		errors.Is(err, authdomain.ErrUserExists):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

// classifyErrorForLog feeds the request logger a coarse type without the
// full mapError payload machinery.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "internal", payload.Type
	case status >= 400:
		return "client", payload.Type
	default:
		return "", ""
	}
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func trimID(c *gin.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}
