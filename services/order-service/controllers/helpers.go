package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/Mark23Dev/project-nexus/services/common/errors"
	"github.com/Mark23Dev/project-nexus/services/order-service/middleware"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError writes err using the shared error envelope. Internal causes
// are attached to the gin context for the request logger, never the body.
func respondError(ctx *gin.Context, err error) {
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		_ = ctx.Error(err)
		apperrors.Abort(ctx, apperrors.ErrInternalServer)
		return
	}
	if svcErr.Kind == services.KindInternal && svcErr.Err != nil {
		_ = ctx.Error(svcErr.Err)
	}
	apperrors.Abort(ctx, &apperrors.Error{
		Status:    svcErr.StatusCode,
		Code:      string(svcErr.Kind),
		Message:   svcErr.Message,
		Retryable: svcErr.Retryable(),
		Details:   svcErr.Details,
	})
}

func badRequest(ctx *gin.Context, message string, err error) {
	e := apperrors.New(http.StatusBadRequest, "validation", message)
	if err != nil {
		e = e.WithDetails(map[string]any{"reason": err.Error()})
	}
	apperrors.Abort(ctx, e)
}

func principalOrAbort(ctx *gin.Context) (models.Principal, bool) {
	p, err := middleware.GetPrincipal(ctx)
	if err != nil {
		apperrors.Abort(ctx, apperrors.ErrUnauthorized)
		return models.Principal{}, false
	}
	return p, true
}

func parseIDParam(ctx *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		badRequest(ctx, "Invalid "+what+" ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

func setETag(ctx *gin.Context, version int64) {
	ctx.Header("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// parseIfMatch reads the expected order version from If-Match. A missing
// header or "*" means no version check.
func parseIfMatch(ctx *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(ctx.GetHeader("If-Match"))
	if raw == "" || raw == "*" {
		return 0, true
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		badRequest(ctx, "If-Match must be an order version", nil)
		return 0, false
	}
	return v, true
}

// parsePaginationParams extracts and validates pagination parameters
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const MaxLimit = 100
	const DefaultPage = 1
	const DefaultLimit = 10

	pageInt := DefaultPage
	limitInt := DefaultLimit

	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		pageInt = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("limit", "10")); err == nil && l > 0 {
		limitInt = l
		if limitInt > MaxLimit {
			limitInt = MaxLimit
		}
	}
	return pageInt, limitInt
}
