package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/marketcore/middleware"
	"github.com/cppla/marketcore/services"
	"github.com/cppla/marketcore/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

// paginate returns the page window of a slice of length n.
func paginate(n, page, pageSize int) (int, int) {
	start := (page - 1) * pageSize
	if start > n {
		start = n
	}
	end := start + pageSize
	if end > n {
		end = n
	}
	return start, end
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func parseIDParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// respondServiceError maps engine sentinel errors onto HTTP status and code.
func respondServiceError(ctx *gin.Context, err error, code int, msg string) {
	switch {
	case errors.Is(err, services.ErrCreditFailure):
		// may wrap ErrNotFound for a missing wallet owner, which is not a client error
		utils.Sugar.Errorf("%s: %v", msg, err)
		utils.Error(ctx, http.StatusInternalServerError, 50027, "reward credit failed")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40420, "achievement not found")
	case errors.Is(err, services.ErrUnknownMetric), errors.Is(err, services.ErrInvalidRequirement):
		utils.Error(ctx, http.StatusBadRequest, 40021, err.Error())
	case errors.Is(err, services.ErrNotUnlocked):
		utils.Error(ctx, http.StatusConflict, 40921, "achievement not unlocked")
	case errors.Is(err, services.ErrAlreadyClaimed):
		utils.Error(ctx, http.StatusConflict, 40922, "reward already claimed")
	case errors.Is(err, services.ErrRequirementsNotMet):
		utils.Error(ctx, http.StatusConflict, 40923, "requirements not met")
	case errors.Is(err, utils.ErrLockTimeout):
		utils.Error(ctx, http.StatusServiceUnavailable, 50321, "achievement busy, retry later")
	default:
		utils.Sugar.Errorf("%s: %v", msg, err)
		utils.Error(ctx, http.StatusInternalServerError, code, msg)
	}
}
