package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/middleware"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	apperrors "github.com/anonto42/nano-midea/socialgraph/pkg/errors"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50

	statusClientClosedRequest = 499
)

var statusByType = map[apperrors.ErrorType]int{
	apperrors.ErrorTypeNotFound:         http.StatusNotFound,
	apperrors.ErrorTypeForbidden:        http.StatusForbidden,
	apperrors.ErrorTypeValidation:       http.StatusBadRequest,
	apperrors.ErrorTypeConflict:         http.StatusConflict,
	apperrors.ErrorTypeUnauthorized:     http.StatusUnauthorized,
	apperrors.ErrorTypeTransientStorage: http.StatusServiceUnavailable,
}

// httpError maps a service error onto an echo HTTP error.
func httpError(c echo.Context, err error) error {
	var base *apperrors.BaseError
	if errors.As(err, &base) {
		if status, ok := statusByType[base.Type]; ok {
			if status == http.StatusServiceUnavailable {
				logger.Get().Warn("storage unavailable", zap.String("path", c.Path()), zap.Error(err))
			}
			return echo.NewHTTPError(status, base.Message)
		}
	}
	if errors.Is(err, context.Canceled) {
		return echo.NewHTTPError(statusClientClosedRequest, "Request cancelled")
	}
	logger.Get().Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}

// currentUser returns the authenticated caller or a 401.
func currentUser(c echo.Context) (primitive.ObjectID, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return primitive.NilObjectID, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}

func pathID(c echo.Context, name string) (primitive.ObjectID, error) {
	id, err := repositories.ParseObjectID(c.Param(name))
	if err != nil {
		return primitive.NilObjectID, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func pagination(c echo.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return page, limit
}

// bindAndValidate binds the body and runs the registered validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	return c.Validate(req)
}

func success(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

// paged writes the list envelope. total < 0 means the total is unknown and
// hasNextPage is inferred from a full page.
func paged(c echo.Context, key string, items interface{}, count, page, limit int, total int64) error {
	meta := echo.Map{
		"currentPage":     page,
		"itemsPerPage":    limit,
		"hasPreviousPage": page > 1,
	}
	if total >= 0 {
		totalPages := int((total + int64(limit) - 1) / int64(limit))
		meta["totalPages"] = totalPages
		meta["totalItems"] = total
		meta["hasNextPage"] = page < totalPages
	} else {
		meta["hasNextPage"] = count == limit
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{key: items},
		"meta":    meta,
	})
}

func viewerFrom(c echo.Context) *primitive.ObjectID {
	return middleware.ViewerID(c)
}
