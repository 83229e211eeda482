package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"studyCafeCRM/business/flow"
	"studyCafeCRM/business/segment"
	"studyCafeCRM/domain"
	"studyCafeCRM/internal/middleware"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/timeutil"

	jsonres "studyCafeCRM/pkg/response"

	"github.com/labstack/echo/v4"
)

const (
	defaultHandlerTimeout = 10 * time.Second
	dateLayout            = "2006-01-02"
)

// writeError maps business errors to a status. Anything unrecognised is a
// 500 and is logged with the request trace id.
func writeError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, flow.ErrFlowNotFound),
		errors.Is(err, flow.ErrDispatchNotFound),
		errors.Is(err, segment.ErrCustomerNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, flow.ErrInvalidConfig):
		status, code = http.StatusBadRequest, "INVALID_CONFIG"
	case errors.Is(err, flow.ErrInvalidTransition),
		errors.Is(err, flow.ErrDispatchInProgress),
		errors.Is(err, flow.ErrVersionConflict),
		errors.Is(err, flow.ErrFlowInactive):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, flow.ErrJobPublish):
		status, code = http.StatusBadGateway, "WORKER_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	}

	if status == http.StatusInternalServerError {
		logger.ErrorCtx(c.Request().Context(), "Request failed", err)
		return c.JSON(status, jsonres.Error(code, "Internal server error", nil))
	}
	return c.JSON(status, jsonres.Error(code, err.Error(), nil))
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, jsonres.Error("BAD_REQUEST", message, nil))
}

func scopeOf(c echo.Context) (domain.Scope, error) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		return domain.Scope{}, domain.ErrForbidden
	}
	return scope, nil
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(id), nil
}

// parseDay reads a YYYY-MM-DD or RFC3339 value. A plain date is the start
// of that business day in loc.
func parseDay(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// referenceDate is the last second of the requested business day, or now
// when no date was given.
func referenceDate(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	if day, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return timeutil.BeginningOfDay(day, loc).AddDate(0, 0, 1).Add(-time.Second), nil
	}
	return time.Parse(time.RFC3339, value)
}
