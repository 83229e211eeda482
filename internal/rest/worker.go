package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"studyCafeCRM/business/flow"
	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/utils"

	jsonres "studyCafeCRM/pkg/response"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type FlowDispatcher interface {
	Dispatch(ctx context.Context, scope domain.Scope, flowID uint, now time.Time) (flow.DispatchResult, error)
	Due(ctx context.Context, now time.Time) ([]domain.AutomationFlow, error)
	DispatchDue(ctx context.Context, now time.Time) (flow.DueReport, error)
}

type CallbackIngestor interface {
	Ingest(ctx context.Context, flowID uint, cb domain.Callback) (flow.IngestOutcome, error)
}

// WorkerHandler serves the endpoints the execution worker and the external
// scheduler call. Every route sits behind middleware.WorkerAuth.
type WorkerHandler struct {
	dispatcher FlowDispatcher
	ingestor   CallbackIngestor
	validator  *validator.Validate
	timeout    time.Duration
	now        func() time.Time
}

func NewWorkerHandler(dispatcher FlowDispatcher, ingestor CallbackIngestor) *WorkerHandler {
	return &WorkerHandler{
		dispatcher: dispatcher,
		ingestor:   ingestor,
		validator:  validator.New(),
		timeout:    30 * time.Second,
		now:        time.Now,
	}
}

// CallbackRequest is the worker's report. Pointers tell a missing field
// from a zero value.
type CallbackRequest struct {
	DispatchID   string   `json:"dispatchId"`
	Success      *bool    `json:"success" validate:"required"`
	SuccessCount *int     `json:"successCount" validate:"required,gte=0"`
	FailCount    *int     `json:"failCount" validate:"required,gte=0"`
	TotalCount   *int     `json:"totalCount" validate:"required,gte=0"`
	ErrorMessage *string  `json:"errorMessage"`
	ExecutedAt   string   `json:"executedAt" validate:"required"`
	FailedPhones []string `json:"failedPhones"`
}

func (r CallbackRequest) toCallback() (domain.Callback, error) {
	executedAt, err := time.Parse(time.RFC3339, r.ExecutedAt)
	if err != nil {
		return domain.Callback{}, errors.New("executedAt must be an ISO-8601 timestamp")
	}

	failed := make([]string, 0, len(r.FailedPhones))
	for _, p := range r.FailedPhones {
		if n := utils.NormalizePhone(p); n != "" {
			failed = append(failed, n)
		}
	}

	return domain.Callback{
		DispatchID:   r.DispatchID,
		Success:      *r.Success,
		SuccessCount: *r.SuccessCount,
		FailCount:    *r.FailCount,
		TotalCount:   *r.TotalCount,
		ErrorMessage: r.ErrorMessage,
		ExecutedAt:   executedAt,
		FailedPhones: failed,
	}, nil
}

// Callback answers 400 on a malformed body, 404 when the flow or dispatch
// is unknown and 500 on anything else; the worker retries only on 500.
func (h *WorkerHandler) Callback(c echo.Context) error {
	flowID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req CallbackRequest
	if err := c.Bind(&req); err != nil {
		logger.Warn("Failed to bind callback request", "flow_id", flowID, err)
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}
	cb, err := req.toCallback()
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	outcome, err := h.ingestor.Ingest(ctx, flowID, cb)
	if err != nil {
		if errors.Is(err, flow.ErrFlowNotFound) || errors.Is(err, flow.ErrDispatchNotFound) {
			return c.JSON(http.StatusNotFound, jsonres.Error("NOT_FOUND", err.Error(), nil))
		}
		logger.ErrorCtx(ctx, "Failed to ingest callback", "flow_id", flowID, err)
		return c.JSON(http.StatusInternalServerError, jsonres.Error("INTERNAL_ERROR", "Internal server error", nil))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"outcome": outcome,
	})
}

func (h *WorkerHandler) Dispatch(c echo.Context) error {
	flowID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.dispatcher.Dispatch(ctx, scope, flowID, h.now())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(result))
}

func (h *WorkerHandler) DueFlows(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	flows, err := h.dispatcher.Due(ctx, h.now())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(flows))
}

// DispatchDue lets an external scheduler drive dispatching when the
// in-process scheduler is disabled.
func (h *WorkerHandler) DispatchDue(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	report, err := h.dispatcher.DispatchDue(ctx, h.now())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(report))
}
