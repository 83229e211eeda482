package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"studyCafeCRM/business/flow"
	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/labstack/echo/v4"
)

type FlowService interface {
	Create(ctx context.Context, scope domain.Scope, def flow.Definition) (domain.AutomationFlow, error)
	Get(ctx context.Context, scope domain.Scope, id uint) (domain.AutomationFlow, error)
	Update(ctx context.Context, scope domain.Scope, id uint, def flow.Definition) (domain.AutomationFlow, error)
	Activate(ctx context.Context, scope domain.Scope, id uint) (domain.AutomationFlow, error)
	Deactivate(ctx context.Context, scope domain.Scope, id uint) (domain.AutomationFlow, error)
	PreviewTargets(ctx context.Context, scope domain.Scope, id uint, ref time.Time) ([]string, error)
}

// FlowHandler serves the operator-facing flow endpoints.
type FlowHandler struct {
	flowService FlowService
	timeout     time.Duration
	now         func() time.Time
}

func NewFlowHandler(flowService FlowService) *FlowHandler {
	return &FlowHandler{
		flowService: flowService,
		timeout:     defaultHandlerTimeout,
		now:         time.Now,
	}
}

func (h *FlowHandler) CreateFlow(c echo.Context) error {
	def, err := bindDefinition(c)
	if err != nil {
		return writeError(c, err)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	created, err := h.flowService.Create(ctx, scope, def)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(created))
}

func (h *FlowHandler) GetFlow(c echo.Context) error {
	return h.byID(c, h.flowService.Get)
}

func (h *FlowHandler) UpdateFlow(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	def, err := bindDefinition(c)
	if err != nil {
		return writeError(c, err)
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	updated, err := h.flowService.Update(ctx, scope, id, def)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(updated))
}

func (h *FlowHandler) ActivateFlow(c echo.Context) error {
	return h.byID(c, h.flowService.Activate)
}

func (h *FlowHandler) DeactivateFlow(c echo.Context) error {
	return h.byID(c, h.flowService.Deactivate)
}

func (h *FlowHandler) PreviewTargets(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	phones, err := h.flowService.PreviewTargets(ctx, scope, id, h.now())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(map[string]interface{}{
		"flowId":       id,
		"count":        len(phones),
		"targetPhones": phones,
	}))
}

func (h *FlowHandler) byID(c echo.Context, op func(context.Context, domain.Scope, uint) (domain.AutomationFlow, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	f, err := op(ctx, scope, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(f))
}

// bindDefinition decodes the body and parses the configs. A malformed body
// is reported as an invalid config.
func bindDefinition(c echo.Context) (flow.Definition, error) {
	var raw flow.RawDefinition
	if err := c.Bind(&raw); err != nil {
		logger.Warn("Failed to bind flow request", err)
		return flow.Definition{}, fmt.Errorf("%w: invalid request body", flow.ErrInvalidConfig)
	}
	return flow.ParseDefinition(raw)
}
