package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/utils"

	"github.com/AMFarhan21/fres"
	"github.com/labstack/echo/v4"
)

type SegmentService interface {
	Summary(ctx context.Context, scope domain.Scope, branchID uint, ref time.Time, rangeStart *time.Time) (domain.SegmentSummary, []domain.SegmentedCustomer, error)
	Profile(ctx context.Context, scope domain.Scope, branchID uint, phone string, ref time.Time, rangeStart *time.Time) (domain.CustomerProfile, error)
	Snapshot(ctx context.Context, scope domain.Scope, branchID uint, ref time.Time) (int, error)
	Location() *time.Location
}

type SegmentHandler struct {
	segmentService SegmentService
	timeout        time.Duration
	now            func() time.Time
}

func NewSegmentHandler(segmentService SegmentService) *SegmentHandler {
	return &SegmentHandler{
		segmentService: segmentService,
		timeout:        defaultHandlerTimeout,
		now:            time.Now,
	}
}

type segmentListResponse struct {
	Summary   domain.SegmentSummary      `json:"summary"`
	Customers []domain.SegmentedCustomer `json:"customers"`
}

// GetSegments lists every customer of the branch with its labels.
func (h *SegmentHandler) GetSegments(c echo.Context) error {
	branchID, ref, rangeStart, err := h.branchQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	summary, customers, err := h.segmentService.Summary(ctx, scope, branchID, ref, rangeStart)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(segmentListResponse{
		Summary:   summary,
		Customers: customers,
	}))
}

func (h *SegmentHandler) GetProfile(c echo.Context) error {
	branchID, ref, rangeStart, err := h.branchQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	phone := utils.NormalizePhone(c.Param("phone"))
	if phone == "" {
		return badRequest(c, "invalid phone")
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	profile, err := h.segmentService.Profile(ctx, scope, branchID, phone, ref, rangeStart)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(profile))
}

func (h *SegmentHandler) Snapshot(c echo.Context) error {
	branchID, err := parseID(c, "branchId")
	if err != nil {
		return badRequest(c, err.Error())
	}
	scope, err := scopeOf(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	rows, err := h.segmentService.Snapshot(ctx, scope, branchID, h.now())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(map[string]interface{}{
		"branchId": branchID,
		"rows":     rows,
	}))
}

func (h *SegmentHandler) branchQuery(c echo.Context) (uint, time.Time, *time.Time, error) {
	branchID, err := parseID(c, "branchId")
	if err != nil {
		return 0, time.Time{}, nil, err
	}

	loc := h.segmentService.Location()
	ref, err := referenceDate(c.QueryParam("date"), h.now(), loc)
	if err != nil {
		return 0, time.Time{}, nil, errors.New("invalid date")
	}

	var rangeStart *time.Time
	if v := c.QueryParam("rangeStart"); v != "" {
		t, err := parseDay(v, loc)
		if err != nil {
			return 0, time.Time{}, nil, errors.New("invalid rangeStart")
		}
		rangeStart = &t
	}

	return branchID, ref, rangeStart, nil
}
