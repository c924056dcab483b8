package assessment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloomscreen/bloomscreen/internal/domain/catalog"
	"github.com/bloomscreen/bloomscreen/internal/platform/auth"
	"github.com/bloomscreen/bloomscreen/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "clinician", "caregiver"))
	g.POST("/assessments", h.Create)
	g.GET("/assessments", h.List)
	g.GET("/assessments/:id", h.Get)
	g.GET("/assessments/:id/questionnaire", h.GetQuestionnaire)
	g.GET("/assessments/:id/responses", h.ListResponses)
	g.POST("/assessments/:id/responses", h.SubmitResponses)
	g.DELETE("/assessments/:id", h.Delete)
}

// httpError maps service error kinds onto HTTP statuses: missing → 404,
// malformed → 400, state machine violations → 409, expiry → 410.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrExpired):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// load resolves the assessment and enforces ownership: caregivers only see
// assessments they created, clinicians and admins see all.
func (h *Handler) load(c echo.Context) (*Assessment, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, httpError(err)
	}
	if !auth.HasRole(ctx, "clinician") && a.CaregiverID != auth.SubjectUUID(ctx) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "assessment not found")
	}
	return a, nil
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.ChildID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "child_id is required")
	}
	a, err := h.svc.Create(c.Request().Context(), in.ChildID, auth.SubjectUUID(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	childID, err := uuid.Parse(c.QueryParam("child_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "child_id is required")
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	// Caregivers only see their own assessments; the predicate runs in SQL
	// so pages and totals stay consistent. Clinicians and admins see all.
	owner := uuid.Nil
	if !auth.HasRole(ctx, "clinician") {
		owner = auth.SubjectUUID(ctx)
	}
	items, total, err := h.svc.ListByChild(ctx, childID, owner, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetQuestionnaire(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	tier := 1
	if raw := c.QueryParam("tier"); raw != "" {
		t, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "tier must be 1 or 2")
		}
		tier = t
	} else if a.Status == StatusTier2Required {
		tier = 2
	}
	q, err := h.svc.Questionnaire(c.Request().Context(), a.ID, tier)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) ListResponses(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Responses(c.Request().Context(), a.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) SubmitResponses(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.SubmitResponses(c.Request().Context(), a.ID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	a, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), a.ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
