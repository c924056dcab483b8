package sharing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloomscreen/bloomscreen/internal/domain/assessment"
	"github.com/bloomscreen/bloomscreen/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the authenticated share management endpoints and the
// token-gated public report endpoints. The public group carries no auth:
// possession of the token is the credential.
func (h *Handler) RegisterRoutes(api, public *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "caregiver"))
	g.POST("/assessments/:id/shares", h.CreateShare)
	g.GET("/assessments/:id/shares", h.ListShares)
	g.DELETE("/shares/:id", h.Revoke)

	public.GET("/shared/:token", h.View)
	public.POST("/shared/:token/annotations", h.Annotate)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, assessment.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRevoked):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, ErrNotReady):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, assessment.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// owned resolves the assessment id parameter and checks the caller owns the
// assessment (admins pass).
func (h *Handler) owned(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.assessments.Get(ctx, id)
	if err != nil {
		return uuid.Nil, httpError(err)
	}
	if !auth.HasRole(ctx, "admin") && a.CaregiverID != auth.SubjectUUID(ctx) {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "assessment not found")
	}
	return id, nil
}

func (h *Handler) CreateShare(c echo.Context) error {
	id, err := h.owned(c)
	if err != nil {
		return err
	}
	var in CreateShareInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g, err := h.svc.CreateShare(c.Request().Context(), id, auth.SubjectUUID(c.Request().Context()), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) ListShares(c echo.Context) error {
	id, err := h.owned(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListByAssessment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	g, err := h.svc.shares.GetByID(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if !auth.HasRole(ctx, "admin") && g.CreatedBy != auth.SubjectUUID(ctx) {
		return echo.NewHTTPError(http.StatusNotFound, "share not found")
	}
	if err := h.svc.Revoke(ctx, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) View(c echo.Context) error {
	report, err := h.svc.View(c.Request().Context(), c.Param("token"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Annotate(c echo.Context) error {
	var in AnnotationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	note, err := h.svc.Annotate(c.Request().Context(), c.Param("token"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, note)
}
