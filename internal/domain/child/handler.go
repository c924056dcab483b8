package child

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	g.POST("/children", h.Create)
	g.GET("/children", h.List)
	g.GET("/children/:id", h.Get)
	g.PUT("/children/:id", h.Update)
	g.DELETE("/children/:id", h.Archive)
}

// load resolves the child and enforces that caregivers only ever see their
// own children. Clinicians and admins may read any child.
func (h *Handler) load(c echo.Context) (*Child, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	ch, err := h.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "child not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !auth.HasRole(ctx, "clinician") && ch.CaregiverID != auth.SubjectUUID(ctx) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "child not found")
	}
	return ch, nil
}

func (h *Handler) Create(c echo.Context) error {
	var ch Child
	if err := c.Bind(&ch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch.CaregiverID = auth.SubjectUUID(c.Request().Context())
	if err := h.svc.Create(c.Request().Context(), &ch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ch)
}

func (h *Handler) Get(c echo.Context) error {
	ch, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	caregiverID := auth.SubjectUUID(ctx)
	if raw := c.QueryParam("caregiver_id"); raw != "" && auth.HasRole(ctx, "clinician") {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid caregiver_id")
		}
		caregiverID = id
	}

	items, total, err := h.svc.ListByCaregiver(ctx, caregiverID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	ch, err := h.load(c)
	if err != nil {
		return err
	}
	var in Child
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch.FirstName = in.FirstName
	ch.LastName = in.LastName
	ch.Gender = in.Gender
	ch.Notes = in.Notes
	if err := h.svc.Update(c.Request().Context(), ch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) Archive(c echo.Context) error {
	ch, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.svc.Archive(c.Request().Context(), ch.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
