package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bloomscreen/bloomscreen/internal/platform/auth"
)

type Handler struct {
	reg *Registry
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "clinician", "caregiver"))
	readGroup.GET("/catalog/age-groups", h.ListAgeGroups)
	readGroup.GET("/catalog/questionnaires", h.GetQuestionnaire)
	readGroup.GET("/catalog/versions", h.ListVersions)
}

func (h *Handler) ListAgeGroups(c echo.Context) error {
	return c.JSON(http.StatusOK, AgeGroups())
}

// GetQuestionnaire serves the instrument for an (age_group, tier) pair.
// Tier defaults to 1 when omitted.
func (h *Handler) GetQuestionnaire(c echo.Context) error {
	ageGroup := c.QueryParam("age_group")
	if ageGroup == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "age_group is required")
	}
	tier := 1
	if raw := c.QueryParam("tier"); raw != "" {
		t, err := strconv.Atoi(raw)
		if err != nil || (t != 1 && t != 2) {
			return echo.NewHTTPError(http.StatusBadRequest, "tier must be 1 or 2")
		}
		tier = t
	}
	q, err := h.reg.Questionnaire(ageGroup, tier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) ListVersions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"versions": h.reg.Versions()})
}
