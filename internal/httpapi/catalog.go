package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bull/robotics-tutor/internal/apperr"
	"github.com/bull/robotics-tutor/internal/database"
)

type catalogHandler struct {
	catalog Catalog
}

func (h *catalogHandler) register(api *echo.Group) {
	api.GET("/modules", h.listModules)
	api.GET("/modules/:slug/chapters", h.listChapters)
	api.GET("/chapters/:id", h.getChapter)
}

func (h *catalogHandler) listModules(c echo.Context) error {
	modules, err := h.catalog.ListModules(c.Request().Context())
	if err != nil {
		return apperr.ServiceUnavailable("Database", "failed to list modules", err)
	}
	if modules == nil {
		modules = []*database.Module{}
	}
	return c.JSON(http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
}

func (h *catalogHandler) listChapters(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	m, err := h.catalog.GetModuleBySlug(ctx, slug)
	if err != nil {
		return lookupError(err, "Module", slug)
	}
	if !m.IsPublished {
		return apperr.NotFound("Module", slug)
	}

	chapters, err := h.catalog.ListChapters(ctx, slug)
	if err != nil {
		return apperr.ServiceUnavailable("Database", "failed to list chapters", err)
	}
	if chapters == nil {
		chapters = []*database.Chapter{}
	}
	return c.JSON(http.StatusOK, map[string]any{"module": m, "chapters": chapters})
}

func (h *catalogHandler) getChapter(c echo.Context) error {
	id := c.Param("id")
	ch, err := h.catalog.GetChapter(c.Request().Context(), id)
	if err != nil {
		return lookupError(err, "Chapter", id)
	}
	if !ch.IsPublished {
		return apperr.NotFound("Chapter", id)
	}
	return c.JSON(http.StatusOK, ch)
}

func lookupError(err error, resource, id string) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound(resource, id)
	}
	return apperr.ServiceUnavailable("Database", "failed to load "+resource, err)
}
