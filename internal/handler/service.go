package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/childcare-checkin/internal/model"
)

// ListServices handles GET /v1/venues/:id/services, newest first.
func (h *Handler) ListServices(c echo.Context) error {
	d, err := h.venueData(c)
	if err != nil {
		return h.fail(c, err)
	}
	services := d.Services
	if services == nil {
		services = []model.ServiceRecord{}
	}
	return ok(c, http.StatusOK, services)
}

// CreateService handles POST /v1/venues/:id/services.  Logging a second
// service for the same date updates the first.  Without childCount the
// current roster size is recorded.
func (h *Handler) CreateService(c echo.Context) error {
	var body struct {
		Date          string `json:"date"`
		ScriptureRead string `json:"scriptureRead"`
		HymnsSung     string `json:"hymnsSung"`
		LessonSummary string `json:"lessonSummary"`
		ChildCount    *int   `json:"childCount"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	content := model.ServiceContent{
		ScriptureRead: body.ScriptureRead,
		HymnsSung:     body.HymnsSung,
		LessonSummary: body.LessonSummary,
	}
	rec, err := h.store.CreateServiceRecord(c.Request().Context(), c.Param("id"), body.Date, content, body.ChildCount)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusCreated, rec)
}
