package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/childcare-checkin/internal/model"
)

// ListVenues handles GET /v1/venues.
func (h *Handler) ListVenues(c echo.Context) error {
	if err := h.store.RefreshVenues(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	venues := h.store.Snapshot().Venues
	if venues == nil {
		venues = []model.Venue{}
	}
	return ok(c, http.StatusOK, venues)
}

// CreateVenue handles POST /v1/venues.
func (h *Handler) CreateVenue(c echo.Context) error {
	var body struct {
		Name         string `json:"name"`
		MaxOccupancy int    `json:"maxOccupancy"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	v, err := h.store.CreateVenue(c.Request().Context(), body.Name, body.MaxOccupancy)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusCreated, v)
}

// RenameVenue handles PUT /v1/venues/:id.
func (h *Handler) RenameVenue(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	v, err := h.store.RenameVenue(c.Request().Context(), c.Param("id"), body.Name)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, v)
}

// DeleteVenue handles DELETE /v1/venues/:id.  Everything the venue owns
// goes with it.
func (h *Handler) DeleteVenue(c echo.Context) error {
	if err := h.store.DeleteVenue(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return okMessage(c, http.StatusOK, nil, "venue deleted")
}

// UpdateSettings handles PUT /v1/venues/:id/settings.
func (h *Handler) UpdateSettings(c echo.Context) error {
	var body struct {
		MaxOccupancy int `json:"maxOccupancy"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	s, err := h.store.UpdateCapacity(c.Request().Context(), c.Param("id"), body.MaxOccupancy)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, s)
}

// Summary handles GET /v1/venues/:id/summary.
func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.store.Summary(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, sum)
}

// Purge handles POST /v1/venues/:id/purge, the manual retention cleanup.
func (h *Handler) Purge(c echo.Context) error {
	purged, err := h.store.PurgeVenueData(c.Request().Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		return h.fail(c, err)
	}
	msg := "nothing to clean"
	if purged {
		msg = "cleaned successfully"
	}
	return okMessage(c, http.StatusOK, map[string]bool{"purged": purged}, msg)
}

// venueData loads a fresh bundle of the venue in the path.
func (h *Handler) venueData(c echo.Context) (*model.VenueData, error) {
	id := c.Param("id")
	if err := h.store.LoadVenueData(c.Request().Context(), id); err != nil {
		return nil, err
	}
	d := h.store.Snapshot().Data[id]
	if d == nil {
		d = &model.VenueData{VenueID: id}
	}
	return d, nil
}
