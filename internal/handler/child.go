package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/model"
	"github.com/iliyamo/childcare-checkin/internal/queue"
)

// auditTimeout bounds the background publish of an emergency raise.
const auditTimeout = 5 * time.Second

// ListChildren handles GET /v1/venues/:id/children: every child still
// checked in, regardless of the day they arrived.
func (h *Handler) ListChildren(c echo.Context) error {
	d, err := h.venueData(c)
	if err != nil {
		return h.fail(c, err)
	}
	children := d.Children
	if children == nil {
		children = []model.Child{}
	}
	return ok(c, http.StatusOK, children)
}

// CheckIn handles POST /v1/venues/:id/children.
func (h *Handler) CheckIn(c echo.Context) error {
	var in model.CheckIn
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	child, err := h.store.CheckIn(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusCreated, child)
}

// UpdateChild handles PUT /v1/children/:id.  Omitted fields are left
// unchanged.
func (h *Handler) UpdateChild(c echo.Context) error {
	var patch model.ChildPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid request body")
	}
	return h.applyPatch(c, patch)
}

// SetEmergency handles PUT /v1/children/:id/emergency.
func (h *Handler) SetEmergency(c echo.Context) error {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Active == nil {
		return badRequest(c, "active is required")
	}
	return h.applyPatch(c, model.ChildPatch{EmergencyActive: body.Active})
}

func (h *Handler) applyPatch(c echo.Context, patch model.ChildPatch) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	raising := patch.EmergencyActive != nil && *patch.EmergencyActive
	var before model.Child
	if raising {
		prev, err := h.store.Child(ctx, id)
		if err != nil {
			return h.fail(c, err)
		}
		before = prev
	}

	child, err := h.store.UpdateChild(ctx, id, patch)
	if err != nil {
		return h.fail(c, err)
	}
	if raising && !before.EmergencyActive && child.EmergencyActive {
		h.auditRaise(child, c.Request().Header.Get("X-Device-ID"))
	}
	return ok(c, http.StatusOK, child)
}

// auditRaise publishes the raise in the background; the audit trail must
// not delay the device that raised it.
func (h *Handler) auditRaise(child model.Child, deviceID string) {
	if h.audit == nil {
		return
	}
	venueName := ""
	if v, found := h.store.Snapshot().Venue(child.VenueID); found {
		venueName = v.Name
	}
	ev := queue.NewEmergencyRaisedEvent(child.VenueID, venueName, child.ID, child.Name,
		child.GuardianName, child.GuardianPhone, deviceID, time.Now())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := h.audit.PublishEmergencyRaised(ctx, ev); err != nil {
			h.logger.Warn("emergency audit not published", zap.String("child_id", ev.ChildID), zap.Error(err))
		}
	}()
}

// RemoveChild handles DELETE /v1/children/:id, the checkout.
func (h *Handler) RemoveChild(c echo.Context) error {
	child, err := h.store.RemoveChild(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return okMessage(c, http.StatusOK, child, "checked out")
}
