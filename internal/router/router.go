// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/childcare-checkin/internal/handler"
)

// RegisterRoutes registers the unversioned operational endpoints.
// ready may be nil when there is no dependency to check.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterAPI registers the /v1 routes.  mw applies to the whole group,
// typically the rate limiter and the response cache.
func RegisterAPI(e *echo.Echo, h *handler.Handler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1", mw...)

	g.GET("/venues", h.ListVenues)
	g.POST("/venues", h.CreateVenue)
	g.PUT("/venues/:id", h.RenameVenue)
	g.DELETE("/venues/:id", h.DeleteVenue)
	g.PUT("/venues/:id/settings", h.UpdateSettings)
	g.GET("/venues/:id/summary", h.Summary)
	g.POST("/venues/:id/purge", h.Purge)

	g.GET("/venues/:id/children", h.ListChildren)
	g.POST("/venues/:id/children", h.CheckIn)
	g.PUT("/children/:id", h.UpdateChild)
	g.DELETE("/children/:id", h.RemoveChild)
	g.PUT("/children/:id/emergency", h.SetEmergency)

	g.GET("/venues/:id/services", h.ListServices)
	g.POST("/venues/:id/services", h.CreateService)
}
