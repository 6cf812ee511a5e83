// Package handler holds the HTTP handlers of the check-in API.  Every
// response uses the same envelope: {success, data?, error?, message?}.
package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/queue"
	"github.com/iliyamo/childcare-checkin/internal/store"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func okMessage(c echo.Context, status int, data any, msg string) error {
	return c.JSON(status, envelope{Success: true, Data: data, Message: msg})
}

// fail maps a classified error onto its status code.  Unexpected errors
// are logged and never leak their cause.
func (h *Handler) fail(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
		msg = "internal error"
	}
	return c.JSON(status, envelope{Error: apperr.KindOf(err).String(), Message: msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, envelope{Error: apperr.KindValidationFailed.String(), Message: msg})
}

// EmergencyAudit receives every emergency raise handled by the API.
type EmergencyAudit interface {
	PublishEmergencyRaised(ctx context.Context, ev queue.EmergencyRaisedEvent) error
}

// Handler serves the REST surface over a domain store.
type Handler struct {
	store  *store.Store
	audit  EmergencyAudit
	logger *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAudit publishes emergency raises to a.
func WithAudit(a EmergencyAudit) Option { return func(h *Handler) { h.audit = a } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// New panics on a nil store.
func New(st *store.Store, opts ...Option) *Handler {
	if st == nil {
		panic("nil store passed to handler.New")
	}
	h := &Handler{store: st, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
