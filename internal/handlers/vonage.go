package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nunutzi10/foam-ai/internal/messages"
	"github.com/nunutzi10/foam-ai/internal/webhook"
)

// VonageHandler receives the channel's inbound and status callbacks. Both
// routes are unauthenticated and always acknowledge with an empty JSON object
// once the pipeline accepts the event; callbacks for unknown numbers are
// acknowledged too so the provider stops retrying them.
type VonageHandler struct {
	orchestrator *webhook.Orchestrator
	statuses     *webhook.StatusReconciler
	logger       *slog.Logger
}

func NewVonageHandler(log *slog.Logger, orchestrator *webhook.Orchestrator, statuses *webhook.StatusReconciler) *VonageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &VonageHandler{
		orchestrator: orchestrator,
		statuses:     statuses,
		logger:       log.With(slog.String("handler", "vonage")),
	}
}

func (h *VonageHandler) Register(e *echo.Echo) {
	group := e.Group("/v1/vonage")
	group.POST("/messages", h.Inbound)
	group.POST("/status", h.Status)
}

func (h *VonageHandler) Inbound(c echo.Context) error {
	var payload webhook.InboundPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.orchestrator.ProcessInbound(c.Request().Context(), payload); err != nil {
		if errors.Is(err, webhook.ErrUnknownNumber) {
			h.logger.Warn("inbound for unknown number",
				slog.String("to", payload.To), slog.String("message_uuid", payload.MessageUUID))
			return c.JSON(http.StatusOK, map[string]any{})
		}
		h.logger.Error("inbound processing failed",
			slog.String("message_uuid", payload.MessageUUID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

func (h *VonageHandler) Status(c echo.Context) error {
	var payload webhook.StatusPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.statuses.Apply(c.Request().Context(), payload); err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "message not found")
		}
		h.logger.Error("status processing failed",
			slog.String("message_uuid", payload.MessageUUID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}
	return c.JSON(http.StatusOK, map[string]any{})
}
