package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nunutzi10/foam-ai/internal/auth"
	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/conversations"
)

// ConversationsHandler serves conversation CRUD on the admin API.
type ConversationsHandler struct {
	service *conversations.Service
	bots    *bots.Service
	logger  *slog.Logger
}

func NewConversationsHandler(log *slog.Logger, service *conversations.Service, botSvc *bots.Service) *ConversationsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationsHandler{
		service: service,
		bots:    botSvc,
		logger:  log.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/v1/conversations")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

// requireBot checks the bot belongs to the caller's tenant.
func (h *ConversationsHandler) requireBot(c echo.Context, tenantID, botID int64) error {
	if _, err := h.bots.Get(c.Request().Context(), tenantID, botID); err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return nil
}

func (h *ConversationsHandler) Create(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	var req conversations.CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.requireBot(c, identity.TenantID, req.BotID); err != nil {
		return err
	}
	conversation, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, conversation)
}

func (h *ConversationsHandler) List(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	botID, err := queryInt64(c, "bot_id")
	if err != nil {
		return err
	}
	if err := h.requireBot(c, identity.TenantID, botID); err != nil {
		return err
	}
	list, err := h.service.ListRecent(c.Request().Context(), botID, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	botID, err := queryInt64(c, "bot_id")
	if err != nil {
		return err
	}
	if err := h.requireBot(c, identity.TenantID, botID); err != nil {
		return err
	}
	conversation, err := h.service.Get(c.Request().Context(), botID, id)
	if err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conversation)
}

func (h *ConversationsHandler) Update(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	botID, err := queryInt64(c, "bot_id")
	if err != nil {
		return err
	}
	if err := h.requireBot(c, identity.TenantID, botID); err != nil {
		return err
	}
	var req conversations.UpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	conversation, err := h.service.Update(c.Request().Context(), botID, id, req)
	if err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conversation)
}

func (h *ConversationsHandler) Delete(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	botID, err := queryInt64(c, "bot_id")
	if err != nil {
		return err
	}
	if err := h.requireBot(c, identity.TenantID, botID); err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), botID, id); err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
