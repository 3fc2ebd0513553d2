package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nunutzi10/foam-ai/internal/apikeys"
	"github.com/nunutzi10/foam-ai/internal/auth"
)

// APIKeysHandler serves API key CRUD scoped to the caller's tenant.
type APIKeysHandler struct {
	service *apikeys.Service
	logger  *slog.Logger
}

func NewAPIKeysHandler(log *slog.Logger, service *apikeys.Service) *APIKeysHandler {
	if log == nil {
		log = slog.Default()
	}
	return &APIKeysHandler{
		service: service,
		logger:  log.With(slog.String("handler", "api_keys")),
	}
}

func (h *APIKeysHandler) Register(e *echo.Echo) {
	group := e.Group("/v1/api_keys")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

func (h *APIKeysHandler) Create(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	var req apikeys.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.TenantID = identity.TenantID
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	key, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("api key created", slog.Int64("id", key.ID), slog.Int64("tenant_id", key.TenantID))
	return c.JSON(http.StatusCreated, key)
}

func (h *APIKeysHandler) List(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	list, err := h.service.List(c.Request().Context(), identity.TenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *APIKeysHandler) Get(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	key, err := h.service.Get(c.Request().Context(), identity.TenantID, id)
	if err != nil {
		if errors.Is(err, apikeys.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "api key not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, key)
}

func (h *APIKeysHandler) Update(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req apikeys.UpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	key, err := h.service.Update(c.Request().Context(), identity.TenantID, id, req)
	if err != nil {
		if errors.Is(err, apikeys.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "api key not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, key)
}

func (h *APIKeysHandler) Delete(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), identity.TenantID, id); err != nil {
		if errors.Is(err, apikeys.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "api key not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
