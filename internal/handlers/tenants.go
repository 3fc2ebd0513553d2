package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nunutzi10/foam-ai/internal/auth"
	"github.com/nunutzi10/foam-ai/internal/tenants"
	"github.com/nunutzi10/foam-ai/internal/vonage"
)

// TenantsHandler serves tenant CRUD.
type TenantsHandler struct {
	service *tenants.Service
	clients *vonage.Cache
	logger  *slog.Logger
}

func NewTenantsHandler(log *slog.Logger, service *tenants.Service, clients *vonage.Cache) *TenantsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TenantsHandler{
		service: service,
		clients: clients,
		logger:  log.With(slog.String("handler", "tenants")),
	}
}

func (h *TenantsHandler) Register(e *echo.Echo) {
	group := e.Group("/v1/tenants")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

func (h *TenantsHandler) Create(c echo.Context) error {
	if _, err := auth.IdentityFromContext(c); err != nil {
		return err
	}
	var req tenants.CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tenant, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, tenants.ErrInvalidSettings) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, tenant)
}

func (h *TenantsHandler) List(c echo.Context) error {
	if _, err := auth.IdentityFromContext(c); err != nil {
		return err
	}
	list, err := h.service.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *TenantsHandler) Get(c echo.Context) error {
	if _, err := auth.IdentityFromContext(c); err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	tenant, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tenant)
}

func (h *TenantsHandler) Update(c echo.Context) error {
	if _, err := auth.IdentityFromContext(c); err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req tenants.UpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tenant, err := h.service.Update(c.Request().Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, tenants.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		case errors.Is(err, tenants.ErrInvalidSettings):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// Credentials may have changed; the next dispatch rebuilds the client.
	if h.clients != nil {
		h.clients.Invalidate(id)
	}
	return c.JSON(http.StatusOK, tenant)
}

func (h *TenantsHandler) Delete(c echo.Context) error {
	if _, err := auth.IdentityFromContext(c); err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.clients != nil {
		h.clients.Invalidate(id)
	}
	return c.NoContent(http.StatusNoContent)
}
