package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nunutzi10/foam-ai/internal/admins"
	"github.com/nunutzi10/foam-ai/internal/auth"
	"github.com/nunutzi10/foam-ai/internal/config"
)

// AdminsHandler serves admin sign-in and account management.
type AdminsHandler struct {
	service *admins.Service
	auth    config.AuthConfig
	logger  *slog.Logger
}

func NewAdminsHandler(log *slog.Logger, service *admins.Service, authCfg config.AuthConfig) *AdminsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminsHandler{
		service: service,
		auth:    authCfg,
		logger:  log.With(slog.String("handler", "admins")),
	}
}

func (h *AdminsHandler) Register(e *echo.Echo) {
	group := e.Group("/v1/admins")
	group.POST("/sign_in", h.SignIn)
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.DELETE("/:id", h.Delete)
}

type signInResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Admin     admins.Admin `json:"admin"`
}

func (h *AdminsHandler) SignIn(c echo.Context) error {
	var req admins.SignInRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	admin, err := h.service.Authenticate(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, admins.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	token, expiresAt, err := auth.GenerateToken(admin.ID, admin.TenantID, h.auth.JWTSecret, h.auth.ExpiresIn())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("admin signed in", slog.Int64("admin_id", admin.ID))
	return c.JSON(http.StatusOK, signInResponse{Token: token, ExpiresAt: expiresAt, Admin: admin})
}

func (h *AdminsHandler) Create(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	var req admins.CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	// New admins always land in the caller's tenant.
	req.TenantID = identity.TenantID
	admin, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, admin)
}

func (h *AdminsHandler) List(c echo.Context) error {
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

func (h *AdminsHandler) Get(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	admin, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, admins.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "admin not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if admin.TenantID != identity.TenantID {
		return echo.NewHTTPError(http.StatusNotFound, "admin not found")
	}
	return c.JSON(http.StatusOK, admin)
}

func (h *AdminsHandler) Delete(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	admin, err := h.service.Get(c.Request().Context(), id)
	if err != nil || admin.TenantID != identity.TenantID {
		return echo.NewHTTPError(http.StatusNotFound, "admin not found")
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, admins.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "admin not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
