package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nunutzi10/foam-ai/internal/auth"
	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/completions"
	"github.com/nunutzi10/foam-ai/internal/conversations"
	"github.com/nunutzi10/foam-ai/internal/tenants"
)

// completionRunner is the shared request-driven completion flow: resolve the
// bot and tenant credential, assemble conversation history, create the row
// and run the engine. Used by the admin API and the chat surface.
type completionRunner struct {
	tenants       *tenants.Service
	bots          *bots.Service
	conversations *conversations.Service
	completions   *completions.Service
	engine        *completions.Engine
}

// run executes one completion turn. The bot lookup is tenant-scoped, and a
// supplied conversation must belong to that bot before its history is read or
// the new completion is attached to it.
func (r completionRunner) run(ctx context.Context, tenantID, botID int64, conversationID *int64, promptText string) (completions.Completion, error) {
	bot, err := r.bots.Get(ctx, tenantID, botID)
	if err != nil {
		return completions.Completion{}, err
	}
	tenant, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		return completions.Completion{}, err
	}

	var history []completions.Turn
	if conversationID != nil {
		if _, err := r.conversations.Get(ctx, bot.ID, *conversationID); err != nil {
			return completions.Completion{}, err
		}
		history, err = r.completions.ContextForConversation(ctx, *conversationID, 0)
		if err != nil {
			return completions.Completion{}, err
		}
	}

	completion, err := r.completions.Create(ctx, completions.CreateInput{
		BotID:          bot.ID,
		ConversationID: conversationID,
		Prompt:         promptText,
	})
	if err != nil {
		return completions.Completion{}, err
	}
	return r.engine.Generate(ctx, tenant.Settings.OpenAIAPIKey, bot, completion, history)
}

// CompletionsHandler serves the JWT-guarded completions API.
type CompletionsHandler struct {
	runner completionRunner
	logger *slog.Logger
}

func NewCompletionsHandler(log *slog.Logger, tenantSvc *tenants.Service, botSvc *bots.Service, conversationSvc *conversations.Service, completionSvc *completions.Service, engine *completions.Engine) *CompletionsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CompletionsHandler{
		runner: completionRunner{
			tenants:       tenantSvc,
			bots:          botSvc,
			conversations: conversationSvc,
			completions:   completionSvc,
			engine:        engine,
		},
		logger: log.With(slog.String("handler", "completions")),
	}
}

func (h *CompletionsHandler) Register(e *echo.Echo) {
	group := e.Group("/v1/completions")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
}

type createCompletionRequest struct {
	BotID          int64  `json:"bot_id" validate:"required"`
	ConversationID *int64 `json:"conversation_id"`
	Prompt         string `json:"prompt" validate:"required"`
}

func (h *CompletionsHandler) Create(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	var req createCompletionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	completion, err := h.runner.run(c.Request().Context(), identity.TenantID, req.BotID, req.ConversationID, req.Prompt)
	if err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, completion)
}

func (h *CompletionsHandler) List(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return err
	}
	botID, err := queryInt64(c, "bot_id")
	if err != nil {
		return err
	}
	// The bot lookup also enforces tenant scoping.
	if _, err := h.runner.bots.Get(c.Request().Context(), identity.TenantID, botID); err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	list, err := h.runner.completions.ListByBot(c.Request().Context(), botID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CompletionsHandler) Get(c echo.Context) error {
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
	if _, err := h.runner.bots.Get(c.Request().Context(), identity.TenantID, botID); err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	completion, err := h.runner.completions.Get(c.Request().Context(), botID, id)
	if err != nil {
		if errors.Is(err, completions.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "completion not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, completion)
}
