package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nunutzi10/foam-ai/internal/apikeys"
	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/completions"
	"github.com/nunutzi10/foam-ai/internal/conversations"
	"github.com/nunutzi10/foam-ai/internal/tenants"
)

// ChatHandler serves the API-key guarded chat surface: message sending with
// optional auto-created conversations, conversation history and listing.
type ChatHandler struct {
	apiKeys       *apikeys.Service
	conversations *conversations.Service
	runner        completionRunner
	logger        *slog.Logger
}

func NewChatHandler(log *slog.Logger, apiKeySvc *apikeys.Service, conversationSvc *conversations.Service, tenantSvc *tenants.Service, botSvc *bots.Service, completionSvc *completions.Service, engine *completions.Engine) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{
		apiKeys:       apiKeySvc,
		conversations: conversationSvc,
		runner: completionRunner{
			tenants:       tenantSvc,
			bots:          botSvc,
			conversations: conversationSvc,
			completions:   completionSvc,
			engine:        engine,
		},
		logger: log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/chat")
	group.POST("/send_message", h.SendMessage)
	group.GET("/conversation_history", h.ConversationHistory)
	group.GET("/conversations", h.Conversations)
}

// authenticate resolves the bearer secret to an API key with the completions
// capability.
func (h *ChatHandler) authenticate(c echo.Context) (apikeys.APIKey, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	secret := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if secret == "" {
		return apikeys.APIKey{}, echo.NewHTTPError(http.StatusUnauthorized, "missing api key")
	}
	key, err := h.apiKeys.Authenticate(c.Request().Context(), secret)
	if err != nil {
		if errors.Is(err, apikeys.ErrNotFound) {
			return apikeys.APIKey{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
		}
		return apikeys.APIKey{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !key.Role.Authorized(apikeys.RoleCompletions) {
		return apikeys.APIKey{}, echo.NewHTTPError(http.StatusForbidden, "api key lacks completions capability")
	}
	return key, nil
}

type sendMessageRequest struct {
	BotID                  int64  `json:"bot_id" validate:"required"`
	ConversationID         *int64 `json:"conversation_id"`
	Message                string `json:"message" validate:"required"`
	AutoCreateConversation bool   `json:"auto_create_conversation"`
}

type sendMessageResponse struct {
	ConversationID *int64                 `json:"conversation_id,omitempty"`
	Completion     completions.Completion `json:"completion"`
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	key, err := h.authenticate(c)
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	// The bot must belong to the key's tenant before any conversation is
	// created or touched on its behalf.
	if _, err := h.runner.bots.Get(c.Request().Context(), key.TenantID, req.BotID); err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	conversationID := req.ConversationID
	if conversationID == nil && req.AutoCreateConversation {
		conversation, err := h.conversations.Create(c.Request().Context(), conversations.CreateRequest{
			BotID: req.BotID,
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		conversationID = &conversation.ID
	}

	completion, err := h.runner.run(c.Request().Context(), key.TenantID, req.BotID, conversationID, req.Message)
	if err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, sendMessageResponse{
		ConversationID: conversationID,
		Completion:     completion,
	})
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationHistory flattens the conversation's completions into
// user/assistant turns, oldest first.
func (h *ChatHandler) ConversationHistory(c echo.Context) error {
	key, err := h.authenticate(c)
	if err != nil {
		return err
	}
	botID, err := queryInt64(c, "bot_id")
	if err != nil {
		return err
	}
	conversationID, err := queryInt64(c, "conversation_id")
	if err != nil {
		return err
	}
	if _, err := h.runner.bots.Get(c.Request().Context(), key.TenantID, botID); err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, err := h.conversations.Get(c.Request().Context(), botID, conversationID); err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	list, err := h.runner.completions.ListByConversation(c.Request().Context(), conversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	history := make([]historyTurn, 0, len(list)*2)
	for _, completion := range list {
		if completion.Prompt != "" {
			history = append(history, historyTurn{Role: "user", Content: completion.Prompt})
		}
		if completion.Response != "" {
			history = append(history, historyTurn{Role: "assistant", Content: completion.Response})
		}
	}
	return c.JSON(http.StatusOK, history)
}

func (h *ChatHandler) Conversations(c echo.Context) error {
	key, err := h.authenticate(c)
	if err != nil {
		return err
	}
	botID, err := queryInt64(c, "bot_id")
	if err != nil {
		return err
	}
	if _, err := h.runner.bots.Get(c.Request().Context(), key.TenantID, botID); err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	list, err := h.conversations.ListRecent(c.Request().Context(), botID, 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}
