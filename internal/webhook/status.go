package webhook

import (
	"context"
	"log/slog"

	"github.com/nunutzi10/foam-ai/internal/messages"
)

// StatusReconciler applies delivery-status callbacks to stored messages.
type StatusReconciler struct {
	messages *messages.Service
	logger   *slog.Logger
}

func NewStatusReconciler(log *slog.Logger, messageSvc *messages.Service) *StatusReconciler {
	if log == nil {
		log = slog.Default()
	}
	return &StatusReconciler{
		messages: messageSvc,
		logger:   log.With(slog.String("service", "webhook")),
	}
}

// Apply updates the message matching the callback's uuid. Unrecognized status
// tokens are acknowledged without effect; the provider emits tokens this
// system does not track (submitted, delivered). A missing message is an
// error.
func (r *StatusReconciler) Apply(ctx context.Context, payload StatusPayload) error {
	status, ok := messages.ParseStatus(payload.Status)
	if !ok {
		r.logger.Debug("ignoring status token",
			slog.String("message_uuid", payload.MessageUUID), slog.String("status", payload.Status))
		return nil
	}
	return r.messages.UpdateStatusByVonageID(ctx, payload.MessageUUID, status)
}
