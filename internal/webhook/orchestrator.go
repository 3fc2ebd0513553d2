package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/completions"
	"github.com/nunutzi10/foam-ai/internal/contacts"
	"github.com/nunutzi10/foam-ai/internal/db"
	"github.com/nunutzi10/foam-ai/internal/messages"
	"github.com/nunutzi10/foam-ai/internal/prompt"
	"github.com/nunutzi10/foam-ai/internal/tenants"
	"github.com/nunutzi10/foam-ai/internal/vonage"
)

// ErrUnknownNumber is returned when no bot owns the callback's destination
// number. The handler acknowledges these so the provider stops retrying.
var ErrUnknownNumber = errors.New("no bot bound to destination number")

// inboundHistoryWindow is how many prior messages of the contact feed the
// completion context.
const inboundHistoryWindow = 2

const defaultWelcomeMessage = "¡Hola! Gracias por escribirnos. ¿En qué podemos ayudarte?"

// Sender dispatches outbound channel messages for a tenant.
type Sender interface {
	Send(ctx context.Context, tenant tenants.Tenant, out vonage.Outbound) (string, error)
}

// CacheSender routes sends through the per-tenant client cache.
type CacheSender struct {
	Cache *vonage.Cache
}

func (s *CacheSender) Send(ctx context.Context, tenant tenants.Tenant, out vonage.Outbound) (string, error) {
	client, err := s.Cache.For(tenant)
	if err != nil {
		return "", err
	}
	return client.Send(ctx, out)
}

// Normalizer resolves the prompt text of an inbound payload.
type Normalizer interface {
	Setup(ctx context.Context, in prompt.Input) (string, error)
}

// Orchestrator runs the inbound pipeline. All writes of one callback happen
// in a single transaction; an outbound dispatch failure rolls everything back
// so the provider's retry replays the whole unit.
type Orchestrator struct {
	txs         db.TxStarter
	bots        *bots.Service
	tenants     *tenants.Service
	contacts    *contacts.Service
	messages    *messages.Service
	completions *completions.Service
	engine      *completions.Engine
	normalizer  Normalizer
	sender      Sender
	logger      *slog.Logger
}

func NewOrchestrator(
	log *slog.Logger,
	txs db.TxStarter,
	botSvc *bots.Service,
	tenantSvc *tenants.Service,
	contactSvc *contacts.Service,
	messageSvc *messages.Service,
	completionSvc *completions.Service,
	engine *completions.Engine,
	normalizer Normalizer,
	sender Sender,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		txs:         txs,
		bots:        botSvc,
		tenants:     tenantSvc,
		contacts:    contactSvc,
		messages:    messageSvc,
		completions: completionSvc,
		engine:      engine,
		normalizer:  normalizer,
		sender:      sender,
		logger:      log.With(slog.String("service", "webhook")),
	}
}

// ProcessInbound handles one inbound message callback end to end. Redelivered
// callbacks (same message_uuid) are acknowledged without side effects.
func (o *Orchestrator) ProcessInbound(ctx context.Context, payload InboundPayload) error {
	bot, err := o.bots.FindByWhatsAppPhone(ctx, payload.To)
	if err != nil {
		if errors.Is(err, bots.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownNumber, payload.To)
		}
		return err
	}
	tenant, err := o.tenants.Get(ctx, bot.TenantID)
	if err != nil {
		return err
	}

	promptText, err := o.resolvePrompt(ctx, tenant, payload)
	if err != nil {
		return err
	}

	tx, err := o.txs.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	contactSvc := o.contacts.WithTx(tx)
	messageSvc := o.messages.WithTx(tx)

	contact, err := contactSvc.FindOrCreate(ctx, tenant.ID, payload.From, payload.Profile.Name)
	if err != nil {
		return err
	}

	inbound, err := messageSvc.Create(ctx, messages.CreateInput{
		ContactID:   contact.ID,
		Status:      messages.StatusSent,
		Sender:      messages.SenderUser,
		ContentType: payload.ContentType(),
		Body:        promptText,
		MediaURL:    payload.MediaURL(),
		VonageID:    payload.MessageUUID,
		Metadata:    payload.Metadata(),
	})
	if err != nil {
		if errors.Is(err, messages.ErrDuplicate) {
			o.logger.Info("duplicate delivery ignored",
				slog.String("message_uuid", payload.MessageUUID))
			return nil
		}
		return err
	}

	count, err := messageSvc.CountByContact(ctx, contact.ID)
	if err != nil {
		return err
	}

	var reply, customDestination string
	if count == 1 {
		reply = welcomeMessage(tenant)
		customDestination = payload.From
	} else {
		reply, err = o.generateReply(ctx, tx, tenant, bot, contact, inbound, promptText)
		if err != nil {
			return err
		}
	}

	if err := o.dispatchReply(ctx, tx, tenant, bot, contact, reply, customDestination); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// resolvePrompt normalizes the payload body. A media processing failure is
// fatal to the callback: without a usable body there is nothing safe to send,
// so the whole delivery fails and the provider retries it.
func (o *Orchestrator) resolvePrompt(ctx context.Context, tenant tenants.Tenant, payload InboundPayload) (string, error) {
	text, err := o.normalizer.Setup(ctx, prompt.Input{
		ContentType: payload.ContentType(),
		Body:        payload.Body(),
		MediaURL:    payload.MediaURL(),
		APIKey:      tenant.Settings.OpenAIAPIKey,
	})
	if err != nil {
		o.logger.Error("prompt normalization failed",
			slog.String("message_uuid", payload.MessageUUID), slog.Any("error", err))
		return "", err
	}
	return text, nil
}

// generateReply runs the completion for a returning contact. Provider
// failures are already absorbed by the engine, so the returned text is always
// sendable.
func (o *Orchestrator) generateReply(ctx context.Context, tx db.Tx, tenant tenants.Tenant, bot bots.Bot, contact contacts.Contact, inbound messages.Message, promptText string) (string, error) {
	recent, err := o.messages.WithTx(tx).RecentForContact(ctx, contact.ID, inbound.ID, inboundHistoryWindow)
	if err != nil {
		return "", err
	}
	history := make([]completions.Turn, 0, len(recent))
	for _, m := range recent {
		if m.Body == "" {
			continue
		}
		history = append(history, completions.Turn{
			Body:     m.Body,
			FromUser: m.Sender == messages.SenderUser,
		})
	}

	completionSvc := o.completions.WithTx(tx)
	completion, err := completionSvc.Create(ctx, completions.CreateInput{
		BotID:  bot.ID,
		Prompt: promptText,
	})
	if err != nil {
		return "", err
	}

	completion, err = o.engine.WithTx(tx).Generate(ctx, tenant.Settings.OpenAIAPIKey, bot, completion, history)
	if err != nil {
		return "", err
	}
	return completion.Response, nil
}

// dispatchReply records the outbound system message and sends it through the
// channel, stamping the provider's message id on success. The first-contact
// welcome carries the raw inbound number as its destination override.
func (o *Orchestrator) dispatchReply(ctx context.Context, tx db.Tx, tenant tenants.Tenant, bot bots.Bot, contact contacts.Contact, body, customDestination string) error {
	messageSvc := o.messages.WithTx(tx)
	outbound, err := messageSvc.Create(ctx, messages.CreateInput{
		ContactID:         contact.ID,
		Status:            messages.StatusSent,
		Sender:            messages.SenderSystem,
		ContentType:       messages.ContentTypeText,
		Body:              body,
		CustomDestination: customDestination,
	})
	if err != nil {
		return err
	}

	uuid, err := o.sender.Send(ctx, tenant, vonage.Outbound{
		To:          contact.Phone,
		From:        bot.WhatsAppPhone,
		ContentType: messages.ContentTypeText,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("dispatch reply: %w", err)
	}
	return messageSvc.SetVonageID(ctx, outbound.ID, uuid)
}

// welcomeMessage picks the tenant's first-contact template, falling back to
// the default greeting.
func welcomeMessage(tenant tenants.Tenant) string {
	if tenant.Settings.MessageTemplate != "" {
		return tenant.Settings.MessageTemplate
	}
	return defaultWelcomeMessage
}
