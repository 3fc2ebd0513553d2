package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var ErrNotFound = errors.New("bot not found")

// Service provides bot CRUD and channel-number resolution.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates a bot service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "bots")),
	}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(q db.Querier) *Service {
	return &Service{db: q, logger: s.logger}
}

const botColumns = "id, tenant_id, name, custom_instructions, user_instructions, whatsapp_phone, deleted_at, created_at, updated_at"

// Create inserts a bot. Name uniqueness per tenant is enforced by the
// database index.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Bot, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO bots (tenant_id, name, custom_instructions, user_instructions, whatsapp_phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+botColumns,
		req.TenantID, strings.TrimSpace(req.Name), req.CustomInstructions,
		nullIfEmpty(req.UserInstructions), nullIfEmpty(req.WhatsAppPhone))
	bot, err := scanBot(row)
	if err != nil {
		return Bot{}, fmt.Errorf("create bot: %w", err)
	}
	s.logger.Info("bot created", slog.Int64("id", bot.ID), slog.Int64("tenant_id", bot.TenantID))
	return bot, nil
}

// Update changes bot fields; nil pointer fields are left untouched.
func (s *Service) Update(ctx context.Context, tenantID, id int64, req UpdateRequest) (Bot, error) {
	bot, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Bot{}, err
	}
	if strings.TrimSpace(req.Name) != "" {
		bot.Name = strings.TrimSpace(req.Name)
	}
	if req.CustomInstructions != "" {
		bot.CustomInstructions = req.CustomInstructions
	}
	if req.UserInstructions != nil {
		bot.UserInstructions = *req.UserInstructions
	}
	if req.WhatsAppPhone != nil {
		bot.WhatsAppPhone = *req.WhatsAppPhone
	}
	row := s.db.QueryRow(ctx, `
		UPDATE bots
		SET name = $1, custom_instructions = $2, user_instructions = $3,
		    whatsapp_phone = $4, updated_at = now()
		WHERE id = $5 AND tenant_id = $6 AND deleted_at IS NULL
		RETURNING `+botColumns,
		bot.Name, bot.CustomInstructions, nullIfEmpty(bot.UserInstructions),
		nullIfEmpty(bot.WhatsAppPhone), id, tenantID)
	updated, err := scanBot(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Bot{}, ErrNotFound
		}
		return Bot{}, fmt.Errorf("update bot: %w", err)
	}
	return updated, nil
}

// Get fetches one live bot scoped to a tenant.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Bot, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+botColumns+" FROM bots WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL",
		id, tenantID)
	bot, err := scanBot(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Bot{}, ErrNotFound
		}
		return Bot{}, fmt.Errorf("get bot: %w", err)
	}
	return bot, nil
}

// FindByWhatsAppPhone resolves the bot owning a channel number. This is the
// entry point of every inbound webhook.
func (s *Service) FindByWhatsAppPhone(ctx context.Context, phone string) (Bot, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+botColumns+" FROM bots WHERE whatsapp_phone = $1 AND deleted_at IS NULL",
		strings.TrimSpace(phone))
	bot, err := scanBot(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Bot{}, ErrNotFound
		}
		return Bot{}, fmt.Errorf("find bot by whatsapp phone: %w", err)
	}
	return bot, nil
}

// List returns the live bots for a tenant.
func (s *Service) List(ctx context.Context, tenantID int64) ([]Bot, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+botColumns+" FROM bots WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY id",
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var result []Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, bot)
	}
	return result, rows.Err()
}

// Delete tombstones a bot.
func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE bots SET deleted_at = now() WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL",
		id, tenantID)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBot(row scanner) (Bot, error) {
	var bot Bot
	var customInstructions, userInstructions, whatsappPhone *string
	if err := row.Scan(&bot.ID, &bot.TenantID, &bot.Name, &customInstructions,
		&userInstructions, &whatsappPhone, &bot.DeletedAt, &bot.CreatedAt,
		&bot.UpdatedAt); err != nil {
		return Bot{}, err
	}
	if customInstructions != nil {
		bot.CustomInstructions = *customInstructions
	}
	if userInstructions != nil {
		bot.UserInstructions = *userInstructions
	}
	if whatsappPhone != nil {
		bot.WhatsAppPhone = *whatsappPhone
	}
	return bot, nil
}
