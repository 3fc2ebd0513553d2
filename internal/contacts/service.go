package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var ErrNotFound = errors.New("contact not found")

// Service resolves and persists tenant-scoped contacts.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates a contact service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "contacts")),
	}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(q db.Querier) *Service {
	return &Service{db: q, logger: s.logger}
}

const contactColumns = "id, tenant_id, name, last_name, email, phone, created_at, updated_at"

// FindOrCreate resolves the contact for (tenant, phone), creating it on first
// contact. The insert uses ON CONFLICT DO NOTHING against the unique index so
// concurrent duplicate webhook deliveries for the same sender converge on a
// single row. The profile name split is best effort; a blank name is fine.
func (s *Service) FindOrCreate(ctx context.Context, tenantID int64, phone, profileName string) (Contact, error) {
	normalized := NormalizePhone(phone)
	firstName, lastName := splitProfileName(profileName)

	row := s.db.QueryRow(ctx, `
		INSERT INTO contacts (tenant_id, phone, name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, phone) DO NOTHING
		RETURNING `+contactColumns,
		tenantID, normalized, nullIfEmpty(firstName), nullIfEmpty(lastName))
	contact, err := scanContact(row)
	if err == nil {
		s.logger.Info("contact created",
			slog.Int64("tenant_id", tenantID), slog.Int64("id", contact.ID))
		return contact, nil
	}
	if !db.IsNoRows(err) {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}

	// Conflict path: the row already exists, fetch it.
	return s.FindByPhone(ctx, tenantID, normalized)
}

// FindByPhone fetches the contact for (tenant, phone).
func (s *Service) FindByPhone(ctx context.Context, tenantID int64, phone string) (Contact, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE tenant_id = $1 AND phone = $2",
		tenantID, NormalizePhone(phone))
	contact, err := scanContact(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("find contact: %w", err)
	}
	return contact, nil
}

// Get fetches one contact scoped to a tenant.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Contact, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id = $1 AND tenant_id = $2",
		id, tenantID)
	contact, err := scanContact(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

// NormalizePhone renders a channel-native sender identifier in E.164 where it
// parses; the raw trimmed value is kept otherwise so unparseable senders can
// still be resolved consistently.
func NormalizePhone(phone string) string {
	trimmed := strings.TrimSpace(phone)
	candidate := trimmed
	if !strings.HasPrefix(candidate, "+") {
		candidate = "+" + candidate
	}
	parsed, err := phonenumbers.Parse(candidate, "")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return trimmed
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

// splitProfileName breaks a channel-provided display name into first/last
// parts. Single-token names leave the last name blank.
func splitProfileName(profileName string) (string, string) {
	fields := strings.Fields(profileName)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

func nullIfEmpty(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (Contact, error) {
	var contact Contact
	var name, lastName, email *string
	if err := row.Scan(&contact.ID, &contact.TenantID, &name, &lastName,
		&email, &contact.Phone, &contact.CreatedAt, &contact.UpdatedAt); err != nil {
		return Contact{}, err
	}
	if name != nil {
		contact.Name = *name
	}
	if lastName != nil {
		contact.LastName = *lastName
	}
	if email != nil {
		contact.Email = *email
	}
	return contact, nil
}
