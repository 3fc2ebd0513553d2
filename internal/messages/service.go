package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var (
	ErrNotFound = errors.New("message not found")
	// ErrDuplicate signals a unique-key collision on the channel message id.
	// The webhook orchestrator treats it as "already processed".
	ErrDuplicate = errors.New("duplicate message")
)

// Service persists and reads contact-bound channel messages.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "messages")),
	}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(q db.Querier) *Service {
	return &Service{db: q, logger: s.logger}
}

const messageColumns = "id, contact_id, status, sender, content_type, body, media_url, vonage_id, custom_destination, metadata, created_at, updated_at"

// Create inserts a message row. A unique-key collision on vonage_id is
// surfaced as ErrDuplicate so redelivered webhooks stay idempotent.
func (s *Service) Create(ctx context.Context, input CreateInput) (Message, error) {
	var meta []byte
	if input.Metadata != nil {
		var err error
		meta, err = json.Marshal(input.Metadata)
		if err != nil {
			return Message{}, fmt.Errorf("marshal message metadata: %w", err)
		}
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO messages (contact_id, status, sender, content_type, body,
			media_url, vonage_id, custom_destination, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+messageColumns,
		input.ContactID, int(input.Status), int(input.Sender), int(input.ContentType),
		nullIfEmpty(input.Body), nullIfEmpty(input.MediaURL), nullIfEmpty(input.VonageID),
		nullIfEmpty(input.CustomDestination), meta)
	msg, err := scanMessage(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Message{}, ErrDuplicate
		}
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// CountByContact returns how many messages a contact has. The orchestrator
// uses it to detect the first-contact branch.
func (s *Service) CountByContact(ctx context.Context, contactID int64) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM messages WHERE contact_id = $1", contactID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// RecentForContact returns up to limit messages for a contact, excluding
// excludeID, ordered oldest-first within the window.
func (s *Service) RecentForContact(ctx context.Context, contactID, excludeID int64, limit int32) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE contact_id = $1 AND id <> $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC`,
		contactID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// ListByContact returns every message for a contact, oldest first.
func (s *Service) ListByContact(ctx context.Context, contactID int64) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE contact_id = $1 ORDER BY created_at ASC",
		contactID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// SetVonageID records the channel message id returned by a successful
// dispatch. It becomes the correlation key for status callbacks.
func (s *Service) SetVonageID(ctx context.Context, id int64, vonageID string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE messages SET vonage_id = $1, updated_at = now() WHERE id = $2",
		vonageID, id)
	if err != nil {
		return fmt.Errorf("set vonage id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusByVonageID mutates the status of the message matching the
// channel message id. Missing rows are a hard error; the caller decides what
// to do with unrecognized status tokens before calling.
func (s *Service) UpdateStatusByVonageID(ctx context.Context, vonageID string, status Status) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE messages SET status = $1, updated_at = now() WHERE vonage_id = $2",
		int(status), strings.TrimSpace(vonageID))
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsByVonageID reports whether a message with the channel id exists.
func (s *Service) ExistsByVonageID(ctx context.Context, vonageID string) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM messages WHERE vonage_id = $1)",
		strings.TrimSpace(vonageID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check vonage id: %w", err)
	}
	return exists, nil
}

// PurgeOlderThan deletes messages created before the cutoff and returns the
// number of rows removed.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM messages WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	return tag.RowsAffected(), nil
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

func scanMessage(row scanner) (Message, error) {
	var msg Message
	var status, sender, contentType int
	var body, mediaURL, vonageID, customDestination *string
	var meta []byte
	if err := row.Scan(&msg.ID, &msg.ContactID, &status, &sender, &contentType,
		&body, &mediaURL, &vonageID, &customDestination, &meta,
		&msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return Message{}, err
	}
	msg.Status = Status(status)
	msg.Sender = Sender(sender)
	msg.ContentType = ContentType(contentType)
	if body != nil {
		msg.Body = *body
	}
	if mediaURL != nil {
		msg.MediaURL = *mediaURL
	}
	if vonageID != nil {
		msg.VonageID = *vonageID
	}
	if customDestination != nil {
		msg.CustomDestination = *customDestination
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &msg.Metadata); err != nil {
			return Message{}, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return msg, nil
}
