package apikeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var ErrNotFound = errors.New("api key not found")

// Service provides API key CRUD and bearer authentication.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates an API key service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "api_keys")),
	}
}

const apiKeyColumns = "id, tenant_id, name, api_id, api_key, role, created_at, updated_at"

// Create mints a new API key. The api_id/api_key pair is generated server
// side; the caller never supplies it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (APIKey, error) {
	role := RoleAll()
	if req.Role != nil {
		role = *req.Role
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO api_keys (tenant_id, name, api_id, api_key, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+apiKeyColumns,
		req.TenantID, strings.TrimSpace(req.Name), uuid.NewString(), uuid.NewString(), int64(role))
	key, err := scanAPIKey(row)
	if err != nil {
		return APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	s.logger.Info("api key created", slog.Int64("tenant_id", key.TenantID), slog.Int64("id", key.ID))
	return key, nil
}

// Update renames a key or changes its role.
func (s *Service) Update(ctx context.Context, tenantID, id int64, req UpdateRequest) (APIKey, error) {
	key, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return APIKey{}, err
	}
	role := key.Role
	if req.Role != nil {
		role = *req.Role
	}
	row := s.db.QueryRow(ctx, `
		UPDATE api_keys SET name = $1, role = $2, updated_at = now()
		WHERE id = $3 AND tenant_id = $4
		RETURNING `+apiKeyColumns,
		strings.TrimSpace(req.Name), int64(role), id, tenantID)
	updated, err := scanAPIKey(row)
	if err != nil {
		if db.IsNoRows(err) {
			return APIKey{}, ErrNotFound
		}
		return APIKey{}, fmt.Errorf("update api key: %w", err)
	}
	return updated, nil
}

// Get fetches one key scoped to a tenant.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (APIKey, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE id = $1 AND tenant_id = $2",
		id, tenantID)
	key, err := scanAPIKey(row)
	if err != nil {
		if db.IsNoRows(err) {
			return APIKey{}, ErrNotFound
		}
		return APIKey{}, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

// List returns all keys for a tenant.
func (s *Service) List(ctx context.Context, tenantID int64) ([]APIKey, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE tenant_id = $1 ORDER BY id",
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Delete removes a key.
func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM api_keys WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Authenticate resolves a bearer secret to its API key record.
func (s *Service) Authenticate(ctx context.Context, secret string) (APIKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return APIKey{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE api_key = $1", secret)
	key, err := scanAPIKey(row)
	if err != nil {
		if db.IsNoRows(err) {
			return APIKey{}, ErrNotFound
		}
		return APIKey{}, fmt.Errorf("authenticate api key: %w", err)
	}
	return key, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row scanner) (APIKey, error) {
	var key APIKey
	var role int64
	if err := row.Scan(&key.ID, &key.TenantID, &key.Name, &key.APIID,
		&key.APIKey, &role, &key.CreatedAt, &key.UpdatedAt); err != nil {
		return APIKey{}, err
	}
	key.Role = Role(role)
	return key, nil
}
