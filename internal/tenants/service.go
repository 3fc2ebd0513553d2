package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var (
	ErrNotFound        = errors.New("tenant not found")
	ErrInvalidSettings = errors.New("invalid tenant settings")
)

// Service provides tenant CRUD. Tenants are soft-deleted: tombstoned rows are
// excluded from every read here but stay recoverable in the table.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates a tenant service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "tenants")),
	}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(q db.Querier) *Service {
	return &Service{db: q, logger: s.logger}
}

const tenantColumns = "id, name, settings, deleted_at, created_at, updated_at"

// Create inserts a tenant after validating its settings.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Tenant, error) {
	settings := Settings{}
	if req.Settings != nil {
		settings = *req.Settings
		if err := settings.Validate(); err != nil {
			return Tenant{}, fmt.Errorf("%w: %s", ErrInvalidSettings, err)
		}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return Tenant{}, fmt.Errorf("marshal settings: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO tenants (name, settings)
		VALUES ($1, $2)
		RETURNING `+tenantColumns,
		strings.TrimSpace(req.Name), raw)
	tenant, err := scanTenant(row)
	if err != nil {
		return Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	s.logger.Info("tenant created", slog.Int64("id", tenant.ID))
	return tenant, nil
}

// Update changes a tenant's name and/or settings.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Tenant, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	name := tenant.Name
	if strings.TrimSpace(req.Name) != "" {
		name = strings.TrimSpace(req.Name)
	}
	settings := tenant.Settings
	if req.Settings != nil {
		settings = *req.Settings
		if err := settings.Validate(); err != nil {
			return Tenant{}, fmt.Errorf("%w: %s", ErrInvalidSettings, err)
		}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return Tenant{}, fmt.Errorf("marshal settings: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE tenants SET name = $1, settings = $2, updated_at = now()
		WHERE id = $3 AND deleted_at IS NULL
		RETURNING `+tenantColumns,
		name, raw, id)
	updated, err := scanTenant(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("update tenant: %w", err)
	}
	return updated, nil
}

// Get fetches one live tenant.
func (s *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE id = $1 AND deleted_at IS NULL", id)
	tenant, err := scanTenant(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return tenant, nil
}

// List returns every live tenant.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE deleted_at IS NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var result []Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tenant)
	}
	return result, rows.Err()
}

// Delete tombstones a tenant.
func (s *Service) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE tenants SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (Tenant, error) {
	var tenant Tenant
	var raw []byte
	if err := row.Scan(&tenant.ID, &tenant.Name, &raw, &tenant.DeletedAt,
		&tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
		return Tenant{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &tenant.Settings); err != nil {
			return Tenant{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return tenant, nil
}
