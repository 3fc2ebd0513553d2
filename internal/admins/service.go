package admins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/nunutzi10/foam-ai/internal/db"
)

var (
	ErrNotFound           = errors.New("admin not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service provides admin accounts and password authentication.
type Service struct {
	db     db.Querier
	logger *slog.Logger
}

// NewService creates an admin service.
func NewService(log *slog.Logger, q db.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     q,
		logger: log.With(slog.String("service", "admins")),
	}
}

const adminColumns = "id, tenant_id, email, name, last_name, role, deleted_at, created_at, updated_at"

// Create inserts an admin with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Admin{}, fmt.Errorf("hash password: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO admins (tenant_id, email, name, last_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+adminColumns,
		req.TenantID, normalizeEmail(req.Email), strings.TrimSpace(req.Name),
		strings.TrimSpace(req.LastName), string(hash))
	admin, err := scanAdmin(row)
	if err != nil {
		return Admin{}, fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin created", slog.Int64("id", admin.ID), slog.Int64("tenant_id", admin.TenantID))
	return admin, nil
}

// Authenticate checks an email/password pair and returns the matching admin.
func (s *Service) Authenticate(ctx context.Context, req SignInRequest) (Admin, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+adminColumns+", password_hash FROM admins WHERE email = $1 AND deleted_at IS NULL",
		normalizeEmail(req.Email))
	var admin Admin
	var hash string
	if err := row.Scan(&admin.ID, &admin.TenantID, &admin.Email, &admin.Name,
		&admin.LastName, &admin.Role, &admin.DeletedAt, &admin.CreatedAt,
		&admin.UpdatedAt, &hash); err != nil {
		if db.IsNoRows(err) {
			return Admin{}, ErrInvalidCredentials
		}
		return Admin{}, fmt.Errorf("authenticate admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return Admin{}, ErrInvalidCredentials
	}
	return admin, nil
}

// Get fetches one live admin.
func (s *Service) Get(ctx context.Context, id int64) (Admin, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+adminColumns+" FROM admins WHERE id = $1 AND deleted_at IS NULL", id)
	admin, err := scanAdmin(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Admin{}, ErrNotFound
		}
		return Admin{}, fmt.Errorf("get admin: %w", err)
	}
	return admin, nil
}

// List returns the live admins for a tenant.
func (s *Service) List(ctx context.Context, tenantID int64) ([]Admin, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+adminColumns+" FROM admins WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY id",
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var result []Admin
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, admin)
	}
	return result, rows.Err()
}

// Delete tombstones an admin.
func (s *Service) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE admins SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAdmin(row scanner) (Admin, error) {
	var admin Admin
	if err := row.Scan(&admin.ID, &admin.TenantID, &admin.Email, &admin.Name,
		&admin.LastName, &admin.Role, &admin.DeletedAt, &admin.CreatedAt,
		&admin.UpdatedAt); err != nil {
		return Admin{}, err
	}
	return admin, nil
}
