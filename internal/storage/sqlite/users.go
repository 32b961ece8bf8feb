package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/estimator/internal/models"
)

// CreateUser inserts a new user (a staffable person) into the database.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO users (id, name, email, role_id, default_billing_rate, default_cost_rate, is_salaried, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.RoleID,
		user.DefaultBillingRate,
		user.DefaultCostRate,
		user.IsSalaried,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, name, email, role_id, default_billing_rate, default_cost_rate, is_salaried, created_at
		FROM users
		WHERE id = ?
	`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.RoleID,
		&user.DefaultBillingRate,
		&user.DefaultCostRate,
		&user.IsSalaried,
		&user.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// CreateRole inserts a new role. Role names are unique, ignoring case.
func (s *SQLiteStore) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.CreatedAt == 0 {
		role.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO roles (id, name, default_rack_rate, default_cost_rate, is_always_salaried, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		role.ID, role.Name, role.DefaultRackRate, role.DefaultCostRate, role.IsAlwaysSalaried, role.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID.
func (s *SQLiteStore) GetRole(ctx context.Context, id string) (*models.Role, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, default_rack_rate, default_cost_rate, is_always_salaried, created_at FROM roles WHERE id = ?",
		id,
	)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("role", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles returns every role ordered by name.
func (s *SQLiteStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, default_rack_rate, default_cost_rate, is_always_salaried, created_at FROM roles ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

func scanRole(row scanner) (*models.Role, error) {
	role := &models.Role{}
	err := row.Scan(&role.ID, &role.Name, &role.DefaultRackRate, &role.DefaultCostRate, &role.IsAlwaysSalaried, &role.CreatedAt)
	if err != nil {
		return nil, err
	}
	return role, nil
}
