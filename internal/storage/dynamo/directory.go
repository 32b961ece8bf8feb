package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/mmynk/estimator/internal/models"
)

// CreateRole persists a new role.
func (s *Store) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.CreatedAt == 0 {
		role.CreatedAt = s.now().Unix()
	}

	rec := roleRecord{
		ID:               role.ID,
		Name:             role.Name,
		DefaultRackRate:  role.DefaultRackRate,
		DefaultCostRate:  role.DefaultCostRate,
		IsAlwaysSalaried: role.IsAlwaysSalaried,
		CreatedAt:        role.CreatedAt,
	}
	if err := s.put(ctx, rolesTable, rec, false); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, id string) (*models.Role, error) {
	var rec roleRecord
	found, err := s.get(ctx, rolesTable, id, &rec)
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	if !found {
		return nil, notFound("role", id)
	}
	role := fromRoleRecord(rec)
	return &role, nil
}

// ListRoles returns every role ordered by name. The role catalog is small,
// so a full table scan is acceptable.
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	p := dynamodb.NewScanPaginator(s.ddb, &dynamodb.ScanInput{
		TableName: s.table(rolesTable),
	})

	var roles []models.Role
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan roles: %w", err)
		}
		for _, av := range page.Items {
			var rec roleRecord
			if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal role: %w", err)
			}
			roles = append(roles, fromRoleRecord(rec))
		}
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func fromRoleRecord(rec roleRecord) models.Role {
	return models.Role{
		ID:               rec.ID,
		Name:             rec.Name,
		DefaultRackRate:  rec.DefaultRackRate,
		DefaultCostRate:  rec.DefaultCostRate,
		IsAlwaysSalaried: rec.IsAlwaysSalaried,
		CreatedAt:        rec.CreatedAt,
	}
}

// CreateUser persists a new user.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = s.now().Unix()
	}

	rec := userRecord{
		ID:                 user.ID,
		Name:               user.Name,
		Email:              user.Email,
		RoleID:             user.RoleID,
		DefaultBillingRate: user.DefaultBillingRate,
		DefaultCostRate:    user.DefaultCostRate,
		IsSalaried:         user.IsSalaried,
		CreatedAt:          user.CreatedAt,
	}
	if err := s.put(ctx, usersTable, rec, false); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var rec userRecord
	found, err := s.get(ctx, usersTable, id, &rec)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return nil, notFound("user", id)
	}
	return &models.User{
		ID:                 rec.ID,
		Name:               rec.Name,
		Email:              rec.Email,
		RoleID:             rec.RoleID,
		DefaultBillingRate: rec.DefaultBillingRate,
		DefaultCostRate:    rec.DefaultCostRate,
		IsSalaried:         rec.IsSalaried,
		CreatedAt:          rec.CreatedAt,
	}, nil
}
