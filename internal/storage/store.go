// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/estimator/internal/models"
)

// ErrNotFound is returned (possibly wrapped) when a requested record does not
// exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for estimate storage operations.
// This abstraction allows swapping storage backends (SQLite, DynamoDB)
// without changing the service layer.
//
// Line items are written one at a time; the store offers no multi-record
// transaction.
type Store interface {
	// CreateEstimate persists a new estimate. The estimate.ID field will be
	// populated by the store if empty.
	CreateEstimate(ctx context.Context, est *models.Estimate) error

	// GetEstimate retrieves an estimate by its ID.
	// Returns an error wrapping ErrNotFound if the estimate does not exist.
	GetEstimate(ctx context.Context, id string) (*models.Estimate, error)

	// UpdateEstimate replaces an existing estimate, including its totals and
	// margin override state.
	UpdateEstimate(ctx context.Context, est *models.Estimate) error

	// GetEstimateLineItems returns the line items of an estimate in creation
	// order.
	GetEstimateLineItems(ctx context.Context, estimateID string) ([]models.LineItem, error)

	GetLineItem(ctx context.Context, id string) (*models.LineItem, error)
	CreateLineItem(ctx context.Context, item *models.LineItem) error

	// UpdateEstimateLineItem replaces one line item.
	UpdateEstimateLineItem(ctx context.Context, item *models.LineItem) error

	DeleteLineItem(ctx context.Context, id string) error

	CreateRole(ctx context.Context, role *models.Role) error
	GetRole(ctx context.Context, id string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	CreateRateOverride(ctx context.Context, o *models.RateOverride) error
	GetRateOverride(ctx context.Context, id string) (*models.RateOverride, error)
	DeleteRateOverride(ctx context.Context, id string) error

	// GetClientRateOverrides returns every override scoped to a client.
	GetClientRateOverrides(ctx context.Context, clientID string) ([]models.RateOverride, error)

	// GetEstimateRateOverrides returns every override scoped to an estimate.
	GetEstimateRateOverrides(ctx context.Context, estimateID string) ([]models.RateOverride, error)

	// Close releases any resources held by the store.
	Close() error
}
