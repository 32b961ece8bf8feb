// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/estimator/internal/models"
	"github.com/mmynk/estimator/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, storage.ErrNotFound)
}

// checkAffected turns an update or delete that touched no rows into a
// not-found error.
func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

const estimateColumns = `id, client_id, name, status, multipliers,
	referral_type, referral_percent, referral_flat_amount,
	total_hours, total_fees, total_cost, margin_percent,
	presented_total, net_revenue, referral_fee_amount,
	margin_override_active, margin_override_percent, rate_snapshot,
	created_at, updated_at`

// CreateEstimate persists a new estimate to the database.
func (s *SQLiteStore) CreateEstimate(ctx context.Context, est *models.Estimate) error {
	if est.ID == "" {
		est.ID = uuid.New().String()
	}
	if est.CreatedAt == 0 {
		est.CreatedAt = time.Now().Unix()
	}
	if est.UpdatedAt == 0 {
		est.UpdatedAt = est.CreatedAt
	}

	args, err := estimateArgs(est)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO estimates ("+estimateColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to insert estimate: %w", err)
	}
	return nil
}

// GetEstimate retrieves an estimate by ID.
func (s *SQLiteStore) GetEstimate(ctx context.Context, id string) (*models.Estimate, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+estimateColumns+" FROM estimates WHERE id = ?",
		id,
	)
	est, err := scanEstimate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("estimate", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get estimate: %w", err)
	}
	return est, nil
}

// UpdateEstimate replaces an existing estimate.
func (s *SQLiteStore) UpdateEstimate(ctx context.Context, est *models.Estimate) error {
	est.UpdatedAt = time.Now().Unix()

	args, err := estimateArgs(est)
	if err != nil {
		return err
	}
	// Drop id and created_at from the SET list; id moves to the WHERE clause.
	set := make([]any, 0, len(args))
	set = append(set, args[1:len(args)-2]...)
	set = append(set, est.UpdatedAt, est.ID)

	res, err := s.db.ExecContext(ctx, `
		UPDATE estimates SET
			client_id = ?, name = ?, status = ?, multipliers = ?,
			referral_type = ?, referral_percent = ?, referral_flat_amount = ?,
			total_hours = ?, total_fees = ?, total_cost = ?, margin_percent = ?,
			presented_total = ?, net_revenue = ?, referral_fee_amount = ?,
			margin_override_active = ?, margin_override_percent = ?, rate_snapshot = ?,
			updated_at = ?
		WHERE id = ?`,
		set...,
	)
	if err != nil {
		return fmt.Errorf("failed to update estimate: %w", err)
	}
	return checkAffected(res, "estimate", est.ID)
}

func estimateArgs(est *models.Estimate) ([]any, error) {
	multipliers, err := json.Marshal(est.Multipliers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode multipliers: %w", err)
	}

	var snapshot sql.NullString
	if est.RateSnapshot != nil {
		raw, err := json.Marshal(est.RateSnapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rate snapshot: %w", err)
		}
		snapshot = sql.NullString{String: string(raw), Valid: true}
	}

	return []any{
		est.ID, est.ClientID, est.Name, string(est.Status), string(multipliers),
		string(est.Referral.Type), est.Referral.Percent, est.Referral.FlatAmount,
		est.TotalHours, est.TotalFees, est.TotalCost, est.MarginPercent,
		est.PresentedTotal, est.NetRevenue, est.ReferralFeeAmount,
		est.MarginOverrideActive, est.MarginOverridePercent, snapshot,
		est.CreatedAt, est.UpdatedAt,
	}, nil
}

func scanEstimate(row scanner) (*models.Estimate, error) {
	est := &models.Estimate{}
	var status, referralType, multipliers string
	var snapshot sql.NullString

	err := row.Scan(
		&est.ID, &est.ClientID, &est.Name, &status, &multipliers,
		&referralType, &est.Referral.Percent, &est.Referral.FlatAmount,
		&est.TotalHours, &est.TotalFees, &est.TotalCost, &est.MarginPercent,
		&est.PresentedTotal, &est.NetRevenue, &est.ReferralFeeAmount,
		&est.MarginOverrideActive, &est.MarginOverridePercent, &snapshot,
		&est.CreatedAt, &est.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	est.Status = models.EstimateStatus(status)
	est.Referral.Type = models.ReferralType(referralType)
	if err := json.Unmarshal([]byte(multipliers), &est.Multipliers); err != nil {
		return nil, fmt.Errorf("failed to decode multipliers: %w", err)
	}
	if snapshot.Valid {
		est.RateSnapshot = models.RateSnapshot{}
		if err := json.Unmarshal([]byte(snapshot.String), &est.RateSnapshot); err != nil {
			return nil, fmt.Errorf("failed to decode rate snapshot: %w", err)
		}
	}
	return est, nil
}
