package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrganizationsTable is the organizations registry.
const OrganizationsTable = "organizations"

// OrganizationRecord represents a row in the organizations table.
type OrganizationRecord struct {
	OrgID            uuid.UUID `db:"org_id"`
	Name             string    `db:"name"`
	Slug             string    `db:"slug"`
	Status           string    `db:"status"`
	StripeCustomerID *string   `db:"stripe_customer_id"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

var (
	// ErrOrgNotFound indicates a missing organization record.
	ErrOrgNotFound = errors.New("organization not found")
	// ErrOrgConflict indicates a uniqueness violation on the slug.
	ErrOrgConflict = errors.New("organization conflict")
)

// OrganizationStore exposes persistence helpers for the organizations table.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore returns a store instance; assumes migrations already
// created the table.
func NewOrganizationStore(pool *pgxpool.Pool) (*OrganizationStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &OrganizationStore{pool: pool}, nil
}

// CreateOrganizationParams captures the fields required to insert an organization.
type CreateOrganizationParams struct {
	OrgID  uuid.UUID
	Name   string
	Slug   string
	Status string
}

// Create inserts a new organization and returns the persisted record.
func (s *OrganizationStore) Create(ctx context.Context, params CreateOrganizationParams) (OrganizationRecord, error) {
	if params.OrgID == uuid.Nil {
		return OrganizationRecord{}, errors.New("org id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (org_id, name, slug, status)
        VALUES ($1, $2, $3, $4)
        RETURNING org_id, name, slug, status, stripe_customer_id, created_at, updated_at
    `, OrganizationsTable),
		params.OrgID,
		strings.TrimSpace(params.Name),
		params.Slug,
		params.Status,
	)

	rec, err := scanOrganization(row)
	if err != nil {
		if isUniqueViolation(err) {
			return OrganizationRecord{}, ErrOrgConflict
		}
		return OrganizationRecord{}, err
	}

	return rec, nil
}

// GetBySlug returns the organization with the given slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (OrganizationRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT org_id, name, slug, status, stripe_customer_id, created_at, updated_at
        FROM %s WHERE slug = $1
    `, OrganizationsTable), slug)

	rec, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrganizationRecord{}, ErrOrgNotFound
		}
		return OrganizationRecord{}, err
	}

	return rec, nil
}

// Get returns a single organization by identifier.
func (s *OrganizationStore) Get(ctx context.Context, id uuid.UUID) (OrganizationRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT org_id, name, slug, status, stripe_customer_id, created_at, updated_at
        FROM %s WHERE org_id = $1
    `, OrganizationsTable), id)

	rec, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrganizationRecord{}, ErrOrgNotFound
		}
		return OrganizationRecord{}, err
	}

	return rec, nil
}

// UpdateStatus sets the lifecycle status for the given organization.
func (s *OrganizationStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET status = $1, updated_at = NOW() WHERE org_id = $2
    `, OrganizationsTable), status, id)
	if err != nil {
		return fmt.Errorf("update organization status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// SetStripeCustomer persists the billing customer reference.
func (s *OrganizationStore) SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET stripe_customer_id = $1, updated_at = NOW() WHERE org_id = $2
    `, OrganizationsTable), customerID, id)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrgNotFound
	}
	return nil
}

func scanOrganization(row pgx.Row) (OrganizationRecord, error) {
	var rec OrganizationRecord
	if err := row.Scan(&rec.OrgID, &rec.Name, &rec.Slug, &rec.Status, &rec.StripeCustomerID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return OrganizationRecord{}, err
	}
	return rec, nil
}
