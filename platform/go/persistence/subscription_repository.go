package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionsTable holds one subscription row per organization.
const SubscriptionsTable = "subscriptions"

// SubscriptionRecord represents a row in the subscriptions table.
type SubscriptionRecord struct {
	SubscriptionID       uuid.UUID `db:"subscription_id"`
	OrgID                uuid.UUID `db:"org_id"`
	StripeSubscriptionID string    `db:"stripe_subscription_id"`
	StripePriceID        string    `db:"stripe_price_id"`
	PackageID            string    `db:"package_id"`
	BillingInterval      string    `db:"billing_interval"`
	Status               string    `db:"status"`
	CurrentPeriodStart   time.Time `db:"current_period_start"`
	CurrentPeriodEnd     time.Time `db:"current_period_end"`
	CreatedAt            time.Time `db:"created_at"`
}

var (
	// ErrSubscriptionNotFound indicates a missing subscription record.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrSubscriptionConflict indicates the organization or external id is
	// already taken.
	ErrSubscriptionConflict = errors.New("subscription conflict")
)

// SubscriptionStore exposes persistence helpers for the subscriptions table.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

// NewSubscriptionStore returns a store instance.
func NewSubscriptionStore(pool *pgxpool.Pool) (*SubscriptionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SubscriptionStore{pool: pool}, nil
}

// CreateSubscriptionParams captures the fields required to insert a subscription.
type CreateSubscriptionParams struct {
	SubscriptionID       uuid.UUID
	OrgID                uuid.UUID
	StripeSubscriptionID string
	StripePriceID        string
	PackageID            string
	BillingInterval      string
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
}

// Create inserts a new subscription and returns the persisted record.
func (s *SubscriptionStore) Create(ctx context.Context, params CreateSubscriptionParams) (SubscriptionRecord, error) {
	if params.SubscriptionID == uuid.Nil {
		return SubscriptionRecord{}, errors.New("subscription id is required")
	}
	if params.OrgID == uuid.Nil {
		return SubscriptionRecord{}, errors.New("org id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (
            subscription_id, org_id, stripe_subscription_id, stripe_price_id,
            package_id, billing_interval, status, current_period_start, current_period_end
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING subscription_id, org_id, stripe_subscription_id, stripe_price_id,
            package_id, billing_interval, status, current_period_start, current_period_end, created_at
    `, SubscriptionsTable),
		params.SubscriptionID,
		params.OrgID,
		params.StripeSubscriptionID,
		params.StripePriceID,
		params.PackageID,
		params.BillingInterval,
		params.Status,
		params.CurrentPeriodStart,
		params.CurrentPeriodEnd,
	)

	rec, err := scanSubscription(row)
	if err != nil {
		if isUniqueViolation(err) {
			return SubscriptionRecord{}, ErrSubscriptionConflict
		}
		return SubscriptionRecord{}, err
	}

	return rec, nil
}

// GetByOrg returns the subscription owned by the given organization.
func (s *SubscriptionStore) GetByOrg(ctx context.Context, orgID uuid.UUID) (SubscriptionRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT subscription_id, org_id, stripe_subscription_id, stripe_price_id,
            package_id, billing_interval, status, current_period_start, current_period_end, created_at
        FROM %s WHERE org_id = $1
    `, SubscriptionsTable), orgID)

	rec, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubscriptionRecord{}, ErrSubscriptionNotFound
		}
		return SubscriptionRecord{}, err
	}

	return rec, nil
}

func scanSubscription(row pgx.Row) (SubscriptionRecord, error) {
	var rec SubscriptionRecord
	if err := row.Scan(
		&rec.SubscriptionID, &rec.OrgID, &rec.StripeSubscriptionID, &rec.StripePriceID,
		&rec.PackageID, &rec.BillingInterval, &rec.Status, &rec.CurrentPeriodStart,
		&rec.CurrentPeriodEnd, &rec.CreatedAt,
	); err != nil {
		return SubscriptionRecord{}, err
	}
	return rec, nil
}
