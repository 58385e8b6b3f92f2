package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrgStatus is the lifecycle status of an organization.
type OrgStatus string

const (
	OrgStatusPending OrgStatus = "pending"
	OrgStatusActive  OrgStatus = "active"
)

// BillingInterval is the cadence a subscription renews on.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Organization is the tenant-level isolation boundary owning users and subscriptions.
type Organization struct {
	ID                uuid.UUID
	Name              string
	Slug              string
	Status            OrgStatus
	BillingCustomerID *string
	CreatedAt         time.Time
}

// SubscriptionRecord ties an organization to an external billing subscription.
type SubscriptionRecord struct {
	ID                   uuid.UUID
	OrgID                uuid.UUID
	StripeSubscriptionID string
	StripePriceID        string
	BillingInterval      BillingInterval
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CreatedAt            time.Time
}

// UserRecord binds an authenticated identity to an organization member row.
// AuthID is nil when the row was created by the signup trigger before the
// identity provider issued a reference.
type UserRecord struct {
	ID        uuid.UUID
	AuthID    *string
	Email     string
	FullName  string
	Role      string
	OrgID     *uuid.UUID
	CreatedAt time.Time
}

// PaymentFacts are the validated facts derived from a completed checkout.
type PaymentFacts struct {
	CustomerID         string
	SubscriptionID     string
	PriceID            string
	Status             string
	Interval           BillingInterval
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// CreateOrgParams captures the fields required to insert an organization.
type CreateOrgParams struct {
	Name string
	Slug string
}

// OrgStore abstracts persistence for organizations.
type OrgStore interface {
	FindBySlug(ctx context.Context, slug string) (Organization, error)
	Create(ctx context.Context, params CreateOrgParams) (Organization, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status OrgStatus) error
	SetBillingCustomer(ctx context.Context, id uuid.UUID, customerID string) error
}

// CreateSubscriptionParams captures the fields required to insert a subscription record.
type CreateSubscriptionParams struct {
	OrgID                uuid.UUID
	StripeSubscriptionID string
	StripePriceID        string
	PackageID            string
	BillingInterval      BillingInterval
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
}

// SubscriptionStore abstracts persistence for subscription records.
type SubscriptionStore interface {
	Create(ctx context.Context, params CreateSubscriptionParams) (SubscriptionRecord, error)
	FindByOrg(ctx context.Context, orgID uuid.UUID) (SubscriptionRecord, error)
}

// CreateUserParams captures the fields required to insert a user record.
type CreateUserParams struct {
	AuthID   string
	Email    string
	FullName string
	Role     string
	OrgID    uuid.UUID
}

// UserStore abstracts persistence for user records. Lookups return
// ErrNotFound when no row matches; Create returns ErrConflict on a
// uniqueness violation.
type UserStore interface {
	FindByAuthID(ctx context.Context, authID string) (UserRecord, error)
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByEmailFold(ctx context.Context, email string) (UserRecord, error)
	// FindByAnyKey matches auth reference OR case-insensitive email,
	// returning the oldest row when several match.
	FindByAnyKey(ctx context.Context, authID, email string) (UserRecord, error)
	Create(ctx context.Context, params CreateUserParams) (UserRecord, error)
	UpdateAuthID(ctx context.Context, id uuid.UUID, authID string) (UserRecord, error)
	AssignOrg(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (UserRecord, error)
}

// Session represents an active principal at the identity provider.
type Session struct {
	AuthID string
}

// SignUpParams captures the fields forwarded to the identity provider.
type SignUpParams struct {
	Email    string
	Password string
	FullName string
}

// IdentityProvider abstracts the external authentication provider.
// SignUp is idempotent: re-running it for an email that already signed up
// resolves to the existing identity. A nil session with a nil error means
// the identity exists but confirmation is still pending, which pauses the
// saga.
type IdentityProvider interface {
	SignUp(ctx context.Context, params SignUpParams) (*Session, error)
}

// CheckoutSession is the provider's view of a completed checkout.
type CheckoutSession struct {
	CustomerID     string
	SubscriptionID string
}

// BillingSubscription is the provider's view of a live subscription.
// Period bounds are zero when the provider omits them.
type BillingSubscription struct {
	Status             string
	PriceID            string
	Interval           string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// BillingClient abstracts the external billing provider.
type BillingClient interface {
	CheckoutSession(ctx context.Context, ref string) (CheckoutSession, error)
	Subscription(ctx context.Context, id string) (BillingSubscription, error)
}
