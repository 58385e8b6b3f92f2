package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/brightpath-hq/brightpath/domains/onboarding/be/service"
	"github.com/brightpath-hq/brightpath/platform/go/persistence"
)

// PostgresOrgStore adapts persistence.OrganizationStore to the service contract.
type PostgresOrgStore struct {
	store *persistence.OrganizationStore
}

// NewPostgresOrgStore constructs the adapter.
func NewPostgresOrgStore(store *persistence.OrganizationStore) *PostgresOrgStore {
	if store == nil {
		panic("organization store is required")
	}
	return &PostgresOrgStore{store: store}
}

func (r *PostgresOrgStore) FindBySlug(ctx context.Context, slug string) (service.Organization, error) {
	rec, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return service.Organization{}, mapOrgError(err)
	}
	return toOrganization(rec), nil
}

func (r *PostgresOrgStore) Create(ctx context.Context, params service.CreateOrgParams) (service.Organization, error) {
	rec, err := r.store.Create(ctx, persistence.CreateOrganizationParams{
		OrgID:  uuid.New(),
		Name:   params.Name,
		Slug:   params.Slug,
		Status: string(service.OrgStatusPending),
	})
	if err != nil {
		return service.Organization{}, mapOrgError(err)
	}
	return toOrganization(rec), nil
}

func (r *PostgresOrgStore) UpdateStatus(ctx context.Context, id uuid.UUID, status service.OrgStatus) error {
	return mapOrgError(r.store.UpdateStatus(ctx, id, string(status)))
}

func (r *PostgresOrgStore) SetBillingCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	return mapOrgError(r.store.SetStripeCustomer(ctx, id, customerID))
}

// PostgresSubscriptionStore adapts persistence.SubscriptionStore to the service contract.
type PostgresSubscriptionStore struct {
	store *persistence.SubscriptionStore
}

// NewPostgresSubscriptionStore constructs the adapter.
func NewPostgresSubscriptionStore(store *persistence.SubscriptionStore) *PostgresSubscriptionStore {
	if store == nil {
		panic("subscription store is required")
	}
	return &PostgresSubscriptionStore{store: store}
}

func (r *PostgresSubscriptionStore) Create(ctx context.Context, params service.CreateSubscriptionParams) (service.SubscriptionRecord, error) {
	rec, err := r.store.Create(ctx, persistence.CreateSubscriptionParams{
		SubscriptionID:       uuid.New(),
		OrgID:                params.OrgID,
		StripeSubscriptionID: params.StripeSubscriptionID,
		StripePriceID:        params.StripePriceID,
		PackageID:            params.PackageID,
		BillingInterval:      string(params.BillingInterval),
		Status:               params.Status,
		CurrentPeriodStart:   params.CurrentPeriodStart,
		CurrentPeriodEnd:     params.CurrentPeriodEnd,
	})
	if err != nil {
		return service.SubscriptionRecord{}, mapSubscriptionError(err)
	}
	return toSubscription(rec), nil
}

func (r *PostgresSubscriptionStore) FindByOrg(ctx context.Context, orgID uuid.UUID) (service.SubscriptionRecord, error) {
	rec, err := r.store.GetByOrg(ctx, orgID)
	if err != nil {
		return service.SubscriptionRecord{}, mapSubscriptionError(err)
	}
	return toSubscription(rec), nil
}

// PostgresUserStore adapts persistence.UserStore to the service contract.
type PostgresUserStore struct {
	store *persistence.UserStore
}

// NewPostgresUserStore constructs the adapter.
func NewPostgresUserStore(store *persistence.UserStore) *PostgresUserStore {
	if store == nil {
		panic("user store is required")
	}
	return &PostgresUserStore{store: store}
}

func (r *PostgresUserStore) FindByAuthID(ctx context.Context, authID string) (service.UserRecord, error) {
	rec, err := r.store.GetByAuthID(ctx, authID)
	if err != nil {
		return service.UserRecord{}, mapUserError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresUserStore) FindByEmail(ctx context.Context, email string) (service.UserRecord, error) {
	rec, err := r.store.GetByEmail(ctx, email)
	if err != nil {
		return service.UserRecord{}, mapUserError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresUserStore) FindByEmailFold(ctx context.Context, email string) (service.UserRecord, error) {
	rec, err := r.store.GetByEmailFold(ctx, email)
	if err != nil {
		return service.UserRecord{}, mapUserError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresUserStore) FindByAnyKey(ctx context.Context, authID, email string) (service.UserRecord, error) {
	rec, err := r.store.GetByAnyKey(ctx, authID, email)
	if err != nil {
		return service.UserRecord{}, mapUserError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresUserStore) Create(ctx context.Context, params service.CreateUserParams) (service.UserRecord, error) {
	rec, err := r.store.CreateUser(ctx, persistence.CreateUserParams{
		UserID:   uuid.New(),
		AuthID:   params.AuthID,
		Email:    params.Email,
		FullName: params.FullName,
		Role:     params.Role,
		OrgID:    params.OrgID,
	})
	if err != nil {
		return service.UserRecord{}, mapUserError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresUserStore) UpdateAuthID(ctx context.Context, id uuid.UUID, authID string) (service.UserRecord, error) {
	rec, err := r.store.UpdateAuthID(ctx, id, authID)
	if err != nil {
		return service.UserRecord{}, mapUserError(err)
	}
	return toUser(rec), nil
}

func (r *PostgresUserStore) AssignOrg(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (service.UserRecord, error) {
	rec, err := r.store.AssignOrg(ctx, id, orgID)
	if err != nil {
		return service.UserRecord{}, mapUserError(err)
	}
	return toUser(rec), nil
}

func toOrganization(rec persistence.OrganizationRecord) service.Organization {
	return service.Organization{
		ID:                rec.OrgID,
		Name:              rec.Name,
		Slug:              rec.Slug,
		Status:            service.OrgStatus(rec.Status),
		BillingCustomerID: rec.StripeCustomerID,
		CreatedAt:         rec.CreatedAt,
	}
}

func toSubscription(rec persistence.SubscriptionRecord) service.SubscriptionRecord {
	return service.SubscriptionRecord{
		ID:                   rec.SubscriptionID,
		OrgID:                rec.OrgID,
		StripeSubscriptionID: rec.StripeSubscriptionID,
		StripePriceID:        rec.StripePriceID,
		BillingInterval:      service.BillingInterval(rec.BillingInterval),
		Status:               rec.Status,
		CurrentPeriodStart:   rec.CurrentPeriodStart,
		CurrentPeriodEnd:     rec.CurrentPeriodEnd,
		CreatedAt:            rec.CreatedAt,
	}
}

func toUser(rec persistence.UserRecord) service.UserRecord {
	return service.UserRecord{
		ID:        rec.UserID,
		AuthID:    rec.AuthID,
		Email:     rec.Email,
		FullName:  rec.FullName,
		Role:      rec.Role,
		OrgID:     rec.OrgID,
		CreatedAt: rec.CreatedAt,
	}
}

func mapOrgError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrOrgNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrOrgConflict):
		return service.ErrConflict
	default:
		return err
	}
}

func mapSubscriptionError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrSubscriptionNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrSubscriptionConflict):
		return service.ErrConflict
	default:
		return err
	}
}

func mapUserError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrUserNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrUserConflict):
		return service.ErrConflict
	default:
		return err
	}
}

// Ensure interface compliance.
var (
	_ service.OrgStore          = (*PostgresOrgStore)(nil)
	_ service.SubscriptionStore = (*PostgresSubscriptionStore)(nil)
	_ service.UserStore         = (*PostgresUserStore)(nil)
)
