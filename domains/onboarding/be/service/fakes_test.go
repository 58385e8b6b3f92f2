package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// memOrgStore is a minimal in-memory OrgStore for tests. Uniqueness on slug
// is enforced the way the real store does: insert fails with ErrConflict.
type memOrgStore struct {
	mu     sync.Mutex
	bySlug map[string]Organization

	createCalls       int
	statusErr         error
	setCustomerErrs   []error
	setCustomerCalls  int
	billingCustomerID string
}

func newMemOrgStore() *memOrgStore {
	return &memOrgStore{bySlug: make(map[string]Organization)}
}

func (s *memOrgStore) FindBySlug(ctx context.Context, slug string) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.bySlug[slug]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (s *memOrgStore) Create(ctx context.Context, params CreateOrgParams) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if _, ok := s.bySlug[params.Slug]; ok {
		return Organization{}, ErrConflict
	}
	org := Organization{
		ID:     uuid.New(),
		Name:   params.Name,
		Slug:   params.Slug,
		Status: OrgStatusPending,
	}
	s.bySlug[params.Slug] = org
	return org, nil
}

func (s *memOrgStore) UpdateStatus(ctx context.Context, id uuid.UUID, status OrgStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return s.statusErr
	}
	for slug, org := range s.bySlug {
		if org.ID == id {
			org.Status = status
			s.bySlug[slug] = org
			return nil
		}
	}
	return ErrNotFound
}

func (s *memOrgStore) SetBillingCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCustomerCalls++
	if len(s.setCustomerErrs) > 0 {
		err := s.setCustomerErrs[0]
		s.setCustomerErrs = s.setCustomerErrs[1:]
		if err != nil {
			return err
		}
	}
	s.billingCustomerID = customerID
	return nil
}

func (s *memOrgStore) get(slug string) (Organization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.bySlug[slug]
	return org, ok
}

// memSubscriptionStore enforces one subscription per organization.
type memSubscriptionStore struct {
	mu    sync.Mutex
	byOrg map[uuid.UUID]SubscriptionRecord

	createErrs  []error
	createCalls int
}

func newMemSubscriptionStore() *memSubscriptionStore {
	return &memSubscriptionStore{byOrg: make(map[uuid.UUID]SubscriptionRecord)}
}

func (s *memSubscriptionStore) Create(ctx context.Context, params CreateSubscriptionParams) (SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return SubscriptionRecord{}, err
		}
	}
	if _, ok := s.byOrg[params.OrgID]; ok {
		return SubscriptionRecord{}, ErrConflict
	}
	rec := SubscriptionRecord{
		ID:                   uuid.New(),
		OrgID:                params.OrgID,
		StripeSubscriptionID: params.StripeSubscriptionID,
		StripePriceID:        params.StripePriceID,
		BillingInterval:      params.BillingInterval,
		Status:               params.Status,
		CurrentPeriodStart:   params.CurrentPeriodStart,
		CurrentPeriodEnd:     params.CurrentPeriodEnd,
	}
	s.byOrg[params.OrgID] = rec
	return rec, nil
}

func (s *memSubscriptionStore) FindByOrg(ctx context.Context, orgID uuid.UUID) (SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byOrg[orgID]
	if !ok {
		return SubscriptionRecord{}, ErrNotFound
	}
	return rec, nil
}

// memUserStore enforces uniqueness on auth_id and lower(email). The
// beforeCreate hook lets tests inject a racing trigger insert, and lookupErrs
// scripts transient read failures per strategy name.
type memUserStore struct {
	mu   sync.Mutex
	rows []UserRecord

	beforeCreate func()
	createErr    error
	lookupErrs   map[string][]error
	lookupCalls  int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{lookupErrs: make(map[string][]error)}
}

func (s *memUserStore) insert(user UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, user)
}

func (s *memUserStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memUserStore) scriptedErr(strategy string) error {
	queue := s.lookupErrs[strategy]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	s.lookupErrs[strategy] = queue[1:]
	return err
}

func (s *memUserStore) FindByAuthID(ctx context.Context, authID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupCalls++
	if err := s.scriptedErr("auth_id"); err != nil {
		return UserRecord{}, err
	}
	for _, row := range s.rows {
		if row.AuthID != nil && *row.AuthID == authID {
			return row, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupCalls++
	if err := s.scriptedErr("email_exact"); err != nil {
		return UserRecord{}, err
	}
	for _, row := range s.rows {
		if row.Email == email {
			return row, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (s *memUserStore) FindByEmailFold(ctx context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupCalls++
	if err := s.scriptedErr("email_fold"); err != nil {
		return UserRecord{}, err
	}
	for _, row := range s.rows {
		if strings.EqualFold(row.Email, email) {
			return row, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (s *memUserStore) FindByAnyKey(ctx context.Context, authID, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupCalls++
	if err := s.scriptedErr("any_key"); err != nil {
		return UserRecord{}, err
	}
	for _, row := range s.rows {
		if (row.AuthID != nil && *row.AuthID == authID) || strings.EqualFold(row.Email, email) {
			return row, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (s *memUserStore) Create(ctx context.Context, params CreateUserParams) (UserRecord, error) {
	if s.beforeCreate != nil {
		s.beforeCreate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return UserRecord{}, s.createErr
	}
	for _, row := range s.rows {
		if (row.AuthID != nil && *row.AuthID == params.AuthID) || strings.EqualFold(row.Email, params.Email) {
			return UserRecord{}, ErrConflict
		}
	}
	authID := params.AuthID
	orgID := params.OrgID
	user := UserRecord{
		ID:       uuid.New(),
		AuthID:   &authID,
		Email:    params.Email,
		FullName: params.FullName,
		Role:     params.Role,
		OrgID:    &orgID,
	}
	s.rows = append(s.rows, user)
	return user, nil
}

func (s *memUserStore) UpdateAuthID(ctx context.Context, id uuid.UUID, authID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == id {
			s.rows[i].AuthID = &authID
			return s.rows[i], nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (s *memUserStore) AssignOrg(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == id {
			s.rows[i].OrgID = &orgID
			return s.rows[i], nil
		}
	}
	return UserRecord{}, ErrNotFound
}

// stub external providers

type stubIdentity struct {
	session *Session
	err     error
	calls   int
}

func (s *stubIdentity) SignUp(ctx context.Context, params SignUpParams) (*Session, error) {
	s.calls++
	return s.session, s.err
}

type stubBilling struct {
	session    CheckoutSession
	sessionErr error
	sub        BillingSubscription
	subErr     error
}

func (s *stubBilling) CheckoutSession(ctx context.Context, ref string) (CheckoutSession, error) {
	return s.session, s.sessionErr
}

func (s *stubBilling) Subscription(ctx context.Context, id string) (BillingSubscription, error) {
	return s.sub, s.subErr
}
