package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/brightpath-hq/brightpath/domains/onboarding/be/service"
	platformauth "github.com/brightpath-hq/brightpath/platform/go/auth"
)

// fakeStores is a single-tenant in-memory backend, just enough for the saga
// to run end to end behind the HTTP surface.
type fakeStores struct {
	mu   sync.Mutex
	org  *service.Organization
	sub  *service.SubscriptionRecord
	user *service.UserRecord
}

func (f *fakeStores) FindBySlug(ctx context.Context, slug string) (service.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.org == nil || f.org.Slug != slug {
		return service.Organization{}, service.ErrNotFound
	}
	return *f.org, nil
}

func (f *fakeStores) Create(ctx context.Context, params service.CreateOrgParams) (service.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.org != nil && f.org.Slug == params.Slug {
		return service.Organization{}, service.ErrConflict
	}
	org := service.Organization{ID: uuid.New(), Name: params.Name, Slug: params.Slug, Status: service.OrgStatusPending}
	f.org = &org
	return org, nil
}

func (f *fakeStores) UpdateStatus(ctx context.Context, id uuid.UUID, status service.OrgStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.org == nil || f.org.ID != id {
		return service.ErrNotFound
	}
	f.org.Status = status
	return nil
}

func (f *fakeStores) SetBillingCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.org == nil || f.org.ID != id {
		return service.ErrNotFound
	}
	f.org.BillingCustomerID = &customerID
	return nil
}

func (f *fakeStores) CreateSubscription(ctx context.Context, params service.CreateSubscriptionParams) (service.SubscriptionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil && f.sub.OrgID == params.OrgID {
		return service.SubscriptionRecord{}, service.ErrConflict
	}
	sub := service.SubscriptionRecord{
		ID:                   uuid.New(),
		OrgID:                params.OrgID,
		StripeSubscriptionID: params.StripeSubscriptionID,
		StripePriceID:        params.StripePriceID,
		BillingInterval:      params.BillingInterval,
		Status:               params.Status,
		CurrentPeriodStart:   params.CurrentPeriodStart,
		CurrentPeriodEnd:     params.CurrentPeriodEnd,
	}
	f.sub = &sub
	return sub, nil
}

func (f *fakeStores) FindByOrg(ctx context.Context, orgID uuid.UUID) (service.SubscriptionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == nil || f.sub.OrgID != orgID {
		return service.SubscriptionRecord{}, service.ErrNotFound
	}
	return *f.sub, nil
}

func (f *fakeStores) FindByAuthID(ctx context.Context, authID string) (service.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil || f.user.AuthID == nil || *f.user.AuthID != authID {
		return service.UserRecord{}, service.ErrNotFound
	}
	return *f.user, nil
}

func (f *fakeStores) FindByEmail(ctx context.Context, email string) (service.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil || f.user.Email != email {
		return service.UserRecord{}, service.ErrNotFound
	}
	return *f.user, nil
}

func (f *fakeStores) FindByEmailFold(ctx context.Context, email string) (service.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil || !strings.EqualFold(f.user.Email, email) {
		return service.UserRecord{}, service.ErrNotFound
	}
	return *f.user, nil
}

func (f *fakeStores) FindByAnyKey(ctx context.Context, authID, email string) (service.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return service.UserRecord{}, service.ErrNotFound
	}
	if (f.user.AuthID != nil && *f.user.AuthID == authID) || strings.EqualFold(f.user.Email, email) {
		return *f.user, nil
	}
	return service.UserRecord{}, service.ErrNotFound
}

func (f *fakeStores) CreateUser(ctx context.Context, params service.CreateUserParams) (service.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user != nil {
		return service.UserRecord{}, service.ErrConflict
	}
	authID := params.AuthID
	orgID := params.OrgID
	user := service.UserRecord{
		ID:       uuid.New(),
		AuthID:   &authID,
		Email:    params.Email,
		FullName: params.FullName,
		Role:     params.Role,
		OrgID:    &orgID,
	}
	f.user = &user
	return user, nil
}

func (f *fakeStores) UpdateAuthID(ctx context.Context, id uuid.UUID, authID string) (service.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil || f.user.ID != id {
		return service.UserRecord{}, service.ErrNotFound
	}
	f.user.AuthID = &authID
	return *f.user, nil
}

func (f *fakeStores) AssignOrg(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (service.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil || f.user.ID != id {
		return service.UserRecord{}, service.ErrNotFound
	}
	f.user.OrgID = &orgID
	return *f.user, nil
}

// subscriptionStoreAdapter renames the fake's subscription methods onto the
// store interface.
type subscriptionStoreAdapter struct{ *fakeStores }

func (a subscriptionStoreAdapter) Create(ctx context.Context, params service.CreateSubscriptionParams) (service.SubscriptionRecord, error) {
	return a.CreateSubscription(ctx, params)
}

type userStoreAdapter struct{ *fakeStores }

func (a userStoreAdapter) Create(ctx context.Context, params service.CreateUserParams) (service.UserRecord, error) {
	return a.CreateUser(ctx, params)
}

type stubIdentity struct {
	session *service.Session
	err     error
}

func (s *stubIdentity) SignUp(ctx context.Context, params service.SignUpParams) (*service.Session, error) {
	return s.session, s.err
}

type stubBilling struct {
	session service.CheckoutSession
	sub     service.BillingSubscription
}

func (s *stubBilling) CheckoutSession(ctx context.Context, ref string) (service.CheckoutSession, error) {
	return s.session, nil
}

func (s *stubBilling) Subscription(ctx context.Context, id string) (service.BillingSubscription, error) {
	return s.sub, nil
}

type fixture struct {
	stores   *fakeStores
	identity *stubIdentity
	writer   *service.SubscriptionWriter
	router   chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stores := &fakeStores{}
	identity := &stubIdentity{session: &service.Session{AuthID: "auth_1"}}
	billing := &stubBilling{
		session: service.CheckoutSession{CustomerID: "cus_1", SubscriptionID: "sub_1"},
		sub:     service.BillingSubscription{Status: "active", PriceID: "price_1", Interval: "month"},
	}

	codec, err := service.NewResumeTokenCodec([]byte("test-secret"), time.Hour, nil)
	require.NoError(t, err)

	writer := service.NewSubscriptionWriter(subscriptionStoreAdapter{stores}, stores, nil, nil, service.SubscriptionWriterConfig{
		RetryDelay:     time.Millisecond,
		BackfillDelays: []time.Duration{time.Millisecond},
	})

	saga := service.NewOrchestrator(
		service.NewOrgProvisioner(stores, nil),
		identity,
		service.NewPaymentFactsResolver(billing, nil, nil),
		writer,
		service.NewIdentityReconciler(userStoreAdapter{stores}, nil, nil, time.Millisecond),
		stores,
		codec,
		nil,
		nil,
	)

	router := chi.NewRouter()
	New(saga, zaptest.NewLogger(t)).Mount(router)
	return &fixture{stores: stores, identity: identity, writer: writer, router: router}
}

func completeBody() []byte {
	body, _ := json.Marshal(map[string]string{
		"orgName":           "Acme Inc",
		"orgSlug":           "acme-inc",
		"email":             "john@acme.com",
		"password":          "s3cret!pass",
		"fullName":          "John Doe",
		"packageId":         "pro-monthly",
		"checkoutSessionId": "cs_1",
	})
	return body
}

func TestCompleteCreatesEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/onboarding/complete", bytes.NewReader(completeBody()))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Status string `json:"status"`
		Org    struct {
			Slug   string `json:"slug"`
			Status string `json:"status"`
		} `json:"org"`
		Subscription struct {
			StripeSubscriptionID string `json:"stripeSubscriptionId"`
			BillingInterval      string `json:"billingInterval"`
		} `json:"subscription"`
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "completed", resp.Status)
	require.Equal(t, "acme-inc", resp.Org.Slug)
	require.Equal(t, "active", resp.Org.Status)
	require.Equal(t, "sub_1", resp.Subscription.StripeSubscriptionID)
	require.Equal(t, "month", resp.Subscription.BillingInterval)
	require.Equal(t, "john@acme.com", resp.User.Email)
	require.Equal(t, "owner", resp.User.Role)
	f.writer.Wait()
}

func TestCompleteRejectsMissingFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	body, _ := json.Marshal(map[string]string{"orgSlug": "acme-inc"})

	req := httptest.NewRequest(http.MethodPost, "/onboarding/complete", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCompletePausesWhenConfirmationPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.identity.session = nil

	req := httptest.NewRequest(http.MethodPost, "/onboarding/complete", bytes.NewReader(completeBody()))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Status      string          `json:"status"`
		ResumeToken string          `json:"resumeToken"`
		User        json.RawMessage `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "paused", resp.Status)
	require.NotEmpty(t, resp.ResumeToken)
	require.Empty(t, resp.User)
	f.writer.Wait()
}

func TestResumeRequiresAuthentication(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	body, _ := json.Marshal(map[string]string{"resumeToken": "whatever"})

	req := httptest.NewRequest(http.MethodPost, "/onboarding/resume", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResumeCompletesPausedSignup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.identity.session = nil

	req := httptest.NewRequest(http.MethodPost, "/onboarding/complete", bytes.NewReader(completeBody()))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var paused struct {
		ResumeToken string `json:"resumeToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paused))

	body, _ := json.Marshal(map[string]string{"resumeToken": paused.ResumeToken})
	req = httptest.NewRequest(http.MethodPost, "/onboarding/resume", bytes.NewReader(body))
	req = req.WithContext(platformauth.ContextWithUser(req.Context(), &platformauth.UserCredentials{
		Id:            "auth_1",
		Email:         "john@acme.com",
		EmailVerified: true,
	}))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Status string `json:"status"`
		User   struct {
			Email string `json:"email"`
			OrgID string `json:"orgId"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "completed", resp.Status)
	require.Equal(t, "john@acme.com", resp.User.Email)
	require.Equal(t, f.stores.org.ID.String(), resp.User.OrgID)
	f.writer.Wait()
}

func TestResumeRejectsGarbageToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	body, _ := json.Marshal(map[string]string{"resumeToken": "not-a-token"})

	req := httptest.NewRequest(http.MethodPost, "/onboarding/resume", bytes.NewReader(body))
	req = req.WithContext(platformauth.ContextWithUser(req.Context(), &platformauth.UserCredentials{Id: "auth_1"}))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
