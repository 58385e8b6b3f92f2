package service

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRole is assigned to the user who completes a signup.
const DefaultRole = "owner"

// ProvisionInput is everything the saga needs for one provisioning run.
type ProvisionInput struct {
	OrgName            string
	OrgSlug            string
	Email              string
	Password           string
	FullName           string
	PackageID          string
	CheckoutSessionRef string
}

// ProvisionResult is the outcome of a run. When Paused is true the caller
// must hold ResumeToken and call Resume after out-of-band confirmation;
// User is nil until then.
type ProvisionResult struct {
	Org          Organization
	Subscription SubscriptionRecord
	User         *UserRecord
	Paused       bool
	ResumeToken  string
}

// Orchestrator drives the post-payment provisioning saga in a fixed step
// order. No step is compensated on failure: organization and subscription
// creation reflect a real payment and are intentionally left in place. Each
// step is individually idempotent, so a full restart from the first step
// converges to the same end state.
type Orchestrator struct {
	orgs     *OrgProvisioner
	identity IdentityProvider
	payments *PaymentFactsResolver
	subs     *SubscriptionWriter
	users    *IdentityReconciler
	orgStore OrgStore
	tokens   *ResumeTokenCodec
	clock    clock.Clock
	logger   *zap.Logger
}

// NewOrchestrator constructs the saga with all required collaborators.
func NewOrchestrator(
	orgs *OrgProvisioner,
	identity IdentityProvider,
	payments *PaymentFactsResolver,
	subs *SubscriptionWriter,
	users *IdentityReconciler,
	orgStore OrgStore,
	tokens *ResumeTokenCodec,
	clk clock.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if orgs == nil || identity == nil || payments == nil || subs == nil || users == nil || orgStore == nil || tokens == nil {
		panic("all orchestrator collaborators are required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		orgs:     orgs,
		identity: identity,
		payments: payments,
		subs:     subs,
		users:    users,
		orgStore: orgStore,
		tokens:   tokens,
		clock:    clk,
		logger:   logger,
	}
}

// Provision runs the saga once: organization, external sign-up, payment
// facts, subscription record, status finalization, identity reconciliation.
// When sign-up yields no active session the payment-side steps still run
// (the payment is already captured and must not be lost) and the saga
// pauses, returning a TTL-bounded resume token instead of a user.
func (o *Orchestrator) Provision(ctx context.Context, input ProvisionInput) (ProvisionResult, error) {
	org, err := o.orgs.GetOrCreate(ctx, input.OrgName, input.OrgSlug)
	if err != nil {
		return ProvisionResult{}, o.fail("organization", uuid.Nil, "", input.Email, err)
	}

	session, err := o.identity.SignUp(ctx, SignUpParams{
		Email:    input.Email,
		Password: input.Password,
		FullName: input.FullName,
	})
	if err != nil {
		return ProvisionResult{}, o.fail("sign-up", org.ID, "", input.Email, err)
	}

	facts, err := o.payments.Resolve(ctx, input.CheckoutSessionRef)
	if err != nil {
		return ProvisionResult{}, o.fail("payment-facts", org.ID, "", input.Email, err)
	}

	sub, err := o.subs.Upsert(ctx, org.ID, input.PackageID, facts)
	if err != nil {
		return ProvisionResult{}, o.fail("subscription", org.ID, facts.SubscriptionID, input.Email, err)
	}

	o.finalizeStatus(ctx, &org)

	result := ProvisionResult{Org: org, Subscription: sub}

	if session == nil {
		token, err := o.tokens.Encode(ResumptionContext{
			Email:           input.Email,
			OrgID:           org.ID,
			SubscriptionID:  facts.SubscriptionID,
			PackageID:       input.PackageID,
			BillingInterval: facts.Interval,
			CreatedAt:       o.clock.Now().UTC(),
		})
		if err != nil {
			return ProvisionResult{}, o.fail("pause", org.ID, facts.SubscriptionID, input.Email, err)
		}

		o.logger.Info("saga paused awaiting identity confirmation",
			zap.String("org_id", org.ID.String()),
			zap.String("subscription_id", facts.SubscriptionID),
		)
		result.Paused = true
		result.ResumeToken = token
		return result, nil
	}

	user, err := o.users.Reconcile(ctx, ReconcileInput{
		AuthID:   session.AuthID,
		Email:    input.Email,
		FullName: input.FullName,
		Role:     DefaultRole,
		OrgID:    org.ID,
	})
	if err != nil {
		return ProvisionResult{}, o.fail("identity", org.ID, facts.SubscriptionID, input.Email, err)
	}

	o.logger.Info("saga completed",
		zap.String("org_id", org.ID.String()),
		zap.String("subscription_id", sub.StripeSubscriptionID),
		zap.String("user_id", user.ID.String()),
	)
	result.User = &user
	return result, nil
}

// Resume finishes a paused saga once the caller holds an active session.
// An expired or tampered token fails before any store access.
func (o *Orchestrator) Resume(ctx context.Context, token, authID string) (ProvisionResult, error) {
	rc, err := o.tokens.Decode(token)
	if err != nil {
		return ProvisionResult{}, o.fail("resume", uuid.Nil, "", "", err)
	}

	o.logger.Info("saga resumed",
		zap.String("org_id", rc.OrgID.String()),
		zap.String("subscription_id", rc.SubscriptionID),
	)

	user, err := o.users.Reconcile(ctx, ReconcileInput{
		AuthID: authID,
		Email:  rc.Email,
		Role:   DefaultRole,
		OrgID:  rc.OrgID,
	})
	if err != nil {
		return ProvisionResult{}, o.fail("identity", rc.OrgID, rc.SubscriptionID, rc.Email, err)
	}

	o.logger.Info("saga completed",
		zap.String("org_id", rc.OrgID.String()),
		zap.String("subscription_id", rc.SubscriptionID),
		zap.String("user_id", user.ID.String()),
	)
	return ProvisionResult{User: &user}, nil
}

// finalizeStatus marks the organization active. Failures are logged, not
// fatal: the subscription record is already the durable source of truth and
// a later run repairs the status.
func (o *Orchestrator) finalizeStatus(ctx context.Context, org *Organization) {
	if err := o.orgStore.UpdateStatus(ctx, org.ID, OrgStatusActive); err != nil {
		o.logger.Warn("organization status update failed, continuing",
			zap.String("org_id", org.ID.String()),
			zap.Error(err),
		)
		return
	}
	org.Status = OrgStatusActive
	o.logger.Info("organization activated", zap.String("org_id", org.ID.String()))
}

func (o *Orchestrator) fail(step string, orgID uuid.UUID, subscriptionID, email string, err error) error {
	o.logger.Error("saga failed",
		zap.String("step", step),
		zap.String("org_id", orgID.String()),
		zap.String("subscription_id", subscriptionID),
		zap.Error(err),
	)
	return &SupportError{Step: step, OrgID: orgID, SubscriptionID: subscriptionID, Email: email, Err: fmt.Errorf("step %s: %w", step, err)}
}
