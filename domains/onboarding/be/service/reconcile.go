package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// IdentityReconciler converges on the single canonical user row for an
// authenticated identity. A row may come from this saga's own insert, a
// prior partial run, or the identity-provider trigger racing the insert; the
// store's uniqueness constraints decide who wins, and the loser finds and
// repairs the winner's row instead of erroring out.
//
// It never reports "not found" as success and never creates a second row
// for an identity or email that already has one.
type IdentityReconciler struct {
	users  UserStore
	clock  clock.Clock
	logger *zap.Logger

	// conflictRetryDelay is the wait before the single broadened-search
	// re-pass when a conflict fired but no row is visible yet.
	conflictRetryDelay time.Duration
}

// NewIdentityReconciler constructs an IdentityReconciler. A non-positive
// retryDelay falls back to 300ms.
func NewIdentityReconciler(users UserStore, clk clock.Clock, logger *zap.Logger, retryDelay time.Duration) *IdentityReconciler {
	if users == nil {
		panic("user store is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryDelay <= 0 {
		retryDelay = 300 * time.Millisecond
	}
	return &IdentityReconciler{users: users, clock: clk, logger: logger, conflictRetryDelay: retryDelay}
}

// lookupStrategy is one step of the broadened conflict search. Strategies
// run in order and the first hit wins.
type lookupStrategy struct {
	name string
	find func(ctx context.Context, authID, email string) (UserRecord, error)
}

func (r *IdentityReconciler) strategies() []lookupStrategy {
	return []lookupStrategy{
		{name: "auth_id", find: func(ctx context.Context, authID, _ string) (UserRecord, error) {
			return r.users.FindByAuthID(ctx, authID)
		}},
		{name: "email_exact", find: func(ctx context.Context, _, email string) (UserRecord, error) {
			return r.users.FindByEmail(ctx, email)
		}},
		{name: "email_fold", find: func(ctx context.Context, _, email string) (UserRecord, error) {
			return r.users.FindByEmailFold(ctx, email)
		}},
		{name: "any_key", find: func(ctx context.Context, authID, email string) (UserRecord, error) {
			return r.users.FindByAnyKey(ctx, authID, email)
		}},
	}
}

// ReconcileInput identifies the authenticated principal being adopted into
// an organization.
type ReconcileInput struct {
	AuthID   string
	Email    string
	FullName string
	Role     string
	OrgID    uuid.UUID
}

// Reconcile resolves the canonical user row for the input's identity,
// creating it when genuinely absent, and ensures the row is bound to the
// expected organization.
func (r *IdentityReconciler) Reconcile(ctx context.Context, input ReconcileInput) (UserRecord, error) {
	authID := input.AuthID
	if authID == "" {
		return UserRecord{}, errors.New("auth id is required")
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return UserRecord{}, errors.New("email is required")
	}
	orgID := input.OrgID

	// Fast path: the row already carries our identity reference.
	user, err := r.users.FindByAuthID(ctx, authID)
	if err == nil {
		r.logger.Info("user resolved by auth reference", zap.String("user_id", user.ID.String()))
		return r.ensureOrg(ctx, user, orgID)
	}
	if !errors.Is(err, ErrNotFound) {
		return UserRecord{}, fmt.Errorf("lookup user by auth id: %w", err)
	}

	// A row with our email but another (or no) identity reference predates
	// this sign-in; adopt the current identity into it.
	user, err = r.users.FindByEmail(ctx, email)
	if err == nil {
		user, err = r.adoptIdentity(ctx, user, authID)
		if err != nil {
			return UserRecord{}, err
		}
		return r.ensureOrg(ctx, user, orgID)
	}
	if !errors.Is(err, ErrNotFound) {
		return UserRecord{}, fmt.Errorf("lookup user by email: %w", err)
	}

	user, err = r.users.Create(ctx, CreateUserParams{
		AuthID:   authID,
		Email:    email,
		FullName: input.FullName,
		Role:     input.Role,
		OrgID:    orgID,
	})
	if err == nil {
		r.logger.Info("user created",
			zap.String("user_id", user.ID.String()),
			zap.String("org_id", orgID.String()),
		)
		return user, nil
	}
	if !errors.Is(err, ErrConflict) {
		return UserRecord{}, fmt.Errorf("create user: %w", err)
	}

	r.logger.Info("user insert lost uniqueness race, searching for winning row",
		zap.String("email", email),
	)
	return r.resolveConflict(ctx, authID, email, orgID)
}

// resolveConflict runs the broadened search after a uniqueness conflict.
// The conflict proves a row exists; a transient read-after-write lag may
// still hide it, so the whole pass is retried once after a short delay
// before declaring the state unrecoverable.
func (r *IdentityReconciler) resolveConflict(ctx context.Context, authID, email string, orgID uuid.UUID) (UserRecord, error) {
	var lookupErrs *multierror.Error

	for pass := 0; pass < 2; pass++ {
		if pass > 0 {
			r.logger.Warn("conflict row not visible yet, retrying broadened search",
				zap.String("email", email),
				zap.Duration("delay", r.conflictRetryDelay),
			)
			r.clock.Sleep(r.conflictRetryDelay)
		}

		for _, strategy := range r.strategies() {
			user, err := strategy.find(ctx, authID, email)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				// A transient read failure must not mask a later strategy's hit.
				lookupErrs = multierror.Append(lookupErrs, fmt.Errorf("strategy %s: %w", strategy.name, err))
				r.logger.Warn("lookup strategy failed, continuing",
					zap.String("strategy", strategy.name),
					zap.Error(err),
				)
				continue
			}

			r.logger.Info("reconciliation strategy matched",
				zap.String("strategy", strategy.name),
				zap.String("user_id", user.ID.String()),
			)

			user, err = r.adoptIdentity(ctx, user, authID)
			if err != nil {
				return UserRecord{}, err
			}
			return r.ensureOrg(ctx, user, orgID)
		}
	}

	// The conflict proved the row exists, yet no strategy can see it.
	// Repeated occurrence is an infrastructure health signal.
	err := fmt.Errorf("uniqueness conflict for %s but no row found by any strategy: %w", email, ErrUnrecoverableIdentity)
	if lookupErrs != nil {
		err = multierror.Append(lookupErrs, err).ErrorOrNil()
	}
	r.logger.Error("identity reconciliation unrecoverable, manual intervention required",
		zap.String("email", email),
		zap.Error(err),
	)
	return UserRecord{}, err
}

// adoptIdentity repairs the row's identity reference when it differs from
// the current sign-in. The existing row is canonical; the reference is not.
func (r *IdentityReconciler) adoptIdentity(ctx context.Context, user UserRecord, authID string) (UserRecord, error) {
	if user.AuthID != nil && *user.AuthID == authID {
		return user, nil
	}

	updated, err := r.users.UpdateAuthID(ctx, user.ID, authID)
	if err != nil {
		return UserRecord{}, fmt.Errorf("repair auth reference on user %s: %w", user.ID, err)
	}

	r.logger.Info("user auth reference repaired",
		zap.String("user_id", user.ID.String()),
	)
	return updated, nil
}

// ensureOrg binds the row to the expected organization. A row already bound
// to a different organization is a policy violation, never silently
// overwritten.
func (r *IdentityReconciler) ensureOrg(ctx context.Context, user UserRecord, orgID uuid.UUID) (UserRecord, error) {
	if orgID == uuid.Nil {
		return user, nil
	}

	if user.OrgID != nil {
		if *user.OrgID != orgID {
			return UserRecord{}, fmt.Errorf(
				"user %s belongs to org %s, expected %s: %w",
				user.ID, *user.OrgID, orgID, ErrOrgMismatch,
			)
		}
		return user, nil
	}

	updated, err := r.users.AssignOrg(ctx, user.ID, orgID)
	if err != nil {
		return UserRecord{}, fmt.Errorf("assign org %s to user %s: %w", orgID, user.ID, err)
	}

	r.logger.Info("user assigned to organization",
		zap.String("user_id", user.ID.String()),
		zap.String("org_id", orgID.String()),
	)
	return updated, nil
}
