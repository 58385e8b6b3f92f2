package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriptionWriterConfig tunes the write retry and the customer-id
// backfill. Zero values fall back to production defaults.
type SubscriptionWriterConfig struct {
	// RetryDelay is the wait before the single write retry.
	RetryDelay time.Duration
	// BackfillDelays are the waits before each backfill attempt.
	BackfillDelays []time.Duration
}

func (c SubscriptionWriterConfig) withDefaults() SubscriptionWriterConfig {
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if len(c.BackfillDelays) == 0 {
		c.BackfillDelays = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	}
	return c
}

// SubscriptionWriter records the subscription tied to an organization. A
// re-submitted record resolves by read verification against the external
// subscription id rather than erroring, so a full saga restart converges.
type SubscriptionWriter struct {
	subs   SubscriptionStore
	orgs   OrgStore
	clock  clock.Clock
	logger *zap.Logger
	cfg    SubscriptionWriterConfig

	backfills sync.WaitGroup
}

// NewSubscriptionWriter constructs a SubscriptionWriter.
func NewSubscriptionWriter(subs SubscriptionStore, orgs OrgStore, clk clock.Clock, logger *zap.Logger, cfg SubscriptionWriterConfig) *SubscriptionWriter {
	if subs == nil {
		panic("subscription store is required")
	}
	if orgs == nil {
		panic("org store is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionWriter{subs: subs, orgs: orgs, clock: clk, logger: logger, cfg: cfg.withDefaults()}
}

// Upsert creates the subscription record for orgID, treating "already
// exists with the same external id" as success. A mismatching external id is
// fatal: two different subscriptions are contending for one organization.
func (w *SubscriptionWriter) Upsert(ctx context.Context, orgID uuid.UUID, packageID string, facts PaymentFacts) (SubscriptionRecord, error) {
	if packageID == "" {
		return SubscriptionRecord{}, fmt.Errorf("org %s: %w", orgID, ErrMissingPackageReference)
	}

	params := CreateSubscriptionParams{
		OrgID:                orgID,
		StripeSubscriptionID: facts.SubscriptionID,
		StripePriceID:        facts.PriceID,
		PackageID:            packageID,
		BillingInterval:      facts.Interval,
		Status:               facts.Status,
		CurrentPeriodStart:   facts.CurrentPeriodStart,
		CurrentPeriodEnd:     facts.CurrentPeriodEnd,
	}

	rec, err := w.subs.Create(ctx, params)
	if err != nil {
		w.logger.Warn("subscription write failed, retrying once",
			zap.String("org_id", orgID.String()),
			zap.String("subscription_id", facts.SubscriptionID),
			zap.Error(err),
		)
		w.clock.Sleep(w.cfg.RetryDelay)
		rec, err = w.subs.Create(ctx, params)
	}

	if err != nil {
		if !errors.Is(err, ErrConflict) {
			return SubscriptionRecord{}, fmt.Errorf("create subscription for org %s: %w", orgID, err)
		}
		rec, err = w.verifyExisting(ctx, orgID, facts.SubscriptionID)
		if err != nil {
			return SubscriptionRecord{}, err
		}
	}

	w.logger.Info("subscription recorded",
		zap.String("org_id", orgID.String()),
		zap.String("subscription_id", rec.StripeSubscriptionID),
		zap.String("billing_interval", string(rec.BillingInterval)),
	)

	w.backfills.Add(1)
	go w.backfillCustomer(context.WithoutCancel(ctx), orgID, facts.CustomerID)

	return rec, nil
}

// verifyExisting resolves a write conflict by reading the organization's
// current subscription and comparing external ids.
func (w *SubscriptionWriter) verifyExisting(ctx context.Context, orgID uuid.UUID, stripeSubscriptionID string) (SubscriptionRecord, error) {
	existing, err := w.subs.FindByOrg(ctx, orgID)
	if err != nil {
		return SubscriptionRecord{}, fmt.Errorf("verify subscription for org %s: %w", orgID, err)
	}

	if existing.StripeSubscriptionID != stripeSubscriptionID {
		return SubscriptionRecord{}, fmt.Errorf(
			"org %s holds subscription %q, refusing to record %q: %w",
			orgID, existing.StripeSubscriptionID, stripeSubscriptionID, ErrSubscriptionMismatch,
		)
	}

	w.logger.Info("subscription write conflict verified as idempotent replay",
		zap.String("org_id", orgID.String()),
		zap.String("subscription_id", stripeSubscriptionID),
	)
	return existing, nil
}

// backfillCustomer persists the billing customer reference on the
// organization. Best effort: on exhaustion the billing webhook repairs it
// out of band.
func (w *SubscriptionWriter) backfillCustomer(ctx context.Context, orgID uuid.UUID, customerID string) {
	defer w.backfills.Done()

	var lastErr error
	for attempt, delay := range w.cfg.BackfillDelays {
		w.clock.Sleep(delay)
		lastErr = w.orgs.SetBillingCustomer(ctx, orgID, customerID)
		if lastErr == nil {
			w.logger.Info("billing customer reference persisted",
				zap.String("org_id", orgID.String()),
				zap.String("customer_id", customerID),
				zap.Int("attempt", attempt+1),
			)
			return
		}
	}

	w.logger.Error("billing customer backfill exhausted, deferring to webhook repair",
		zap.String("org_id", orgID.String()),
		zap.String("customer_id", customerID),
		zap.Error(lastErr),
	)
}

// Wait blocks until in-flight customer backfills finish. Used on shutdown
// and by tests.
func (w *SubscriptionWriter) Wait() {
	w.backfills.Wait()
}
