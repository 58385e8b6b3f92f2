package service

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// minPeriodYear is the sanity threshold for provider-supplied period bounds.
// Anything earlier is an epoch artifact, not a real billing period.
const minPeriodYear = 2020

// PaymentFactsResolver fetches and validates the facts of a completed
// checkout from the billing provider. Missing identifiers are fatal; missing
// period bounds are synthesized so provisioning never blocks on upstream
// data quality.
type PaymentFactsResolver struct {
	billing BillingClient
	clock   clock.Clock
	logger  *zap.Logger
}

// NewPaymentFactsResolver constructs a PaymentFactsResolver.
func NewPaymentFactsResolver(billing BillingClient, clk clock.Clock, logger *zap.Logger) *PaymentFactsResolver {
	if billing == nil {
		panic("billing client is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentFactsResolver{billing: billing, clock: clk, logger: logger}
}

// Resolve fetches the checkout session and its subscription, validates
// completeness, and returns normalized payment facts.
func (r *PaymentFactsResolver) Resolve(ctx context.Context, checkoutRef string) (PaymentFacts, error) {
	session, err := r.billing.CheckoutSession(ctx, checkoutRef)
	if err != nil {
		return PaymentFacts{}, fmt.Errorf("fetch checkout session %q: %w", checkoutRef, err)
	}

	if session.CustomerID == "" || session.SubscriptionID == "" {
		return PaymentFacts{}, fmt.Errorf("checkout session %q: %w", checkoutRef, ErrIncompletePaymentFacts)
	}

	sub, err := r.billing.Subscription(ctx, session.SubscriptionID)
	if err != nil {
		return PaymentFacts{}, fmt.Errorf("fetch subscription %q: %w", session.SubscriptionID, err)
	}

	facts := PaymentFacts{
		CustomerID:         session.CustomerID,
		SubscriptionID:     session.SubscriptionID,
		PriceID:            sub.PriceID,
		Status:             sub.Status,
		Interval:           deriveInterval(sub.Interval),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
	}

	r.sanitizePeriod(&facts)

	r.logger.Info("payment facts resolved",
		zap.String("customer_id", facts.CustomerID),
		zap.String("subscription_id", facts.SubscriptionID),
		zap.String("billing_interval", string(facts.Interval)),
		zap.Time("current_period_start", facts.CurrentPeriodStart),
		zap.Time("current_period_end", facts.CurrentPeriodEnd),
	)

	return facts, nil
}

// deriveInterval maps the provider's raw interval onto the two cadences we
// sell. Anything that is not yearly bills monthly.
func deriveInterval(raw string) BillingInterval {
	if raw == string(IntervalYear) {
		return IntervalYear
	}
	return IntervalMonth
}

// sanitizePeriod replaces absent or pre-threshold period bounds with
// computed ones: start = now, end = start + one interval unit.
func (r *PaymentFactsResolver) sanitizePeriod(facts *PaymentFacts) {
	startValid := !facts.CurrentPeriodStart.IsZero() && facts.CurrentPeriodStart.Year() >= minPeriodYear
	if !startValid {
		facts.CurrentPeriodStart = r.clock.Now().UTC()
		r.logger.Warn("period start missing or invalid, synthesized",
			zap.String("subscription_id", facts.SubscriptionID),
			zap.Time("current_period_start", facts.CurrentPeriodStart),
		)
	}

	endValid := !facts.CurrentPeriodEnd.IsZero() &&
		facts.CurrentPeriodEnd.Year() >= minPeriodYear &&
		facts.CurrentPeriodEnd.After(facts.CurrentPeriodStart)
	if !endValid {
		facts.CurrentPeriodEnd = addInterval(facts.CurrentPeriodStart, facts.Interval)
		r.logger.Warn("period end missing or invalid, synthesized",
			zap.String("subscription_id", facts.SubscriptionID),
			zap.Time("current_period_end", facts.CurrentPeriodEnd),
		)
	}
}

func addInterval(t time.Time, interval BillingInterval) time.Time {
	if interval == IntervalYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
