package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/brightpath-hq/brightpath/domains/onboarding/be/service"
)

// StripeClient implements service.BillingClient against the Stripe API.
type StripeClient struct {
	api *client.API
}

// NewStripeClient constructs a client bound to the given secret key.
func NewStripeClient(apiKey string) (*StripeClient, error) {
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api}, nil
}

// CheckoutSession fetches a completed checkout session. Customer and
// subscription come back unexpanded, so only their ids are read.
func (c *StripeClient) CheckoutSession(ctx context.Context, ref string) (service.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.Get(ref, params)
	if err != nil {
		return service.CheckoutSession{}, fmt.Errorf("stripe checkout session %q: %w", ref, err)
	}

	out := service.CheckoutSession{}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	return out, nil
}

// Subscription fetches a subscription and flattens the first item's price
// and period bounds; Stripe keys the billing period by item.
func (c *StripeClient) Subscription(ctx context.Context, id string) (service.BillingSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return service.BillingSubscription{}, fmt.Errorf("stripe subscription %q: %w", id, err)
	}

	out := service.BillingSubscription{Status: string(sub.Status)}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
		if item.CurrentPeriodStart > 0 {
			out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}

	return out, nil
}

var _ service.BillingClient = (*StripeClient)(nil)
