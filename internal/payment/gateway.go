// Package payment creates Stripe checkout sessions and turns successful
// payments into exactly one paid sale.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/kkkkikiki/pizzeria/internal/config"
)

// Session is the part of a checkout session the service relies on.
type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
	Paid            bool
	Metadata        map[string]string
}

// CheckoutParams describes a one-line payment for a total amount.
type CheckoutParams struct {
	Reference   string
	Description string
	Amount      decimal.Decimal
	Metadata    map[string]string
}

// Gateway is the payment provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error)
	GetCheckoutSession(ctx context.Context, id string) (*Session, error)
}

// StripeGateway creates and reads Stripe Checkout sessions.
type StripeGateway struct {
	sessions   session.Client
	currency   string
	successURL string
	cancelURL  string
}

// NewStripeGateway creates a gateway with its own API key
func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	return &StripeGateway{
		sessions:   session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		currency:   cfg.Currency,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

// Cents converts an amount to the smallest currency unit.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreateCheckoutSession opens a payment-mode session for p.Amount.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(p.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Description),
					},
					UnitAmount: stripe.Int64(Cents(p.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: p.Metadata,
	}
	params.Context = ctx

	cs, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sessionFromStripe(cs), nil
}

// GetCheckoutSession reads a session by id.
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := g.sessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	return sessionFromStripe(cs), nil
}

func sessionFromStripe(cs *stripe.CheckoutSession) *Session {
	s := &Session{
		ID:       cs.ID,
		URL:      cs.URL,
		Paid:     cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid || cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired,
		Metadata: cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		s.PaymentIntentID = cs.PaymentIntent.ID
	}
	return s
}
