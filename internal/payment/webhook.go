package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrBadSignature is returned when a webhook payload fails verification.
var ErrBadSignature = errors.New("invalid stripe signature")

// ParseWebhook verifies payload against the Stripe-Signature header. It
// returns the event type and, for checkout completion events, the signal
// to reconcile; other verified events return a nil signal.
func ParseWebhook(payload []byte, header, secret string) (stripe.EventType, *Signal, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return event.Type, nil, nil
	}

	if event.Data == nil {
		return event.Type, nil, fmt.Errorf("event %s has no data", event.ID)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return event.Type, nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	s := sessionFromStripe(&cs)
	return event.Type, &Signal{
		SessionID:       s.ID,
		PaymentIntentID: s.PaymentIntentID,
		Paid:            s.Paid,
		Metadata:        s.Metadata,
		Source:          SourceWebhook,
	}, nil
}
