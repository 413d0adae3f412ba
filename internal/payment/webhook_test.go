package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test_secret"

func signed(t *testing.T, payload string) string {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	}).Header
}

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "payment_status": "paid",
    "payment_intent": "pi_1",
    "metadata": {"sale_id": "sale-1", "sale_code": "P-ABC234"}
  }}
}`

func TestParseWebhookCompletedSession(t *testing.T) {
	typ, sig, err := ParseWebhook([]byte(completedEvent), signed(t, completedEvent), testSecret)
	require.NoError(t, err)
	assert.Equal(t, stripe.EventTypeCheckoutSessionCompleted, typ)
	require.NotNil(t, sig)
	assert.Equal(t, "cs_test_1", sig.SessionID)
	assert.Equal(t, "pi_1", sig.PaymentIntentID)
	assert.True(t, sig.Paid)
	assert.Equal(t, "sale-1", sig.Metadata[MetaSaleID])
	assert.Equal(t, SourceWebhook, sig.Source)
}

func TestParseWebhookUnpaidAsyncSession(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_test_2","object":"checkout.session","payment_status":"unpaid"}}}`

	_, sig, err := ParseWebhook([]byte(payload), signed(t, payload), testSecret)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.False(t, sig.Paid)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	payload := `{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`

	typ, sig, err := ParseWebhook([]byte(payload), signed(t, payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, stripe.EventType("charge.refunded"), typ)
	assert.Nil(t, sig)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	header := signed(t, completedEvent)

	_, _, err := ParseWebhook([]byte(completedEvent), header, "whsec_other")
	assert.True(t, errors.Is(err, ErrBadSignature))

	tampered := completedEvent + " "
	_, _, err = ParseWebhook([]byte(tampered), header, testSecret)
	assert.True(t, errors.Is(err, ErrBadSignature))

	_, _, err = ParseWebhook([]byte(completedEvent), "", testSecret)
	assert.True(t, errors.Is(err, ErrBadSignature))
}
