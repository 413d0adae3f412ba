// Package notify sends order and coupon messages to customers and stores.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kkkkikiki/pizzeria/internal/config"
)

// Message is one text message to one recipient.
type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Result is the delivery outcome for one recipient.
type Result struct {
	Recipient string `json:"recipient"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Notifier delivers a message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an HTTP notifier when a gateway is configured, otherwise a
// notifier that only logs.
func New(cfg config.SMSConfig) Notifier {
	if cfg.GatewayURL == "" {
		return LogNotifier{}
	}
	return NewHTTPNotifier(cfg)
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct{}

// Send logs msg.
func (LogNotifier) Send(_ context.Context, msg Message) error {
	log.Printf("SMS to %s: %s", msg.To, msg.Body)
	return nil
}

// HTTPNotifier posts messages as JSON to an SMS gateway.
type HTTPNotifier struct {
	client *http.Client
	url    string
	token  string
	sender string
}

// NewHTTPNotifier creates an HTTP notifier
func NewHTTPNotifier(cfg config.SMSConfig) *HTTPNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPNotifier{
		client: &http.Client{Timeout: timeout},
		url:    cfg.GatewayURL,
		token:  cfg.Token,
		sender: cfg.Sender,
	}
}

// Send posts msg to the gateway. Any non-2xx answer is an error.
func (n *HTTPNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(struct {
		From string `json:"from"`
		Message
	}{From: n.sender, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to encode sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}

// Dispatch sends every message and reports each recipient separately.
// Failures are logged and never stop the remaining sends.
func Dispatch(ctx context.Context, n Notifier, msgs []Message) []Result {
	results := make([]Result, 0, len(msgs))
	for _, msg := range msgs {
		if msg.To == "" {
			continue
		}
		r := Result{Recipient: msg.To, Delivered: true}
		if err := n.Send(ctx, msg); err != nil {
			log.Printf("stage=notify.send recipient=%s error: %v", msg.To, err)
			r.Delivered = false
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}
