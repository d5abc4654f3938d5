package trigger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Webhook is a trigger fed by external HTTP deliveries. It can verify a
// keyed-hash signature over the raw payload and keeps a log of received
// events.
type Webhook struct {
	*Trigger

	secret string

	mu       sync.Mutex
	received []ReceivedEvent
}

// ReceivedEvent is one delivery accepted by the webhook.
type ReceivedEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewWebhook creates a webhook trigger. An empty secret disables
// signature verification.
func NewWebhook(id, secret string) (*Webhook, error) {
	base, err := New(id, TypeWebhook, map[string]any{"secret": secret})
	if err != nil {
		return nil, err
	}
	return &Webhook{Trigger: base, secret: secret}, nil
}

// VerifySignature compares the hex HMAC-SHA256 digest of payload under
// the configured secret against the provided signature, in constant
// time. With no secret configured, verification is a deliberate no-op
// returning true.
func (w *Webhook) VerifySignature(payload []byte, signature string) bool {
	if w.secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Receive records the delivery in the event log and fires the trigger,
// returning the firing metadata without listener fan-out.
func (w *Webhook) Receive(payload map[string]any) *FireResult {
	now := time.Now()

	w.mu.Lock()
	w.received = append(w.received, ReceivedEvent{Timestamp: now, Payload: payload})
	result := w.fire(now, payload)
	w.mu.Unlock()

	return result
}

// ReceivedEvents returns a snapshot of the deliveries accepted so far.
func (w *Webhook) ReceivedEvents() []ReceivedEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ReceivedEvent(nil), w.received...)
}
