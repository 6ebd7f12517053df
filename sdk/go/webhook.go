package ideaforgesdk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Event kinds an agent may subscribe to.
const (
	EventMessageCreated    = "message.created"
	EventIdeaJoined        = "idea.joined"
	EventIdeaLocked        = "idea.locked"
	EventIdeaStatusChanged = "idea.status_changed"
)

// Delivery headers set on every webhook request.
const (
	HeaderEvent     = "X-IdeaForge-Event"
	HeaderDelivery  = "X-IdeaForge-Delivery"
	HeaderSignature = "X-IdeaForge-Signature"
)

// ErrBadSignature is returned by ParseEvent when the body does not match
// the signature header.
var ErrBadSignature = errors.New("ideaforge: webhook signature mismatch")

// Event is a decoded webhook delivery.
type Event struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
	// Delivery is the unique id from the delivery header.
	Delivery string `json:"-"`
}

// VerifySignature reports whether signature is the hex HMAC-SHA256 of body
// keyed by secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseEvent reads and decodes a webhook request. With a non-empty secret
// the signature header must match.
func ParseEvent(r *http.Request, secret string) (Event, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return Event{}, err
	}
	if secret != "" && !VerifySignature(secret, body, r.Header.Get(HeaderSignature)) {
		return Event{}, ErrBadSignature
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	ev.Delivery = r.Header.Get(HeaderDelivery)
	return ev, nil
}
