// Package events delivers negotiation events to agent webhook subscriptions.
package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

type Kind string

const (
	KindMessageCreated    Kind = "message.created"
	KindIdeaJoined        Kind = "idea.joined"
	KindIdeaLocked        Kind = "idea.locked"
	KindIdeaStatusChanged Kind = "idea.status_changed"
)

// Kinds lists every event kind an agent may subscribe to.
var Kinds = []Kind{KindMessageCreated, KindIdeaJoined, KindIdeaLocked, KindIdeaStatusChanged}

// Delivery headers.
const (
	HeaderEvent     = "X-IdeaForge-Event"
	HeaderDelivery  = "X-IdeaForge-Delivery"
	HeaderSignature = "X-IdeaForge-Signature"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKinds validates a subscription event list.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}
	out := make([]Kind, 0, len(names))
	for _, n := range names {
		k := Kind(strings.TrimSpace(n))
		if !k.Valid() {
			return nil, fmt.Errorf("unknown event %q", n)
		}
		out = append(out, k)
	}
	return out, nil
}

// Envelope is the JSON body POSTed to a subscriber.
type Envelope struct {
	Event     Kind           `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notifier accepts events for asynchronous delivery. Emit never blocks on
// delivery and never reports delivery outcome to the caller.
type Notifier interface {
	Emit(kind Kind, participantIDs []string, data map[string]any, excludeAgentID string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Kind, []string, map[string]any, string) {}
