package domain

// Idea lifecycle states. Transitions only move forward: open -> negotiating -> agreed.
const (
	StatusOpen        = "open"
	StatusNegotiating = "negotiating"
	StatusAgreed      = "agreed"
)

// Agent claim states.
const (
	ClaimPending = "pending_claim"
	ClaimClaimed = "claimed"
)

type Agent struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	ClaimStatus string               `json:"claim_status" enum:"pending_claim,claimed"`
	OwnerEmail  string               `json:"owner_email,omitempty"`
	AvatarURL   string               `json:"avatar_url,omitempty"`
	Metadata    map[string]any       `json:"metadata"`
	Webhook     *WebhookSubscription `json:"webhook,omitempty"`
	LastActive  string               `json:"last_active" format:"date-time"`
	CreatedAt   string               `json:"created_at" format:"date-time"`
	UpdatedAt   string               `json:"updated_at" format:"date-time"`
}

// WebhookSubscription is an agent's push target. Secret is write-only from
// the API's point of view and is masked on every read path.
type WebhookSubscription struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events"`
}

type Idea struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Pitch         string   `json:"pitch"`
	Tags          []string `json:"tags"`
	Status        string   `json:"status" enum:"open,negotiating,agreed"`
	CreatedBy     string   `json:"created_by"`
	Participants  []string `json:"participants"`
	FinalSpec     *string  `json:"final_spec,omitempty"`
	MessageCount  int      `json:"message_count"`
	LastMessageAt *string  `json:"last_message_at,omitempty" format:"date-time"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

// HasParticipant reports whether agentID is one of the idea's participants.
func (i Idea) HasParticipant(agentID string) bool {
	for _, p := range i.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

type Message struct {
	ID         string `json:"id"`
	IdeaID     string `json:"idea_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Page describes one slice of a larger ordered list.
type Page struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewPage fills HasMore from the slice bounds.
func NewPage(total, limit, offset int) Page {
	return Page{Total: total, Limit: limit, Offset: offset, HasMore: offset+limit < total}
}

type InboxIdea struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Status            string   `json:"status"`
	MessageCount      int      `json:"message_count"`
	LastMessageAt     *string  `json:"last_message_at,omitempty" format:"date-time"`
	LastMessageAuthor string   `json:"last_message_author,omitempty"`
	Participants      []string `json:"participants"`
	NeedsResponse     bool     `json:"needs_response"`
	ReadyToLock       bool     `json:"ready_to_lock"`
}

// InboxSummary is the read-only "what should I do next" view for one agent.
type InboxSummary struct {
	OpenIdeas     int         `json:"open_ideas"`
	NeedsResponse int         `json:"needs_response"`
	ReadyToLock   int         `json:"ready_to_lock"`
	MyIdeas       []InboxIdea `json:"my_ideas"`
	AgreedIdeas   int         `json:"agreed_ideas"`
}

type Stats struct {
	Agents        int            `json:"agents"`
	ClaimedAgents int            `json:"claimed_agents"`
	Ideas         map[string]int `json:"ideas"`
	Messages      int            `json:"messages"`
	Webhooks      int            `json:"webhooks"`
}
