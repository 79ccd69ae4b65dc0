package memory

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Well-known entry categories written by the funnel engine.
const (
	CategoryStage           = "funnel_stage"
	CategoryStageTransition = "stage_transition"
	CategoryPurchase        = "purchase"
	CategoryOfferResponse   = "offer_response"
	CategoryActiveUpsell    = "active_upsell"
	CategoryActiveDownsell  = "active_downsell"
	CategoryUpsellRejected  = "upsell_rejected"
	CategoryLastInteraction = "last_interaction"
	CategorySupportFlag     = "support_flag"
)

// ErrNotFound is returned when no entry exists for the requested category.
var ErrNotFound = errors.New("memory: entry not found")

// Message is one turn of a conversation's history.
type Message struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Entry is a named memory fact attached to a conversation. Values are opaque
// strings; callers JSON-encode structured payloads.
type Entry struct {
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageFilter narrows GetRecent results.
type MessageFilter struct {
	Role string
}

// EntryFilter narrows GetAll results.
type EntryFilter struct {
	Category string
}

// Store is the durable conversation memory contract: ordered message history
// plus a bag of versioned key/value facts per conversation. The store does not
// interpret funnel semantics.
type Store interface {
	Append(ctx context.Context, conversationID string, msg Message) error
	GetRecent(ctx context.Context, conversationID string, limit int, filter MessageFilter) ([]Message, error)
	SetValue(ctx context.Context, conversationID, key, value, category string) error
	GetLatest(ctx context.Context, conversationID, category string) (*Entry, error)
	GetAll(ctx context.Context, conversationID string, filter EntryFilter) ([]Entry, error)
	Delete(ctx context.Context, conversationID, key, category string) error
}
