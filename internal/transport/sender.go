// Package transport carries messages between the assistant and the WhatsApp
// provider: an outbound Sender client and an inbound webhook translating
// provider payloads into fragments.
package transport

import "context"

// Sender is the outbound messaging contract.
type Sender interface {
	// SendText delivers one text message to a conversation.
	SendText(ctx context.Context, conversationID, text string) error
	// SendTypingState toggles the "typing..." indicator.
	SendTypingState(ctx context.Context, conversationID string, typing bool) error
	// SendMedia delivers a media asset by URL with an optional caption.
	SendMedia(ctx context.Context, conversationID, mediaURL, caption string) error
}
