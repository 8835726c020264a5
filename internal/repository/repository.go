package repository

import (
	"context"

	"github.com/m2tx/chat_relay/internal/model"
)

// ConversationRepository holds the message history of every live conversation.
// None of its operations can fail.
type ConversationRepository interface {
	// Get returns the stored history for conversationID.
	// Returns an empty, non-nil slice if the conversation does not exist.
	Get(conversationID string) []model.Message

	// Set replaces any previously stored history for conversationID.
	Set(conversationID string, history []model.Message)

	// Append adds messages to the end of the history for conversationID,
	// creating the conversation if needed, and returns the resulting history.
	Append(conversationID string, messages ...model.Message) []model.Message

	// Delete removes the history for conversationID.
	// Is a no-op if the conversation does not exist.
	Delete(conversationID string)
}

// TranscriptArchive records completed exchanges. It is write-only: nothing
// served by this process is ever read back from it.
type TranscriptArchive interface {
	Record(ctx context.Context, exchange model.Exchange) error
}
