package repository

import (
	"sync"

	"github.com/m2tx/chat_relay/internal/model"
)

// MemoryConversationRepository implements ConversationRepository with a
// process-local map. Conversations live until deleted or until the process exits.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string][]model.Message
}

// NewMemoryConversationRepository creates an empty MemoryConversationRepository.
func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string][]model.Message),
	}
}

func (r *MemoryConversationRepository) Get(conversationID string) []model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return clone(r.conversations[conversationID])
}

func (r *MemoryConversationRepository) Set(conversationID string, history []model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations[conversationID] = clone(history)
}

// Append is the single serialization point for concurrent chats on the same
// conversation: the read and the write happen under one lock.
func (r *MemoryConversationRepository) Append(conversationID string, messages ...model.Message) []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := append(clone(r.conversations[conversationID]), messages...)
	r.conversations[conversationID] = history

	return clone(history)
}

func (r *MemoryConversationRepository) Delete(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conversations, conversationID)
}

// Len reports how many conversations are currently held.
func (r *MemoryConversationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conversations)
}

func clone(history []model.Message) []model.Message {
	out := make([]model.Message, len(history))
	copy(out, history)
	return out
}
