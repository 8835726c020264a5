package agent

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m2tx/chat_relay/internal/completion"
	"github.com/m2tx/chat_relay/internal/model"
	"github.com/m2tx/chat_relay/internal/repository"
)

const archiveTimeout = 5 * time.Second

type Agent struct {
	completer              completion.Completer
	model                  string
	conversationRepository repository.ConversationRepository
	transcriptArchive      repository.TranscriptArchive
}

func New(completer completion.Completer, model string, conversationRepository repository.ConversationRepository) *Agent {
	return &Agent{
		completer:              completer,
		model:                  model,
		conversationRepository: conversationRepository,
	}
}

func NewWithArchive(completer completion.Completer, model string, conversationRepository repository.ConversationRepository, transcriptArchive repository.TranscriptArchive) *Agent {
	a := New(completer, model, conversationRepository)
	a.transcriptArchive = transcriptArchive
	return a
}

// Model returns the model identifier sent with every completion request.
func (a *Agent) Model() string {
	return a.model
}

func (a *Agent) GetConversation(conversationID string) []model.Message {
	return a.conversationRepository.Get(conversationID)
}

func (a *Agent) ClearConversation(conversationID string) {
	a.conversationRepository.Delete(conversationID)
}

// Stream records message as the next user turn of the conversation, relays the
// assistant reply to w as server-sent events and, once the reply is complete,
// appends it to the conversation.
//
// Every stream ends with exactly one terminal frame: "[DONE]" on success or the
// generic error frame on failure. On failure the partial reply is discarded and
// the returned error is a *completion.RemoteServiceError or an *IOWriteError.
func (a *Agent) Stream(ctx context.Context, w http.ResponseWriter, conversationID string, message string) error {
	requestID := uuid.NewString()
	started := time.Now()

	history := a.conversationRepository.Append(conversationID, model.NewUserMessage(message))

	events := newEventStream(w)
	events.open()

	log.Printf("agent: stream %s started conversation=%q turns=%d", requestID, conversationID, len(history))

	reply, err := a.relay(ctx, events, history)
	if err != nil {
		log.Printf("agent: stream %s failed conversation=%q: %v", requestID, conversationID, err)
		if sendErr := events.send(errorFrame); sendErr != nil {
			log.Printf("agent: stream %s: write error frame: %v", requestID, sendErr)
		}
		return err
	}

	a.conversationRepository.Append(conversationID, model.NewAssistantMessage(reply))
	a.archive(ctx, model.Exchange{
		ConversationID: conversationID,
		Model:          a.model,
		User:           message,
		Assistant:      reply,
	})

	if err := events.send(doneFrame); err != nil {
		log.Printf("agent: stream %s: write done frame: %v", requestID, err)
		return err
	}

	log.Printf("agent: stream %s completed conversation=%q chars=%d in %s", requestID, conversationID, len(reply), time.Since(started))
	return nil
}

// relay forwards every non-empty fragment to events and returns their concatenation.
func (a *Agent) relay(ctx context.Context, events *eventStream, history []model.Message) (string, error) {
	var reply strings.Builder

	for fragment, err := range a.completer.Stream(ctx, history) {
		if err != nil {
			return "", err
		}

		if fragment == "" {
			continue
		}

		reply.WriteString(fragment)
		if err := events.send(fragment); err != nil {
			return "", err
		}
	}

	return reply.String(), nil
}

func (a *Agent) archive(ctx context.Context, exchange model.Exchange) {
	if a.transcriptArchive == nil {
		return
	}

	// The client may already be gone; the archive write should still happen.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	if err := a.transcriptArchive.Record(ctx, exchange); err != nil {
		log.Printf("agent: warning: failed to archive exchange for %q: %v", exchange.ConversationID, err)
	}
}
