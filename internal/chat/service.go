// Package chat implements the message delivery engine: conversation
// threads, read tracking, and best-effort live announcement of new
// messages to connected participants.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Notifier pushes a freshly persisted message to an identity's live
// connection, if any. Absence of a connection is not an error.
type Notifier interface {
	NotifyNewMessage(identity string, msg models.MessageView)
}

// Service is the chat delivery engine.
type Service struct {
	store     Store
	directory Directory
	notifier  Notifier
	log       zerolog.Logger
	now       func() time.Time
}

// NewService wires the engine. notifier may be nil (no live push).
func NewService(store Store, directory Directory, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		notifier:  notifier,
		log:       log.With().Str("component", "chat").Logger(),
		now:       time.Now,
	}
}

// StartConversation returns the single conversation for the caller and
// the counterpart, creating it on first contact. Symmetric in its
// arguments and idempotent.
func (s *Service) StartConversation(ctx context.Context, identity, participantID string) (*models.Conversation, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id is required", errs.ErrInvalidInput)
	}
	if participantID == identity {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", errs.ErrInvalidInput)
	}

	exists, err := s.directory.IdentityExists(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownParticipant, participantID)
	}

	return s.store.FindOrCreateConversation(ctx, identity, participantID)
}

// ListConversations returns the caller's conversations ordered by most
// recent activity, each annotated with the caller's unread count.
func (s *Service) ListConversations(ctx context.Context, identity string) ([]models.ConversationSummary, error) {
	convs, err := s.store.ConversationsFor(ctx, identity)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		unread, err := s.store.CountUnread(ctx, conv.ID, identity)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.ConversationSummary{Conversation: conv, UnreadCount: unread})
	}
	return summaries, nil
}

// ListMessages returns one page in chronological order after verifying
// the caller is a participant. Storage reads newest-first; the page is
// reversed for direct rendering.
func (s *Service) ListMessages(ctx context.Context, conversationID, identity string, page, pageSize int) (*models.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	if _, err := s.requireParticipant(ctx, conversationID, identity); err != nil {
		return nil, err
	}

	msgs, hasMore, err := s.store.ListMessages(ctx, conversationID, page, pageSize)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	reads, err := s.store.ReadsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.MessageView, len(msgs))
	for i, m := range msgs {
		// Reverse newest-first storage order to oldest-first.
		views[len(msgs)-1-i] = models.MessageView{Message: m, ReadBy: reads[m.ID]}
	}

	return &models.MessagePage{
		Messages: views,
		Page:     page,
		PageSize: pageSize,
		HasMore:  hasMore,
	}, nil
}

// Send persists a message and then announces it to every other
// participant's live connection. Persistence failure prevents any
// announcement; push failure is invisible to the sender.
func (s *Service) Send(ctx context.Context, conversationID, senderID, text string, kind models.MessageKind) (*models.MessageView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", errs.ErrInvalidInput)
	}
	if kind == "" {
		kind = models.MessageKindText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %q", errs.ErrInvalidInput, kind)
	}

	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Kind:           kind,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	view := models.MessageView{Message: *msg, ReadBy: []string{senderID}}
	if s.notifier != nil {
		for _, part := range conv.Participants {
			if part.IdentityID != senderID {
				s.notifier.NotifyNewMessage(part.IdentityID, view)
			}
		}
	}
	s.log.Debug().Str("conversation", conversationID).Str("sender", senderID).Msg("message sent")
	return &view, nil
}

// MarkRead adds the caller to the read set of every message it has not
// read and advances its watermark. Retry-safe.
func (s *Service) MarkRead(ctx context.Context, conversationID, identity string) error {
	if _, err := s.requireParticipant(ctx, conversationID, identity); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, conversationID, identity, s.now().UTC())
}

// UnreadCount reports the caller's unread total for one conversation.
func (s *Service) UnreadCount(ctx context.Context, conversationID, identity string) (int64, error) {
	if _, err := s.requireParticipant(ctx, conversationID, identity); err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, conversationID, identity)
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, identity string) (*models.Conversation, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, part := range conv.Participants {
		if part.IdentityID == identity {
			return conv, nil
		}
	}
	return nil, errs.ErrAccessDenied
}
