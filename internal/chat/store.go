package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/models"
)

// Store is the persistence surface the delivery engine depends on. It
// never exposes storage internals.
type Store interface {
	// FindOrCreateConversation returns the one conversation for an
	// unordered identity pair, creating it on first contact.
	FindOrCreateConversation(ctx context.Context, a, b string) (*models.Conversation, error)

	// ConversationByID loads a conversation with its participants, or
	// errs.ErrNotFound.
	ConversationByID(ctx context.Context, id string) (*models.Conversation, error)

	// ConversationsFor lists an identity's conversations, most recent
	// activity first.
	ConversationsFor(ctx context.Context, identity string) ([]models.Conversation, error)

	// CountUnread counts messages in a conversation not authored by and
	// not yet read by the identity.
	CountUnread(ctx context.Context, conversationID, identity string) (int64, error)

	// InsertMessage durably stores a message, records the sender's
	// implicit read receipt, and refreshes the conversation summary,
	// atomically.
	InsertMessage(ctx context.Context, msg *models.Message) error

	// ListMessages returns one page, newest first, plus a has-more flag.
	ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, bool, error)

	// ReadsFor maps message ids to the identities that have read them.
	ReadsFor(ctx context.Context, messageIDs []string) (map[string][]string, error)

	// MarkRead adds the identity to every unread message in the
	// conversation and advances its last-read watermark. Idempotent.
	MarkRead(ctx context.Context, conversationID, identity string, at time.Time) error
}

// Directory answers whether an identity exists in the external user
// store. The delivery engine consults it before first contact.
type Directory interface {
	IdentityExists(ctx context.Context, identity string) (bool, error)
}

// GormStore implements Store and Directory over a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the chat tables.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(
		&models.Identity{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
	)
}

// IdentityExists reports whether the identity is known.
func (s *GormStore) IdentityExists(ctx context.Context, identity string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Identity{}).Where("id = ?", identity).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check identity: %w", err)
	}
	return n > 0, nil
}

// FindOrCreateConversation is idempotent and symmetric in its arguments:
// the pair key normalizes (a,b) and (b,a) to the same row, and a unique
// index makes concurrent first contact converge on one conversation.
func (s *GormStore) FindOrCreateConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	key := models.PairKey(a, b)

	conv, err := s.conversationByPairKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	created := models.Conversation{
		ID:        uuid.New().String(),
		PairKey:   key,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []models.ConversationParticipant{
			{IdentityID: a, JoinedAt: now, LastReadAt: now},
			{IdentityID: b, JoinedAt: now, LastReadAt: now},
		},
	}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		// Lost the race to a concurrent first contact; the winner's row
		// is the conversation.
		if existing, ferr := s.conversationByPairKey(ctx, key); ferr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &created, nil
}

func (s *GormStore) conversationByPairKey(ctx context.Context, key string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Preload("Participants").Where("pair_key = ?", key).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

// ConversationByID loads a conversation with participants.
func (s *GormStore) ConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

// ConversationsFor lists conversations by most recent activity.
func (s *GormStore) ConversationsFor(ctx context.Context, identity string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Participants").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.identity_id = ?", identity).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// CountUnread counts messages not authored by and not read by identity.
func (s *GormStore) CountUnread(ctx context.Context, conversationID, identity string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, identity).
		Where("NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.identity_id = ?)", identity).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// InsertMessage stores the message, the sender's read receipt, and the
// conversation summary in one transaction. A failure leaves no partial
// state, so nothing unpersisted can ever be announced.
func (s *GormStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		read := models.MessageRead{
			MessageID:  msg.ID,
			IdentityID: msg.SenderID,
			ReadAt:     msg.CreatedAt,
		}
		if err := tx.Create(&read).Error; err != nil {
			return fmt.Errorf("insert sender read receipt: %w", err)
		}
		at := msg.CreatedAt
		err := tx.Model(&models.Conversation{}).Where("id = ?", msg.ConversationID).Updates(map[string]any{
			"last_message_text":      models.Summarize(msg.Text),
			"last_message_sender_id": msg.SenderID,
			"last_message_at":        &at,
			"updated_at":             msg.CreatedAt,
		}).Error
		if err != nil {
			return fmt.Errorf("update conversation summary: %w", err)
		}
		return nil
	})
}

// ListMessages pages newest-first by persistence order.
func (s *GormStore) ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, bool, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize + 1).
		Find(&msgs).Error
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	hasMore := len(msgs) > pageSize
	if hasMore {
		msgs = msgs[:pageSize]
	}
	return msgs, hasMore, nil
}

// ReadsFor loads read receipts for a batch of messages.
func (s *GormStore) ReadsFor(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var reads []models.MessageRead
	err := s.db.WithContext(ctx).Where("message_id IN ?", messageIDs).Find(&reads).Error
	if err != nil {
		return nil, fmt.Errorf("load read receipts: %w", err)
	}
	for _, r := range reads {
		out[r.MessageID] = append(out[r.MessageID], r.IdentityID)
	}
	return out, nil
}

// MarkRead inserts receipts for everything the identity has not read and
// advances the watermark. Safe to retry: duplicate receipts are ignored.
func (s *GormStore) MarkRead(ctx context.Context, conversationID, identity string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var unreadIDs []string
		err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ?", conversationID, identity).
			Where("NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = messages.id AND mr.identity_id = ?)", identity).
			Pluck("id", &unreadIDs).Error
		if err != nil {
			return fmt.Errorf("find unread messages: %w", err)
		}

		if len(unreadIDs) > 0 {
			reads := make([]models.MessageRead, 0, len(unreadIDs))
			for _, id := range unreadIDs {
				reads = append(reads, models.MessageRead{MessageID: id, IdentityID: identity, ReadAt: at})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error; err != nil {
				return fmt.Errorf("insert read receipts: %w", err)
			}
		}

		err = tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND identity_id = ?", conversationID, identity).
			Update("last_read_at", at).Error
		if err != nil {
			return fmt.Errorf("advance read watermark: %w", err)
		}
		return nil
	})
}
