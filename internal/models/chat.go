package models

import (
	"strings"
	"time"
)

// MessageKind classifies a chat message.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindFile, MessageKindSystem:
		return true
	}
	return false
}

// Conversation is a durable two-party message thread. PairKey is the
// normalized participant pair, so (A,B) and (B,A) map to the same row.
type Conversation struct {
	ID                  string     `gorm:"primarykey;size:36" json:"id"`
	PairKey             string     `gorm:"size:130;uniqueIndex;not null" json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	LastMessageText     string     `gorm:"size:500" json:"lastMessageText,omitempty"`
	LastMessageSenderID string     `gorm:"size:64" json:"lastMessageSenderId,omitempty"`
	LastMessageAt       *time.Time `json:"lastMessageAt,omitempty"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants"`
}

// TableName returns the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant carries per-participant state, most importantly
// the last-read watermark that keeps "seen" rendering O(1).
type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;size:36" json:"-"`
	IdentityID     string    `gorm:"primaryKey;size:64;index" json:"identityId"`
	JoinedAt       time.Time `json:"joinedAt"`
	LastReadAt     time.Time `json:"lastReadAt"`
}

// TableName returns the table name for ConversationParticipant.
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// Message is immutable once created except for read receipts and edit
// metadata. Seq is the persistence-assigned order within a conversation;
// delivery order over the relay carries no ordering promise.
type Message struct {
	Seq            int64       `gorm:"primaryKey;autoIncrement" json:"-"`
	ID             string      `gorm:"size:36;uniqueIndex;not null" json:"id"`
	ConversationID string      `gorm:"size:36;index;not null" json:"conversationId"`
	SenderID       string      `gorm:"size:64;not null" json:"senderId"`
	Text           string      `gorm:"size:4000;not null" json:"text"`
	Kind           MessageKind `gorm:"size:16;not null;default:text" json:"kind"`
	Edited         bool        `json:"edited"`
	EditedAt       *time.Time  `json:"editedAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// MessageRead records that an identity has read a message. The sender is
// inserted at send time; other participants are added by markRead.
type MessageRead struct {
	MessageID  string    `gorm:"primaryKey;size:36" json:"-"`
	IdentityID string    `gorm:"primaryKey;size:64" json:"identityId"`
	ReadAt     time.Time `json:"readAt"`
}

// TableName returns the table name for MessageRead.
func (MessageRead) TableName() string {
	return "message_reads"
}

// Identity is a row in the external user store; only existence matters to
// this service.
type Identity struct {
	ID        string    `gorm:"primarykey;size:64" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the table name for Identity.
func (Identity) TableName() string {
	return "identities"
}

// PairKey normalizes an unordered identity pair into the conversation key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// MessageView is a message annotated with its read set for rendering.
type MessageView struct {
	Message
	ReadBy []string `json:"readBy"`
}

// ConversationSummary is a conversation annotated with the caller's
// unread count, as returned by the listing endpoint.
type ConversationSummary struct {
	Conversation
	UnreadCount int64 `json:"unreadCount"`
}

// MessagePage is one page of messages in chronological order.
type MessagePage struct {
	Messages []MessageView `json:"messages"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	HasMore  bool          `json:"hasMore"`
}

// StartConversationRequest is the request body for starting a chat.
type StartConversationRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Text string      `json:"text"`
	Kind MessageKind `json:"kind,omitempty"`
}

// Summarize truncates message text for the conversation preview.
func Summarize(text string) string {
	const max = 200
	text = strings.TrimSpace(text)
	if len(text) > max {
		return text[:max]
	}
	return text
}
