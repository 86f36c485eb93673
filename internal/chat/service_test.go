package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/models"
)

type fakeNotifier struct {
	pushed map[string][]models.MessageView
}

func (f *fakeNotifier) NotifyNewMessage(identity string, msg models.MessageView) {
	if f.pushed == nil {
		f.pushed = make(map[string][]models.MessageView)
	}
	f.pushed[identity] = append(f.pushed[identity], msg)
}

func setupService(t *testing.T, identities ...string) (*Service, *fakeNotifier) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	store := NewGormStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	for _, id := range identities {
		if err := db.Create(&models.Identity{ID: id}).Error; err != nil {
			t.Fatalf("failed to seed identity %s: %v", id, err)
		}
	}

	notifier := &fakeNotifier{}
	return NewService(store, store, notifier, zerolog.Nop()), notifier
}

func TestStartConversationSymmetricIdempotent(t *testing.T) {
	s, _ := setupService(t, "alice", "bob")
	ctx := context.Background()

	first, err := s.StartConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartConversation(alice,bob) error = %v", err)
	}
	second, err := s.StartConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("StartConversation(bob,alice) error = %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same conversation for both orders, got %s and %s", first.ID, second.ID)
	}
	if len(second.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(second.Participants))
	}
}

func TestStartConversationUnknownParticipant(t *testing.T) {
	s, _ := setupService(t, "alice")
	_, err := s.StartConversation(context.Background(), "alice", "nobody")
	if !errors.Is(err, errs.ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}

func TestStartConversationInvalidInput(t *testing.T) {
	s, _ := setupService(t, "alice")
	ctx := context.Background()

	if _, err := s.StartConversation(ctx, "alice", ""); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("empty participant: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.StartConversation(ctx, "alice", "alice"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("self conversation: expected ErrInvalidInput, got %v", err)
	}
}

func TestSendRejectsBlankText(t *testing.T) {
	s, _ := setupService(t, "alice", "bob")
	ctx := context.Background()
	conv, err := s.StartConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Send(ctx, conv.ID, "alice", text, models.MessageKindText); !errors.Is(err, errs.ErrInvalidInput) {
			t.Fatalf("text %q: expected ErrInvalidInput, got %v", text, err)
		}
	}

	page, err := s.ListMessages(ctx, conv.ID, "alice", 1, 10)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("expected no messages created, got %d", len(page.Messages))
	}
}

func TestSendPersistsThenPushes(t *testing.T) {
	s, notifier := setupService(t, "alice", "bob")
	ctx := context.Background()
	conv, err := s.StartConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}

	msg, err := s.Send(ctx, conv.ID, "alice", "  hello  ", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Text != "hello" {
		t.Fatalf("expected trimmed text, got %q", msg.Text)
	}
	if msg.Kind != models.MessageKindText {
		t.Fatalf("expected default kind text, got %q", msg.Kind)
	}
	if len(msg.ReadBy) != 1 || msg.ReadBy[0] != "alice" {
		t.Fatalf("expected readBy={alice}, got %v", msg.ReadBy)
	}

	if got := len(notifier.pushed["bob"]); got != 1 {
		t.Fatalf("expected 1 push to bob, got %d", got)
	}
	if len(notifier.pushed["alice"]) != 0 {
		t.Fatal("sender must not be pushed its own message")
	}
}

func TestMarkReadClearsUnread(t *testing.T) {
	s, _ := setupService(t, "alice", "bob")
	ctx := context.Background()
	conv, err := s.StartConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Send(ctx, conv.ID, "alice", fmt.Sprintf("msg %d", i), models.MessageKindText); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	unread, err := s.UnreadCount(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if unread != 3 {
		t.Fatalf("expected 3 unread for bob, got %d", unread)
	}

	if err := s.MarkRead(ctx, conv.ID, "bob"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	unread, err = s.UnreadCount(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected 0 unread after markRead, got %d", unread)
	}

	// The sender read its own messages implicitly; unaffected.
	unread, err = s.UnreadCount(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected 0 unread for sender, got %d", unread)
	}

	// Every prior message now carries bob in its read set.
	page, err := s.ListMessages(ctx, conv.ID, "bob", 1, 10)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	for _, m := range page.Messages {
		if len(m.ReadBy) != 2 {
			t.Fatalf("message %s: expected readBy of 2, got %v", m.ID, m.ReadBy)
		}
	}

	// Retry is harmless.
	if err := s.MarkRead(ctx, conv.ID, "bob"); err != nil {
		t.Fatalf("MarkRead() retry error = %v", err)
	}
}

func TestListMessagesChronologicalPaging(t *testing.T) {
	s, _ := setupService(t, "alice", "bob")
	ctx := context.Background()
	conv, err := s.StartConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.Send(ctx, conv.ID, "alice", fmt.Sprintf("msg %d", i), models.MessageKindText); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	// First page holds the newest two messages, in chronological order.
	page, err := s.ListMessages(ctx, conv.ID, "bob", 1, 2)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore {
		t.Fatalf("expected full page with more, got %d hasMore=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].Text != "msg 3" || page.Messages[1].Text != "msg 4" {
		t.Fatalf("expected [msg 3, msg 4], got [%s, %s]", page.Messages[0].Text, page.Messages[1].Text)
	}

	page, err = s.ListMessages(ctx, conv.ID, "bob", 3, 2)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(page.Messages) != 1 || page.HasMore {
		t.Fatalf("expected final partial page, got %d hasMore=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].Text != "msg 0" {
		t.Fatalf("expected oldest message last page, got %s", page.Messages[0].Text)
	}
}

func TestAccessControl(t *testing.T) {
	s, _ := setupService(t, "alice", "bob", "mallory")
	ctx := context.Background()
	conv, err := s.StartConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}

	if _, err := s.ListMessages(ctx, conv.ID, "mallory", 1, 10); !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := s.Send(ctx, conv.ID, "mallory", "hi", models.MessageKindText); !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if err := s.MarkRead(ctx, conv.ID, "mallory"); !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := s.ListMessages(ctx, "no-such-conversation", "alice", 1, 10); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversationsOrderAndUnread(t *testing.T) {
	s, _ := setupService(t, "alice", "bob", "carol")
	ctx := context.Background()

	withBob, err := s.StartConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}
	withCarol, err := s.StartConversation(ctx, "alice", "carol")
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}

	if _, err := s.Send(ctx, withCarol.ID, "carol", "hey alice", models.MessageKindText); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := s.Send(ctx, withBob.ID, "bob", "ping", models.MessageKindText); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := s.Send(ctx, withBob.ID, "bob", "ping again", models.MessageKindText); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	summaries, err := s.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(summaries))
	}
	if summaries[0].ID != withBob.ID {
		t.Fatal("expected most recently active conversation first")
	}
	if summaries[0].UnreadCount != 2 || summaries[1].UnreadCount != 1 {
		t.Fatalf("expected unread 2 and 1, got %d and %d", summaries[0].UnreadCount, summaries[1].UnreadCount)
	}
	if summaries[0].LastMessageText != "ping again" {
		t.Fatalf("expected last message summary, got %q", summaries[0].LastMessageText)
	}
}
