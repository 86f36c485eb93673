package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mindhaven/peerlink/internal/chat"
	"github.com/mindhaven/peerlink/internal/middleware"
	"github.com/mindhaven/peerlink/internal/models"
)

// asIdentity substitutes the JWT middleware in tests.
func asIdentity(identity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.IdentityKey, identity)
		c.Next()
	}
}

func newChatRouter(t *testing.T, identity string, seed ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store := chat.NewGormStore(db)
	require.NoError(t, store.Migrate())
	for _, id := range seed {
		require.NoError(t, db.Create(&models.Identity{ID: id}).Error)
	}

	svc := chat.NewService(store, store, nil, zerolog.Nop())

	router := gin.New()
	grp := router.Group("/api/chat", asIdentity(identity))
	grp.POST("/conversations", StartConversation(svc))
	grp.GET("/conversations", ListConversations(svc))
	grp.GET("/conversations/:conversationId/messages", ListMessages(svc))
	grp.POST("/conversations/:conversationId/messages", SendMessage(svc))
	grp.PATCH("/conversations/:conversationId/read", MarkRead(svc))
	return router
}

func TestStartConversationEndpoint(t *testing.T) {
	router := newChatRouter(t, "alice", "alice", "bob")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/conversations", strings.NewReader(`{"participantId":"bob"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Conversation models.Conversation `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Conversation.ID)
	require.Len(t, resp.Conversation.Participants, 2)
}

func TestStartConversationUnknownCounterpart(t *testing.T) {
	router := newChatRouter(t, "alice", "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/conversations", strings.NewReader(`{"participantId":"ghost"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessageEndpoint(t *testing.T) {
	router := newChatRouter(t, "alice", "alice", "bob")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/conversations", strings.NewReader(`{"participantId":"bob"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	var created struct {
		Conversation models.Conversation `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	convID := created.Conversation.ID

	// Blank text is rejected before anything is stored.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/chat/conversations/"+convID+"/messages", strings.NewReader(`{"text":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/chat/conversations/"+convID+"/messages", strings.NewReader(`{"text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/conversations/"+convID+"/messages", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page models.MessagePage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 1)
	require.Equal(t, "hello", page.Messages[0].Text)
}
