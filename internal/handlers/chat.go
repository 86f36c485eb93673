package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mindhaven/peerlink/internal/chat"
	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/middleware"
	"github.com/mindhaven/peerlink/internal/models"
)

// StartConversation starts or returns the conversation between the
// caller and a counterpart.
func StartConversation(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.StartConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participantId is required"})
			return
		}

		conv, err := svc.StartConversation(c.Request.Context(), identityFrom(c), req.ParticipantID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation": conv})
	}
}

// ListConversations lists the caller's conversations with unread counts,
// most recent activity first.
func ListConversations(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := svc.ListConversations(c.Request.Context(), identityFrom(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": summaries})
	}
}

// ListMessages returns one chronological page of a conversation.
func ListMessages(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))

		result, err := svc.ListMessages(c.Request.Context(), c.Param("conversationId"), identityFrom(c), page, pageSize)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// SendMessage persists a message and announces it to connected
// participants.
func SendMessage(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		msg, err := svc.Send(c.Request.Context(), c.Param("conversationId"), identityFrom(c), req.Text, req.Kind)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}

// MarkRead marks everything in the conversation read for the caller.
func MarkRead(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.MarkRead(c.Request.Context(), c.Param("conversationId"), identityFrom(c)); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "read"})
	}
}

func identityFrom(c *gin.Context) string {
	return c.GetString(middleware.IdentityKey)
}

func abortWithError(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}
