package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/ledger"
	"github.com/mindhaven/peerlink/internal/models"
)

// CreateMeeting allocates a fresh meeting id and secret (requires
// authentication).
func CreateMeeting(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := l.Allocate(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create meeting"})
			return
		}
		c.JSON(http.StatusCreated, models.CreateMeetingResponse{
			MeetingID: m.ID,
			Secret:    m.Secret,
			ExpiresAt: m.ExpiresAt,
		})
	}
}

// ValidateMeeting checks a meeting id before joining (public). Expired
// and unknown ids get the same answer, so nothing leaks about whether an
// id ever existed.
func ValidateMeeting(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		meetingID := c.Param("meetingId")
		secret := c.Query("secret")

		m, err := l.Validate(c.Request.Context(), meetingID, secret)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				c.JSON(http.StatusNotFound, models.ValidateMeetingResponse{
					Valid:   false,
					Message: "Meeting is invalid or expired",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate meeting"})
			return
		}

		expiresAt := m.ExpiresAt
		c.JSON(http.StatusOK, models.ValidateMeetingResponse{
			Valid:     true,
			Message:   "Meeting is valid",
			ExpiresAt: &expiresAt,
		})
	}
}
