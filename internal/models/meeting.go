package models

import "time"

// Meeting is a time-boxed, randomly-keyed call-access record. It exists
// independently of any signaling room or connection.
type Meeting struct {
	ID        string    `json:"meetingId"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the meeting has passed its deadline.
func (m *Meeting) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// CreateMeetingResponse is the response for allocating a meeting.
type CreateMeetingResponse struct {
	MeetingID string    `json:"meetingId"`
	Secret    string    `json:"secret"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ValidateMeetingResponse reports whether a meeting id is usable. Expired
// and never-existed ids produce the same response.
type ValidateMeetingResponse struct {
	Valid     bool       `json:"valid"`
	Message   string     `json:"message,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
