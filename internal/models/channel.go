package models

import "time"

// Channel is a group conversation. The admin is tracked as a role and is not
// part of Members.
type Channel struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	AdminID   string    `db:"admin_id" json:"admin_id"`
	Members   []string  `db:"-" json:"members"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether userID holds the admin role.
func (c Channel) IsAdmin(userID string) bool {
	return c.AdminID == userID
}

// HasParticipant treats the admin and members uniformly.
func (c Channel) HasParticipant(userID string) bool {
	if c.IsAdmin(userID) {
		return true
	}
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Participants returns the admin followed by the members.
func (c Channel) Participants() []string {
	out := make([]string, 0, len(c.Members)+1)
	out = append(out, c.AdminID)
	for _, id := range c.Members {
		if id != c.AdminID {
			out = append(out, id)
		}
	}
	return out
}

// LeaveOutcome describes what leaving a channel did to it.
type LeaveOutcome string

const (
	LeaveRemoved          LeaveOutcome = "removed"
	LeaveAdminTransferred LeaveOutcome = "admin_transferred"
	LeaveChannelDeleted   LeaveOutcome = "channel_deleted"
)

// LeaveResult is returned by a leave operation.
type LeaveResult struct {
	Outcome  LeaveOutcome
	NewAdmin string
	// Remaining holds the participants left after the operation.
	Remaining []string
}
