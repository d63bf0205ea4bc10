package models

import "time"

// Group is a named set of staff members a campaign can target. The
// campaign audience is snapshotted from the group at publish time;
// later membership changes do not affect published campaigns.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is one entry of a group.
type Member struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}
