package models

import "time"

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCompleted Status = "completed"
)

// CanTransitionTo reports whether moving to next is a legal lifecycle
// step. The lifecycle only moves forward: draft -> published -> completed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusPublished
	case StatusPublished:
		return next == StatusCompleted
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusCompleted:
		return true
	}
	return false
}

// Campaign represents one phishing-simulation run.
type Campaign struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Status        Status     `json:"status"`
	Sender        string     `json:"sender"`
	TemplateID    string     `json:"template_id"`
	GroupID       string     `json:"group_id"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Expired reports whether the campaign is past its end date at the
// given instant, or already completed.
func (c *Campaign) Expired(now time.Time) bool {
	if c.Status == StatusCompleted {
		return true
	}
	return c.EndsAt != nil && !now.Before(*c.EndsAt)
}

// CampaignListFilter filters campaign listings.
type CampaignListFilter struct {
	Status Status
	Search string
	Limit  int
	Offset int
}
