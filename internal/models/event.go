package models

import "time"

// EventType enumerates the tracked recipient interactions.
type EventType string

const (
	EventOpen  EventType = "open"
	EventClick EventType = "click"
	EventFall  EventType = "fall"
)

// Event is one raw tracking interaction. Events are append-only: every
// hit is logged even when the recipient's first-occurrence timestamp
// was already set by an earlier hit.
type Event struct {
	ID          int64     `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	RecipientID string    `json:"recipient_id"`
	Type        EventType `json:"type"`
	TargetURL   string    `json:"target_url,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
