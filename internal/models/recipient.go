package models

import "time"

// Recipient is one addressable target within a campaign. The token is
// issued once at snapshot time and never changes; the four timestamps
// are first-occurrence markers, set at most once each.
type Recipient struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	Email      string     `json:"email"`
	Token      string     `json:"token"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	ClickedAt  *time.Time `json:"clicked_at,omitempty"`
	FallenAt   *time.Time `json:"fallen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Opened reports whether the tracking pixel was ever fetched.
func (r *Recipient) Opened() bool { return r.OpenedAt != nil }

// Clicked reports whether the embedded link was ever followed.
func (r *Recipient) Clicked() bool { return r.ClickedAt != nil }

// Fallen reports whether the recipient reached the landing page.
func (r *Recipient) Fallen() bool { return r.FallenAt != nil }
