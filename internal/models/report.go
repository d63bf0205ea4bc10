package models

// FunnelReport aggregates a campaign's recipient outcomes. NoAction
// counts recipients with none of the three interaction timestamps set.
type FunnelReport struct {
	CampaignID string `json:"campaign_id"`
	Total      int    `json:"total"`
	Sent       int    `json:"sent"`
	Opened     int    `json:"opened"`
	Clicked    int    `json:"clicked"`
	Fallen     int    `json:"fallen"`
	NoAction   int    `json:"no_action"`
}
