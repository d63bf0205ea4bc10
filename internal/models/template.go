package models

import "time"

// Template is an email template used for simulation messages. The HTML
// body carries named placeholders; {{.tracking_url}} receives the
// per-recipient click URL at dispatch time.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
