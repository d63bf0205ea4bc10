package repository

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/awarenow/phishsim/internal/models"
)

const maxUserAgentLen = 512

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append logs one raw tracking interaction. The event log is
// append-only; rows are never updated or deleted while the campaign
// exists.
func (r *EventRepository) Append(e *models.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.UserAgent = truncateRunes(e.UserAgent, maxUserAgentLen)

	res, err := r.db.Exec(`
		INSERT INTO events (campaign_id, recipient_id, type, target_url, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.CampaignID, e.RecipientID, e.Type, nullString(e.TargetURL), nullString(e.IPAddress), nullString(e.UserAgent), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// truncateRunes caps s at max bytes without splitting a multibyte
// rune at the cut point.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for i := max; i > 0; i-- {
		if utf8.RuneStart(s[i]) {
			return s[:i]
		}
	}
	return ""
}

// ListByRecipient returns a recipient's events, oldest first.
func (r *EventRepository) ListByRecipient(recipientID string) ([]models.Event, error) {
	return r.list(`
		SELECT id, campaign_id, recipient_id, type, target_url, ip_address, user_agent, created_at
		FROM events WHERE recipient_id = ?
		ORDER BY created_at, id`, recipientID)
}

// ListByCampaign returns a campaign's events, oldest first.
func (r *EventRepository) ListByCampaign(campaignID string) ([]models.Event, error) {
	return r.list(`
		SELECT id, campaign_id, recipient_id, type, target_url, ip_address, user_agent, created_at
		FROM events WHERE campaign_id = ?
		ORDER BY created_at, id`, campaignID)
}

func (r *EventRepository) list(query string, arg any) ([]models.Event, error) {
	rows, err := r.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var e models.Event
		var targetURL, ipAddress, userAgent sql.NullString
		err := rows.Scan(&e.ID, &e.CampaignID, &e.RecipientID, &e.Type, &targetURL, &ipAddress, &userAgent, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.TargetURL = targetURL.String
		e.IPAddress = ipAddress.String
		e.UserAgent = userAgent.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// CountByType returns the number of events of one type for a campaign.
func (r *EventRepository) CountByType(campaignID string, typ models.EventType) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE campaign_id = ? AND type = ?`,
		campaignID, typ,
	).Scan(&n)
	return n, err
}
