package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awarenow/phishsim/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign in draft status.
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.Status = models.StatusDraft
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO campaigns (id, title, status, sender, template_id, group_id, scheduled_date, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Status, c.Sender, nullString(c.TemplateID), nullString(c.GroupID), c.ScheduledDate, c.EndsAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil if it does not exist.
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	var templateID, groupID sql.NullString
	var scheduled, endsAt sql.NullTime
	err := r.db.QueryRow(`
		SELECT id, title, status, sender, template_id, group_id, scheduled_date, ends_at, created_at
		FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Status, &c.Sender, &templateID, &groupID, &scheduled, &endsAt, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.TemplateID = templateID.String
	c.GroupID = groupID.String
	if scheduled.Valid {
		c.ScheduledDate = &scheduled.Time
	}
	if endsAt.Valid {
		c.EndsAt = &endsAt.Time
	}
	return c, nil
}

// List returns campaigns with optional filtering, newest first.
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.Campaign, error) {
	query := `
		SELECT id, title, status, sender, template_id, group_id, scheduled_date, ends_at, created_at
		FROM campaigns WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		query += " AND (title LIKE ? OR sender LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		var c models.Campaign
		var templateID, groupID sql.NullString
		var scheduled, endsAt sql.NullTime
		err := rows.Scan(&c.ID, &c.Title, &c.Status, &c.Sender, &templateID, &groupID, &scheduled, &endsAt, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		c.TemplateID = templateID.String
		c.GroupID = groupID.String
		if scheduled.Valid {
			c.ScheduledDate = &scheduled.Time
		}
		if endsAt.Valid {
			c.EndsAt = &endsAt.Time
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, rows.Err()
}

// TransitionStatus atomically moves a campaign from one status to
// another. It returns false when the campaign was not in the expected
// status, which makes concurrent publish and sweep runs mutually
// exclusive without an explicit lock.
func (r *CampaignRepository) TransitionStatus(id string, from, to models.Status) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}

	res, err := r.db.Exec(`UPDATE campaigns SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition campaign status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpirePublished completes every published campaign whose end date has
// passed. Running it repeatedly, or concurrently, converges to the same
// state; the return value is the number of campaigns completed by this
// call.
func (r *CampaignRepository) ExpirePublished(now time.Time) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE campaigns SET status = ?
		WHERE status = ? AND ends_at IS NOT NULL AND ends_at <= ?`,
		models.StatusCompleted, models.StatusPublished, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire campaigns: %w", err)
	}
	return res.RowsAffected()
}

// Delete deletes a campaign; recipients and events cascade.
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
