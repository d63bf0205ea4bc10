package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awarenow/phishsim/internal/models"
	"github.com/awarenow/phishsim/internal/token"
)

type RecipientRepository struct {
	db *sql.DB
}

func NewRecipientRepository(db *sql.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// Add inserts a recipient with a freshly issued token. When the
// (campaign, email) pair already exists the insert is a no-op and the
// existing row keeps its token; the return value reports whether a new
// row was created.
func (r *RecipientRepository) Add(campaignID, email string, now time.Time) (bool, error) {
	tok, err := token.New()
	if err != nil {
		return false, err
	}

	res, err := r.db.Exec(`
		INSERT INTO recipients (id, campaign_id, email, token, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id, email) DO NOTHING`,
		uuid.New().String(), campaignID, email, tok, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add recipient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID returns a recipient by ID, or nil if it does not exist.
func (r *RecipientRepository) GetByID(id string) (*models.Recipient, error) {
	return r.getOne(`
		SELECT id, campaign_id, email, token, sent_at, opened_at, clicked_at, fallen_at, created_at
		FROM recipients WHERE id = ?`, id)
}

// GetByToken resolves a tracking token to its recipient, or nil when
// the token was never issued.
func (r *RecipientRepository) GetByToken(tok string) (*models.Recipient, error) {
	return r.getOne(`
		SELECT id, campaign_id, email, token, sent_at, opened_at, clicked_at, fallen_at, created_at
		FROM recipients WHERE token = ?`, tok)
}

func (r *RecipientRepository) getOne(query string, arg any) (*models.Recipient, error) {
	rec := &models.Recipient{}
	var sentAt, openedAt, clickedAt, fallenAt sql.NullTime
	err := r.db.QueryRow(query, arg).Scan(
		&rec.ID, &rec.CampaignID, &rec.Email, &rec.Token,
		&sentAt, &openedAt, &clickedAt, &fallenAt, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.SentAt = timePtr(sentAt)
	rec.OpenedAt = timePtr(openedAt)
	rec.ClickedAt = timePtr(clickedAt)
	rec.FallenAt = timePtr(fallenAt)
	return rec, nil
}

// ListByCampaign returns all recipients of a campaign ordered by email.
func (r *RecipientRepository) ListByCampaign(campaignID string) ([]models.Recipient, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, email, token, sent_at, opened_at, clicked_at, fallen_at, created_at
		FROM recipients WHERE campaign_id = ?
		ORDER BY email`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []models.Recipient{}
	for rows.Next() {
		var rec models.Recipient
		var sentAt, openedAt, clickedAt, fallenAt sql.NullTime
		err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.Email, &rec.Token,
			&sentAt, &openedAt, &clickedAt, &fallenAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.SentAt = timePtr(sentAt)
		rec.OpenedAt = timePtr(openedAt)
		rec.ClickedAt = timePtr(clickedAt)
		rec.FallenAt = timePtr(fallenAt)
		recipients = append(recipients, rec)
	}

	return recipients, rows.Err()
}

// MarkSent records a successful delivery. Unlike the interaction
// timestamps this is written unconditionally: the dispatch loop only
// calls it after a transport success and skips recipients already sent.
func (r *RecipientRepository) MarkSent(id string, now time.Time) error {
	_, err := r.db.Exec(`UPDATE recipients SET sent_at = ? WHERE id = ? AND sent_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark recipient sent: %w", err)
	}
	return nil
}

// MarkOpened sets the first-open timestamp. The single-statement
// conditional update is atomic against concurrent identical hits:
// exactly one caller wins and gets true.
func (r *RecipientRepository) MarkOpened(id string, now time.Time) (bool, error) {
	return r.markFirst("opened_at", id, now)
}

// MarkClicked sets the first-click timestamp.
func (r *RecipientRepository) MarkClicked(id string, now time.Time) (bool, error) {
	return r.markFirst("clicked_at", id, now)
}

// MarkFallen sets the first-fall timestamp.
func (r *RecipientRepository) MarkFallen(id string, now time.Time) (bool, error) {
	return r.markFirst("fallen_at", id, now)
}

func (r *RecipientRepository) markFirst(column, id string, now time.Time) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE recipients SET `+column+` = ? WHERE id = ? AND `+column+` IS NULL`,
		now, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Funnel computes the campaign's funnel counters in one pass.
func (r *RecipientRepository) Funnel(campaignID string) (*models.FunnelReport, error) {
	report := &models.FunnelReport{CampaignID: campaignID}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(sent_at),
			COUNT(opened_at),
			COUNT(clicked_at),
			COUNT(fallen_at),
			COALESCE(SUM(CASE WHEN opened_at IS NULL AND clicked_at IS NULL AND fallen_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM recipients WHERE campaign_id = ?`, campaignID,
	).Scan(&report.Total, &report.Sent, &report.Opened, &report.Clicked, &report.Fallen, &report.NoAction)
	if err != nil {
		return nil, fmt.Errorf("failed to compute funnel: %w", err)
	}
	return report, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
