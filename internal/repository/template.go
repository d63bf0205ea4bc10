package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awarenow/phishsim/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template.
func (r *TemplateRepository) Create(t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO templates (id, name, subject, html, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subject, t.HTML, t.Active, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID, or nil if it does not exist.
func (r *TemplateRepository) GetByID(id string) (*models.Template, error) {
	t := &models.Template{}
	err := r.db.QueryRow(`
		SELECT id, name, subject, html, active, created_at, updated_at
		FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.Active, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns all templates, newest first.
func (r *TemplateRepository) List() ([]models.Template, error) {
	rows, err := r.db.Query(`
		SELECT id, name, subject, html, active, created_at, updated_at
		FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.Active, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// Update updates a template's content.
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE templates SET name = ?, subject = ?, html = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Subject, t.HTML, t.UpdatedAt, t.ID,
	)
	return err
}

// SetActive toggles whether the template can be used by new campaigns.
func (r *TemplateRepository) SetActive(id string, active bool) error {
	_, err := r.db.Exec(`UPDATE templates SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	return err
}
