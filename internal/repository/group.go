package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awarenow/phishsim/internal/models"
)

type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create creates a new group.
func (r *GroupRepository) Create(g *models.Group) error {
	g.ID = uuid.New().String()
	g.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(`INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)`,
		g.ID, g.Name, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetByID returns a group by ID, or nil if it does not exist.
func (r *GroupRepository) GetByID(id string) (*models.Group, error) {
	g := &models.Group{}
	err := r.db.QueryRow(`SELECT id, name, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// List returns all groups.
func (r *GroupRepository) List() ([]models.Group, error) {
	rows, err := r.db.Query(`SELECT id, name, created_at FROM groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []models.Group{}
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// AddMember adds a member to a group. Re-adding an existing address
// updates the name instead of failing.
func (r *GroupRepository) AddMember(m *models.Member) error {
	m.ID = uuid.New().String()
	m.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO group_members (id, group_id, email, name, disabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, email) DO UPDATE SET
			name = excluded.name,
			disabled = excluded.disabled`,
		m.ID, m.GroupID, m.Email, m.Name, m.Disabled, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// Members returns all members of a group.
func (r *GroupRepository) Members(groupID string) ([]models.Member, error) {
	rows, err := r.db.Query(`
		SELECT id, group_id, email, name, disabled, created_at
		FROM group_members WHERE group_id = ?
		ORDER BY email`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		var name sql.NullString
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Email, &name, &m.Disabled, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Name = name.String
		members = append(members, m)
	}

	return members, rows.Err()
}

// AddressableEmails returns the de-duplicated addresses of enabled
// members with a usable send address, in stable order.
func (r *GroupRepository) AddressableEmails(groupID string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT email FROM group_members
		WHERE group_id = ? AND disabled = 0 AND email != ''
		ORDER BY email`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}

	return emails, rows.Err()
}
