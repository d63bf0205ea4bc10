package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/awarenow/phishsim/internal/db"
	"github.com/awarenow/phishsim/internal/models"
)

// setupTestDB creates a SQLite database with all migrations applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

// createTestCampaign inserts a draft campaign with template and group
// references and returns it.
func createTestCampaign(t *testing.T, conn *sql.DB) *models.Campaign {
	t.Helper()

	templates := NewTemplateRepository(conn)
	tmpl := &models.Template{
		Name:    "invoice-" + t.Name(),
		Subject: "Invoice overdue",
		HTML:    `<a href="{{.tracking_url}}">Pay now</a>`,
		Active:  true,
	}
	if err := templates.Create(tmpl); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}

	groups := NewGroupRepository(conn)
	group := &models.Group{Name: "staff-" + t.Name()}
	if err := groups.Create(group); err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	endsAt := time.Now().UTC().Add(48 * time.Hour)
	campaigns := NewCampaignRepository(conn)
	c := &models.Campaign{
		Title:      "Q3 awareness",
		Sender:     "it-support@corp.example",
		TemplateID: tmpl.ID,
		GroupID:    group.ID,
		EndsAt:     &endsAt,
	}
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}
