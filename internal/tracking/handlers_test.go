package tracking

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/awarenow/phishsim/internal/campaign"
	"github.com/awarenow/phishsim/internal/db"
	"github.com/awarenow/phishsim/internal/models"
	"github.com/awarenow/phishsim/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type trackingFixture struct {
	conn      *sql.DB
	handlers  *Handlers
	server    *httptest.Server
	clock     *fakeClock
	campaign  *models.Campaign
	recipient *models.Recipient
}

func setupTracking(t *testing.T, completeOnFall bool) *trackingFixture {
	t.Helper()

	conn, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	templates := repository.NewTemplateRepository(conn)
	groups := repository.NewGroupRepository(conn)
	campaigns := repository.NewCampaignRepository(conn)
	recipients := repository.NewRecipientRepository(conn)

	tmpl := &models.Template{Name: "invoice", Subject: "Invoice", HTML: "<p>hi</p>", Active: true}
	if err := templates.Create(tmpl); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	group := &models.Group{Name: "staff"}
	if err := groups.Create(group); err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	endsAt := clock.Now().Add(48 * time.Hour)
	c := &models.Campaign{
		Title:      "Q1 drill",
		Sender:     "it@corp.example",
		TemplateID: tmpl.ID,
		GroupID:    group.ID,
		EndsAt:     &endsAt,
	}
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	if _, err := campaigns.TransitionStatus(c.ID, models.StatusDraft, models.StatusPublished); err != nil {
		t.Fatalf("failed to publish campaign: %v", err)
	}
	c.Status = models.StatusPublished

	if _, err := recipients.Add(c.ID, "john@corp.example", clock.Now()); err != nil {
		t.Fatalf("failed to add recipient: %v", err)
	}
	recs, err := recipients.ListByCampaign(c.ID)
	if err != nil || len(recs) != 1 {
		t.Fatalf("failed to list recipients: %v", err)
	}

	h := New(conn, Config{Clock: clock, CompleteOnFall: completeOnFall})
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &trackingFixture{
		conn:      conn,
		handlers:  h,
		server:    srv,
		clock:     clock,
		campaign:  c,
		recipient: &recs[0],
	}
}

func (f *trackingFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("User-Agent", "test-client/1.0")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestOpenRecordsFirstTimestampAndEveryEvent(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)
	events := repository.NewEventRepository(f.conn)

	first := f.clock.Now()
	for i := 0; i < 3; i++ {
		resp := f.get(t, "/t/open/"+f.recipient.Token+".png")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("open %d status = %d, want 200", i, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
			t.Errorf("Content-Type = %q, want image/gif", ct)
		}
		f.clock.Advance(time.Minute)
	}

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.OpenedAt == nil || !rec.OpenedAt.Equal(first) {
		t.Errorf("OpenedAt = %v, want first hit at %v", rec.OpenedAt, first)
	}

	evs, err := events.ListByRecipient(f.recipient.ID)
	if err != nil {
		t.Fatalf("ListByRecipient() error: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3", len(evs))
	}
	for _, e := range evs {
		if e.Type != models.EventOpen {
			t.Errorf("event type = %s, want open", e.Type)
		}
		if e.UserAgent != "test-client/1.0" {
			t.Errorf("event user agent = %q", e.UserAgent)
		}
		if e.IPAddress != "127.0.0.1" {
			t.Errorf("event ip = %q, want bare address without port", e.IPAddress)
		}
	}
}

func TestOpenUnknownToken(t *testing.T) {
	f := setupTracking(t, false)

	resp := f.get(t, "/t/open/deadbeefdeadbeefdeadbeefdeadbeef.png")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOpenExpiredStillServesPixelWithoutWrites(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)
	events := repository.NewEventRepository(f.conn)

	f.clock.Advance(72 * time.Hour)

	resp := f.get(t, "/t/open/"+f.recipient.Token+".png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q, want image/gif", ct)
	}

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.OpenedAt != nil {
		t.Errorf("OpenedAt = %v, want nil after expiry", rec.OpenedAt)
	}
	evs, err := events.ListByRecipient(f.recipient.ID)
	if err != nil {
		t.Fatalf("ListByRecipient() error: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("got %d events, want none after expiry", len(evs))
	}
}

func TestClickRedirectsToDecodedTarget(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)
	events := repository.NewEventRepository(f.conn)

	target := "https://phish.corp.example/t/fall/" + f.recipient.Token
	path := fmt.Sprintf("/t/click/%s?u=%s", f.recipient.Token, campaign.EncodeTarget(target))

	resp := f.get(t, path)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != target {
		t.Errorf("Location = %q, want %q", loc, target)
	}

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.ClickedAt == nil {
		t.Error("ClickedAt not set after click")
	}

	evs, err := events.ListByRecipient(f.recipient.ID)
	if err != nil {
		t.Fatalf("ListByRecipient() error: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != models.EventClick {
		t.Fatalf("events = %+v, want one click", evs)
	}
	if evs[0].TargetURL != target {
		t.Errorf("event target = %q, want %q", evs[0].TargetURL, target)
	}
}

func TestClickBadTarget(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)

	for _, path := range []string{
		"/t/click/" + f.recipient.Token,
		"/t/click/" + f.recipient.Token + "?u=not!base64",
	} {
		resp := f.get(t, path)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, resp.StatusCode)
		}
	}

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.ClickedAt != nil {
		t.Error("ClickedAt set despite bad target")
	}
}

func TestClickExpired(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)
	events := repository.NewEventRepository(f.conn)
	f.clock.Advance(72 * time.Hour)

	path := fmt.Sprintf("/t/click/%s?u=%s", f.recipient.Token, campaign.EncodeTarget("https://example.com"))
	resp := f.get(t, path)
	if resp.StatusCode != http.StatusGone {
		t.Errorf("status = %d, want 410", resp.StatusCode)
	}

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.ClickedAt != nil {
		t.Errorf("ClickedAt = %v, want nil after expiry", rec.ClickedAt)
	}
	evs, err := events.ListByRecipient(f.recipient.ID)
	if err != nil {
		t.Fatalf("ListByRecipient() error: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("got %d events, want none after expiry", len(evs))
	}
}

func TestFallRecordsAndShowsAwarenessPage(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)
	campaigns := repository.NewCampaignRepository(f.conn)

	resp := f.get(t, "/t/fall/"+f.recipient.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.FallenAt == nil {
		t.Error("FallenAt not set after fall")
	}

	// A fall never completes the campaign by default.
	c, err := campaigns.GetByID(f.campaign.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if c.Status != models.StatusPublished {
		t.Errorf("campaign status = %s, want published", c.Status)
	}
}

func TestFallCompleteOnFall(t *testing.T) {
	f := setupTracking(t, true)
	campaigns := repository.NewCampaignRepository(f.conn)

	resp := f.get(t, "/t/fall/"+f.recipient.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	c, err := campaigns.GetByID(f.campaign.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if c.Status != models.StatusCompleted {
		t.Errorf("campaign status = %s, want completed", c.Status)
	}
}

func TestFallExpired(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)
	events := repository.NewEventRepository(f.conn)
	f.clock.Advance(72 * time.Hour)

	resp := f.get(t, "/t/fall/"+f.recipient.Token)
	if resp.StatusCode != http.StatusGone {
		t.Errorf("status = %d, want 410", resp.StatusCode)
	}

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.FallenAt != nil {
		t.Errorf("FallenAt = %v, want nil after expiry", rec.FallenAt)
	}
	evs, err := events.ListByRecipient(f.recipient.ID)
	if err != nil {
		t.Fatalf("ListByRecipient() error: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("got %d events, want none after expiry", len(evs))
	}
}

// TestFullInteractionScenario walks one recipient through the whole
// funnel: open the mail, click the link, land on the awareness page.
func TestFullInteractionScenario(t *testing.T) {
	f := setupTracking(t, false)
	recipients := repository.NewRecipientRepository(f.conn)
	events := repository.NewEventRepository(f.conn)

	f.get(t, "/t/open/"+f.recipient.Token+".png")
	f.clock.Advance(time.Minute)

	fall := "https://phish.corp.example/t/fall/" + f.recipient.Token
	resp := f.get(t, fmt.Sprintf("/t/click/%s?u=%s", f.recipient.Token, campaign.EncodeTarget(fall)))
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("click status = %d, want 302", resp.StatusCode)
	}
	f.clock.Advance(time.Minute)

	f.get(t, "/t/fall/"+f.recipient.Token)

	rec, err := recipients.GetByID(f.recipient.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.OpenedAt == nil || rec.ClickedAt == nil || rec.FallenAt == nil {
		t.Fatalf("funnel timestamps incomplete: %+v", rec)
	}
	if !rec.OpenedAt.Before(*rec.ClickedAt) || !rec.ClickedAt.Before(*rec.FallenAt) {
		t.Errorf("timestamps out of order: open=%v click=%v fall=%v", rec.OpenedAt, rec.ClickedAt, rec.FallenAt)
	}

	evs, err := events.ListByRecipient(f.recipient.ID)
	if err != nil {
		t.Fatalf("ListByRecipient() error: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3", len(evs))
	}
	wantTypes := []models.EventType{models.EventOpen, models.EventClick, models.EventFall}
	for i, want := range wantTypes {
		if evs[i].Type != want {
			t.Errorf("event[%d].Type = %s, want %s", i, evs[i].Type, want)
		}
	}

	report, err := recipients.Funnel(f.campaign.ID)
	if err != nil {
		t.Fatalf("Funnel() error: %v", err)
	}
	if report.Opened != 1 || report.Clicked != 1 || report.Fallen != 1 || report.NoAction != 0 {
		t.Errorf("funnel report = %+v", report)
	}
}
