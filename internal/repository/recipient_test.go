package repository

import (
	"sync"
	"testing"
	"time"
)

func TestRecipientAddIdempotent(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRecipientRepository(conn)
	c := createTestCampaign(t, conn)
	now := time.Now().UTC()

	created, err := repo.Add(c.ID, "a@corp.example", now)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if !created {
		t.Fatal("first Add() = false, want true")
	}

	first, err := repo.ListByCampaign(c.ID)
	if err != nil {
		t.Fatalf("ListByCampaign() error: %v", err)
	}

	created, err = repo.Add(c.ID, "a@corp.example", now)
	if err != nil {
		t.Fatalf("second Add() error: %v", err)
	}
	if created {
		t.Error("second Add() = true, want false")
	}

	second, err := repo.ListByCampaign(c.ID)
	if err != nil {
		t.Fatalf("ListByCampaign() error: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("recipients = %d, want 1", len(second))
	}
	if second[0].Token != first[0].Token {
		t.Errorf("token changed on re-add: %q -> %q", first[0].Token, second[0].Token)
	}
}

func TestRecipientTokensUnique(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRecipientRepository(conn)
	c1 := createTestCampaign(t, conn)
	now := time.Now().UTC()

	emails := []string{"a@corp.example", "b@corp.example", "c@corp.example"}
	for _, e := range emails {
		if _, err := repo.Add(c1.ID, e, now); err != nil {
			t.Fatalf("Add(%s) error: %v", e, err)
		}
	}

	recipients, err := repo.ListByCampaign(c1.ID)
	if err != nil {
		t.Fatalf("ListByCampaign() error: %v", err)
	}

	seen := make(map[string]bool)
	for _, r := range recipients {
		if r.Token == "" {
			t.Error("recipient has empty token")
		}
		if seen[r.Token] {
			t.Errorf("duplicate token: %s", r.Token)
		}
		seen[r.Token] = true
	}
}

func TestRecipientGetByToken(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRecipientRepository(conn)
	c := createTestCampaign(t, conn)

	if _, err := repo.Add(c.ID, "a@corp.example", time.Now().UTC()); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	recipients, _ := repo.ListByCampaign(c.ID)

	got, err := repo.GetByToken(recipients[0].Token)
	if err != nil {
		t.Fatalf("GetByToken() error: %v", err)
	}
	if got == nil || got.Email != "a@corp.example" {
		t.Fatalf("GetByToken() = %+v, want recipient a@corp.example", got)
	}

	missing, err := repo.GetByToken("00000000000000000000000000000000")
	if err != nil {
		t.Fatalf("GetByToken(unknown) error: %v", err)
	}
	if missing != nil {
		t.Errorf("GetByToken(unknown) = %+v, want nil", missing)
	}
}

func TestMarkOpenedFirstOccurrence(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRecipientRepository(conn)
	c := createTestCampaign(t, conn)

	if _, err := repo.Add(c.ID, "a@corp.example", time.Now().UTC()); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	recipients, _ := repo.ListByCampaign(c.ID)
	id := recipients[0].ID

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	won, err := repo.MarkOpened(id, first)
	if err != nil {
		t.Fatalf("MarkOpened() error: %v", err)
	}
	if !won {
		t.Fatal("first MarkOpened() = false, want true")
	}

	won, err = repo.MarkOpened(id, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second MarkOpened() error: %v", err)
	}
	if won {
		t.Error("second MarkOpened() = true, want false")
	}

	got, _ := repo.GetByID(id)
	if got.OpenedAt == nil || !got.OpenedAt.Equal(first) {
		t.Errorf("OpenedAt = %v, want %v", got.OpenedAt, first)
	}
}

func TestMarkOpenedConcurrent(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRecipientRepository(conn)
	c := createTestCampaign(t, conn)

	if _, err := repo.Add(c.ID, "a@corp.example", time.Now().UTC()); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	recipients, _ := repo.ListByCampaign(c.ID)
	id := recipients[0].ID

	const hits = 8
	var wg sync.WaitGroup
	wins := make(chan bool, hits)
	for i := 0; i < hits; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			won, err := repo.MarkOpened(id, time.Now().UTC().Add(time.Duration(n)*time.Millisecond))
			if err != nil {
				t.Errorf("MarkOpened() error: %v", err)
				return
			}
			wins <- won
		}(i)
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("timestamp winners = %d, want exactly 1", winners)
	}
}

func TestFunnel(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRecipientRepository(conn)
	c := createTestCampaign(t, conn)
	now := time.Now().UTC()

	for _, e := range []string{"a@corp.example", "b@corp.example", "c@corp.example"} {
		if _, err := repo.Add(c.ID, e, now); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	recipients, _ := repo.ListByCampaign(c.ID)

	// a: sent+opened+clicked, b: sent, c: untouched
	repo.MarkSent(recipients[0].ID, now)
	repo.MarkOpened(recipients[0].ID, now)
	repo.MarkClicked(recipients[0].ID, now)
	repo.MarkSent(recipients[1].ID, now)

	report, err := repo.Funnel(c.ID)
	if err != nil {
		t.Fatalf("Funnel() error: %v", err)
	}
	if report.Total != 3 {
		t.Errorf("Total = %d, want 3", report.Total)
	}
	if report.Sent != 2 {
		t.Errorf("Sent = %d, want 2", report.Sent)
	}
	if report.Opened != 1 {
		t.Errorf("Opened = %d, want 1", report.Opened)
	}
	if report.Clicked != 1 {
		t.Errorf("Clicked = %d, want 1", report.Clicked)
	}
	if report.Fallen != 0 {
		t.Errorf("Fallen = %d, want 0", report.Fallen)
	}
	if report.NoAction != 2 {
		t.Errorf("NoAction = %d, want 2", report.NoAction)
	}
}

func TestFunnelEmptyCampaign(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRecipientRepository(conn)
	c := createTestCampaign(t, conn)

	report, err := repo.Funnel(c.ID)
	if err != nil {
		t.Fatalf("Funnel() error: %v", err)
	}
	if report.Total != 0 || report.NoAction != 0 {
		t.Errorf("empty funnel = %+v, want zeros", report)
	}
}
