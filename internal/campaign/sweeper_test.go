package campaign

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/awarenow/phishsim/internal/models"
)

func TestSweeperCompletesExpiredCampaign(t *testing.T) {
	f := setupService(t)

	if _, err := f.service.PublishAndSend(context.Background(), f.campaign.ID); err != nil {
		t.Fatalf("PublishAndSend() error: %v", err)
	}
	f.clock.Advance(72 * time.Hour)

	sweeper := NewSweeper(f.service, 10*time.Millisecond, slog.Default())
	sweeper.Start()
	defer sweeper.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := f.service.Get(f.campaign.ID)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if c.Status == models.StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweeper did not complete the expired campaign")
}

func TestSweeperStop(t *testing.T) {
	f := setupService(t)

	sweeper := NewSweeper(f.service, 5*time.Millisecond, slog.Default())
	sweeper.Start()

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}
