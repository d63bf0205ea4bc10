package campaign

import (
	"context"
	"fmt"

	"github.com/awarenow/phishsim/internal/models"
	"github.com/awarenow/phishsim/internal/spool"
	"github.com/awarenow/phishsim/internal/template"
)

// DispatchResult summarizes one publish-and-send run.
type DispatchResult struct {
	CampaignID string   `json:"campaign_id"`
	Status     string   `json:"status"`
	Total      int      `json:"total"`
	Sent       int      `json:"sent"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
}

// PublishAndSend validates a draft campaign, snapshots its audience and
// dispatches one message per unsent recipient. Each recipient's sent
// state commits right after its transport call succeeds, so a failure
// or crash partway through never causes re-sends on retry: re-invoking
// the loop skips everyone with a sent timestamp.
//
// By default the first transport failure aborts the remainder and the
// campaign stays in draft. With failure isolation enabled the failure
// is spooled and the loop continues.
func (s *Service) PublishAndSend(ctx context.Context, campaignID string) (*DispatchResult, error) {
	c, err := s.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}

	tmpl, err := s.validatePublish(c)
	if err != nil {
		return nil, err
	}

	members, err := s.audience.Resolve(ctx, c.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}
	if len(members) == 0 {
		return nil, &ValidationError{Field: "group", Reason: "selected group has no addressable members"}
	}

	// Snapshot the audience. Re-running is safe: existing recipients
	// keep their tokens, nothing is duplicated.
	now := s.clock.Now()
	for _, email := range members {
		if _, err := s.recipients.Add(c.ID, email, now); err != nil {
			return nil, fmt.Errorf("failed to snapshot audience: %w", err)
		}
	}

	recipients, err := s.recipients.ListByCampaign(c.ID)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{CampaignID: c.ID, Total: len(recipients)}

	for i := range recipients {
		rec := &recipients[i]
		if rec.SentAt != nil {
			result.Skipped++
			continue
		}

		if err := s.sendOne(ctx, c, tmpl, rec); err != nil {
			if s.metrics != nil {
				s.metrics.MessagesFailedTotal.Inc()
			}
			s.logger.Error("delivery failed", "campaign", c.ID, "recipient", rec.Email, "error", err)

			if !s.continueOnFailure {
				return result, &DeliveryError{Email: rec.Email, Err: err}
			}
			result.Failed = append(result.Failed, rec.Email)
			if s.failures != nil {
				spoolErr := s.failures.Record(spool.Entry{
					CampaignID:  c.ID,
					RecipientID: rec.ID,
					Email:       rec.Email,
					Reason:      err.Error(),
				})
				if spoolErr != nil {
					s.logger.Error("failed to spool delivery failure", "error", spoolErr)
				}
			}
			continue
		}

		if err := s.recipients.MarkSent(rec.ID, s.clock.Now()); err != nil {
			return result, err
		}
		result.Sent++
		if s.metrics != nil {
			s.metrics.MessagesSentTotal.Inc()
		}
	}

	ok, err := s.campaigns.TransitionStatus(c.ID, models.StatusDraft, models.StatusPublished)
	if err != nil {
		return result, err
	}
	if !ok {
		// Lost the check-and-set; someone else already published.
		s.logger.Warn("campaign left draft concurrently", "campaign", c.ID)
	} else {
		s.logger.Info("campaign published", "campaign", c.ID, "sent", result.Sent, "skipped", result.Skipped, "failed", len(result.Failed))
		if s.metrics != nil {
			s.metrics.CampaignsPublishedTotal.Inc()
		}
	}
	result.Status = string(models.StatusPublished)

	return result, nil
}

func (s *Service) sendOne(ctx context.Context, c *models.Campaign, tmpl *models.Template, rec *models.Recipient) error {
	data := make(map[string]any, len(s.placeholders)+2)
	for k, v := range s.placeholders {
		data[k] = v
	}
	data["tracking_url"] = s.urls.ClickURL(rec.Token)
	data["recipient_email"] = rec.Email

	subject, html, err := s.renderer.Render(tmpl, data)
	if err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}
	if subject == "" {
		subject = c.Title
	}
	html = template.AppendOpenPixel(html, s.urls.OpenURL(rec.Token))

	return s.transport.Send(ctx, &OutboundMessage{
		From:    s.from,
		To:      rec.Email,
		ReplyTo: c.Sender,
		Subject: subject,
		HTML:    html,
	})
}
