package campaign

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/awarenow/phishsim/internal/metrics"
	"github.com/awarenow/phishsim/internal/models"
	"github.com/awarenow/phishsim/internal/repository"
	"github.com/awarenow/phishsim/internal/spool"
)

// AudienceResolver resolves a group reference into the de-duplicated
// list of addressable member addresses at snapshot time.
type AudienceResolver interface {
	Resolve(ctx context.Context, groupID string) ([]string, error)
}

// Renderer substitutes named placeholders into a template and returns
// the message subject and body.
type Renderer interface {
	Render(tmpl *models.Template, data map[string]any) (subject, html string, err error)
}

// OutboundMessage is one rendered simulation message ready for the
// mail transport.
type OutboundMessage struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Transport attempts delivery of one message and reports the outcome
// synchronously. Retry and timeout policy belong to the transport.
type Transport interface {
	Send(ctx context.Context, msg *OutboundMessage) error
}

// FailureRecorder persists per-recipient delivery failures when the
// dispatch engine runs in failure-isolation mode.
type FailureRecorder interface {
	Record(entry spool.Entry) error
}

// Service drives the campaign lifecycle: it validates and publishes
// draft campaigns, dispatches their messages, completes expired
// campaigns and serves funnel reports.
type Service struct {
	campaigns  *repository.CampaignRepository
	recipients *repository.RecipientRepository
	templates  *repository.TemplateRepository

	audience  AudienceResolver
	renderer  Renderer
	transport Transport
	urls      *URLBuilder
	clock     Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	from              string
	placeholders      map[string]string
	continueOnFailure bool
	failures          FailureRecorder
}

// Options configures a Service.
type Options struct {
	Audience  AudienceResolver
	Renderer  Renderer
	Transport Transport
	URLs      *URLBuilder
	Clock     Clock
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// From is the envelope sender for outgoing simulation messages.
	From string

	// Placeholders are campaign-wide template values merged with the
	// per-recipient ones (tracking_url, recipient_email).
	Placeholders map[string]string

	// ContinueOnFailure records transport failures per recipient and
	// keeps dispatching instead of aborting the whole batch.
	ContinueOnFailure bool
	Failures          FailureRecorder
}

// NewService creates a Service over the given database.
func NewService(database *sql.DB, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		campaigns:         repository.NewCampaignRepository(database),
		recipients:        repository.NewRecipientRepository(database),
		templates:         repository.NewTemplateRepository(database),
		audience:          opts.Audience,
		renderer:          opts.Renderer,
		transport:         opts.Transport,
		urls:              opts.URLs,
		clock:             opts.Clock,
		logger:            opts.Logger.With("component", "campaign"),
		metrics:           opts.Metrics,
		from:              opts.From,
		placeholders:      opts.Placeholders,
		continueOnFailure: opts.ContinueOnFailure,
		failures:          opts.Failures,
	}
}

// Get returns a campaign or ErrNotFound.
func (s *Service) Get(id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns campaigns after running the expiry sweep, so listings
// never show a published campaign that is already past its end date.
func (s *Service) List(ctx context.Context, filter models.CampaignListFilter) ([]models.Campaign, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.campaigns.List(filter)
}

// Sweep completes every published campaign whose end date has passed.
// It is idempotent and safe to run concurrently with itself and with
// publishing: publish only touches drafts, the sweep only touches
// published campaigns.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.campaigns.ExpirePublished(s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expiry sweep completed campaigns", "count", n)
		if s.metrics != nil {
			s.metrics.CampaignsCompletedTotal.Add(float64(n))
		}
	}
	return n, nil
}

// Report computes the campaign's funnel counters. Read-only; safe at
// any time, including mid-campaign.
func (s *Service) Report(id string) (*models.FunnelReport, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return s.recipients.Funnel(id)
}

// validatePublish checks every publish guard. Any unmet guard leaves
// the campaign in draft and is reported as a ValidationError.
func (s *Service) validatePublish(c *models.Campaign) (*models.Template, error) {
	if c.Status != models.StatusDraft {
		return nil, &ValidationError{Field: "status", Reason: "campaign is not in draft"}
	}
	if c.TemplateID == "" {
		return nil, &ValidationError{Field: "template", Reason: "campaign has no template"}
	}
	tmpl, err := s.templates.GetByID(c.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil || !tmpl.Active {
		return nil, &ValidationError{Field: "template", Reason: "template is missing or inactive"}
	}
	if c.GroupID == "" {
		return nil, &ValidationError{Field: "group", Reason: "campaign has no target group"}
	}
	if c.EndsAt == nil {
		return nil, &ValidationError{Field: "ends_at", Reason: "campaign has no end date"}
	}
	now := s.clock.Now()
	if !c.EndsAt.After(now) {
		return nil, &ValidationError{Field: "ends_at", Reason: "end date must be in the future"}
	}
	if c.ScheduledDate != nil && !c.EndsAt.After(*c.ScheduledDate) {
		return nil, &ValidationError{Field: "ends_at", Reason: "end date must be after the scheduled date"}
	}
	return tmpl, nil
}
