package tracking

import (
	"database/sql"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/awarenow/phishsim/internal/campaign"
	"github.com/awarenow/phishsim/internal/metrics"
	"github.com/awarenow/phishsim/internal/models"
	"github.com/awarenow/phishsim/internal/repository"
)

const fallPage = `<!DOCTYPE html>
<html>
<body>
<div style="font-family:system-ui;max-width:680px;margin:40px auto;padding:24px;border:1px solid #e5e7eb;border-radius:16px;">
  <h2>Security Awareness</h2>
  <p>This was a phishing simulation. Your action has been logged.</p>
  <p>Please proceed to awareness training.</p>
</div>
</body>
</html>`

// Handlers is the tracking event pipeline: the open, click and fall
// endpoints hit by recipients' mail clients and browsers. Handlers are
// stateless; concurrent hits for the same recipient are resolved by
// the recipient store's atomic first-occurrence writes, and every hit
// appends its own event row.
type Handlers struct {
	recipients *repository.RecipientRepository
	campaigns  *repository.CampaignRepository
	events     *repository.EventRepository

	clock   campaign.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// completeOnFall completes a campaign as soon as any recipient
	// reaches the landing page. Off by default: completion is normally
	// the expiry sweep's job alone.
	completeOnFall bool
}

// Config configures the tracking handlers.
type Config struct {
	Clock          campaign.Clock
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	CompleteOnFall bool
}

// New creates tracking handlers over the given database.
func New(database *sql.DB, cfg Config) *Handlers {
	if cfg.Clock == nil {
		cfg.Clock = campaign.SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Handlers{
		recipients:     repository.NewRecipientRepository(database),
		campaigns:      repository.NewCampaignRepository(database),
		events:         repository.NewEventRepository(database),
		clock:          cfg.Clock,
		logger:         cfg.Logger.With("component", "tracking"),
		metrics:        cfg.Metrics,
		completeOnFall: cfg.CompleteOnFall,
	}
}

// Routes registers the tracking endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/t/open/{token}.png", h.Open)
	r.Get("/t/click/{token}", h.Click)
	r.Get("/t/fall/{token}", h.Fall)
	r.Post("/t/fall/{token}", h.Fall)
}

// resolve maps the token path parameter to its recipient and campaign.
// A nil recipient means the 404 has already been written.
func (h *Handlers) resolve(w http.ResponseWriter, r *http.Request) (*models.Recipient, *models.Campaign) {
	tok := chi.URLParam(r, "token")

	rec, err := h.recipients.GetByToken(tok)
	if err != nil {
		h.logger.Error("failed to resolve token", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, nil
	}
	if rec == nil {
		if h.metrics != nil {
			h.metrics.UnknownTokensTotal.Inc()
		}
		http.NotFound(w, r)
		return nil, nil
	}

	c, err := h.campaigns.GetByID(rec.CampaignID)
	if err != nil || c == nil {
		h.logger.Error("failed to load campaign for token", "campaign", rec.CampaignID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, nil
	}

	return rec, c
}

// Open serves the tracking pixel. The image is returned on every
// request; only non-expired campaigns record state.
func (h *Handlers) Open(w http.ResponseWriter, r *http.Request) {
	rec, c := h.resolve(w, r)
	if rec == nil {
		return
	}

	if c.Expired(h.clock.Now()) {
		if h.metrics != nil {
			h.metrics.ExpiredHitsTotal.WithLabelValues(string(models.EventOpen)).Inc()
		}
		h.writePixel(w)
		return
	}

	if _, err := h.recipients.MarkOpened(rec.ID, h.clock.Now()); err != nil {
		h.logger.Error("failed to mark opened", "recipient", rec.ID, "error", err)
	}
	h.appendEvent(r, rec, models.EventOpen, "")

	h.writePixel(w)
}

// Click decodes the target parameter, records the click and redirects.
func (h *Handlers) Click(w http.ResponseWriter, r *http.Request) {
	rec, c := h.resolve(w, r)
	if rec == nil {
		return
	}

	if c.Expired(h.clock.Now()) {
		if h.metrics != nil {
			h.metrics.ExpiredHitsTotal.WithLabelValues(string(models.EventClick)).Inc()
		}
		http.Error(w, "Campaign expired", http.StatusGone)
		return
	}

	target, err := campaign.DecodeTarget(r.URL.Query().Get("u"))
	if err != nil {
		http.Error(w, "Missing or invalid target url", http.StatusBadRequest)
		return
	}

	if _, err := h.recipients.MarkClicked(rec.ID, h.clock.Now()); err != nil {
		h.logger.Error("failed to mark clicked", "recipient", rec.ID, "error", err)
	}
	h.appendEvent(r, rec, models.EventClick, target)

	http.Redirect(w, r, target, http.StatusFound)
}

// Fall records the landing-page hit and shows the awareness page.
func (h *Handlers) Fall(w http.ResponseWriter, r *http.Request) {
	rec, c := h.resolve(w, r)
	if rec == nil {
		return
	}

	if c.Expired(h.clock.Now()) {
		if h.metrics != nil {
			h.metrics.ExpiredHitsTotal.WithLabelValues(string(models.EventFall)).Inc()
		}
		http.Error(w, "Campaign expired", http.StatusGone)
		return
	}

	if _, err := h.recipients.MarkFallen(rec.ID, h.clock.Now()); err != nil {
		h.logger.Error("failed to mark fallen", "recipient", rec.ID, "error", err)
	}
	h.appendEvent(r, rec, models.EventFall, "")

	if h.completeOnFall {
		if _, err := h.campaigns.TransitionStatus(c.ID, models.StatusPublished, models.StatusCompleted); err != nil {
			h.logger.Error("failed to complete campaign on fall", "campaign", c.ID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(fallPage))
}

func (h *Handlers) appendEvent(r *http.Request, rec *models.Recipient, typ models.EventType, target string) {
	err := h.events.Append(&models.Event{
		CampaignID:  rec.CampaignID,
		RecipientID: rec.ID,
		Type:        typ,
		TargetURL:   target,
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
		CreatedAt:   h.clock.Now(),
	})
	if err != nil {
		h.logger.Error("failed to append event", "recipient", rec.ID, "type", typ, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.EventsTotal.WithLabelValues(string(typ)).Inc()
	}
}

// clientIP returns the bare client address. RemoteAddr is host:port
// from the stdlib listener, but already a bare IP once the RealIP
// middleware has applied a proxy header.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *Handlers) writePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(pixel)
}
