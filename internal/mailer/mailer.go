// Package mailer delivers rendered simulation messages through a
// configured SMTP submission host.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/awarenow/phishsim/internal/campaign"
	"github.com/awarenow/phishsim/internal/dkim"
)

// Config configures the SMTP submission transport.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Hostname is the EHLO name; defaults to the local hostname.
	Hostname string

	// Timeout bounds one complete submission.
	Timeout time.Duration
}

// Mailer submits messages to a single smarthost. Messages are signed
// with DKIM when a signer is configured.
type Mailer struct {
	cfg    Config
	signer *dkim.Signer
	logger *slog.Logger
}

// New creates a Mailer. signer may be nil.
func New(cfg Config, signer *dkim.Signer, logger *slog.Logger) *Mailer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		cfg:    cfg,
		signer: signer,
		logger: logger.With("component", "mailer"),
	}
}

// Send builds, signs and submits one message.
func (m *Mailer) Send(ctx context.Context, msg *campaign.OutboundMessage) error {
	data := BuildMessage(msg, time.Now())

	if m.signer != nil {
		signed, err := m.signer.Sign(data)
		if err != nil {
			m.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", m.signer.Domain(), "error", err)
		} else {
			data = signed
		}
	}

	if err := m.submit(ctx, msg.From, msg.To, data); err != nil {
		return err
	}

	m.logger.Info("message submitted", "to", msg.To, "subject", msg.Subject)
	return nil
}

// submit speaks the submission dialogue with the smarthost. STARTTLS is
// opportunistic; authentication only happens after the session is
// encrypted.
func (m *Mailer) submit(ctx context.Context, from, to string, data []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))

	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connection failed to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	if m.cfg.Hostname != "" {
		if err := client.Hello(m.cfg.Hostname); err != nil {
			return fmt.Errorf("HELO failed: %w", err)
		}
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: m.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			m.logger.Warn("STARTTLS failed, continuing without encryption",
				"host", m.cfg.Host, "error", err)
		}
	}

	if m.cfg.Username != "" {
		auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO %s failed: %w", to, err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("DATA close failed: %w", err)
	}

	client.Quit()
	return nil
}
