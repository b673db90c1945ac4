// Package mail delivers password recovery messages over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/config"
)

var (
	_ auth.Mailer = (*SMTPMailer)(nil)
	_ auth.Mailer = (*DisabledMailer)(nil)
)

// SMTPMailer sends mail through one SMTP relay. Port 465 uses implicit TLS,
// any other port upgrades with STARTTLS when the server offers it. Every send
// opens its own connection.
type SMTPMailer struct {
	host     string
	timeout  time.Duration
	opts     []gomail.Option
	from     string
	fromName string
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer. tokenTTL is only used for the
// validity shown in the message.
func NewSMTPMailer(cfg config.SMTPConfig, tokenTTL time.Duration, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("sender address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = auth.ResetTokenTTL
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	implicitTLS := port == 465
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTimeout(timeout),
		gomail.WithDialContextFunc(deadlineDialer(cfg.Host, timeout, implicitTLS)),
	}
	if implicitTLS {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.User),
			gomail.WithPassword(cfg.Password),
		)
	}

	if _, err := gomail.NewClient(cfg.Host, opts...); err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}

	return &SMTPMailer{
		host:     cfg.Host,
		timeout:  timeout,
		opts:     opts,
		from:     cfg.From,
		fromName: cfg.FromName,
		tokenTTL: tokenTTL,
		logger:   logger,
	}, nil
}

// SendPasswordReset mails the recovery link to a single recipient.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	msg, err := m.resetMessage(to, resetURL)
	if err != nil {
		return err
	}

	client, err := m.newClient()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "send password reset").Wrap(err)
	}
	m.logger.DebugContext(ctx, "password reset mail sent")
	return nil
}

// Verify connects to the relay and disconnects again. It gives up after the
// configured timeout even when ctx has no deadline.
func (m *SMTPMailer) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	client, err := m.newClient()
	if err != nil {
		return err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return oops.Code("MAIL_UNAVAILABLE").With("host", m.host).Wrap(err)
	}
	return client.Close()
}

func (m *SMTPMailer) newClient() (*gomail.Client, error) {
	client, err := gomail.NewClient(m.host, m.opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", m.host).Wrap(err)
	}
	return client, nil
}

// deadlineDialer bounds the whole SMTP session, greeting included, by the
// earlier of the context deadline and timeout. With implicitTLS the handshake
// happens here since a custom dialer replaces the TLS dialer.
func deadlineDialer(host string, timeout time.Duration, implicitTLS bool) gomail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}

		dialer := net.Dialer{Deadline: deadline}
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		if !implicitTLS {
			return conn, nil
		}

		tlsConn := tls.Client(conn, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}

func (m *SMTPMailer) resetMessage(to, resetURL string) (*gomail.Msg, error) {
	html, text, err := resetBodies(resetURL, m.tokenTTL)
	if err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").Wrap(err)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.from); err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("from", m.from).Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return nil, oops.Code("MAIL_INVALID_RECIPIENT").Wrap(err)
	}
	msg.Subject(resetSubject)
	msg.SetBodyString(gomail.TypeTextPlain, text)
	msg.AddAlternativeString(gomail.TypeTextHTML, html)
	return msg, nil
}

// DisabledMailer is used when no SMTP relay is configured. It drops every
// message and logs the recipient domain only.
type DisabledMailer struct {
	logger *slog.Logger
}

func NewDisabledMailer(logger *slog.Logger) *DisabledMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisabledMailer{logger: logger}
}

func (d *DisabledMailer) SendPasswordReset(ctx context.Context, to, _ string) error {
	d.logger.WarnContext(ctx, "mail delivery disabled, password reset mail dropped",
		"recipient_domain", domainOf(to))
	return nil
}

// New returns an SMTPMailer, or a DisabledMailer when no host is configured.
func New(cfg config.SMTPConfig, tokenTTL time.Duration, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.Host == "" {
		return NewDisabledMailer(logger), nil
	}
	return NewSMTPMailer(cfg, tokenTTL, logger)
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
