package reminder

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/GriffinCanCode/todosync/internal/infrastructure/resilience"
)

// Message is a single HTML mail
type Message struct {
	Subject string
	HTML    string
}

// Mailer delivers a message to the configured recipient
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds relay settings
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Sender    string
	Recipient string
	Timeout   time.Duration
}

func (c SMTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SMTPMailer sends over SMTP with STARTTLS when the server offers it. Calls
// go through a circuit breaker so an unreachable relay is not hammered.
type SMTPMailer struct {
	cfg     SMTPConfig
	breaker *resilience.Breaker
}

// NewSMTPMailer creates a mailer. A nil breaker gets default settings.
func NewSMTPMailer(cfg SMTPConfig, breaker *resilience.Breaker) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if breaker == nil {
		breaker = resilience.New("smtp", resilience.Settings{})
	}
	return &SMTPMailer{cfg: cfg, breaker: breaker}
}

// Send delivers msg, failing fast with resilience.ErrCircuitOpen while the
// relay is considered down
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		return m.send(ctx, msg)
	})
}

func (m *SMTPMailer) send(ctx context.Context, msg Message) error {
	dialer := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.addr())
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", m.cfg.addr(), err)
	}
	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.Sender); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(m.cfg.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(m.cfg.Sender, m.cfg.Recipient, msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data end: %w", err)
	}
	return c.Quit()
}

// buildMessage encodes an RFC 5322 message with a base64 HTML body
func buildMessage(from, to string, msg Message) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	body := base64.StdEncoding.EncodeToString([]byte(msg.HTML))
	for len(body) > 76 {
		b.WriteString(body[:76] + "\r\n")
		body = body[76:]
	}
	b.WriteString(body + "\r\n")
	return b.Bytes()
}
