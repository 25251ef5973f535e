// Package mail delivers outbound messages over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/iliyamo/project-tracker/internal/logger"
	"github.com/iliyamo/project-tracker/internal/model"
)

// SMTPConfig describes the relay used for delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	From     string // used when a message carries no sender
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers m as a plain-text message.
func (s *SMTPSender) Send(ctx context.Context, m model.Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m.Recipients) == 0 {
		return errors.New("mail: no recipients")
	}
	from := m.From
	if from == "" {
		from = s.cfg.From
	}
	msg := buildMessage(from, m)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var err error
	if s.cfg.UseTLS {
		err = s.sendTLS(addr, auth, from, m.Recipients, msg)
	} else {
		err = smtp.SendMail(addr, auth, from, m.Recipients, msg)
	}
	if err != nil {
		logger.Warnf("[Mail] delivery to %v failed: %v", m.Recipients, err)
		return err
	}
	logger.Infof("[Mail] sent %q to %v", m.Subject, m.Recipients)
	return nil
}

func (s *SMTPSender) sendTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// headers are written in a fixed order so messages are reproducible.
func buildMessage(from string, m model.Mail) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(m.Recipients, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(m.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// LogSender writes messages to the log instead of delivering them. It
// stands in for SMTP when no relay is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m model.Mail) error {
	logger.Info().Str("subject", m.Subject).Strs("to", m.Recipients).Str("body", m.Body).Msg("mail (not delivered)")
	return nil
}
