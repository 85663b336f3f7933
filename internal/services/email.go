package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"unicode"

	"github.com/huangang/teamspace/internal/config"
	"github.com/huangang/teamspace/pkg/logger"
)

const TemplateMention = "mention"

var emailTemplates = template.Must(template.New(TemplateMention).Parse(`<html><body style="font-family: Arial, sans-serif;">
<h2>{{.SenderName}} mentioned you in {{.ProjectTitle}}</h2>
<div style="background: #f9f9f9; padding: 16px; border-radius: 4px; white-space: pre-wrap;">{{.Preview}}</div>
{{if .AppURL}}<p><a href="{{.AppURL}}">Open the conversation</a></p>{{end}}
<hr><p style="color: #888; font-size: 12px;">Sent by Teamspace</p>
</body></html>`))

// EmailSender delivers templated mail. Callers treat every error as best-effort.
type EmailSender interface {
	Send(ctx context.Context, to, subject, templateName string, data map[string]string) error
}

type EmailService struct {
	cfg *config.EmailConfig
}

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// IsConfigured returns true if SMTP delivery is enabled and has a host.
func (s *EmailService) IsConfigured() bool {
	return s.cfg != nil && s.cfg.Enabled && s.cfg.Host != ""
}

// Send renders the named template with data and delivers it to a single recipient.
// Unconfigured SMTP is a silent no-op.
func (s *EmailService) Send(ctx context.Context, to, subject, templateName string, data map[string]string) error {
	if !s.IsConfigured() || to == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderEmail(templateName, data)
	if err != nil {
		return err
	}
	return s.sendEmail([]string{to}, subject, body)
}

// ProcessEmailTask is the queue processor for TaskTypeEmail.
func (s *EmailService) ProcessEmailTask(ctx context.Context, task *EmailTask) error {
	return s.Send(ctx, task.To, task.Subject, task.Template, task.Data)
}

func renderEmail(templateName string, data map[string]string) (string, error) {
	tmpl := emailTemplates.Lookup(templateName)
	if tmpl == nil {
		return "", fmt.Errorf("unknown email template %q", templateName)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// stripControl drops control characters, CR and LF included, so a value
// can never start a new header line.
func stripControl(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
}

// encodeSubject returns a single-line, RFC 2047 encoded Subject value.
func encodeSubject(subject string) string {
	return mime.QEncoding.Encode("utf-8", strings.TrimSpace(stripControl(subject)))
}

// parseAddress validates one mailbox. Values carrying CR or LF are refused
// rather than repaired.
func parseAddress(v string) (*mail.Address, error) {
	if strings.ContainsAny(v, "\r\n") {
		return nil, fmt.Errorf("invalid email address %q", v)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("invalid email address %q: %w", v, err)
	}
	return addr, nil
}

func (s *EmailService) sendEmail(recipients []string, subject, body string) error {
	fromValue := s.cfg.From
	if fromValue == "" {
		fromValue = s.cfg.Username
	}
	fromAddr, err := parseAddress(fromValue)
	if err != nil {
		return err
	}
	from := fromAddr.Address

	to := make([]string, 0, len(recipients))
	toHeader := make([]string, 0, len(recipients))
	for _, r := range recipients {
		addr, err := parseAddress(r)
		if err != nil {
			return err
		}
		to = append(to, addr.Address)
		toHeader = append(toHeader, addr.String())
	}

	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", fromAddr.String()))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(toHeader, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeSubject(subject)))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if s.cfg.UseTLS {
		err = s.sendEmailTLS(addr, auth, from, to, message.String())
	} else {
		err = smtp.SendMail(addr, auth, from, to, []byte(message.String()))
	}

	if err != nil {
		logger.Warn().Err(err).Strs("to", to).Msg("email delivery failed")
		return err
	}

	logger.Info().Strs("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func (s *EmailService) sendEmailTLS(addr string, auth smtp.Auth, from string, to []string, message string) error {
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
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	return w.Close()
}
