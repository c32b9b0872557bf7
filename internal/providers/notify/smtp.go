package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/seatwise/seatwise/internal/config"
)

type SMTPProvider struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTP(cfg config.ReminderConfig) *SMTPProvider {
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	return &SMTPProvider{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     from,
	}
}

func (p *SMTPProvider) Send(ctx context.Context, to, subject, body string) error {
	if p.host == "" || p.username == "" || p.password == "" || p.from == "" {
		return fmt.Errorf("%w: smtp is not fully configured", ErrNotConfigured)
	}

	auth := smtp.PlainAuth("", p.username, p.password, p.host)
	addr := fmt.Sprintf("%s:%d", p.host, p.port)

	msg := []byte(fmt.Sprintf(
		"To: %s\r\nFrom: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		to, p.from, subject, body,
	))
	return smtp.SendMail(addr, auth, p.from, []string{to}, msg)
}
