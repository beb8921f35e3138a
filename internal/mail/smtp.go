package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"time"
)

// SMTPConfig holds relay settings for outbound mail.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from-name"`
}

// Configured reports whether the relay settings are usable.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// SMTPMailer sends transactional mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.FromName == "" {
		cfg.FromName = "Tokicard"
	}
	return &SMTPMailer{cfg: cfg}
}

// SendOTP delivers the verification code email.
func (m *SMTPMailer) SendOTP(ctx context.Context, to, otp string, expiresAt time.Time) error {
	subject, body := OTPMessage(otp, expiresAt)
	return m.send(ctx, to, subject, body)
}

// SendPasswordReset delivers the password reset link email.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetLink string, expiresAt time.Time) error {
	subject, body := PasswordResetMessage(resetLink, expiresAt)
	return m.send(ctx, to, subject, body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	msg := []byte("From: \"" + m.cfg.FromName + "\" <" + m.cfg.From + ">\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n" +
		body + "\r\n")

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		// Implicit-TLS relays (port 465) reject STARTTLS; dial TLS directly.
		if m.cfg.Port == "465" {
			if errTLS := m.sendImplicitTLS(addr, auth, to, msg); errTLS != nil {
				return fmt.Errorf("%w: %w", ErrDelivery, errTLS)
			}
			return nil
		}
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

func (m *SMTPMailer) sendImplicitTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, errDial := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if errDial != nil {
		return errDial
	}
	client, errClient := smtp.NewClient(conn, m.cfg.Host)
	if errClient != nil {
		return errClient
	}
	defer client.Quit()
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	writer, errData := client.Data()
	if errData != nil {
		return errData
	}
	if _, err := writer.Write(msg); err != nil {
		return err
	}
	return writer.Close()
}
