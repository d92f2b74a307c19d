package mailer

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/rs/zerolog"

	"confreg/internal/model"
)

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	From     string
	Password string
}

type Mailer struct {
	cfg  Config
	log  *zerolog.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// SendPaymentEmail tells the submitting member about a payment status change.
func (m *Mailer) SendPaymentEmail(recipientEmail, status string, paymentID int64, attendees int) error {
	if !m.cfg.Enabled {
		m.log.Debug().Str("email", recipientEmail).Str("status", status).Msg("mail disabled, skipping")
		return nil
	}
	if recipientEmail == "" {
		return fmt.Errorf("send email: member has no email address")
	}

	subject, body := compose(status, paymentID, attendees)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, recipientEmail, subject, body,
	)

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, m.cfg.From, []string{recipientEmail}, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Str("email", recipientEmail).Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("email", recipientEmail).Str("status", status).Int64("payment_id", paymentID).Msg("payment email sent")
	return nil
}

func compose(status string, paymentID int64, attendees int) (string, string) {
	switch status {
	case model.PaymentApproved:
		return fmt.Sprintf("Payment #%d approved", paymentID),
			fmt.Sprintf("Hello,\n\nYour payment #%d has been verified. %d attendee(s) are now registered as paid.\n", paymentID, attendees)
	case model.PaymentRejected:
		return fmt.Sprintf("Payment #%d rejected", paymentID),
			fmt.Sprintf("Hello,\n\nYour payment #%d could not be verified. The %d attendee(s) on it are waiting for payment again; please upload a new payment slip.\n", paymentID, attendees)
	default:
		return fmt.Sprintf("Payment #%d received", paymentID),
			fmt.Sprintf("Hello,\n\nWe received your payment slip #%d for %d attendee(s). It will be reviewed by the organising committee.\n", paymentID, attendees)
	}
}
