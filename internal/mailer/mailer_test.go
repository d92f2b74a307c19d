package mailer

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg/internal/model"
)

type sent struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestMailer(cfg Config, out *[]sent, err error) *Mailer {
	log := zerolog.Nop()
	m := New(cfg, &log)
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		*out = append(*out, sent{addr: addr, from: from, to: to, msg: string(msg)})
		return err
	}
	return m
}

func TestSendPaymentEmail(t *testing.T) {
	var out []sent
	m := newTestMailer(Config{Enabled: true, Host: "smtp.example.org", Port: 587, From: "noreply@example.org"}, &out, nil)

	require.NoError(t, m.SendPaymentEmail("rep@h001.example.org", model.PaymentApproved, 7, 2))
	require.Len(t, out, 1)
	assert.Equal(t, "smtp.example.org:587", out[0].addr)
	assert.Equal(t, []string{"rep@h001.example.org"}, out[0].to)
	assert.Contains(t, out[0].msg, "Subject: Payment #7 approved")
	assert.Contains(t, out[0].msg, "2 attendee(s)")
}

func TestSendPaymentEmailDisabled(t *testing.T) {
	var out []sent
	m := newTestMailer(Config{Enabled: false}, &out, nil)

	require.NoError(t, m.SendPaymentEmail("rep@h001.example.org", model.PaymentRejected, 7, 2))
	assert.Empty(t, out)
}

func TestSendPaymentEmailErrors(t *testing.T) {
	var out []sent
	m := newTestMailer(Config{Enabled: true, Host: "smtp.example.org", Port: 25}, &out, errors.New("connection refused"))

	assert.Error(t, m.SendPaymentEmail("", model.PaymentApproved, 1, 1))
	assert.Empty(t, out)

	err := m.SendPaymentEmail("rep@h001.example.org", model.PaymentApproved, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCompose(t *testing.T) {
	subject, body := compose(model.PaymentRejected, 3, 4)
	assert.Equal(t, "Payment #3 rejected", subject)
	assert.True(t, strings.Contains(body, "new payment slip"))

	subject, _ = compose(model.PaymentPendingReview, 3, 4)
	assert.Equal(t, "Payment #3 received", subject)
}
