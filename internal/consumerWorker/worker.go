package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wb-go/wbf/zlog"

	"confreg/internal/dto"
	"confreg/internal/model"
	"confreg/internal/repo"
)

type Consumer interface {
	Consume(ctx context.Context, handler func([]byte) error) error
}

type MemberReader interface {
	GetMemberByID(ctx context.Context, id int64) (*model.Member, error)
}

type Sender interface {
	SendPaymentEmail(recipientEmail, status string, paymentID int64, attendees int) error
}

// Reader turns payment events from the broker into member notifications.
type Reader struct {
	RMQ    Consumer
	repo   MemberReader
	mail   Sender
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq Consumer, repo MemberReader, mail Sender) *Reader {
	return &Reader{
		RMQ:  rmq,
		repo: repo,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("payment notification reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(cctx, func(body []byte) error { return r.handle(cctx, body) }); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("payment notification reader stopped by context")
	}()
}

// handle returns an error only when the message should be redelivered.
func (r *Reader) handle(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg dto.PaymentEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Msgf("dropping malformed payment event: %s", string(body))
		return nil
	}

	zlog.Logger.Info().
		Int64("payment_id", msg.PaymentID).
		Int64("member_id", msg.MemberID).
		Str("status", msg.Status).
		Msg("payment event received")

	member, err := r.repo.GetMemberByID(ctx, msg.MemberID)
	if err != nil {
		if errors.Is(err, repo.ErrMemberNotFound) {
			zlog.Logger.Warn().
				Int64("member_id", msg.MemberID).
				Msg("member of payment event no longer exists")
			return nil
		}
		zlog.Logger.Error().
			Err(err).
			Int64("member_id", msg.MemberID).
			Msg("Failed to get member from DB in worker")
		return err
	}

	if err := r.mail.SendPaymentEmail(member.Email, msg.Status, msg.PaymentID, len(msg.AttendeeIDs)); err != nil {
		zlog.Logger.Warn().
			Err(err).
			Int64("payment_id", msg.PaymentID).
			Msg("Failed to send payment notification e-mail")
	}
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
