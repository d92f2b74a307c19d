package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"confreg/internal/dto"
	"confreg/internal/model"
	"confreg/internal/proof"
	"confreg/internal/repo"
)

// PaymentStore is the persistence the payment workflow needs.
type PaymentStore interface {
	GetMemberByID(ctx context.Context, id int64) (*model.Member, error)
	GetAttendeesByIDs(ctx context.Context, ids []int64) ([]model.Attendee, error)
	CreatePaymentTx(ctx context.Context, p repo.NewPayment) (*model.Payment, error)
	DecidePaymentTx(ctx context.Context, d repo.PaymentDecision) (*model.Payment, error)
}

type ProofStore interface {
	Validate(f *proof.File) error
	Save(f *proof.File) (string, error)
	Remove(name string) error
}

type Notifier interface {
	NotifyPayment(ctx context.Context, ev dto.PaymentEvent) error
}

// Workflow moves payments and their attendees through the submission and
// review states.
type Workflow struct {
	store    PaymentStore
	proofs   ProofStore
	notifier Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

func New(store PaymentStore, proofs ProofStore, notifier Notifier, log *zerolog.Logger) *Workflow {
	return &Workflow{
		store:    store,
		proofs:   proofs,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Submit records a proof of payment for a batch of attendees. Nothing is
// written unless every check passes.
func (w *Workflow) Submit(ctx context.Context, actor *Actor, in SubmissionInput, file *proof.File) (*model.Payment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if len(in.AttendeeIDs) == 0 || in.MemberID <= 0 {
		return nil, fmt.Errorf("%w: attendeeIds and memberId are required", ErrMalformedInput)
	}
	for _, id := range in.AttendeeIDs {
		if id <= 0 {
			return nil, fmt.Errorf("%w: attendee id %d is not positive", ErrMalformedInput, id)
		}
	}

	if err := w.proofs.Validate(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProofFile, err)
	}

	if err := w.checkOwnership(ctx, *actor, in); err != nil {
		return nil, err
	}

	name, err := w.proofs.Save(file)
	if err != nil {
		if isProofRejection(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProofFile, err)
		}
		w.log.Error().Err(err).Int64("member_id", actor.MemberID).Msg("failed to store proof file")
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	np := repo.NewPayment{
		MemberID:     in.MemberID,
		AttendeeIDs:  in.AttendeeIDs,
		FilePath:     name,
		PaidDate:     in.PaidDate,
		HospitalCode: actor.HospitalCode,
		Unrestricted: actor.IsAdmin(),
		ActorID:      actor.MemberID,
	}

	payment, err := w.store.CreatePaymentTx(ctx, np)
	if err != nil {
		if rmErr := w.proofs.Remove(name); rmErr != nil {
			w.log.Warn().Err(rmErr).Str("file", name).Msg("failed to remove orphaned proof file")
		}
		return nil, mapStoreError(err)
	}

	w.log.Info().
		Int64("payment_id", payment.ID).
		Int64("member_id", payment.MemberID).
		Int64("actor_id", actor.MemberID).
		Ints64("attendee_ids", payment.AttendeeIDs).
		Msg("payment submitted")

	w.notify(ctx, payment)
	return payment, nil
}

func (w *Workflow) checkOwnership(ctx context.Context, actor Actor, in SubmissionInput) error {
	if actor.IsAdmin() {
		if _, err := w.store.GetMemberByID(ctx, in.MemberID); err != nil {
			if errors.Is(err, repo.ErrMemberNotFound) {
				return fmt.Errorf("%w: member %d", ErrNotFound, in.MemberID)
			}
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	} else if in.MemberID != actor.MemberID {
		return fmt.Errorf("%w: cannot submit on behalf of member %d", ErrForbidden, in.MemberID)
	}

	attendees, err := w.store.GetAttendeesByIDs(ctx, in.AttendeeIDs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(attendees) != len(in.AttendeeIDs) {
		if !actor.IsAdmin() {
			return fmt.Errorf("%w: attendee outside your hospital", ErrForbidden)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, missingIDs(in.AttendeeIDs, attendees))
	}
	if err := AuthorizeBatch(actor, attendees); err != nil {
		return fmt.Errorf("%w: attendee outside your hospital", err)
	}
	for _, a := range attendees {
		if a.Status != model.AttendeePendingPayment {
			return fmt.Errorf("%w: attendee %d is %s", ErrAttendeeNotPayable, a.ID, a.Status)
		}
	}
	return nil
}

// Decide approves or rejects a payment under review. A payment leaves
// PENDING_REVIEW exactly once; later decisions fail with ErrAlreadyDecided.
func (w *Workflow) Decide(ctx context.Context, actor *Actor, paymentID int64, decision Decision) (*model.Payment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if paymentID <= 0 {
		return nil, fmt.Errorf("%w: payment id", ErrMalformedInput)
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrMalformedInput, decision)
	}

	payment, err := w.store.DecidePaymentTx(ctx, repo.PaymentDecision{
		PaymentID:      paymentID,
		Status:         decision.PaymentStatus(),
		AttendeeStatus: decision.AttendeeStatus(),
		ConfirmedBy:    actor.MemberID,
		ConfirmedAt:    w.now().UTC(),
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	w.log.Info().
		Int64("payment_id", payment.ID).
		Int64("admin_id", actor.MemberID).
		Str("status", payment.Status).
		Ints64("attendee_ids", payment.AttendeeIDs).
		Msg("payment decided")

	w.notify(ctx, payment)
	return payment, nil
}

func (w *Workflow) notify(ctx context.Context, p *model.Payment) {
	if w.notifier == nil {
		return
	}
	ev := dto.PaymentEvent{
		PaymentID:   p.ID,
		MemberID:    p.MemberID,
		Status:      p.Status,
		AttendeeIDs: p.AttendeeIDs,
		OccurredAt:  w.now().UTC(),
	}
	if err := w.notifier.NotifyPayment(ctx, ev); err != nil {
		w.log.Warn().Err(err).Int64("payment_id", p.ID).Msg("failed to publish payment event")
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repo.ErrPaymentNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repo.ErrPaymentAlreadyDecided):
		return fmt.Errorf("%w: %v", ErrAlreadyDecided, err)
	case errors.Is(err, repo.ErrAttendeeOutOfScope):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	case errors.Is(err, repo.ErrAttendeeNotPayable):
		return fmt.Errorf("%w: %v", ErrAttendeeNotPayable, err)
	case errors.Is(err, repo.ErrAttendeeNotFound), errors.Is(err, repo.ErrMemberNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}

func isProofRejection(err error) bool {
	return errors.Is(err, proof.ErrMissing) || errors.Is(err, proof.ErrTooLarge) ||
		errors.Is(err, proof.ErrType) || errors.Is(err, proof.ErrContent)
}

func missingIDs(want []int64, got []model.Attendee) string {
	have := make(map[int64]struct{}, len(got))
	for _, a := range got {
		have[a.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return fmt.Sprintf("attendees %v", missing)
}
