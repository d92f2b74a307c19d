package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg/internal/dto"
	"confreg/internal/model"
	"confreg/internal/proof"
	"confreg/internal/repo"
)

type fakeStore struct {
	members   map[int64]*model.Member
	attendees map[int64]model.Attendee

	created   []repo.NewPayment
	createErr error

	decisions []repo.PaymentDecision
	decided   map[int64]bool
}

func newFakeStore() *fakeStore {
	h1, h2 := "H001", "H002"
	return &fakeStore{
		members: map[int64]*model.Member{
			42: {ID: 42, Email: "m42@h001.example", HospitalCode: &h1},
			7:  {ID: 7, Email: "admin@example", MemberType: model.AdminMemberType},
		},
		attendees: map[int64]model.Attendee{
			101: {ID: 101, HospitalCode: &h1, Status: model.AttendeePendingPayment},
			102: {ID: 102, HospitalCode: &h1, Status: model.AttendeePendingPayment},
			103: {ID: 103, HospitalCode: &h1, Status: model.AttendeeAwaitingVerification},
			201: {ID: 201, HospitalCode: &h2, Status: model.AttendeePendingPayment},
		},
		decided: map[int64]bool{},
	}
}

func (f *fakeStore) GetMemberByID(_ context.Context, id int64) (*model.Member, error) {
	m, ok := f.members[id]
	if !ok {
		return nil, repo.ErrMemberNotFound
	}
	return m, nil
}

func (f *fakeStore) GetAttendeesByIDs(_ context.Context, ids []int64) ([]model.Attendee, error) {
	var out []model.Attendee
	for _, id := range ids {
		if a, ok := f.attendees[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) CreatePaymentTx(_ context.Context, p repo.NewPayment) (*model.Payment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, p)
	for _, id := range p.AttendeeIDs {
		a := f.attendees[id]
		a.Status = model.AttendeeAwaitingVerification
		f.attendees[id] = a
	}
	return &model.Payment{
		ID:          int64(len(f.created)),
		MemberID:    p.MemberID,
		AttendeeIDs: p.AttendeeIDs,
		FilePath:    p.FilePath,
		Status:      model.PaymentPendingReview,
		SubmittedAt: time.Now(),
		PaidDate:    p.PaidDate,
	}, nil
}

func (f *fakeStore) DecidePaymentTx(_ context.Context, d repo.PaymentDecision) (*model.Payment, error) {
	if d.PaymentID > int64(len(f.created)) {
		return nil, repo.ErrPaymentNotFound
	}
	if f.decided[d.PaymentID] {
		return nil, repo.ErrPaymentAlreadyDecided
	}
	f.decided[d.PaymentID] = true
	f.decisions = append(f.decisions, d)

	np := f.created[d.PaymentID-1]
	for _, id := range np.AttendeeIDs {
		a := f.attendees[id]
		if a.Status != model.AttendeeCancelled {
			a.Status = d.AttendeeStatus
			f.attendees[id] = a
		}
	}
	at := d.ConfirmedAt
	by := d.ConfirmedBy
	return &model.Payment{
		ID:          d.PaymentID,
		MemberID:    np.MemberID,
		AttendeeIDs: np.AttendeeIDs,
		FilePath:    np.FilePath,
		Status:      d.Status,
		ConfirmedAt: &at,
		ConfirmedBy: &by,
	}, nil
}

type fakeNotifier struct {
	events []dto.PaymentEvent
	err    error
}

func (n *fakeNotifier) NotifyPayment(_ context.Context, ev dto.PaymentEvent) error {
	n.events = append(n.events, ev)
	return n.err
}

var (
	member = &Actor{MemberID: 42, HospitalCode: "H001", MemberType: 1}
	admin  = &Actor{MemberID: 7, MemberType: model.AdminMemberType}
)

func slip() *proof.File {
	body := make([]byte, 256)
	copy(body, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return &proof.File{Name: "slip.png", ContentType: "image/png", Size: int64(len(body)), Content: bytes.NewReader(body)}
}

type harness struct {
	wf       *Workflow
	store    *fakeStore
	notifier *fakeNotifier
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	proofs, err := proof.NewStore(dir, 0)
	require.NoError(t, err)
	store := newFakeStore()
	n := &fakeNotifier{}
	log := zerolog.Nop()
	wf := New(store, proofs, n, &log)
	wf.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	return &harness{wf: wf, store: store, notifier: n, dir: dir}
}

func (h *harness) storedFiles(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	return len(entries)
}

func TestSubmitOwnHospital(t *testing.T) {
	h := newHarness(t)
	paid := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)

	p, err := h.wf.Submit(context.Background(), member, SubmissionInput{AttendeeIDs: []int64{101, 102}, MemberID: 42, PaidDate: &paid}, slip())
	require.NoError(t, err)

	assert.Equal(t, model.PaymentPendingReview, p.Status)
	assert.Equal(t, []int64{101, 102}, p.AttendeeIDs)
	assert.Equal(t, &paid, p.PaidDate)
	assert.Equal(t, 1, h.storedFiles(t))

	require.Len(t, h.store.created, 1)
	assert.Equal(t, "H001", h.store.created[0].HospitalCode)
	assert.False(t, h.store.created[0].Unrestricted)
	assert.Equal(t, int64(42), h.store.created[0].ActorID)
	assert.Equal(t, model.AttendeeAwaitingVerification, h.store.attendees[101].Status)

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, model.PaymentPendingReview, h.notifier.events[0].Status)
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name    string
		actor   *Actor
		in      SubmissionInput
		file    *proof.File
		wantErr error
	}{
		{"anonymous", nil, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 42}, slip(), ErrUnauthenticated},
		{"no attendees", member, SubmissionInput{MemberID: 42}, slip(), ErrMalformedInput},
		{"bad proof", member, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 42},
			&proof.File{Name: "slip.exe", ContentType: "application/octet-stream", Size: 10, Content: bytes.NewReader(make([]byte, 10))}, ErrInvalidProofFile},
		{"other hospital attendee", member, SubmissionInput{AttendeeIDs: []int64{101, 201}, MemberID: 42}, slip(), ErrForbidden},
		{"on behalf of another member", member, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 43}, slip(), ErrForbidden},
		{"member unknown attendee", member, SubmissionInput{AttendeeIDs: []int64{999}, MemberID: 42}, slip(), ErrForbidden},
		{"admin unknown attendee", admin, SubmissionInput{AttendeeIDs: []int64{999}, MemberID: 42}, slip(), ErrNotFound},
		{"admin unknown member", admin, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 404}, slip(), ErrNotFound},
		{"already submitted", member, SubmissionInput{AttendeeIDs: []int64{101, 103}, MemberID: 42}, slip(), ErrAttendeeNotPayable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.wf.Submit(context.Background(), tt.actor, tt.in, tt.file)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, h.store.created)
			assert.Zero(t, h.storedFiles(t))
			assert.Empty(t, h.notifier.events)
		})
	}
}

func TestSubmitAdminAcrossHospitals(t *testing.T) {
	h := newHarness(t)

	p, err := h.wf.Submit(context.Background(), admin, SubmissionInput{AttendeeIDs: []int64{102, 201}, MemberID: 42}, slip())
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.MemberID)
	assert.True(t, h.store.created[0].Unrestricted)
	assert.Equal(t, int64(7), h.store.created[0].ActorID)
}

func TestSubmitRemovesFileWhenPersistenceFails(t *testing.T) {
	h := newHarness(t)
	h.store.createErr = repo.ErrAttendeeNotPayable

	_, err := h.wf.Submit(context.Background(), member, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 42}, slip())
	assert.ErrorIs(t, err, ErrAttendeeNotPayable)
	assert.Zero(t, h.storedFiles(t))

	h.store.createErr = errors.New("connection reset")
	_, err = h.wf.Submit(context.Background(), member, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 42}, slip())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, h.storedFiles(t))
}

func TestSubmitIgnoresNotifierFailure(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("broker down")

	_, err := h.wf.Submit(context.Background(), member, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 42}, slip())
	assert.NoError(t, err)
}

func TestDecideApproveThenAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wf.Submit(ctx, member, SubmissionInput{AttendeeIDs: []int64{101, 102}, MemberID: 42}, slip())
	require.NoError(t, err)

	p, err := h.wf.Decide(ctx, admin, 1, DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentApproved, p.Status)
	assert.Equal(t, int64(7), *p.ConfirmedBy)
	assert.Equal(t, h.wf.now().UTC(), *p.ConfirmedAt)
	assert.Equal(t, model.AttendeePaid, h.store.attendees[101].Status)
	assert.Equal(t, model.AttendeePaid, h.store.attendees[102].Status)

	_, err = h.wf.Decide(ctx, admin, 1, DecisionReject)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.Equal(t, model.AttendeePaid, h.store.attendees[101].Status)

	require.Len(t, h.notifier.events, 2)
	assert.Equal(t, model.PaymentApproved, h.notifier.events[1].Status)
}

func TestDecideRejectReopensAttendees(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wf.Submit(ctx, member, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 42}, slip())
	require.NoError(t, err)

	p, err := h.wf.Decide(ctx, admin, 1, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRejected, p.Status)
	assert.Equal(t, model.AttendeePendingPayment, h.store.attendees[101].Status)

	_, err = h.wf.Submit(ctx, member, SubmissionInput{AttendeeIDs: []int64{101}, MemberID: 42}, slip())
	assert.NoError(t, err)
}

func TestDecideRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wf.Decide(ctx, nil, 1, DecisionApprove)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = h.wf.Decide(ctx, member, 1, DecisionApprove)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.wf.Decide(ctx, admin, 0, DecisionApprove)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = h.wf.Decide(ctx, admin, 1, Decision("maybe"))
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = h.wf.Decide(ctx, admin, 99, DecisionApprove)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, h.store.decisions)
}
