package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"confreg/internal/dto"
	"confreg/internal/model"
	"confreg/internal/proof"
	"confreg/internal/repo"
	"confreg/internal/session"
	"confreg/internal/workflow"
	"confreg/pkg/validator"
)

// multipartOverhead leaves room for the form fields and part headers around the file.
const multipartOverhead = 1 << 20

func (s *service) SubmitPayment(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)
	if actor == nil {
		s.fail(ctx, workflow.ErrUnauthenticated)
		return
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, s.proofs.MaxBytes()+multipartOverhead)
	up, err := readSubmission(ctx.Request, s.proofs.MaxBytes())
	if err != nil {
		s.fail(ctx, err)
		return
	}

	// Field errors win over file errors unless the body was cut off before
	// the fields arrived.
	in, err := workflow.ParseSubmission(up.form)
	if err != nil && !(up.truncated && !up.fieldsComplete()) {
		s.fail(ctx, err)
		return
	}
	if up.tooLarge || up.truncated {
		s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrInvalidProofFile, proof.ErrTooLarge))
		return
	}
	if up.file == nil {
		s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrInvalidProofFile, proof.ErrMissing))
		return
	}

	payment, err := s.workflow.Submit(ctx.Request.Context(), actor, in, up.file)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	dto.SuccessCreatedResponse(ctx, dto.NewPaymentResponse(payment))
}

func (s *service) DecidePayment(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)
	if actor == nil {
		s.fail(ctx, workflow.ErrUnauthenticated)
		return
	}
	if !actor.IsAdmin() {
		s.fail(ctx, workflow.ErrUnauthorized)
		return
	}

	paymentID, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.fail(ctx, fmt.Errorf("%w: invalid JSON body", workflow.ErrMalformedInput))
		return
	}
	if verr := validator.Validate(ctx.Request.Context(), req); verr != nil {
		s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrMalformedInput, verr))
		return
	}
	decision, err := workflow.ParseDecision(req.Action)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	payment, err := s.workflow.Decide(ctx.Request.Context(), actor, paymentID, decision)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	dto.SuccessResponse(ctx, dto.NewPaymentResponse(payment))
}

func (s *service) GetPayment(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)
	paymentID, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	if !actor.IsAdmin() {
		hospital, err := s.repo.GetPaymentHospital(ctx.Request.Context(), paymentID)
		if err != nil {
			s.fail(ctx, notFoundOr(err, repo.ErrPaymentNotFound))
			return
		}
		if hospital == "" || hospital != actor.HospitalCode {
			s.fail(ctx, fmt.Errorf("%w: payment %d belongs to another hospital", workflow.ErrForbidden, paymentID))
			return
		}
	}

	payment, err := s.repo.GetPaymentByID(ctx.Request.Context(), paymentID)
	if err != nil {
		s.fail(ctx, notFoundOr(err, repo.ErrPaymentNotFound))
		return
	}
	dto.SuccessResponse(ctx, dto.NewPaymentResponse(payment))
}

func (s *service) ListPayments(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)

	status := strings.ToUpper(ctx.Query("status"))
	switch status {
	case "", model.PaymentPendingReview, model.PaymentApproved, model.PaymentRejected:
	default:
		s.fail(ctx, fmt.Errorf("%w: unknown status %q", workflow.ErrMalformedInput, status))
		return
	}

	filter := repo.PaymentFilter{
		Status: status,
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}
	if actor.IsAdmin() {
		filter.HospitalCode = strings.ToUpper(ctx.Query("hospital"))
	} else {
		if actor.HospitalCode == "" {
			dto.SuccessResponse(ctx, []dto.PaymentResponse{})
			return
		}
		filter.HospitalCode = actor.HospitalCode
	}

	payments, err := s.repo.ListPayments(ctx.Request.Context(), filter)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	resp := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, dto.NewPaymentResponse(&payments[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

// ServeProof streams a stored payment slip to an authenticated user.
func (s *service) ServeProof(ctx *ginext.Context) {
	name := ctx.Param("name")
	f, contentType, err := s.proofs.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, proof.ErrInvalidName):
			s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrMalformedInput, err))
		case errors.Is(err, proof.ErrFileNotExists):
			s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrNotFound, err))
		default:
			s.fail(ctx, err)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.fail(ctx, err)
		return
	}

	ctx.Header("Content-Type", contentType)
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(ctx.Writer, ctx.Request, name, info.ModTime(), f)
}

func notFoundOr(err, notFound error) error {
	if errors.Is(err, notFound) {
		return fmt.Errorf("%w: %v", workflow.ErrNotFound, err)
	}
	return err
}
