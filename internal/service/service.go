package service

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"confreg/internal/csrf"
	"confreg/internal/dto"
	"confreg/internal/proof"
	"confreg/internal/repo"
	"confreg/internal/workflow"
)

type Service interface {
	IssueCSRFToken(ctx *ginext.Context)
	Me(ctx *ginext.Context)

	ListHospitals(ctx *ginext.Context)
	CreateHospital(ctx *ginext.Context)
	ListRegistrationTypes(ctx *ginext.Context)

	ListAttendees(ctx *ginext.Context)
	CreateAttendee(ctx *ginext.Context)
	ImportAttendees(ctx *ginext.Context)

	SubmitPayment(ctx *ginext.Context)
	ListPayments(ctx *ginext.Context)
	GetPayment(ctx *ginext.Context)
	DecidePayment(ctx *ginext.Context)
	ServeProof(ctx *ginext.Context)

	ListAuditLogs(ctx *ginext.Context)
}

type service struct {
	repo     repo.Repository
	workflow *workflow.Workflow
	proofs   *proof.Store
	tokens   *csrf.Tokens
	log      *zerolog.Logger
}

func NewService(repo repo.Repository, wf *workflow.Workflow, proofs *proof.Store, tokens *csrf.Tokens, logger *zerolog.Logger) Service {
	return &service{
		repo:     repo,
		workflow: wf,
		proofs:   proofs,
		tokens:   tokens,
		log:      logger,
	}
}

// fail answers with the status and code matching err's class.
func (s *service) fail(ctx *ginext.Context, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, workflow.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, dto.Unauthenticated
	case errors.Is(err, workflow.ErrUnauthorized):
		status, code = http.StatusForbidden, dto.Unauthorized
	case errors.Is(err, workflow.ErrForgedRequest):
		status, code = http.StatusForbidden, dto.ForgedRequest
	case errors.Is(err, workflow.ErrMalformedInput):
		status, code = http.StatusBadRequest, dto.MalformedInput
	case errors.Is(err, workflow.ErrInvalidProofFile):
		status, code = http.StatusBadRequest, dto.InvalidProofFile
	case errors.Is(err, workflow.ErrForbidden):
		status, code = http.StatusForbidden, dto.Forbidden
	case errors.Is(err, workflow.ErrNotFound):
		status, code = http.StatusNotFound, dto.NotFound
	case errors.Is(err, workflow.ErrAlreadyDecided):
		status, code = http.StatusConflict, dto.AlreadyDecided
	case errors.Is(err, workflow.ErrAttendeeNotPayable):
		status, code = http.StatusConflict, dto.AttendeeNotPayable
	case errors.Is(err, repo.ErrDuplicate):
		status, code = http.StatusConflict, dto.Duplicate
	default:
		s.log.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("request failed")
		dto.InternalServerError(ctx)
		return
	}
	dto.ErrorResponse(ctx, status, code, err.Error())
}

func paramID(ctx *ginext.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		dto.FieldBadFormatError(ctx, name)
		return 0, false
	}
	return id, true
}

func queryInt(ctx *ginext.Context, name string) int {
	v, err := strconv.Atoi(ctx.Query(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
