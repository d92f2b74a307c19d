package service

import (
	"fmt"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"confreg/internal/dto"
	"confreg/internal/model"
	"confreg/internal/repo"
	"confreg/internal/session"
	"confreg/internal/workflow"
	"confreg/pkg/validator"
)

func (s *service) IssueCSRFToken(ctx *ginext.Context) {
	token, expiresAt, err := s.tokens.Issue()
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "no-store")
	dto.SuccessResponse(ctx, dto.CSRFTokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *service) Me(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)
	member, err := s.repo.GetMemberByID(ctx.Request.Context(), actor.MemberID)
	if err != nil {
		s.fail(ctx, notFoundOr(err, repo.ErrMemberNotFound))
		return
	}
	dto.SuccessResponse(ctx, member)
}

func (s *service) ListHospitals(ctx *ginext.Context) {
	hospitals, err := s.repo.ListHospitals(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, hospitals)
}

func (s *service) CreateHospital(ctx *ginext.Context) {
	var req dto.CreateHospitalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.fail(ctx, fmt.Errorf("%w: invalid JSON body", workflow.ErrMalformedInput))
		return
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if verr := validator.Validate(ctx.Request.Context(), req); verr != nil {
		s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrMalformedInput, verr))
		return
	}

	h := model.Hospital{Code: req.Code, Name: req.Name}
	if err := s.repo.CreateHospital(ctx.Request.Context(), &h); err != nil {
		s.fail(ctx, err)
		return
	}
	s.log.Info().Str("hospital", h.Code).Msg("hospital created")
	dto.SuccessCreatedResponse(ctx, h)
}

func (s *service) ListRegistrationTypes(ctx *ginext.Context) {
	types, err := s.repo.ListRegistrationTypes(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, types)
}

func (s *service) ListAuditLogs(ctx *ginext.Context) {
	logs, err := s.repo.ListAuditLogs(ctx.Request.Context(), queryInt(ctx, "limit"))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, logs)
}
