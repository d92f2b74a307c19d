package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"confreg/internal/dto"
	"confreg/internal/importer"
	"confreg/internal/model"
	"confreg/internal/repo"
	"confreg/internal/session"
	"confreg/internal/workflow"
	"confreg/pkg/validator"
)

const maxImportBytes = 2 << 20

func (s *service) ListAttendees(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)

	status := strings.ToUpper(ctx.Query("status"))
	switch status {
	case "", model.AttendeePendingPayment, model.AttendeeAwaitingVerification, model.AttendeePaid, model.AttendeeCancelled:
	default:
		s.fail(ctx, fmt.Errorf("%w: unknown status %q", workflow.ErrMalformedInput, status))
		return
	}

	filter := repo.AttendeeFilter{
		Status: status,
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}
	if actor.IsAdmin() {
		filter.HospitalCode = strings.ToUpper(ctx.Query("hospital"))
	} else {
		if actor.HospitalCode == "" {
			dto.SuccessResponse(ctx, []model.Attendee{})
			return
		}
		filter.HospitalCode = actor.HospitalCode
	}

	attendees, err := s.repo.ListAttendees(ctx.Request.Context(), filter)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	if attendees == nil {
		attendees = []model.Attendee{}
	}
	dto.SuccessResponse(ctx, attendees)
}

func (s *service) CreateAttendee(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)

	var req dto.CreateAttendeeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.fail(ctx, fmt.Errorf("%w: invalid JSON body", workflow.ErrMalformedInput))
		return
	}
	req.HospitalCode = strings.ToUpper(strings.TrimSpace(req.HospitalCode))
	if verr := validator.Validate(ctx.Request.Context(), req); verr != nil {
		s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrMalformedInput, verr))
		return
	}

	a := model.Attendee{
		RegistrationTypeID: req.RegistrationTypeID,
		Title:              req.Title,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Email:              req.Email,
		Phone:              req.Phone,
		Status:             model.AttendeePendingPayment,
	}
	switch {
	case !actor.IsAdmin():
		if actor.HospitalCode == "" || (req.HospitalCode != "" && req.HospitalCode != actor.HospitalCode) {
			s.fail(ctx, fmt.Errorf("%w: attendees can only be registered for your own hospital", workflow.ErrForbidden))
			return
		}
		hospital := actor.HospitalCode
		a.HospitalCode = &hospital
	case req.HospitalCode != "":
		a.HospitalCode = &req.HospitalCode
	}

	id, err := s.repo.CreateAttendee(ctx.Request.Context(), &a, actor.MemberID)
	if err != nil {
		s.fail(ctx, referenceError(err))
		return
	}
	a.ID = id

	s.log.Info().Int64("attendee_id", id).Int64("member_id", actor.MemberID).Msg("attendee registered")
	dto.SuccessCreatedResponse(ctx, a)
}

// ImportAttendees registers every row of an uploaded CSV file or none of them.
func (s *service) ImportAttendees(ctx *ginext.Context) {
	actor := session.ActorFrom(ctx)

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxImportBytes)
	fh, err := ctx.FormFile("file")
	if err != nil {
		s.fail(ctx, fmt.Errorf("%w: csv file is required", workflow.ErrMalformedInput))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(ctx, err)
		return
	}
	defer f.Close()

	types, err := s.repo.ListRegistrationTypes(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	byCode := make(map[string]int64, len(types))
	for _, t := range types {
		byCode[strings.ToUpper(t.Code)] = t.ID
	}

	attendees, rowErrs, err := importer.Parse(ctx.Request.Context(), f, *actor, byCode)
	if err != nil {
		s.fail(ctx, fmt.Errorf("%w: %v", workflow.ErrMalformedInput, err))
		return
	}
	if len(rowErrs) > 0 {
		dto.ImportRowsError(ctx, rowErrs)
		return
	}

	ids, err := s.repo.ImportAttendeesTx(ctx.Request.Context(), attendees, actor.MemberID)
	if err != nil {
		s.fail(ctx, referenceError(err))
		return
	}

	s.log.Info().Int("rows", len(ids)).Int64("member_id", actor.MemberID).Msg("attendees imported")
	dto.SuccessCreatedResponse(ctx, dto.ImportResponse{Imported: len(ids), AttendeeIDs: ids})
}

// referenceError turns unknown hospital or registration type references into
// input errors.
func referenceError(err error) error {
	if errors.Is(err, repo.ErrHospitalNotFound) || errors.Is(err, repo.ErrRegistrationType) {
		return fmt.Errorf("%w: %v", workflow.ErrMalformedInput, err)
	}
	return err
}
