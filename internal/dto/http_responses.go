package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"confreg/internal/i18n"
	"confreg/internal/model"
)

const (
	ServiceUnavailable = "SERVICE_UNAVAILABLE"

	Unauthenticated    = "UNAUTHENTICATED"
	Unauthorized       = "UNAUTHORIZED"
	ForgedRequest      = "FORGED_REQUEST"
	MalformedInput     = "MALFORMED_INPUT"
	InvalidProofFile   = "INVALID_PROOF_FILE"
	Forbidden          = "FORBIDDEN"
	NotFound           = "NOT_FOUND"
	AlreadyDecided     = "ALREADY_DECIDED"
	AttendeeNotPayable = "ATTENDEE_NOT_PAYABLE"
	Duplicate          = "DUPLICATE"
)

type DecisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

type CreateHospitalRequest struct {
	Code string `json:"code" validate:"required,hospcode"`
	Name string `json:"name" validate:"required,min=2,max=255"`
}

type CreateAttendeeRequest struct {
	HospitalCode       string `json:"hospital_code" validate:"omitempty,hospcode"`
	RegistrationTypeID int64  `json:"registration_type_id" validate:"required,positive"`
	Title              string `json:"title" validate:"max=32"`
	FirstName          string `json:"first_name" validate:"required,min=1,max=255"`
	LastName           string `json:"last_name" validate:"required,min=1,max=255"`
	Email              string `json:"email" validate:"omitempty,email"`
	Phone              string `json:"phone" validate:"omitempty,max=32"`
}

type CSRFTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PaymentResponse struct {
	ID          int64      `json:"id"`
	MemberID    int64      `json:"member_id"`
	AttendeeIDs []int64    `json:"attendee_ids"`
	ProofURL    string     `json:"proof_url"`
	Status      string     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	PaidDate    *time.Time `json:"paid_date,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy *int64     `json:"confirmed_by,omitempty"`
}

func NewPaymentResponse(p *model.Payment) PaymentResponse {
	ids := p.AttendeeIDs
	if ids == nil {
		ids = []int64{}
	}
	return PaymentResponse{
		ID:          p.ID,
		MemberID:    p.MemberID,
		AttendeeIDs: ids,
		ProofURL:    "/v1/proofs/" + p.FilePath,
		Status:      p.Status,
		SubmittedAt: p.SubmittedAt,
		PaidDate:    p.PaidDate,
		ConfirmedAt: p.ConfirmedAt,
		ConfirmedBy: p.ConfirmedBy,
	}
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportResponse struct {
	Imported    int     `json:"imported"`
	AttendeeIDs []int64 `json:"attendee_ids"`
}

// PaymentEvent is published to the broker after a payment changes status.
type PaymentEvent struct {
	PaymentID   int64     `json:"payment_id"`
	MemberID    int64     `json:"member_id"`
	Status      string    `json:"status"`
	AttendeeIDs []int64   `json:"attendee_ids"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code   string `json:"code"`
	Desc   string `json:"desc"`
	Detail string `json:"detail,omitempty"`
	Rows   any    `json:"rows,omitempty"`
}

// ErrorResponse answers with a localized description of code.
func ErrorResponse(c *ginext.Context, status int, code, detail string) {
	lang := i18n.Lang(c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code:   code,
			Desc:   i18n.Message(lang, code),
			Detail: detail,
		},
	})
}

func ImportRowsError(c *ginext.Context, rows []ImportRowError) {
	lang := i18n.Lang(c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Status: "error",
		Error: &Error{
			Code: MalformedInput,
			Desc: i18n.Message(lang, MalformedInput),
			Rows: rows,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, "")
}

func UnauthenticatedError(c *ginext.Context) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthenticated, "")
}

func UnauthorizedError(c *ginext.Context) {
	ErrorResponse(c, http.StatusForbidden, Unauthorized, "")
}

func ForgedRequestError(c *ginext.Context, detail string) {
	ErrorResponse(c, http.StatusForbidden, ForgedRequest, detail)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	ErrorResponse(c, http.StatusBadRequest, MalformedInput, "Field '"+fieldName+"' has bad format")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
