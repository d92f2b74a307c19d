package model

import (
	"encoding/json"
	"time"
)

const AdminMemberType = 99

const (
	AttendeePendingPayment       = "PENDING_PAYMENT"
	AttendeeAwaitingVerification = "AWAITING_VERIFICATION"
	AttendeePaid                 = "PAID"
	AttendeeCancelled            = "CANCELLED"
)

const (
	PaymentPendingReview = "PENDING_REVIEW"
	PaymentApproved      = "APPROVED"
	PaymentRejected      = "REJECTED"
)

type Hospital struct {
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type RegistrationType struct {
	ID        int64  `db:"id" json:"id"`
	Code      string `db:"code" json:"code"`
	Name      string `db:"name" json:"name"`
	FeeSatang int64  `db:"fee_satang" json:"fee_satang"`
}

type Member struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	HospitalCode *string   `db:"hospital_code" json:"hospital_code,omitempty"`
	MemberType   int       `db:"member_type" json:"member_type"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Attendee struct {
	ID                 int64     `db:"id" json:"id"`
	HospitalCode       *string   `db:"hospital_code" json:"hospital_code,omitempty"`
	RegistrationTypeID int64     `db:"registration_type_id" json:"registration_type_id"`
	Title              string    `db:"title" json:"title"`
	FirstName          string    `db:"first_name" json:"first_name"`
	LastName           string    `db:"last_name" json:"last_name"`
	Email              string    `db:"email" json:"email,omitempty"`
	Phone              string    `db:"phone" json:"phone,omitempty"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Payment is one proof-of-payment submission. AttendeeIDs keeps the order in
// which the attendees were submitted.
type Payment struct {
	ID          int64      `db:"id" json:"id"`
	MemberID    int64      `db:"member_id" json:"member_id"`
	AttendeeIDs []int64    `json:"attendee_ids"`
	FilePath    string     `db:"file_path" json:"file_path"`
	Status      string     `db:"status" json:"status"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submitted_at"`
	PaidDate    *time.Time `db:"paid_date" json:"paid_date,omitempty"`
	ConfirmedAt *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ConfirmedBy *int64     `db:"confirmed_by" json:"confirmed_by,omitempty"`
}

type AuditLog struct {
	ID            int64           `db:"id" json:"id"`
	ActorMemberID int64           `db:"actor_member_id" json:"actor_member_id"`
	Action        string          `db:"action" json:"action"`
	Entity        string          `db:"entity" json:"entity"`
	EntityID      int64           `db:"entity_id" json:"entity_id"`
	Detail        json.RawMessage `db:"detail" json:"detail,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
