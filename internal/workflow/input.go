package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"confreg/internal/model"
)

const maxAttendeesPerPayment = 500

// SubmissionForm holds the raw multipart fields of a payment submission.
type SubmissionForm struct {
	AttendeeIDs string
	MemberID    string
	PaidDate    string
}

type SubmissionInput struct {
	AttendeeIDs []int64
	MemberID    int64
	PaidDate    *time.Time
}

var paidDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func ParseSubmission(form SubmissionForm) (SubmissionInput, error) {
	ids, err := ParseIDList(form.AttendeeIDs)
	if err != nil {
		return SubmissionInput{}, err
	}

	memberID, err := parsePositiveID(form.MemberID)
	if err != nil {
		return SubmissionInput{}, fmt.Errorf("%w: memberId: %v", ErrMalformedInput, err)
	}

	in := SubmissionInput{AttendeeIDs: ids, MemberID: memberID}
	if s := strings.TrimSpace(form.PaidDate); s != "" {
		t, err := ParsePaidDate(s)
		if err != nil {
			return SubmissionInput{}, err
		}
		in.PaidDate = &t
	}
	return in, nil
}

// ParseIDList parses a comma separated list of distinct positive IDs.
func ParseIDList(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: attendeeIds is empty", ErrMalformedInput)
	}
	parts := strings.Split(s, ",")
	if len(parts) > maxAttendeesPerPayment {
		return nil, fmt.Errorf("%w: too many attendees (max %d)", ErrMalformedInput, maxAttendeesPerPayment)
	}

	ids := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, p := range parts {
		id, err := parsePositiveID(p)
		if err != nil {
			return nil, fmt.Errorf("%w: attendeeIds: %v", ErrMalformedInput, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: attendeeIds: duplicate id %d", ErrMalformedInput, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func ParsePaidDate(s string) (time.Time, error) {
	for _, layout := range paidDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: paidDate %q is not a valid date", ErrMalformedInput, s)
}

func parsePositiveID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%d is not positive", id)
	}
	return id, nil
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(action string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(action))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	default:
		return "", fmt.Errorf("%w: action must be approve or reject", ErrMalformedInput)
	}
}

func (d Decision) PaymentStatus() string {
	if d == DecisionApprove {
		return model.PaymentApproved
	}
	return model.PaymentRejected
}

func (d Decision) AttendeeStatus() string {
	if d == DecisionApprove {
		return model.AttendeePaid
	}
	return model.AttendeePendingPayment
}
