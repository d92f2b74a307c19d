package workflow

import "confreg/internal/model"

// Actor is the authenticated member a request acts on behalf of.
type Actor struct {
	MemberID     int64  `json:"member_id"`
	HospitalCode string `json:"hospital_code,omitempty"`
	MemberType   int    `json:"member_type"`
}

func (a Actor) IsAdmin() bool {
	return a.MemberType == model.AdminMemberType
}

// CanActOn reports whether the actor may act on the attendee: administrators
// may act on anyone, other members only on attendees of their own hospital.
func CanActOn(actor Actor, attendee model.Attendee) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.HospitalCode == "" || attendee.HospitalCode == nil {
		return false
	}
	return *attendee.HospitalCode == actor.HospitalCode
}

// AuthorizeBatch passes only when every attendee passes CanActOn.
func AuthorizeBatch(actor Actor, attendees []model.Attendee) error {
	for _, a := range attendees {
		if !CanActOn(actor, a) {
			return ErrForbidden
		}
	}
	return nil
}
