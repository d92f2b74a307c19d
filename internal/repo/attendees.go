package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"confreg/internal/model"
)

type AttendeeFilter struct {
	HospitalCode string
	Status       string
	Limit        int
	Offset       int
}

const attendeeColumns = `
	id, hospital_code, registration_type_id, title, first_name, last_name,
	email, phone, status, created_at, updated_at
`

func scanAttendee(row rowScanner) (*model.Attendee, error) {
	var (
		a        model.Attendee
		hospital sql.NullString
	)
	if err := row.Scan(
		&a.ID, &hospital, &a.RegistrationTypeID, &a.Title, &a.FirstName, &a.LastName,
		&a.Email, &a.Phone, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if hospital.Valid {
		a.HospitalCode = &hospital.String
	}
	return &a, nil
}

// GetAttendeesByIDs returns the attendees that exist among ids; missing IDs
// are simply absent from the result.
func (r *repository) GetAttendeesByIDs(ctx context.Context, ids []int64) ([]model.Attendee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM attendees
		WHERE id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

func (r *repository) ListAttendees(ctx context.Context, f AttendeeFilter) ([]model.Attendee, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM attendees
		WHERE ($1 = '' OR hospital_code = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY id
		LIMIT $3 OFFSET $4
	`, f.HospitalCode, f.Status, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendees: %w", err)
	}
	defer rows.Close()

	attendees := []model.Attendee{}
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

func (r *repository) CreateAttendee(ctx context.Context, a *model.Attendee, actorID int64) (int64, error) {
	ids, err := r.ImportAttendeesTx(ctx, []model.Attendee{*a}, actorID)
	if err != nil {
		return 0, err
	}
	a.ID = ids[0]
	return ids[0], nil
}

// ImportAttendeesTx inserts every attendee in PENDING_PAYMENT or none of them.
func (r *repository) ImportAttendeesTx(ctx context.Context, attendees []model.Attendee, actorID int64) ([]int64, error) {
	if len(attendees) == 0 {
		return nil, nil
	}

	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	ids := make([]int64, 0, len(attendees))
	for i, a := range attendees {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO attendees (hospital_code, registration_type_id, title, first_name, last_name,
			                       email, phone, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			RETURNING id
		`, a.HospitalCode, a.RegistrationTypeID, a.Title, a.FirstName, a.LastName,
			a.Email, a.Phone, model.AttendeePendingPayment).Scan(&id)
		if err != nil {
			_ = tx.Rollback()
			if mapped := attendeeConstraintError(err); mapped != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, mapped)
			}
			return nil, fmt.Errorf("failed to insert attendee: %w", err)
		}
		ids = append(ids, id)
	}

	if err := insertAudit(ctx, tx, actorID, "attendee.created", "attendee", ids[0], map[string]any{
		"attendee_ids": ids,
	}); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

func attendeeConstraintError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != foreignKeyViolation {
		return nil
	}
	switch pqErr.Constraint {
	case "attendees_hospital_code_fkey":
		return ErrHospitalNotFound
	case "attendees_registration_type_id_fkey":
		return ErrRegistrationType
	}
	return nil
}
