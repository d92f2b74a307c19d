package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"confreg/internal/model"
)

// NewPayment is a validated submission ready to be persisted.
type NewPayment struct {
	MemberID    int64
	AttendeeIDs []int64
	FilePath    string
	PaidDate    *time.Time
	// HospitalCode limits the attendees that may be referenced unless
	// Unrestricted is set. An empty code with Unrestricted unset matches nothing.
	HospitalCode string
	Unrestricted bool
	ActorID      int64
}

type PaymentDecision struct {
	PaymentID      int64
	Status         string
	AttendeeStatus string
	ConfirmedBy    int64
	ConfirmedAt    time.Time
}

type PaymentFilter struct {
	Status       string
	HospitalCode string
	Limit        int
	Offset       int
}

// CreatePaymentTx locks the referenced attendees, checks that each one is in
// scope and still waiting for payment, then inserts the payment, its attendee
// links, the attendee status change and the audit row in one transaction.
func (r *repository) CreatePaymentTx(ctx context.Context, p NewPayment) (*model.Payment, error) {
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

	rows, err := tx.QueryContext(ctx, `
		SELECT id, hospital_code, status
		FROM attendees
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(p.AttendeeIDs))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to lock attendees: %w", err)
	}

	found := 0
	var scanErr error
	for rows.Next() {
		var (
			id       int64
			hospital sql.NullString
			status   string
		)
		if err := rows.Scan(&id, &hospital, &status); err != nil {
			scanErr = fmt.Errorf("failed to scan attendee: %w", err)
			break
		}
		if !p.Unrestricted && (p.HospitalCode == "" || !hospital.Valid || hospital.String != p.HospitalCode) {
			scanErr = fmt.Errorf("%w: attendee %d", ErrAttendeeOutOfScope, id)
			break
		}
		if status != model.AttendeePendingPayment {
			scanErr = fmt.Errorf("%w: attendee %d is %s", ErrAttendeeNotPayable, id, status)
			break
		}
		found++
	}
	if scanErr == nil {
		if err := rows.Err(); err != nil {
			scanErr = fmt.Errorf("failed to read attendees: %w", err)
		}
	}
	_ = rows.Close()
	if scanErr != nil {
		_ = tx.Rollback()
		return nil, scanErr
	}
	if found != len(p.AttendeeIDs) {
		_ = tx.Rollback()
		if !p.Unrestricted {
			return nil, ErrAttendeeOutOfScope
		}
		return nil, ErrAttendeeNotFound
	}

	payment := &model.Payment{
		MemberID:    p.MemberID,
		AttendeeIDs: p.AttendeeIDs,
		FilePath:    p.FilePath,
		Status:      model.PaymentPendingReview,
		PaidDate:    p.PaidDate,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (member_id, file_path, status, submitted_at, paid_date)
		VALUES ($1, $2, $3, NOW(), $4)
		RETURNING id, submitted_at
	`, p.MemberID, p.FilePath, payment.Status, p.PaidDate).Scan(&payment.ID, &payment.SubmittedAt)
	if err != nil {
		_ = tx.Rollback()
		if pqCode(err) == foreignKeyViolation {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payment_attendees (payment_id, attendee_id, position)
		SELECT $1, a.id, a.ord
		FROM unnest($2::bigint[]) WITH ORDINALITY AS a(id, ord)
	`, payment.ID, pq.Array(p.AttendeeIDs)); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to link attendees: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE attendees
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2)
	`, model.AttendeeAwaitingVerification, pq.Array(p.AttendeeIDs)); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to update attendee status: %w", err)
	}

	if err := insertAudit(ctx, tx, p.ActorID, "payment.submitted", "payment", payment.ID, map[string]any{
		"member_id":    p.MemberID,
		"attendee_ids": p.AttendeeIDs,
		"file":         p.FilePath,
	}); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return payment, nil
}

// DecidePaymentTx moves a PENDING_REVIEW payment to its terminal status and
// cascades the matching status to every linked attendee that is not cancelled.
func (r *repository) DecidePaymentTx(ctx context.Context, d PaymentDecision) (*model.Payment, error) {
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

	payment := model.Payment{ID: d.PaymentID}
	var paidDate sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT member_id, file_path, status, submitted_at, paid_date
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`, d.PaymentID).Scan(&payment.MemberID, &payment.FilePath, &payment.Status, &payment.SubmittedAt, &paidDate)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to select payment: %w", err)
	}

	if payment.Status != model.PaymentPendingReview {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%w: payment %d is %s", ErrPaymentAlreadyDecided, d.PaymentID, payment.Status)
	}

	if paidDate.Valid {
		t := paidDate.Time
		payment.PaidDate = &t
	}
	if d.Status == model.PaymentApproved && payment.PaidDate == nil {
		t := d.ConfirmedAt
		payment.PaidDate = &t
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, confirmed_by = $2, confirmed_at = $3, paid_date = $4
		WHERE id = $5
	`, d.Status, d.ConfirmedBy, d.ConfirmedAt, payment.PaidDate, d.PaymentID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE attendees
		SET status = $1, updated_at = NOW()
		WHERE id IN (SELECT attendee_id FROM payment_attendees WHERE payment_id = $2)
		  AND status <> $3
	`, d.AttendeeStatus, d.PaymentID, model.AttendeeCancelled); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to cascade attendee status: %w", err)
	}

	ids, err := linkedAttendeeIDs(ctx, tx, d.PaymentID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := insertAudit(ctx, tx, d.ConfirmedBy, "payment."+lowerStatus(d.Status), "payment", d.PaymentID, map[string]any{
		"attendee_ids":    ids,
		"attendee_status": d.AttendeeStatus,
	}); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	confirmedBy := d.ConfirmedBy
	confirmedAt := d.ConfirmedAt
	payment.Status = d.Status
	payment.ConfirmedBy = &confirmedBy
	payment.ConfirmedAt = &confirmedAt
	payment.AttendeeIDs = ids
	return &payment, nil
}

func linkedAttendeeIDs(ctx context.Context, tx *sql.Tx, paymentID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT attendee_id
		FROM payment_attendees
		WHERE payment_id = $1
		ORDER BY position
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment attendees: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan payment attendee: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const paymentColumns = `
	p.id, p.member_id, p.file_path, p.status, p.submitted_at, p.paid_date, p.confirmed_at, p.confirmed_by,
	COALESCE(array_agg(pa.attendee_id ORDER BY pa.position) FILTER (WHERE pa.attendee_id IS NOT NULL), '{}')
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var (
		p           model.Payment
		paidDate    sql.NullTime
		confirmedAt sql.NullTime
		confirmedBy sql.NullInt64
		ids         pq.Int64Array
	)
	if err := row.Scan(
		&p.ID, &p.MemberID, &p.FilePath, &p.Status, &p.SubmittedAt,
		&paidDate, &confirmedAt, &confirmedBy, &ids,
	); err != nil {
		return nil, err
	}
	if paidDate.Valid {
		p.PaidDate = &paidDate.Time
	}
	if confirmedAt.Valid {
		p.ConfirmedAt = &confirmedAt.Time
	}
	if confirmedBy.Valid {
		p.ConfirmedBy = &confirmedBy.Int64
	}
	p.AttendeeIDs = []int64(ids)
	return &p, nil
}

func (r *repository) GetPaymentByID(ctx context.Context, id int64) (*model.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p
		LEFT JOIN payment_attendees pa ON pa.payment_id = p.id
		WHERE p.id = $1
		GROUP BY p.id
	`, id)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// GetPaymentHospital returns the hospital code of the member who owns the payment.
func (r *repository) GetPaymentHospital(ctx context.Context, id int64) (string, error) {
	var code sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT m.hospital_code
		FROM payments p
		JOIN members m ON m.id = p.member_id
		WHERE p.id = $1
	`, id).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrPaymentNotFound
		}
		return "", fmt.Errorf("failed to get payment hospital: %w", err)
	}
	return code.String, nil
}

func (r *repository) ListPayments(ctx context.Context, f PaymentFilter) ([]model.Payment, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p
		JOIN members m ON m.id = p.member_id
		LEFT JOIN payment_attendees pa ON pa.payment_id = p.id
		WHERE ($1 = '' OR p.status = $1)
		  AND ($2 = '' OR m.hospital_code = $2)
		GROUP BY p.id
		ORDER BY p.submitted_at DESC
		LIMIT $3 OFFSET $4
	`, f.Status, f.HospitalCode, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
