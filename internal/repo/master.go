package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"confreg/internal/model"
)

func (r *repository) GetMemberByID(ctx context.Context, id int64) (*model.Member, error) {
	var (
		m        model.Member
		hospital sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, hospital_code, member_type, created_at
		FROM members
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Username, &m.Email, &hospital, &m.MemberType, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if hospital.Valid {
		m.HospitalCode = &hospital.String
	}
	return &m, nil
}

func (r *repository) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, name, created_at
		FROM hospitals
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get hospitals: %w", err)
	}
	defer rows.Close()

	hospitals := []model.Hospital{}
	for rows.Next() {
		var h model.Hospital
		if err := rows.Scan(&h.Code, &h.Name, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hospital: %w", err)
		}
		hospitals = append(hospitals, h)
	}
	return hospitals, rows.Err()
}

func (r *repository) CreateHospital(ctx context.Context, h *model.Hospital) error {
	err := r.db.Master.QueryRowContext(ctx, `
		INSERT INTO hospitals (code, name, created_at)
		VALUES ($1, $2, NOW())
		RETURNING created_at
	`, h.Code, h.Name).Scan(&h.CreatedAt)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert hospital: %w", err)
	}
	return nil
}

func (r *repository) ListRegistrationTypes(ctx context.Context) ([]model.RegistrationType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, fee_satang
		FROM registration_types
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get registration types: %w", err)
	}
	defer rows.Close()

	types := []model.RegistrationType{}
	for rows.Next() {
		var t model.RegistrationType
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.FeeSatang); err != nil {
			return nil, fmt.Errorf("failed to scan registration type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}
