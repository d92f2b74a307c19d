// Package importer reads attendee batches from CSV uploads.
package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"confreg/internal/dto"
	"confreg/internal/model"
	"confreg/internal/workflow"
	"confreg/pkg/validator"
)

const MaxRows = 1000

var (
	ErrEmpty     = errors.New("csv file has no data rows")
	ErrTooMany   = fmt.Errorf("csv file has more than %d rows", MaxRows)
	ErrHeader    = errors.New("csv header is missing required columns")
	ErrMalformed = errors.New("csv file cannot be parsed")
)

var requiredColumns = []string{"title", "first_name", "last_name", "email", "phone", "registration_type"}

type row struct {
	Title            string `validate:"max=32"`
	FirstName        string `validate:"required,max=255"`
	LastName         string `validate:"required,max=255"`
	Email            string `validate:"omitempty,email"`
	Phone            string `validate:"omitempty,max=32"`
	RegistrationType string `validate:"required"`
	HospitalCode     string `validate:"omitempty,hospcode"`
}

// Parse reads every data row and returns either the attendees to insert or
// the list of row errors; a file with any bad row yields no attendees.
// registrationTypes maps registration type codes to their IDs.
func Parse(ctx context.Context, r io.Reader, actor workflow.Actor, registrationTypes map[string]int64) ([]model.Attendee, []dto.ImportRowError, error) {
	reader := csv.NewReader(skipBOM(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrEmpty
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cols, err := columnIndex(header, actor.IsAdmin())
	if err != nil {
		return nil, nil, err
	}

	var (
		attendees []model.Attendee
		rowErrs   []dto.ImportRowError
		line      = 1
	)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		if blank(rec) {
			continue
		}
		if len(attendees)+len(rowErrs) >= MaxRows {
			return nil, nil, ErrTooMany
		}

		a, err := toAttendee(ctx, rec, cols, actor, registrationTypes)
		if err != nil {
			rowErrs = append(rowErrs, dto.ImportRowError{Row: line, Error: err.Error()})
			continue
		}
		attendees = append(attendees, a)
	}

	if len(rowErrs) > 0 {
		return nil, rowErrs, nil
	}
	if len(attendees) == 0 {
		return nil, nil, ErrEmpty
	}
	return attendees, nil, nil
}

func toAttendee(ctx context.Context, rec []string, cols map[string]int, actor workflow.Actor, types map[string]int64) (model.Attendee, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rw := row{
		Title:            get("title"),
		FirstName:        get("first_name"),
		LastName:         get("last_name"),
		Email:            get("email"),
		Phone:            get("phone"),
		RegistrationType: strings.ToUpper(get("registration_type")),
		HospitalCode:     strings.ToUpper(get("hospital_code")),
	}
	if err := validator.Validate(ctx, rw); err != nil {
		return model.Attendee{}, err
	}

	typeID, ok := types[rw.RegistrationType]
	if !ok {
		return model.Attendee{}, fmt.Errorf("unknown registration type %q", rw.RegistrationType)
	}

	a := model.Attendee{
		RegistrationTypeID: typeID,
		Title:              rw.Title,
		FirstName:          rw.FirstName,
		LastName:           rw.LastName,
		Email:              rw.Email,
		Phone:              rw.Phone,
		Status:             model.AttendeePendingPayment,
	}
	switch {
	case !actor.IsAdmin():
		hospital := actor.HospitalCode
		a.HospitalCode = &hospital
	case rw.HospitalCode != "":
		hospital := rw.HospitalCode
		a.HospitalCode = &hospital
	}
	return a, nil
}

func columnIndex(header []string, admin bool) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrHeader, strings.Join(missing, ", "))
	}
	if !admin {
		delete(cols, "hospital_code")
	}
	return cols, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}
