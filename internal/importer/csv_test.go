package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg/internal/model"
	"confreg/internal/workflow"
)

var types = map[string]int64{"EARLY": 1, "REGULAR": 2}

var member = workflow.Actor{MemberID: 42, HospitalCode: "H001", MemberType: 1}
var admin = workflow.Actor{MemberID: 1, MemberType: model.AdminMemberType}

func TestParseMember(t *testing.T) {
	in := "\xEF\xBB\xBFtitle,first_name,last_name,email,phone,registration_type,hospital_code\n" +
		"Dr.,Somchai,Jaidee,somchai@h001.example.org,0812345678,early,H002\n" +
		"\n" +
		"Ms.,Malee,Sukjai,,,REGULAR,\n"

	attendees, rowErrs, err := Parse(context.Background(), strings.NewReader(in), member, types)
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, attendees, 2)

	assert.Equal(t, "Somchai", attendees[0].FirstName)
	assert.Equal(t, int64(1), attendees[0].RegistrationTypeID)
	require.NotNil(t, attendees[0].HospitalCode)
	assert.Equal(t, "H001", *attendees[0].HospitalCode, "members always import into their own hospital")
	assert.Equal(t, model.AttendeePendingPayment, attendees[1].Status)
	assert.Equal(t, int64(2), attendees[1].RegistrationTypeID)
}

func TestParseAdminHospitalColumn(t *testing.T) {
	in := "title,first_name,last_name,email,phone,registration_type,hospital_code\n" +
		",Anan,Dee,,,EARLY,h002\n" +
		",Nok,Dee,,,EARLY,\n"

	attendees, rowErrs, err := Parse(context.Background(), strings.NewReader(in), admin, types)
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, attendees, 2)
	require.NotNil(t, attendees[0].HospitalCode)
	assert.Equal(t, "H002", *attendees[0].HospitalCode)
	assert.Nil(t, attendees[1].HospitalCode)
}

func TestParseRowErrorsRejectWholeFile(t *testing.T) {
	in := "title,first_name,last_name,email,phone,registration_type\n" +
		",Somchai,Jaidee,somchai@example.org,,EARLY\n" +
		",,Jaidee,,,EARLY\n" +
		",Malee,Sukjai,not-an-email,,EARLY\n" +
		",Anan,Dee,,,VIP\n"

	attendees, rowErrs, err := Parse(context.Background(), strings.NewReader(in), member, types)
	require.NoError(t, err)
	assert.Nil(t, attendees)
	require.Len(t, rowErrs, 3)
	assert.Equal(t, 3, rowErrs[0].Row)
	assert.Equal(t, 4, rowErrs[1].Row)
	assert.Equal(t, 5, rowErrs[2].Row)
	assert.Contains(t, rowErrs[2].Error, "VIP")
}

func TestParseHeaderAndEmpty(t *testing.T) {
	_, _, err := Parse(context.Background(), strings.NewReader(""), member, types)
	assert.ErrorIs(t, err, ErrEmpty)

	_, _, err = Parse(context.Background(), strings.NewReader("first_name,last_name\nA,B\n"), member, types)
	assert.ErrorIs(t, err, ErrHeader)

	_, _, err = Parse(context.Background(), strings.NewReader("title,first_name,last_name,email,phone,registration_type\n"), member, types)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestParseTooManyRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("title,first_name,last_name,email,phone,registration_type\n")
	for i := 0; i <= MaxRows; i++ {
		fmt.Fprintf(&b, ",First%d,Last,,,EARLY\n", i)
	}
	_, _, err := Parse(context.Background(), strings.NewReader(b.String()), member, types)
	assert.ErrorIs(t, err, ErrTooMany)
}
