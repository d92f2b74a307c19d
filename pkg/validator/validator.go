package validator

import (
	"context"
	"errors"
	"regexp"

	"github.com/go-playground/validator"
)

var (
	global       *validator.Validate
	hospCodeRgx  = regexp.MustCompile(`^[A-Z0-9]{2,16}$`)
	errorMessage = map[string]string{
		"hospcode": ErrInvalidFormat,
		"email":    ErrInvalidFormat,
		"required": ErrFieldRequired,
		"max":      ErrFieldExceedsMaxLen,
		"min":      ErrFieldBelowMinLen,
		"lt":       ErrFieldExceedsMaxVal,
		"lte":      ErrFieldExceedsMaxVal,
		"gt":       ErrFieldBelowMinVal,
		"gte":      ErrFieldBelowMinVal,
		"oneof":    "Value is not one of the allowed values",
		"positive": "Value must be positive",
	}
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hospcode", validateHospitalCode)
	_ = v.RegisterValidation("positive", validatePositiveInt)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

// HospitalCode reports whether s is a well-formed hospital code.
func HospitalCode(s string) bool {
	return hospCodeRgx.MatchString(s)
}

func validateHospitalCode(fl validator.FieldLevel) bool {
	return HospitalCode(fl.Field().String())
}

func validatePositiveInt(fl validator.FieldLevel) bool {
	switch val := fl.Field().Interface().(type) {
	case int:
		return val > 0
	case int64:
		return val > 0
	default:
		return false
	}
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	if len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	msg, ok := errorMessage[ve.Tag()]
	if !ok {
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
