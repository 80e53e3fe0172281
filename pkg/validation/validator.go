package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Identity and room id bounds, both inclusive.
	MinIDLength = 3
	MaxIDLength = 16

	idRule = fmt.Sprintf("required,alphanum,min=%d,max=%d", MinIDLength, MaxIDLength)
)

var (
	ErrInvalidIdentity = errors.New("identity must be alphanumeric and 3-16 characters long")
	ErrInvalidRoomID   = errors.New("room id must be alphanumeric and 3-16 characters long")
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// IsValidIdentity reports whether s is usable as a global client identity.
func IsValidIdentity(s string) bool {
	return validate.Var(s, idRule) == nil
}

// ValidateIdentity returns ErrInvalidIdentity for ids IsValidIdentity rejects.
func ValidateIdentity(s string) error {
	if !IsValidIdentity(s) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	return nil
}

// ValidateRoomID applies the identity rule to chat room ids.
func ValidateRoomID(s string) error {
	if validate.Var(s, idRule) != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, s)
	}
	return nil
}

// Struct validates v against its `validate` struct tags.
func Struct(v any) error {
	if v == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
