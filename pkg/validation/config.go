package validation

import (
	"errors"
	"fmt"
	"time"
)

// ConfigValidator checks election settings and bootstrap files field by
// field. Every failing check is kept so an operator sees all problems in a
// cluster file at once. Errors are prefixed "<config>.<field>", for example
// "bootstrap.servers[1].management_port".
//
//	err := validation.NewConfigValidator("cluster").
//		Required("server_id", cfg.ServerID).
//		RequiredDuration("answer_timeout", cfg.AnswerTimeout).
//		Validate()
type ConfigValidator struct {
	errors []error
	name   string
}

// NewConfigValidator starts a validator whose errors are prefixed with configName
func NewConfigValidator(configName string) *ConfigValidator {
	return &ConfigValidator{name: configName}
}

func (cv *ConfigValidator) fail(field, format string, args ...any) {
	cv.errors = append(cv.errors, fmt.Errorf("%s.%s: "+format, append([]any{cv.name, field}, args...)...))
}

// Required rejects an empty string, such as a missing server id or address
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		cv.fail(field, "must be set")
	}
	return cv
}

// RequiredDuration rejects a zero timeout or interval
func (cv *ConfigValidator) RequiredDuration(field string, value time.Duration) *ConfigValidator {
	if value == 0 {
		cv.fail(field, "duration must be set")
	}
	return cv
}

// RangeInt checks min <= value <= max. Ports use [1, 65535], or [0, 65535]
// where zero means unused.
func (cv *ConfigValidator) RangeInt(field string, value, min, max int) *ConfigValidator {
	if value < min || value > max {
		cv.fail(field, "%d not in [%d, %d]", value, min, max)
	}
	return cv
}

// MinDuration checks value >= min
func (cv *ConfigValidator) MinDuration(field string, value, min time.Duration) *ConfigValidator {
	if value < min {
		cv.fail(field, "%v is below %v", value, min)
	}
	return cv
}

func (cv *ConfigValidator) Positive(field string, value int) *ConfigValidator {
	if value <= 0 {
		cv.fail(field, "%d must be greater than zero", value)
	}
	return cv
}

// NonNegative accepts zero, e.g. a retry cap of 0 means self-elect at once
func (cv *ConfigValidator) NonNegative(field string, value int) *ConfigValidator {
	if value < 0 {
		cv.fail(field, "%d must not be negative", value)
	}
	return cv
}

// OneOf checks value against a fixed set such as the transport kinds
func (cv *ConfigValidator) OneOf(field, value string, allowed []string) *ConfigValidator {
	for _, a := range allowed {
		if value == a {
			return cv
		}
	}
	cv.fail(field, "%q is not one of %v", value, allowed)
	return cv
}

// Custom records fn's error under field. The error is wrapped, so sentinel
// errors like cluster.ErrDuplicateServerID survive errors.Is.
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		cv.fail(field, "%w", err)
	}
	return cv
}

// When runs validations only if condition holds, e.g. nats_url for the nats transport
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

func (cv *ConfigValidator) HasErrors() bool {
	return len(cv.errors) > 0
}

func (cv *ConfigValidator) Errors() []error {
	return cv.errors
}

// Validate returns nil, the single error, or all errors joined
func (cv *ConfigValidator) Validate() error {
	switch len(cv.errors) {
	case 0:
		return nil
	case 1:
		return cv.errors[0]
	default:
		return errors.Join(cv.errors...)
	}
}

// DefaultOrInt fills an unset bootstrap count; zero and negatives take the default
func DefaultOrInt(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}

// DefaultOrDuration fills an unset bootstrap timeout the same way
func DefaultOrDuration(value, defaultValue time.Duration) time.Duration {
	if value <= 0 {
		return defaultValue
	}
	return value
}
