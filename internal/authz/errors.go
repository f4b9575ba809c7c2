package authz

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied         = errors.New("access denied")
	ErrConfiguration        = errors.New("configuration error")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// AccessDeniedError is the outcome of a call some stage refused. It is the
// caller's answer, not a system fault.
type AccessDeniedError struct {
	Method string
	Stage  string
	Reason string
}

func (e *AccessDeniedError) Error() string {
	msg := "access denied"
	if e.Stage != "" {
		msg += " at " + e.Stage
	}
	if e.Method != "" {
		msg += " for " + e.Method
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *AccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// IsAccessDenied unwraps err looking for an AccessDeniedError.
func IsAccessDenied(err error) (*AccessDeniedError, bool) {
	var ade *AccessDeniedError
	if errors.As(err, &ade) {
		return ade, true
	}
	return nil, false
}

// ConfigurationError reports an authorization rule that cannot be compiled.
// It is raised while building the pipeline, never at call time.
type ConfigurationError struct {
	Method string
	Stage  string
	Expr   string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %s: bad expression %q: %v", e.Method, e.Stage, e.Expr, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// InvalidConfigurationError reports bad startup parameters.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
