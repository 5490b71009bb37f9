package mtypedensities

import (
	"errors"
	"fmt"
)

// ErrDomainValidation is the single error kind produced by the allocation
// pipeline. Every fatal input problem (missing total fields, mismatched
// grids, malformed tables, negative densities) wraps this sentinel, so a
// caller can match all of them with errors.Is.
var ErrDomainValidation = errors.New("mtypedensities: domain validation error")

// Validationf builds a domain validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDomainValidation, fmt.Sprintf(format, args...))
}
