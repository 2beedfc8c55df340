package thermo

import (
	"errors"
	"fmt"
)

// ErrSuperseded marks a resolution that was overtaken by a newer edit. It is
// an internal signal: superseded results are dropped silently and never
// surfaced to the user.
var ErrSuperseded = errors.New("resolution superseded by a newer edit")

// ErrNoSaturation is returned when a saturation envelope is requested for a
// substance that has none (an ideal gas is a single dense phase everywhere).
var ErrNoSaturation = errors.New("substance has no saturation envelope")

// ValidationError reports a user input the resolver refuses to act on, such
// as a quality outside [0,1] or a non-positive volume. The previous resolved
// state stays untouched.
type ValidationError struct {
	Field  Quantity
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == QuantityNone {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s %g: %s", e.Field, e.Value, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// OutOfRangeError reports that the property source cannot resolve the
// requested pair because it lies outside the substance's validity domain.
type OutOfRangeError struct {
	Kind   Quantity
	Value  float64
	Reason string
}

func (e *OutOfRangeError) Error() string {
	if e.Kind == QuantityNone {
		return fmt.Sprintf("out of range: %s", e.Reason)
	}
	return fmt.Sprintf("%s %g out of range: %s", e.Kind, e.Value, e.Reason)
}

// IsOutOfRange reports whether err is (or wraps) an OutOfRangeError.
func IsOutOfRange(err error) bool {
	var o *OutOfRangeError
	return errors.As(err, &o)
}

// InconsistentError reports saturation boundary data that violates the
// ordering invariants. It indicates a corrupt data source; the envelope must
// be refetched before resolution in that region continues.
type InconsistentError struct {
	Reason string
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("inconsistent saturation data: %s", e.Reason)
}

// IsInconsistent reports whether err is (or wraps) an InconsistentError.
func IsInconsistent(err error) bool {
	var i *InconsistentError
	return errors.As(err, &i)
}
