// Package schema checks detection events before they leave the process.
package schema

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"profanity-stream-service/internal/models"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid detection event")

// Validator checks the invariants of a DetectionEvent.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate returns nil or an error wrapping ErrInvalidEvent that lists every
// violated field.
func (v *Validator) Validate(ev models.DetectionEvent) error {
	var errs []error
	if ev.UserID == "" {
		errs = append(errs, errors.New("userId is required"))
	}
	if ev.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if len(ev.Patterns) == 0 {
		errs = append(errs, errors.New("patterns must not be empty"))
	} else if ev.Pattern != ev.Patterns[0] {
		errs = append(errs, fmt.Errorf("pattern %q must be the first of patterns", ev.Pattern))
	}
	if slices.Contains(ev.Patterns, "") {
		errs = append(errs, errors.New("patterns must not contain empty entries"))
	}
	if ev.Confidence < 0 || ev.Confidence > 1 || math.IsNaN(ev.Confidence) {
		errs = append(errs, fmt.Errorf("confidence %v out of range [0, 1]", ev.Confidence))
	}
	if ev.Energy < 0 || math.IsNaN(ev.Energy) {
		errs = append(errs, fmt.Errorf("energy %v must be non-negative", ev.Energy))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidEvent, errors.Join(errs...))
}
