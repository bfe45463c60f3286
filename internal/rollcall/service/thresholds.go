package service

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThresholds is returned by Validate and NewGate.
var ErrInvalidThresholds = errors.New("thresholds must satisfy 0 < accept <= reject")

// Thresholds gate recognitions by distance. Below Accept a recognition may
// be marked; above Reject it is treated as an unknown face. Values equal to
// either bound fall in between and are only reported.
type Thresholds struct {
	Accept float64
	Reject float64
}

// DefaultThresholds are the empirically tuned 50 / 75 distances.
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: 50, Reject: 75}
}

// Validate requires 0 < Accept <= Reject. NaN bounds are rejected.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Accept) || math.IsNaN(t.Reject) || t.Accept <= 0 || t.Accept > t.Reject {
		return fmt.Errorf("%w (accept=%v reject=%v)", ErrInvalidThresholds, t.Accept, t.Reject)
	}
	return nil
}
