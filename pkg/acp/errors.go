package acp

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDistance       = errors.New("invalid control distance")
	ErrInvalidBrevetDistance = errors.New("invalid brevet distance")
	ErrInvalidTimestamp      = errors.New("invalid start timestamp")
)

// UnsupportedDistanceError is returned when a control distance cannot be
// mapped to a speed band or lies outside the brevet.
type UnsupportedDistanceError struct {
	ControlKm float64
	BrevetKm  float64
	Reason    string
}

func (e *UnsupportedDistanceError) Error() string {
	if e.BrevetKm > 0 {
		return fmt.Sprintf("unsupported control distance %gkm for %gkm brevet: %s", e.ControlKm, e.BrevetKm, e.Reason)
	}
	return fmt.Sprintf("unsupported control distance %gkm: %s", e.ControlKm, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidDistance) match.
func (e *UnsupportedDistanceError) Is(target error) bool {
	return target == ErrInvalidDistance
}
