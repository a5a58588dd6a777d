package resource

import (
	"errors"
	"fmt"
)

var ErrNilResource = errors.New("nil related resource")

// InvalidError wraps a validation failure on a related resource payload.
// It is never retried.
type InvalidError struct {
	Err error
}

func (err InvalidError) Error() string {
	return fmt.Sprintf("invalid related resource: %v", err.Err)
}

func (err InvalidError) Unwrap() error { return err.Err }

// NotFoundError is returned when a secondary store row expected during
// enrichment does not exist.
type NotFoundError struct {
	Location string
	Protocol string
}

func (err NotFoundError) Error() string {
	if err.Protocol != "" {
		return fmt.Sprintf("no service found for location %q protocol %q", err.Location, err.Protocol)
	}
	return fmt.Sprintf("no remote resource found for location %q", err.Location)
}
