package service

import (
	"errors"
	"fmt"
)

// Sentinel kinds for service errors. Callers match them with errors.Is.
var (
	ErrBadRequest        = errors.New("bad request")
	ErrInvalidSensorType = errors.New("invalid sensor type")
	ErrTrackNotFound     = errors.New("track not found")
)

// newKind builds an error of the given kind annotated with the operation name.
func newKind(op string, kind error, detail string) error {
	return fmt.Errorf("%s: %w: %s", op, kind, detail)
}

// wrapKind tags err with kind, keeping both in the chain.
func wrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
