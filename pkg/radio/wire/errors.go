package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete indicates the buffer ends before the frame does.
	// More bytes may complete it.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrMalformed indicates the bytes are not a canonical frame.
	ErrMalformed = errors.New("malformed frame")
	// ErrNoPayload indicates a frame without payload is being encoded.
	ErrNoPayload = errors.New("frame has no payload")
)

// FieldError reports where a frame failed to decode.
type FieldError struct {
	Message string
	Field   uint64
	Offset  int
	Reason  string
}

// Error implements error.
func (e *FieldError) Error() string {
	return fmt.Sprintf("malformed frame: %s field %d at %d: %s", e.Message, e.Field, e.Offset, e.Reason)
}

// Unwrap makes errors.Is(err, ErrMalformed) hold.
func (e *FieldError) Unwrap() error {
	return ErrMalformed
}

// IsIncomplete tells whether err only means more bytes are needed.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncomplete)
}
