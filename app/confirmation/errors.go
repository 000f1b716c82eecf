package confirmation

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid payment request")
	ErrPollInProgress  = errors.New("confirmation already running for request")
	ErrMalformedHandle = errors.New("malformed gateway response")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

type GatewayInitiationError struct {
	Reason string
	Err    error
}

func (e *GatewayInitiationError) Error() string {
	return "gateway initiation failed: " + e.Reason
}

func (e *GatewayInitiationError) Unwrap() error {
	return e.Err
}
