package internal_gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a connection attempt (or an established
// connection) went down.
type ErrorKind string

const (
	ErrNegotiationFailed   ErrorKind = "negotiation_failed"    // non-2xx from the ingestion endpoint
	ErrICEGatheringTimeout ErrorKind = "ice_gathering_timeout" // local candidate gathering overran its bound
	ErrConnectionTimeout   ErrorKind = "connection_timeout"    // transport never reported connected in time
	ErrConnectionFailed    ErrorKind = "connection_failed"     // transport explicitly reported failure
	ErrTransport           ErrorKind = "transport_error"       // anything else while building/configuring the transport
)

// GatewayError is the typed failure of a single connection attempt. It
// carries the lifecycle state at the time of failure and is never
// retried internally.
type GatewayError struct {
	Kind    ErrorKind
	State   State
	Message string
	Cause   error
}

func (e *GatewayError) Error() string { return e.Message }

func (e *GatewayError) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, state State, cause error, format string, args ...interface{}) *GatewayError {
	return &GatewayError{
		Kind:    kind,
		State:   state,
		Cause:   cause,
		Message: fmt.Sprintf(format, args...),
	}
}

// toGatewayError coerces any error into a GatewayError, wrapping foreign
// errors as transport errors.
func toGatewayError(err error) *GatewayError {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	return newError(ErrTransport, StateConnecting, err, "%v", err)
}
