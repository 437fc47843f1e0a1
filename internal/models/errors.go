package models

import "errors"

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrInvalidJob          = errors.New("invalid job")
	ErrInvalidSignal       = errors.New("invalid signal")
	ErrSignalNotFound      = errors.New("signal not found")
	ErrUnresolvablePayload = errors.New("job has neither signal id nor signal payload")
	ErrBrokerRejected      = errors.New("broker rejected order")

	ErrMalformedFrame = errors.New("malformed frame")
	ErrAuthRejected   = errors.New("stream auth rejected")
	ErrNotConnected   = errors.New("stream not connected")
)
