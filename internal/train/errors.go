package train

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidateEvents indicates the catalog had nothing to offer when a
	// choice was needed. Fatal to Start; surfaced to the initiator.
	ErrNoCandidateEvents = errors.New("train: no candidate events")
	// ErrPollInterrupted indicates a round was cancelled before any vote
	// source produced data.
	ErrPollInterrupted = errors.New("train: poll interrupted")
	// ErrUnknownTrain indicates no live session matches the lookup key.
	ErrUnknownTrain = errors.New("train: unknown train")
)

// ServiceError carries a machine-readable operation code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "train.service.new"
	opStart      = "train.start"
	opAdvance    = "train.advance"
	opActivate   = "train.activate"
	opJoin       = "train.join"
	opLeave      = "train.leave"
	opEnd        = "train.end"
	opRecover    = "train.recover"
	opPollStart  = "train.poll.start"
	opAnnounce   = "train.announce"
	opRSVP       = "train.rsvp"
)

func newTrainError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
