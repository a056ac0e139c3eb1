package scan

import (
	"errors"
	"fmt"
)

// Domain errors for the scan package.
var (
	// ErrMalformedCode is returned for codes shorter than MinCodeLength.
	ErrMalformedCode = errors.New("scan: malformed code")

	// ErrTicketProcessed is returned when a garment of a completed ticket
	// is scanned again.
	ErrTicketProcessed = errors.New("scan: ticket already processed")

	// ErrTicketComplete is returned when every garment of a ticket has
	// already been counted and only the completion is outstanding.
	ErrTicketComplete = errors.New("scan: every garment already counted")

	// ErrNoConveyor is returned by Route when no conveyor is wired.
	ErrNoConveyor = errors.New("scan: conveyor not configured")
)

// Stage names the step of the workflow that failed.
type Stage string

// Workflow stages.
const (
	StageValidate    Stage = "validation"
	StageGarment     Stage = "garment lookup"
	StageTicket      Stage = "ticket lookup"
	StageReservation Stage = "slot reservation"
	StageUpdate      Stage = "ticket update"
	StageSession     Stage = "session update"
	StageRouting     Stage = "routing"
	StageHanger      Stage = "hanger wait"
)

// Error reports a failed scan with the scanned code and the failing stage.
type Error struct {
	Code  string
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scan %q: %s: %v", e.Code, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageError(code string, stage Stage, err error) error {
	return &Error{Code: code, Stage: stage, Err: err}
}
