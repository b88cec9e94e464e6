package agent

import "fmt"

// Pipeline stages reported in StageError.
const (
	StageSession    = "session"
	StageListGroups = "list-groups"
	StageDelay      = "delay"
	StageSend       = "send"
	StageCorrection = "correction"
	StagePanic      = "panic"
)

// StageError reports which step of message handling failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
