package sandbox

import (
	"errors"
	"fmt"
)

// Stage names the step of a run that failed
type Stage string

// Run stages in the order they execute
const (
	StageUnknownLanguage Stage = "unknown_language"
	StageProvision       Stage = "provision"
	StageInject          Stage = "inject"
	StageAttach          Stage = "attach"
	StageStart           Stage = "start"
	StageStream          Stage = "stream"
	StageDecode          Stage = "decode"
	StageCleanup         Stage = "cleanup"
)

var stageMessages = map[Stage]string{
	StageProvision: "failed to provision sandbox",
	StageInject:    "failed to inject code",
	StageAttach:    "failed to attach to sandbox output",
	StageStart:     "failed to start sandbox",
	StageStream:    "failed to read sandbox output",
	StageDecode:    "sandbox output is not valid text",
	StageCleanup:   "failed to remove sandbox",
}

// RunError is the single error a failed run reports
type RunError struct {
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	msg, ok := stageMessages[e.Stage]
	if !ok {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" when err is not a RunError
func StageOf(err error) Stage {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Stage
	}
	return ""
}
