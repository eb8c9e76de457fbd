package pipeline

import (
	"errors"
	"fmt"
)

var ErrCompilation = errors.New("compilation failed")

// Wraps a stage failure with the name of the originating stage.
//
// The driver prints the stage name and the underlying error kind as the
// single terminal failure message.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
