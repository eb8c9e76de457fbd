package pipeline

import (
	"context"
	"fmt"
)

// Execution status of a stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Reports whether the status is terminal.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// One node in the build chain: a name plus the work it performs against the
// shared build state.
type Stage struct {
	name   string
	run    func(ctx context.Context, b *Build) error
	status Status
}

// Creates a pending stage.
func newStage(name string, run func(ctx context.Context, b *Build) error) *Stage {
	return &Stage{name: name, run: run, status: StatusPending}
}

// Returns the stage name.
func (s *Stage) Name() string {
	return s.name
}

// Returns the stage's current status.
func (s *Stage) Status() Status {
	return s.status
}

// Runs the stage, enforcing the Pending -> Running -> Succeeded/Failed
// state machine. A stage can execute at most once; terminal states never
// transition again.
func (s *Stage) execute(ctx context.Context, b *Build) error {
	if s.status != StatusPending {
		return fmt.Errorf("stage %s already %s", s.name, s.status)
	}

	s.status = StatusRunning
	if err := s.run(ctx, b); err != nil {
		s.status = StatusFailed
		return err
	}

	s.status = StatusSucceeded
	return nil
}
