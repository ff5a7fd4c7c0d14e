package models

import (
	"time"

	"github.com/google/uuid"
)

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Run is one execution of the publish workflow.
type Run struct {
	ID         uuid.UUID    `json:"id"`
	Trigger    Trigger      `json:"trigger"`
	Status     RunStatus    `json:"status"`
	CommitSHA  string       `json:"commitSha,omitempty"`
	URLCount   int          `json:"urlCount"`
	ReleaseURL string       `json:"releaseUrl,omitempty"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepResult `json:"steps"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewRun creates a pending run with a generated UUID
func NewRun(trigger Trigger) *Run {
	return &Run{
		ID:        uuid.New(),
		Trigger:   trigger,
		Status:    RunPending,
		StartedAt: time.Now().UTC(),
	}
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}
