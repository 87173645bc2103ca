// Package model defines the core domain types for Quinn's deal pipelines.
//
// Types are plain structs shared between the flow engine, the run
// coordinator, and the progress broker. They use strong typing (UUIDs,
// time.Time, enums) and avoid interface{} outside of free-form result
// payloads.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlowType identifies one of the three deal pipelines.
type FlowType string

const (
	FlowQualification FlowType = "qualification"
	FlowProposal      FlowType = "proposal"
	FlowMonitoring    FlowType = "monitoring"
)

// ParseFlowType validates a raw flow-type string.
func ParseFlowType(raw string) (FlowType, error) {
	switch FlowType(raw) {
	case FlowQualification, FlowProposal, FlowMonitoring:
		return FlowType(raw), nil
	default:
		return "", fmt.Errorf("model: unknown flow type %q", raw)
	}
}

// RunStatus is the lifecycle state of a pipeline run.
// Transitions are strictly monotonic: queued → running → completed|failed.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is one execution of a flow against one deal. Mutated only by the
// run coordinator; everyone else sees snapshots.
type Run struct {
	ID          uuid.UUID      `json:"id"`
	Flow        FlowType       `json:"flow"`
	DealID      string         `json:"deal_id"`
	Status      RunStatus      `json:"status"`
	Stage       string         `json:"stage"`
	StageIndex  int            `json:"stage_index"`
	TotalStages int            `json:"total_stages"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// EventStatus is the per-event status carried on a ProgressEvent.
type EventStatus string

const (
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// ProgressEvent is one observable stage transition for a run.
// StageIndex is 1-based and monotonically non-decreasing within a run;
// the final event of a successful run has Status=completed and
// StageIndex=TotalStages.
type ProgressEvent struct {
	RunID       uuid.UUID      `json:"run_id"`
	Stage       string         `json:"stage"`
	StageIndex  int            `json:"stage_index"`
	TotalStages int            `json:"total_stages"`
	Status      EventStatus    `json:"status"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
}
