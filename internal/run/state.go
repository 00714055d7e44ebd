package run

import (
	"fmt"
	"time"

	"github.com/fitroom/fitroom/internal/stylist"
)

type Workflow string

const (
	WorkflowCatalog  Workflow = "catalog"
	WorkflowWardrobe Workflow = "wardrobe"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

type FailureKind string

const (
	FailValidation  FailureKind = "validation"
	FailTimeout     FailureKind = "timeout"
	FailServer      FailureKind = "server"
	FailUnreachable FailureKind = "unreachable"
)

// RunError describes why a run failed. Status is set for server failures
// only.
type RunError struct {
	Kind    FailureKind `json:"kind"`
	Status  int         `json:"status,omitempty"`
	Message string      `json:"message"`
}

func (e *RunError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// State is the observable condition of one workflow. Exactly one of Catalog
// and Wardrobe is set after a success, matching the workflow; Err is set
// after a failure. A new run clears both immediately.
type State struct {
	Workflow  Workflow                `json:"workflow"`
	Phase     Phase                   `json:"phase"`
	StartedAt time.Time               `json:"started_at,omitzero"`
	Deadline  time.Time               `json:"deadline,omitzero"`
	Catalog   *stylist.CatalogResult  `json:"catalog,omitempty"`
	Wardrobe  *stylist.WardrobeResult `json:"wardrobe,omitempty"`
	Err       *RunError               `json:"error,omitempty"`
}
