package submission

import "fmt"

// NotFoundError marks a missing referenced entity. Returned before any state
// is mutated, so the failure handler's demotion logic never runs for it.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found for ID: %s", e.Entity, e.ID)
}

// PreconditionError rejects a request that violates an ordering or lifecycle
// rule: unsubmitted sibling plans at queueing time, or reprocessing a set that
// already reached a terminal status.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

// ExternalRejectionError is a declined signing attempt. Terminal for the set;
// the user must re-queue.
type ExternalRejectionError struct {
	StatusCode int
	Body       string
}

func (e *ExternalRejectionError) Error() string {
	return fmt.Sprintf("signing endpoint rejected request: status %d: %s", e.StatusCode, e.Body)
}

// PipelineError is the fixed envelope surfaced to HTTP callers for any
// post-mutation failure. It carries the root message but never a stack.
type PipelineError struct {
	Label   string
	Message string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Label, e.Message)
}

const (
	labelQueueFailed   = "Failed to queue submission records"
	labelProcessFailed = "Failed to process submission set"
)
