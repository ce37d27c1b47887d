package submission

import (
	"context"
)

// CheckPreconditions enforces the submission-order rule: an active monitoring
// plan (no end reporting period) sharing a physical location with an
// unsubmitted sibling plan cannot be queued until those siblings are
// submitted. Runs for every batch item before the queueing transaction opens,
// so an invalid item rejects the whole batch without mutating anything.
func (s *QueueService) CheckPreconditions(ctx context.Context, monPlanID string) error {
	plan, err := s.db.GetMonitorPlan(nil, monPlanID)
	if err != nil {
		return err
	}
	if plan == nil {
		return &NotFoundError{Entity: "Monitoring plan", ID: monPlanID}
	}

	isActive := plan.EndRptPeriodID == nil
	if !isActive {
		return nil
	}

	locIDs, err := s.db.PlanLocationIDs(nil, monPlanID)
	if err != nil {
		return err
	}

	count, err := s.db.CountUnsubmittedSiblingPlans(nil, plan, locIDs)
	if err != nil {
		return err
	}
	if count > 0 {
		return &PreconditionError{
			Message: "Inactive monitoring plans for at least one of the locations in the current monitoring plan need to be submitted prior to submitting the current, active monitoring plan.",
		}
	}

	return nil
}
