package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
	"go.uber.org/zap"

	"github.com/ecmps/submission-engine/pkg/submission/api"
)

// FailureHandler persists diagnostics for failed queueing attempts and fans
// out the notification emails. Processing failures are handled by the
// processor itself since it still holds the set.
type FailureHandler struct {
	logger   *zap.Logger
	db       Database
	notifier *Notifier
}

func NewFailureHandler(logger *zap.Logger, db Database, notifier *Notifier) *FailureHandler {
	return &FailureHandler{
		logger:   logger.Named("failure"),
		db:       db,
		notifier: notifier,
	}
}

// errorNote serializes the root cause into the note column. The stack comes
// from re-wrapping at the failure site, which is close enough to locate the
// failing step alongside the stage trail.
func errorNote(cause error) string {
	b, err := json.Marshal(map[string]string{
		"message": cause.Error(),
		"stack":   goerrors.Wrap(cause, 2).ErrorStack(),
		"name":    fmt.Sprintf("%T", cause),
	})
	if err != nil {
		return cause.Error()
	}
	return string(b)
}

// HandleQueueingError records what the rolled-back transaction destroyed: the
// set (and the record being built, if any) are re-created in ERROR state with
// the root cause on the note so support can reconstruct the attempt. Origin
// rows need no demotion, the rollback already restored them.
func (h *FailureHandler) HandleQueueingError(
	ctx context.Context,
	set *SubmissionSet,
	record *SubmissionQueue,
	stages []api.StageEntry,
	userEmail, userID string,
	cause error,
) {
	now := time.Now()

	if set != nil {
		set.StatusCode = StatusError
		set.Note = errorNote(cause)
		set.NoteTime = &now
		if err := h.db.Create(nil, set); err != nil {
			h.logger.Error("failed to persist errored set",
				zap.String("setId", set.ID), zap.Error(err))
		}

		if record != nil {
			record.ID = 0
			record.SetID = set.ID
			record.StatusCode = StatusError
			record.Note = "Queueing failure, see set details"
			record.NoteTime = &now
			if err := h.db.Create(nil, record); err != nil {
				h.logger.Error("failed to persist errored queue record",
					zap.String("setId", set.ID), zap.Error(err))
			}
		}
	}

	if h.notifier != nil {
		if err := h.notifier.SendQueueingFailure(ctx, set, stages, userEmail, userID, cause); err != nil {
			h.logger.Error("failed to send queueing failure email",
				zap.String("userId", userID), zap.Error(err))
		}
	}
}

// failProcessing is the terminal path for a set that died mid-processing: the
// set keeps the root cause, every record is errored, and the origin rows fall
// back to REQUIRE so the artifacts surface as needing resubmission.
func (p *Processor) failProcessing(
	ctx context.Context,
	set *SubmissionSet,
	records []SubmissionQueue,
	stages []api.StageEntry,
	cause error,
) error {
	p.logger.Error("failed to process submission set",
		zap.String("setId", set.ID), zap.Error(cause))

	SetsProcessedCount.WithLabelValues("failure").Inc()
	if set.StartedTime != nil {
		SetsProcessedDuration.WithLabelValues("failure").Observe(time.Since(*set.StartedTime).Seconds())
	}

	now := time.Now()
	set.StatusCode = StatusError
	set.Note = errorNote(cause)
	set.NoteTime = &now
	if err := p.db.Save(nil, set); err != nil {
		p.logger.Error("failed to persist errored set",
			zap.String("setId", set.ID), zap.Error(err))
	}

	if err := p.setRecordStatuses(nil, set, records, StatusError, "Process failure, see set details", AvailabilityRequire); err != nil {
		p.logger.Error("failed to demote queue records",
			zap.String("setId", set.ID), zap.Error(err))
	}

	if p.notifier != nil {
		if err := p.notifier.SendProcessingFailure(ctx, set, stages, cause); err != nil {
			p.logger.Error("failed to send processing failure email",
				zap.String("setId", set.ID), zap.Error(err))
		}
	}

	return &PipelineError{Label: labelProcessFailed, Message: cause.Error()}
}
