package submission

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// commit runs the accumulated promotion ops in one transaction and, in the
// same transaction, marks the set and its records COMPLETE and promotes the
// origin rows to UPDATED. Either everything lands or the official schema is
// untouched.
func (p *Processor) commit(
	ctx context.Context,
	set *SubmissionSet,
	records []SubmissionQueue,
	ops []PromotionOp,
	stages *stageTrail,
) error {
	err := p.db.Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := tx.Exec(op.Command, op.Params...).Error; err != nil {
				return err
			}
		}

		if err := p.setRecordStatuses(tx, set, records, StatusComplete, "", AvailabilityUpdated); err != nil {
			return err
		}

		now := time.Now()
		set.StatusCode = StatusComplete
		set.CompletedTime = &now
		return p.db.Save(tx, set)
	})
	if err != nil {
		return p.failProcessing(ctx, set, records, stages.entries, err)
	}
	stages.add("PROMOTION_COMMITTED")

	SetsProcessedCount.WithLabelValues("successful").Inc()
	if set.StartedTime != nil {
		SetsProcessedDuration.WithLabelValues("successful").Observe(time.Since(*set.StartedTime).Seconds())
	}

	p.logger.Info("submission set completed",
		zap.String("setId", set.ID),
		zap.Int("records", len(records)))

	if p.notifier != nil {
		if err := p.notifier.SendSuccess(ctx, set, records); err != nil {
			p.logger.Error("failed to send confirmation email",
				zap.String("setId", set.ID), zap.Error(err))
		}
	}
	return nil
}

// setRecordStatuses stamps every queue record with the given terminal status
// and flips the matching origin row's availability. Test summary and emissions
// origins that already read UPDATED are skipped: the copy procedures retire
// those workspace rows themselves.
func (p *Processor) setRecordStatuses(
	tx *gorm.DB,
	set *SubmissionSet,
	records []SubmissionQueue,
	status StatusCode,
	note string,
	availability string,
) error {
	now := time.Now()
	for i := range records {
		rec := &records[i]
		rec.StatusCode = status
		rec.CompletedTime = &now
		if note != "" {
			rec.Note = note
			rec.NoteTime = &now
		}
		if err := p.db.Save(tx, rec); err != nil {
			return err
		}
		if err := p.setOriginAvailability(tx, set, rec, availability); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) setOriginAvailability(tx *gorm.DB, set *SubmissionSet, rec *SubmissionQueue, availability string) error {
	switch rec.ProcessCode {
	case ProcessMonitorPlan:
		mp, err := p.db.GetMonitorPlan(tx, set.MonPlanID)
		if err != nil || mp == nil {
			return err
		}
		mp.SubmissionAvailabilityCode = availability
		return p.db.Save(tx, mp)

	case ProcessQA:
		switch {
		case rec.TestSumID != nil:
			ts, err := p.db.GetQaSupp(tx, *rec.TestSumID)
			if err != nil || ts == nil {
				return err
			}
			if ts.SubmissionAvailabilityCode == AvailabilityUpdated {
				return nil
			}
			ts.SubmissionAvailabilityCode = availability
			return p.db.Save(tx, ts)
		case rec.QaCertEventID != nil:
			qce, err := p.db.GetQaCertEvent(tx, *rec.QaCertEventID)
			if err != nil || qce == nil {
				return err
			}
			qce.SubmissionAvailabilityCode = availability
			return p.db.Save(tx, qce)
		case rec.TestExtensionExemptionID != nil:
			tee, err := p.db.GetQaTee(tx, *rec.TestExtensionExemptionID)
			if err != nil || tee == nil {
				return err
			}
			tee.SubmissionAvailabilityCode = availability
			return p.db.Save(tx, tee)
		}
		return nil

	case ProcessEmissions:
		if rec.RptPeriodID == nil {
			return nil
		}
		ee, err := p.db.GetEmissionEvaluation(tx, set.MonPlanID, *rec.RptPeriodID)
		if err != nil || ee == nil {
			return err
		}
		if ee.SubmissionAvailabilityCode == AvailabilityUpdated {
			return nil
		}
		ee.SubmissionAvailabilityCode = availability
		return p.db.Save(tx, ee)

	case ProcessMATS:
		if rec.MatsBulkFileID == nil {
			return nil
		}
		mf, err := p.db.GetMatsBulkFile(tx, *rec.MatsBulkFileID)
		if err != nil || mf == nil {
			return err
		}
		mf.SubmissionAvailabilityCode = availability
		return p.db.Save(tx, mf)
	}
	return nil
}
