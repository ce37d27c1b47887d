package submission

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ecmps/submission-engine/pkg/submission/api"
)

const stageTimeLayout = "01/02/2006 03:04:05 PM"

// stageTrail is the ordered list of stage labels reached during queueing. It
// is handed verbatim to the failure handler when a step fails.
type stageTrail struct {
	entries []api.StageEntry
}

func (t *stageTrail) add(action string) {
	t.entries = append(t.entries, api.StageEntry{
		Action:   action,
		DateTime: time.Now().Format(stageTimeLayout),
	})
}

// ProcessPublisher hands a freshly queued set to the processing worker.
type ProcessPublisher interface {
	PublishProcess(ctx context.Context, setID string) error
}

type QueueService struct {
	logger    *zap.Logger
	db        Database
	publisher ProcessPublisher
	failures  *FailureHandler
}

func NewQueueService(logger *zap.Logger, db Database, publisher ProcessPublisher, failures *FailureHandler) *QueueService {
	return &QueueService{
		logger:    logger.Named("queue"),
		db:        db,
		publisher: publisher,
		failures:  failures,
	}
}

type QueueParams struct {
	SetType       SetType
	UserID        string
	UserEmail     string
	ActivityID    string
	HasCritErrors bool
	Items         []api.EvaluationItem
}

// Enqueue creates one set plus its queue records per item, all inside one
// transaction: if any item fails, nothing from the batch persists.
func (s *QueueService) Enqueue(ctx context.Context, params QueueParams) error {
	s.logger.Debug("starting to queue records",
		zap.String("userId", params.UserID),
		zap.Int("items", len(params.Items)))

	for _, item := range params.Items {
		if err := s.CheckPreconditions(ctx, item.MonPlanID); err != nil {
			return err
		}
	}

	stages := &stageTrail{}
	stages.add("QUEUEING_STARTED")

	var failedSet *SubmissionSet
	var failedRecord *SubmissionQueue
	var createdSets []string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range params.Items {
			set, record, err := s.queueItem(ctx, tx, params, params.Items[i], stages)
			if err != nil {
				failedSet, failedRecord = set, record
				return err
			}
			createdSets = append(createdSets, set.ID)
		}
		return nil
	})
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			// Pure validation failure: the rollback removed every row, so
			// there is nothing to demote and no diagnostic to persist.
			return err
		}

		s.logger.Error("failed to queue records, aborting transaction",
			zap.String("userId", params.UserID), zap.Error(err))
		s.failures.HandleQueueingError(ctx, failedSet, failedRecord, stages.entries, params.UserEmail, params.UserID, err)
		return &PipelineError{Label: labelQueueFailed, Message: err.Error()}
	}

	stages.add("QUEUEING_COMPLETED")
	SetsQueuedCount.WithLabelValues(string(params.SetType)).Add(float64(len(createdSets)))
	s.logger.Debug("finished queueing records", zap.String("userId", params.UserID))

	if params.SetType == SetTypeSubmission && s.publisher != nil {
		for _, setID := range createdSets {
			if err := s.publisher.PublishProcess(ctx, setID); err != nil {
				s.logger.Error("failed to publish process job", zap.String("setId", setID), zap.Error(err))
			}
		}
	}

	return nil
}

// testTypePriority orders test summaries within one item: RATA tests must be
// evaluated before the tests that reference them.
var testTypePriority = map[string]int{
	"RATA":    1,
	"F2LREF":  2,
	"F2LCHK":  3,
	"FFACC":   4,
	"FFACCTT": 4,
	"PEI":     4,
	"FF2LBAS": 5,
	"FF2LTST": 6,
}

func orderTestSumIDs(ids []string, sums []QaSuppData) []string {
	prio := make(map[string]int, len(sums))
	for _, ts := range sums {
		p, ok := testTypePriority[ts.TestTypeCode]
		if !ok {
			p = len(testTypePriority) + 1
		}
		prio[ts.TestSumID] = p
	}
	ordered := make([]string, len(ids))
	copy(ordered, ids)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, ok := prio[ordered[i]]
		if !ok {
			pi = len(testTypePriority) + 2
		}
		pj, ok := prio[ordered[j]]
		if !ok {
			pj = len(testTypePriority) + 2
		}
		return pi < pj
	})
	return ordered
}

func (s *QueueService) queueItem(
	ctx context.Context,
	tx *gorm.DB,
	params QueueParams,
	item api.EvaluationItem,
	stages *stageTrail,
) (*SubmissionSet, *SubmissionQueue, error) {
	now := time.Now()
	set := &SubmissionSet{
		ID:            uuid.NewString(),
		SetType:       params.SetType,
		MonPlanID:     item.MonPlanID,
		UserID:        params.UserID,
		UserEmail:     params.UserEmail,
		HasCritErrors: params.HasCritErrors,
		StatusCode:    StatusQueued,
		QueuedTime:    now,
	}
	if params.SetType == SetTypeSubmission {
		set.ActivityID = params.ActivityID
	}
	var current *SubmissionQueue

	s.logger.Debug("queueing record",
		zap.String("setId", set.ID),
		zap.String("monPlanId", item.MonPlanID),
		zap.String("userId", params.UserID))

	stages.add("SET_ID_ASSIGNED")

	mp, err := s.db.GetMonitorPlan(tx, item.MonPlanID)
	if err != nil {
		return set, current, err
	}
	if mp == nil {
		return set, current, &NotFoundError{Entity: "Monitor Plan", ID: item.MonPlanID}
	}

	configuration, err := s.db.PlanConfiguration(tx, item.MonPlanID)
	if err != nil {
		return set, current, err
	}
	set.Configuration = configuration

	facility, err := s.db.GetFacility(tx, mp.FacID)
	if err != nil {
		return set, current, err
	}
	if facility == nil {
		return set, current, &NotFoundError{Entity: "Facility", ID: set.MonPlanID}
	}

	set.FacID = facility.FacID
	set.OrisCode = facility.OrisCode
	set.FacName = facility.FacilityName

	if err := s.db.Create(tx, set); err != nil {
		return set, current, err
	}
	stages.add("SET_SAVED")

	if item.SubmitMonPlan {
		s.logger.Debug("creating a monitoring plan record", zap.String("setId", set.ID))

		record := &SubmissionQueue{
			SetID:       set.ID,
			ProcessCode: ProcessMonitorPlan,
			StatusCode:  StatusQueued,
			QueuedTime:  now,
		}
		current = record

		severity, err := s.db.SeverityForPlan(tx, item.MonPlanID)
		if err != nil {
			return set, current, err
		}
		record.SeverityCode = severity

		s.markOriginQueued(params.SetType, &mp.SubmissionAvailabilityCode, &mp.EvalStatusCode)
		if err := s.db.Create(tx, record); err != nil {
			return set, current, err
		}
		if err := s.db.Save(tx, mp); err != nil {
			return set, current, err
		}
		stages.add("MP_QUEUED")
	}

	sums, err := s.db.ListQaSupp(tx, item.TestSumIDs)
	if err != nil {
		return set, current, err
	}
	suppByID := make(map[string]*QaSuppData, len(sums))
	for i := range sums {
		suppByID[sums[i].TestSumID] = &sums[i]
	}

	s.logger.Debug("queueing test summary records", zap.Int("count", len(item.TestSumIDs)))
	for _, id := range orderTestSumIDs(item.TestSumIDs, sums) {
		id := id
		record := &SubmissionQueue{
			SetID:       set.ID,
			ProcessCode: ProcessQA,
			StatusCode:  StatusQueued,
			TestSumID:   &id,
			QueuedTime:  now,
		}
		current = record

		severity, err := s.db.SeverityForTest(tx, id)
		if err != nil {
			return set, current, err
		}
		record.SeverityCode = severity

		if err := s.db.Create(tx, record); err != nil {
			return set, current, err
		}
		if ts := suppByID[id]; ts != nil {
			s.markOriginQueued(params.SetType, &ts.SubmissionAvailabilityCode, &ts.EvalStatusCode)
			if err := s.db.Save(tx, ts); err != nil {
				return set, current, err
			}
		}
		stages.add("TEST_QUEUED")
	}

	s.logger.Debug("queueing QCE records", zap.Int("count", len(item.QceIDs)))
	for _, id := range item.QceIDs {
		id := id
		record := &SubmissionQueue{
			SetID:         set.ID,
			ProcessCode:   ProcessQA,
			StatusCode:    StatusQueued,
			QaCertEventID: &id,
			QueuedTime:    now,
		}
		current = record

		severity, err := s.db.SeverityForCertEvent(tx, id)
		if err != nil {
			return set, current, err
		}
		record.SeverityCode = severity

		if err := s.db.Create(tx, record); err != nil {
			return set, current, err
		}
		qce, err := s.db.GetQaCertEvent(tx, id)
		if err != nil {
			return set, current, err
		}
		if qce != nil {
			s.markOriginQueued(params.SetType, &qce.SubmissionAvailabilityCode, &qce.EvalStatusCode)
			if err := s.db.Save(tx, qce); err != nil {
				return set, current, err
			}
		}
		stages.add("QCE_QUEUED")
	}

	s.logger.Debug("queueing TEE records", zap.Int("count", len(item.TeeIDs)))
	for _, id := range item.TeeIDs {
		id := id
		record := &SubmissionQueue{
			SetID:                    set.ID,
			ProcessCode:              ProcessQA,
			StatusCode:               StatusQueued,
			TestExtensionExemptionID: &id,
			QueuedTime:               now,
		}
		current = record

		severity, err := s.db.SeverityForTee(tx, id)
		if err != nil {
			return set, current, err
		}
		record.SeverityCode = severity

		if err := s.db.Create(tx, record); err != nil {
			return set, current, err
		}
		tee, err := s.db.GetQaTee(tx, id)
		if err != nil {
			return set, current, err
		}
		if tee != nil {
			s.markOriginQueued(params.SetType, &tee.SubmissionAvailabilityCode, &tee.EvalStatusCode)
			if err := s.db.Save(tx, tee); err != nil {
				return set, current, err
			}
		}
		stages.add("TEE_QUEUED")
	}

	s.logger.Debug("queueing emissions records", zap.Int("periods", len(item.EmissionsReportingPeriods)))
	for _, periodAbbrev := range item.EmissionsReportingPeriods {
		rp, err := s.db.GetReportingPeriodByAbbreviation(tx, periodAbbrev)
		if err != nil {
			return set, current, err
		}
		if rp == nil {
			return set, current, &NotFoundError{Entity: "Reporting period", ID: periodAbbrev}
		}

		rptPeriodID := rp.ID
		record := &SubmissionQueue{
			SetID:       set.ID,
			ProcessCode: ProcessEmissions,
			StatusCode:  StatusQueued,
			RptPeriodID: &rptPeriodID,
			QueuedTime:  now,
		}
		current = record

		severity, err := s.db.SeverityForEmissions(tx, item.MonPlanID, rp.ID)
		if err != nil {
			return set, current, err
		}
		record.SeverityCode = severity

		if err := s.db.Create(tx, record); err != nil {
			return set, current, err
		}
		ee, err := s.db.GetEmissionEvaluation(tx, item.MonPlanID, rp.ID)
		if err != nil {
			return set, current, err
		}
		if ee != nil {
			s.markOriginQueued(params.SetType, &ee.SubmissionAvailabilityCode, &ee.EvalStatusCode)
			if err := s.db.Save(tx, ee); err != nil {
				return set, current, err
			}
		}
		stages.add("EM_QUEUED")
	}

	if params.SetType == SetTypeSubmission {
		s.logger.Debug("queueing MATS records", zap.Int("count", len(item.MatsBulkFiles)))
		for _, matsID := range item.MatsBulkFiles {
			matsID := matsID
			record := &SubmissionQueue{
				SetID:          set.ID,
				ProcessCode:    ProcessMATS,
				StatusCode:     StatusQueued,
				MatsBulkFileID: &matsID,
				// No check session applies to file artifacts.
				SeverityCode: SeverityNone,
				QueuedTime:   now,
			}
			current = record

			if err := s.db.Create(tx, record); err != nil {
				return set, current, err
			}
			mf, err := s.db.GetMatsBulkFile(tx, matsID)
			if err != nil {
				return set, current, err
			}
			if mf != nil {
				mf.SubmissionAvailabilityCode = AvailabilityPending
				if err := s.db.Save(tx, mf); err != nil {
					return set, current, err
				}
			}
			stages.add("MATS_QUEUED")
		}
	}

	s.logger.Debug("successfully queued record", zap.String("setId", set.ID))
	return set, nil, nil
}

// markOriginQueued flips the availability column the flow owns: evaluation
// sets stamp the eval status, submission sets stamp the availability code.
func (s *QueueService) markOriginQueued(setType SetType, availability *string, evalStatus *string) {
	if setType == SetTypeEvaluation {
		*evalStatus = AvailabilityInQueue
		return
	}
	*availability = AvailabilityPending
}

// GetLastUpdated returns the sets with emissions records completed since the
// given time plus the official emissions rows updated since then.
func (s *QueueService) GetLastUpdated(ctx context.Context, since time.Time) (*api.LastUpdatedResponse, error) {
	sets, err := s.db.ListCompletedEmissionSetsSince(since)
	if err != nil {
		return nil, err
	}

	globals, err := s.db.ListGlobalEmissionsUpdatedSince(since)
	if err != nil {
		return nil, err
	}

	resp := &api.LastUpdatedResponse{
		MostRecentUpdateDate: time.Now(),
	}
	for _, set := range sets {
		resp.SubmissionLogs = append(resp.SubmissionLogs, api.CompletedSet{
			SetID:         set.ID,
			MonPlanID:     set.MonPlanID,
			OrisCode:      set.OrisCode,
			FacName:       set.FacName,
			Configuration: set.Configuration,
			StatusCode:    string(set.StatusCode),
			CompletedTime: set.CompletedTime,
		})
	}
	for _, row := range globals {
		resp.EmissionReports = append(resp.EmissionReports, api.EmissionReportUpdate{
			MonPlanID:   row.MonPlanID,
			RptPeriodID: row.RptPeriodID,
			LastUpdated: row.LastUpdated,
		})
	}

	return resp, nil
}
