package submission

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ecmps/submission-engine/pkg/submission/api"
)

type QueueSuite struct {
	suite.Suite

	db        Database
	email     *fakeEmailService
	publisher *fakePublisher
	service   *QueueService
}

func (s *QueueSuite) SetupTest() {
	s.db = newTestDatabase(s.T())
	s.email = &fakeEmailService{}
	s.publisher = &fakePublisher{}

	logger := testLogger(s.T())
	notifier := NewNotifier(logger, s.db, s.email, "ecmps", "https://ecmps.example.gov")
	failures := NewFailureHandler(logger, s.db, notifier)
	s.service = NewQueueService(logger, s.db, s.publisher, failures)

	s.Require().NoError(s.db.Create(nil, &ClientConfig{Name: "ecmps", SupportEmail: "support@example.gov"}))
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, &QueueSuite{})
}

func (s *QueueSuite) seedEvaluationData() {
	t := s.T()
	require := s.Require()

	seedPlan(t, s.db, "MP1", 100)

	require.NoError(s.db.Create(nil, &QaSuppData{
		TestSumID:                  "TS-LINEARITY",
		TestTypeCode:               "FF2LBAS",
		SubmissionAvailabilityCode: AvailabilityRequire,
		EvalStatusCode:             "EVAL",
	}))
	require.NoError(s.db.Create(nil, &QaSuppData{
		TestSumID:                  "TS-RATA",
		TestTypeCode:               "RATA",
		SubmissionAvailabilityCode: AvailabilityRequire,
		EvalStatusCode:             "EVAL",
	}))

	require.NoError(s.db.Create(nil, &ReportingPeriod{
		ID:                 1,
		PeriodAbbreviation: "2024 Q1",
		CalendarYear:       2024,
		Quarter:            1,
	}))
	require.NoError(s.db.Create(nil, &EmissionEvaluation{
		MonPlanID:                  "MP1",
		RptPeriodID:                1,
		SubmissionAvailabilityCode: AvailabilityRequire,
		EvalStatusCode:             "EVAL",
	}))

	// plan-level check session; the tests have none so they default to NONE
	require.NoError(s.db.Create(nil, &CheckSession{
		MonPlanID:    "MP1",
		ProcessCode:  ProcessMonitorPlan,
		SeverityCode: "CRIT1",
	}))
}

func (s *QueueSuite) TestEnqueueEvaluationSet() {
	require := s.Require()
	s.seedEvaluationData()

	err := s.service.Enqueue(context.Background(), QueueParams{
		SetType:   SetTypeEvaluation,
		UserID:    "tester",
		UserEmail: "tester@example.gov",
		Items: []api.EvaluationItem{{
			MonPlanID:                 "MP1",
			SubmitMonPlan:             true,
			TestSumIDs:                []string{"TS-LINEARITY", "TS-RATA"},
			EmissionsReportingPeriods: []string{"2024 Q1"},
		}},
	})
	require.NoError(err)

	var sets []SubmissionSet
	require.NoError(s.db.Conn().Find(&sets).Error)
	require.Len(sets, 1)

	set := sets[0]
	require.Equal(SetTypeEvaluation, set.SetType)
	require.Equal("MP1", set.MonPlanID)
	require.Equal(int64(100), set.FacID)
	require.Equal(int64(1000), set.OrisCode)
	require.Equal("Plant 100", set.FacName)
	require.Equal("1", set.Configuration)
	require.Equal(StatusQueued, set.StatusCode)
	require.Empty(set.ActivityID)

	records, err := s.db.ListQueueRecords(nil, set.ID)
	require.NoError(err)
	require.Len(records, 4)

	// creation order: MP first, then RATA ahead of the linearity test, then EM
	require.Equal(ProcessMonitorPlan, records[0].ProcessCode)
	require.Equal("CRIT1", records[0].SeverityCode)
	require.Equal("TS-RATA", *records[1].TestSumID)
	require.Equal("TS-LINEARITY", *records[2].TestSumID)
	require.Equal(SeverityNone, records[1].SeverityCode)
	require.Equal(ProcessEmissions, records[3].ProcessCode)
	require.Equal(int64(1), *records[3].RptPeriodID)

	// evaluation flow stamps eval status, not availability
	mp, err := s.db.GetMonitorPlan(nil, "MP1")
	require.NoError(err)
	require.Equal(AvailabilityInQueue, mp.EvalStatusCode)
	require.Equal(AvailabilityRequire, mp.SubmissionAvailabilityCode)

	ts, err := s.db.GetQaSupp(nil, "TS-RATA")
	require.NoError(err)
	require.Equal(AvailabilityInQueue, ts.EvalStatusCode)

	ee, err := s.db.GetEmissionEvaluation(nil, "MP1", 1)
	require.NoError(err)
	require.Equal(AvailabilityInQueue, ee.EvalStatusCode)

	// evaluation sets never go to the processing worker
	require.Empty(s.publisher.published)
}

func (s *QueueSuite) TestEnqueueSubmissionSet() {
	require := s.Require()
	s.seedEvaluationData()

	require.NoError(s.db.Create(nil, &MatsBulkFile{
		ID:                         7,
		MonPlanID:                  "MP1",
		TestNumber:                 "T1",
		FileName:                   "mats.xml",
		SubmissionAvailabilityCode: AvailabilityRequire,
	}))

	err := s.service.Enqueue(context.Background(), QueueParams{
		SetType:    SetTypeSubmission,
		UserID:     "tester",
		UserEmail:  "tester@example.gov",
		ActivityID: "ACT-42",
		Items: []api.EvaluationItem{{
			MonPlanID:                 "MP1",
			SubmitMonPlan:             true,
			EmissionsReportingPeriods: []string{"2024 Q1"},
			MatsBulkFiles:             []int64{7},
		}},
	})
	require.NoError(err)

	var sets []SubmissionSet
	require.NoError(s.db.Conn().Find(&sets).Error)
	require.Len(sets, 1)
	require.Equal("ACT-42", sets[0].ActivityID)

	records, err := s.db.ListQueueRecords(nil, sets[0].ID)
	require.NoError(err)
	require.Len(records, 3)

	var mats *SubmissionQueue
	for i := range records {
		if records[i].ProcessCode == ProcessMATS {
			mats = &records[i]
		}
	}
	require.NotNil(mats)
	require.Equal(SeverityNone, mats.SeverityCode)
	require.Equal(int64(7), *mats.MatsBulkFileID)

	// submission flow stamps availability, not eval status
	mp, err := s.db.GetMonitorPlan(nil, "MP1")
	require.NoError(err)
	require.Equal(AvailabilityPending, mp.SubmissionAvailabilityCode)
	require.Equal("EVAL", mp.EvalStatusCode)

	mf, err := s.db.GetMatsBulkFile(nil, 7)
	require.NoError(err)
	require.Equal(AvailabilityPending, mf.SubmissionAvailabilityCode)

	require.Equal([]string{sets[0].ID}, s.publisher.published)
}

func (s *QueueSuite) TestEnqueueMissingPlan() {
	require := s.Require()

	err := s.service.Enqueue(context.Background(), QueueParams{
		SetType:   SetTypeEvaluation,
		UserID:    "tester",
		UserEmail: "tester@example.gov",
		Items:     []api.EvaluationItem{{MonPlanID: "NOPE"}},
	})

	var nf *NotFoundError
	require.ErrorAs(err, &nf)
	require.Equal("Monitoring plan", nf.Entity)

	var count int64
	require.NoError(s.db.Conn().Model(&SubmissionSet{}).Count(&count).Error)
	require.Zero(count)
	require.Empty(s.publisher.published)
	require.Empty(s.email.sent)
}

func (s *QueueSuite) TestEnqueueBatchIsAtomic() {
	require := s.Require()
	s.seedEvaluationData()
	seedPlan(s.T(), s.db, "MP2", 200)

	// second item references a reporting period that does not exist, which
	// only surfaces inside the transaction
	err := s.service.Enqueue(context.Background(), QueueParams{
		SetType:   SetTypeEvaluation,
		UserID:    "tester",
		UserEmail: "tester@example.gov",
		Items: []api.EvaluationItem{
			{MonPlanID: "MP1", SubmitMonPlan: true},
			{MonPlanID: "MP2", EmissionsReportingPeriods: []string{"1999 Q9"}},
		},
	})

	var nf *NotFoundError
	require.ErrorAs(err, &nf)

	var count int64
	require.NoError(s.db.Conn().Model(&SubmissionSet{}).Count(&count).Error)
	require.Zero(count)

	// the rollback restored the first item's origin rows too
	mp, err2 := s.db.GetMonitorPlan(nil, "MP1")
	require.NoError(err2)
	require.Equal("EVAL", mp.EvalStatusCode)
}

func (s *QueueSuite) TestCheckPreconditionsBlocksActivePlanWithUnsubmittedSiblings() {
	require := s.Require()
	t := s.T()

	seedPlan(t, s.db, "MP1", 100)

	// sibling plan on the same location, not yet submitted
	require.NoError(s.db.Create(nil, &MonitorPlan{
		ID:                         "MP-OLD",
		FacID:                      100,
		EndRptPeriodID:             i64Ptr(4),
		SubmissionAvailabilityCode: AvailabilityRequire,
	}))
	require.NoError(s.db.Create(nil, &MonitorPlanLocation{
		MonPlanID: "MP-OLD",
		MonLocID:  "MP1-loc1",
	}))

	err := s.service.CheckPreconditions(context.Background(), "MP1")
	var pre *PreconditionError
	require.ErrorAs(err, &pre)

	// once the sibling is submitted the plan queues fine
	old, err := s.db.GetMonitorPlan(nil, "MP-OLD")
	require.NoError(err)
	old.SubmissionAvailabilityCode = AvailabilityUpdated
	require.NoError(s.db.Save(nil, old))

	require.NoError(s.service.CheckPreconditions(context.Background(), "MP1"))
}

func (s *QueueSuite) TestHandleQueueingErrorPersistsDiagnostics() {
	require := s.Require()

	set := &SubmissionSet{
		ID:         "dead-set",
		SetType:    SetTypeSubmission,
		MonPlanID:  "MP1",
		UserID:     "tester",
		UserEmail:  "tester@example.gov",
		StatusCode: StatusQueued,
		QueuedTime: time.Now(),
	}
	record := &SubmissionQueue{
		SetID:       "dead-set",
		ProcessCode: ProcessQA,
		TestSumID:   strPtr("TS-1"),
		StatusCode:  StatusQueued,
		QueuedTime:  time.Now(),
	}

	s.service.failures.HandleQueueingError(
		context.Background(), set, record, nil,
		"tester@example.gov", "tester",
		&PipelineError{Label: labelQueueFailed, Message: "boom"},
	)

	saved, err := s.db.GetSet(nil, "dead-set")
	require.NoError(err)
	require.NotNil(saved)
	require.Equal(StatusError, saved.StatusCode)

	var note map[string]string
	require.NoError(json.Unmarshal([]byte(saved.Note), &note))
	require.Contains(note["message"], "boom")
	require.NotEmpty(note["stack"])

	records, err := s.db.ListQueueRecords(nil, "dead-set")
	require.NoError(err)
	require.Len(records, 1)
	require.Equal(StatusError, records[0].StatusCode)

	// user notification plus the support copy, tied together by the error id
	require.Len(s.email.sent, 2)
	require.Equal("tester@example.gov", s.email.sent[0].To)
	require.Equal("support@example.gov", s.email.sent[1].To)

	userID := extractErrorID(s.T(), s.email.sent[0].Body)
	supportID := extractErrorID(s.T(), s.email.sent[1].Body)
	require.Equal(userID, supportID)

	// support also receives the argument dump
	require.Contains(s.email.sent[1].Body, "Arguments:")
	require.Contains(s.email.sent[1].Body, `"setId": "dead-set"`)
	require.Contains(s.email.sent[1].Body, `"userId": "tester"`)
}

func (s *QueueSuite) TestGetLastUpdated() {
	require := s.Require()

	completed := time.Now()
	require.NoError(s.db.Create(nil, &SubmissionSet{
		ID:            "done-set",
		SetType:       SetTypeSubmission,
		MonPlanID:     "MP1",
		StatusCode:    StatusComplete,
		QueuedTime:    completed.Add(-time.Hour),
		CompletedTime: &completed,
	}))
	require.NoError(s.db.Create(nil, &SubmissionQueue{
		SetID:       "done-set",
		ProcessCode: ProcessEmissions,
		RptPeriodID: i64Ptr(1),
		StatusCode:  StatusComplete,
		QueuedTime:  completed.Add(-time.Hour),
	}))
	require.NoError(s.db.Create(nil, &EmissionEvaluationGlobal{
		MonPlanID:   "MP1",
		RptPeriodID: 1,
		LastUpdated: completed,
	}))

	resp, err := s.service.GetLastUpdated(context.Background(), completed.Add(-time.Minute))
	require.NoError(err)
	require.Len(resp.SubmissionLogs, 1)
	require.Equal("done-set", resp.SubmissionLogs[0].SetID)
	require.Len(resp.EmissionReports, 1)

	// nothing since a future cutoff
	resp, err = s.service.GetLastUpdated(context.Background(), completed.Add(time.Hour))
	require.NoError(err)
	require.Empty(resp.SubmissionLogs)
	require.Empty(resp.EmissionReports)
}

func TestOrderTestSumIDs(t *testing.T) {
	sums := []QaSuppData{
		{TestSumID: "a", TestTypeCode: "FF2LTST"},
		{TestSumID: "b", TestTypeCode: "RATA"},
		{TestSumID: "c", TestTypeCode: "PEI"},
		{TestSumID: "d", TestTypeCode: "UNKNOWN"},
	}
	got := orderTestSumIDs([]string{"a", "b", "c", "d"}, sums)
	want := []string{"b", "c", "a", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
