package submission

import (
	"time"
)

// SetType distinguishes the two queueing flows. Evaluation sets never carry an
// activity id or MATS files; submission sets go through signing and promotion.
type SetType string

const (
	SetTypeEvaluation SetType = "EVAL"
	SetTypeSubmission SetType = "SUBMISSION"
)

// StatusCode is the lifecycle state of a set or queue record. Transitions are
// monotonic: QUEUED -> WIP -> {COMPLETE, ERROR}.
type StatusCode string

const (
	StatusQueued   StatusCode = "QUEUED"
	StatusWIP      StatusCode = "WIP"
	StatusComplete StatusCode = "COMPLETE"
	StatusError    StatusCode = "ERROR"
)

// ProcessCode identifies which compliance artifact a queue record represents.
type ProcessCode string

const (
	ProcessMonitorPlan ProcessCode = "MP"
	ProcessQA          ProcessCode = "QA"
	ProcessEmissions   ProcessCode = "EM"
	ProcessMATS        ProcessCode = "MATS"
)

// processPriority fixes the order records are processed within a set. Later
// record types depend on earlier ones having already been copied.
var processPriority = map[ProcessCode]int{
	ProcessMonitorPlan: 1,
	ProcessQA:          2,
	ProcessEmissions:   3,
	ProcessMATS:        4,
}

// Origin-record availability codes.
const (
	AvailabilityUpdated = "UPDATED"
	AvailabilityPending = "PENDING"
	AvailabilityRequire = "REQUIRE"
	AvailabilityInQueue = "INQ"
)

// SeverityNone is stamped on queue records that have no matching check session.
const SeverityNone = "NONE"

type SubmissionSet struct {
	ID            string      `gorm:"column:submission_set_id;primaryKey"`
	SetType       SetType     `gorm:"column:set_type_cd"`
	MonPlanID     string      `gorm:"column:mon_plan_id"`
	FacID         int64       `gorm:"column:fac_id"`
	OrisCode      int64       `gorm:"column:oris_code"`
	FacName       string      `gorm:"column:fac_name"`
	Configuration string      `gorm:"column:configuration"`
	UserID        string      `gorm:"column:user_id"`
	UserEmail     string      `gorm:"column:user_email"`
	ActivityID    string      `gorm:"column:activity_id"`
	HasCritErrors bool        `gorm:"column:has_crit_errors"`
	StatusCode    StatusCode  `gorm:"column:status_cd"`
	QueuedTime    time.Time   `gorm:"column:queued_time"`
	StartedTime   *time.Time  `gorm:"column:started_time"`
	CompletedTime *time.Time  `gorm:"column:completed_time"`
	Note          string      `gorm:"column:note"`
	NoteTime      *time.Time  `gorm:"column:note_time"`
}

func (SubmissionSet) TableName() string { return "submission_set" }

type SubmissionQueue struct {
	ID                       int64       `gorm:"column:submission_id;primaryKey;autoIncrement"`
	SetID                    string      `gorm:"column:submission_set_id"`
	ProcessCode              ProcessCode `gorm:"column:process_cd"`
	TestSumID                *string     `gorm:"column:test_sum_id"`
	QaCertEventID            *string     `gorm:"column:qa_cert_event_id"`
	TestExtensionExemptionID *string     `gorm:"column:test_extension_exemption_id"`
	RptPeriodID              *int64      `gorm:"column:rpt_period_id"`
	MatsBulkFileID           *int64      `gorm:"column:mats_bulk_file_id"`
	SeverityCode             string      `gorm:"column:severity_cd"`
	StatusCode               StatusCode  `gorm:"column:status_cd"`
	QueuedTime               time.Time   `gorm:"column:queued_time"`
	StartedTime              *time.Time  `gorm:"column:started_time"`
	CompletedTime            *time.Time  `gorm:"column:completed_time"`
	Note                     string      `gorm:"column:note"`
	NoteTime                 *time.Time  `gorm:"column:note_time"`
}

func (SubmissionQueue) TableName() string { return "submission_queue" }

// Workspace origin records. The pipeline only ever touches their availability
// columns; everything else belongs to the surrounding CRUD services.

type MonitorPlan struct {
	ID                         string `gorm:"column:mon_plan_id;primaryKey"`
	FacID                      int64  `gorm:"column:fac_id"`
	EndRptPeriodID             *int64 `gorm:"column:end_rpt_period_id"`
	SubmissionAvailabilityCode string `gorm:"column:submission_availability_cd"`
	EvalStatusCode             string `gorm:"column:eval_status_cd"`
}

func (MonitorPlan) TableName() string { return "monitor_plan" }

type MonitorLocation struct {
	ID       string `gorm:"column:mon_loc_id;primaryKey"`
	UnitName string `gorm:"column:unit_name"`
}

func (MonitorLocation) TableName() string { return "monitor_location" }

type MonitorPlanLocation struct {
	MonPlanID string `gorm:"column:mon_plan_id;primaryKey"`
	MonLocID  string `gorm:"column:mon_loc_id;primaryKey"`
}

func (MonitorPlanLocation) TableName() string { return "monitor_plan_location" }

type Plant struct {
	FacID        int64  `gorm:"column:fac_id;primaryKey"`
	OrisCode     int64  `gorm:"column:oris_code"`
	FacilityName string `gorm:"column:facility_name"`
	State        string `gorm:"column:state"`
}

func (Plant) TableName() string { return "plant" }

type QaSuppData struct {
	TestSumID                  string `gorm:"column:test_sum_id;primaryKey"`
	TestTypeCode               string `gorm:"column:test_type_cd"`
	SubmissionAvailabilityCode string `gorm:"column:submission_availability_cd"`
	EvalStatusCode             string `gorm:"column:eval_status_cd"`
}

func (QaSuppData) TableName() string { return "qa_supp_data" }

type QaCertEvent struct {
	ID                         string `gorm:"column:qa_cert_event_id;primaryKey"`
	SubmissionAvailabilityCode string `gorm:"column:submission_availability_cd"`
	EvalStatusCode             string `gorm:"column:eval_status_cd"`
}

func (QaCertEvent) TableName() string { return "qa_cert_event" }

type QaTee struct {
	ID                         string `gorm:"column:test_extension_exemption_id;primaryKey"`
	SubmissionAvailabilityCode string `gorm:"column:submission_availability_cd"`
	EvalStatusCode             string `gorm:"column:eval_status_cd"`
}

func (QaTee) TableName() string { return "qa_test_extension_exemption" }

type ReportingPeriod struct {
	ID                 int64  `gorm:"column:rpt_period_id;primaryKey"`
	PeriodAbbreviation string `gorm:"column:period_abbreviation"`
	CalendarYear       int    `gorm:"column:calendar_year"`
	Quarter            int    `gorm:"column:quarter"`
}

func (ReportingPeriod) TableName() string { return "reporting_period" }

type EmissionEvaluation struct {
	MonPlanID                  string `gorm:"column:mon_plan_id;primaryKey"`
	RptPeriodID                int64  `gorm:"column:rpt_period_id;primaryKey"`
	SubmissionAvailabilityCode string `gorm:"column:submission_availability_cd"`
	EvalStatusCode             string `gorm:"column:eval_status_cd"`
}

func (EmissionEvaluation) TableName() string { return "emission_evaluation" }

type MatsBulkFile struct {
	ID                         int64  `gorm:"column:mats_bulk_file_id;primaryKey"`
	MonPlanID                  string `gorm:"column:mon_plan_id"`
	TestNumber                 string `gorm:"column:test_number"`
	FileName                   string `gorm:"column:file_name"`
	SubmissionAvailabilityCode string `gorm:"column:submission_availability_cd"`
}

func (MatsBulkFile) TableName() string { return "mats_bulk_file" }

// CheckSession is the read-only severity lookup populated by the check engine.
type CheckSession struct {
	ID                       int64       `gorm:"column:chk_session_id;primaryKey"`
	MonPlanID                string      `gorm:"column:mon_plan_id"`
	ProcessCode              ProcessCode `gorm:"column:process_cd"`
	TestSumID                *string     `gorm:"column:test_sum_id"`
	QaCertEventID            *string     `gorm:"column:qa_cert_event_id"`
	TestExtensionExemptionID *string     `gorm:"column:test_extension_exemption_id"`
	RptPeriodID              *int64      `gorm:"column:rpt_period_id"`
	SeverityCode             string      `gorm:"column:severity_cd"`
}

func (CheckSession) TableName() string { return "check_session" }

type ClientConfig struct {
	Name         string `gorm:"column:name;primaryKey"`
	SupportEmail string `gorm:"column:support_email"`
}

func (ClientConfig) TableName() string { return "client_config" }

// EmissionEvaluationGlobal is the official-schema emissions row; queried for
// the last-updated feed only.
type EmissionEvaluationGlobal struct {
	MonPlanID   string    `gorm:"column:mon_plan_id;primaryKey"`
	RptPeriodID int64     `gorm:"column:rpt_period_id;primaryKey"`
	LastUpdated time.Time `gorm:"column:last_updated"`
}

func (EmissionEvaluationGlobal) TableName() string { return "emission_evaluation_global" }
