package api

import "time"

// EvaluationItem names one monitoring plan and the compliance artifacts to
// queue alongside it.
type EvaluationItem struct {
	MonPlanID                 string   `json:"monPlanId" validate:"required"`
	SubmitMonPlan             bool     `json:"submitMonPlan"`
	TestSumIDs                []string `json:"testSumIds"`
	QceIDs                    []string `json:"qceIds"`
	TeeIDs                    []string `json:"teeIds"`
	EmissionsReportingPeriods []string `json:"emissionsReportingPeriods"`
	MatsBulkFiles             []int64  `json:"matsBulkFiles"`
}

type QueueEvaluationsRequest struct {
	UserID    string           `json:"userId" validate:"required"`
	UserEmail string           `json:"userEmail" validate:"required,email"`
	Items     []EvaluationItem `json:"items" validate:"required,min=1,dive"`
}

type QueueSubmissionsRequest struct {
	UserID        string           `json:"userId" validate:"required"`
	UserEmail     string           `json:"userEmail" validate:"required,email"`
	ActivityID    string           `json:"activityId" validate:"required"`
	HasCritErrors bool             `json:"hasCritErrors"`
	Items         []EvaluationItem `json:"items" validate:"required,min=1,dive"`
}

// StageEntry is one step of the ordered queueing/processing trail handed to
// the support notification on failure.
type StageEntry struct {
	Action   string `json:"action"`
	DateTime string `json:"dateTime"`
}

type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type CompletedSet struct {
	SetID         string     `json:"setId"`
	MonPlanID     string     `json:"monPlanId"`
	OrisCode      int64      `json:"orisCode"`
	FacName       string     `json:"facName"`
	Configuration string     `json:"configuration"`
	StatusCode    string     `json:"statusCode"`
	CompletedTime *time.Time `json:"completedTime"`
}

type EmissionReportUpdate struct {
	MonPlanID   string    `json:"monPlanId"`
	RptPeriodID int64     `json:"rptPeriodId"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type LastUpdatedResponse struct {
	SubmissionLogs       []CompletedSet         `json:"submissionLogs"`
	EmissionReports      []EmissionReportUpdate `json:"emissionReports"`
	MostRecentUpdateDate time.Time              `json:"mostRecentUpdateDate"`
}

// ErrorEmailRequest re-drives the queueing failure notification for a set
// whose emails could not be delivered at failure time.
type ErrorEmailRequest struct {
	SubmissionSetID string       `json:"submissionSetId" validate:"required"`
	SubmissionID    *int64       `json:"submissionId"`
	Stages          []StageEntry `json:"stages"`
	RootError       string       `json:"rootError"`
}
