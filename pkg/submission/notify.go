package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecmps/submission-engine/pkg/email"
	"github.com/ecmps/submission-engine/pkg/submission/api"
)

// Notifier builds and sends the lifecycle emails: submission confirmations and
// failure diagnostics, each to the user and the support inbox. Every send is
// best-effort, callers log and move on.
type Notifier struct {
	logger     *zap.Logger
	db         Database
	email      email.Service
	clientName string
	appURL     string
}

func NewNotifier(logger *zap.Logger, db Database, emailService email.Service, clientName, appURL string) *Notifier {
	return &Notifier{
		logger:     logger.Named("notifier"),
		db:         db,
		email:      emailService,
		clientName: clientName,
		appURL:     strings.TrimRight(appURL, "/"),
	}
}

func (n *Notifier) supportEmail() string {
	cc, err := n.db.GetClientConfig(nil, n.clientName)
	if err != nil || cc == nil {
		if err != nil {
			n.logger.Error("failed to load client config", zap.Error(err))
		}
		return ""
	}
	return cc.SupportEmail
}

func recordLabel(rec *SubmissionQueue) string {
	switch {
	case rec == nil:
		return ""
	case rec.TestSumID != nil:
		return "Test Summary " + *rec.TestSumID
	case rec.QaCertEventID != nil:
		return "QA Cert Event " + *rec.QaCertEventID
	case rec.TestExtensionExemptionID != nil:
		return "Test Extension Exemption " + *rec.TestExtensionExemptionID
	case rec.RptPeriodID != nil:
		return fmt.Sprintf("Emissions (reporting period %d)", *rec.RptPeriodID)
	case rec.MatsBulkFileID != nil:
		return fmt.Sprintf("MATS Bulk File %d", *rec.MatsBulkFileID)
	default:
		return "Monitoring Plan"
	}
}

// severityColor maps the record's evaluation severity onto the row color used
// in the confirmation table: green for clean, red for critical, yellow for
// anything in between.
func severityColor(code string) string {
	switch {
	case code == "" || code == SeverityNone || code == "INFORM":
		return "#90EE90"
	case strings.HasPrefix(code, "CRIT"):
		return "#FF7F7F"
	default:
		return "#FFFF99"
	}
}

// reportURL deep-links the record's report view. MATS records are file
// artifacts with no rendered report, so they carry no link.
func (n *Notifier) reportURL(set *SubmissionSet, rec *SubmissionQueue) string {
	if n.appURL == "" || rec.MatsBulkFileID != nil {
		return ""
	}

	q := url.Values{}
	q.Set("facilityId", strconv.FormatInt(set.FacID, 10))
	switch {
	case rec.TestSumID != nil:
		q.Set("reportCode", "TEST_DETAIL")
		q.Set("testId", *rec.TestSumID)
	case rec.QaCertEventID != nil:
		q.Set("reportCode", "QCE")
		q.Set("qceId", *rec.QaCertEventID)
	case rec.TestExtensionExemptionID != nil:
		q.Set("reportCode", "TEE")
		q.Set("teeId", *rec.TestExtensionExemptionID)
	case rec.RptPeriodID != nil:
		q.Set("reportCode", "EM")
		q.Set("monitorPlanId", set.MonPlanID)
		q.Set("rptPeriodId", strconv.FormatInt(*rec.RptPeriodID, 10))
	default:
		q.Set("reportCode", "MPP")
		q.Set("monitorPlanId", set.MonPlanID)
	}

	return fmt.Sprintf("%s/workspace/reports?%s", n.appURL, q.Encode())
}

func stageTable(stages []api.StageEntry) string {
	if len(stages) == 0 {
		return "<p>No stages recorded.</p>"
	}
	var b strings.Builder
	b.WriteString("<table border=\"1\"><tr><th>Stage</th><th>Time</th></tr>")
	for _, s := range stages {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", s.Action, s.DateTime)
	}
	b.WriteString("</table>")
	return b.String()
}

// argumentDump serializes the failing request's identifying arguments for the
// support email.
func argumentDump(set *SubmissionSet, userID string) string {
	args := map[string]interface{}{"userId": userID}
	if set != nil {
		args["setId"] = set.ID
		args["setType"] = set.SetType
		args["monPlanId"] = set.MonPlanID
		args["facId"] = set.FacID
		args["activityId"] = set.ActivityID
		args["userEmail"] = set.UserEmail
		args["statusCode"] = set.StatusCode
	}
	b, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return ""
	}
	return fmt.Sprintf("<p>Arguments:</p><pre>%s</pre>", b)
}

// recordTable is the per-record summary in the confirmation email: artifact,
// evaluation severity (color coded), terminal status, and the report link.
func (n *Notifier) recordTable(set *SubmissionSet, records []SubmissionQueue) string {
	var b strings.Builder
	b.WriteString("<table border=\"1\"><tr><th>Record</th><th>Evaluation</th><th>Status</th><th>Report</th></tr>")
	for i := range records {
		rec := &records[i]

		severity := rec.SeverityCode
		if severity == "" {
			severity = SeverityNone
		}

		link := "&nbsp;"
		if u := n.reportURL(set, rec); u != "" {
			link = fmt.Sprintf("<a href=\"%s\">View Report</a>", u)
		}

		fmt.Fprintf(&b,
			"<tr><td>%s</td><td style=\"background-color:%s\">%s</td><td>%s</td><td>%s</td></tr>",
			recordLabel(rec), severityColor(severity), severity, rec.StatusCode, link)
	}
	b.WriteString("</table>")
	return b.String()
}

// SendSuccess confirms a completed submission, once to the submitting user and
// once to the support inbox.
func (n *Notifier) SendSuccess(ctx context.Context, set *SubmissionSet, records []SubmissionQueue) error {
	table := n.recordTable(set, records)
	subject := fmt.Sprintf("Submission Confirmation - %s", set.FacName)

	var firstErr error
	if set.UserEmail != "" {
		userBody := fmt.Sprintf(
			"<p>Your submission for facility %s (ORIS %d), configuration %s, has been received and promoted to the official record.</p>%s",
			set.FacName, set.OrisCode, set.Configuration, table)
		if err := n.email.SendEmail(ctx, set.UserEmail, "", subject, userBody); err != nil {
			n.logger.Error("failed to send user confirmation email",
				zap.String("setId", set.ID), zap.Error(err))
			firstErr = err
		}
	}

	support := n.supportEmail()
	if support == "" {
		return firstErr
	}
	supportBody := fmt.Sprintf(
		"<p>Submission set %s completed for facility %s (plan %s), submitted by %s.</p>%s",
		set.ID, set.FacName, set.MonPlanID, set.UserID, table)
	if err := n.email.SendEmail(ctx, support, "", subject, supportBody); err != nil {
		n.logger.Error("failed to send support confirmation email",
			zap.String("setId", set.ID), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendQueueingFailure notifies the user that their request was rejected and
// hands the support inbox the full stage trail plus the root cause. Both
// emails share one generated error id so the user can reference the incident.
func (n *Notifier) SendQueueingFailure(
	ctx context.Context,
	set *SubmissionSet,
	stages []api.StageEntry,
	userEmail, userID string,
	cause error,
) error {
	errorID := uuid.NewString()

	facility := "your facility"
	setID := "(not assigned)"
	if set != nil {
		if set.FacName != "" {
			facility = set.FacName
		}
		setID = set.ID
	}

	if userEmail != "" {
		userBody := fmt.Sprintf(
			"<p>Your evaluation/submission request for %s could not be queued. "+
				"No records were changed. Support has been notified.</p>"+
				"<p>Error ID: %s</p>", facility, errorID)
		if err := n.email.SendEmail(ctx, userEmail, "", "Queueing Failure", userBody); err != nil {
			n.logger.Error("failed to send user failure email",
				zap.String("userId", userID), zap.Error(err))
		}
	}

	support := n.supportEmail()
	if support == "" {
		return nil
	}
	supportBody := fmt.Sprintf(
		"<p>Queueing failed for user %s, set %s.</p><p>Error ID: %s</p><p>Error: %s</p>%s%s",
		userID, setID, errorID, cause.Error(), stageTable(stages), argumentDump(set, userID))
	return n.email.SendEmail(ctx, support, "", "Queueing Failure - "+errorID, supportBody)
}

// SendProcessingFailure notifies the user and support after a set died during
// processing, signing, or promotion.
func (n *Notifier) SendProcessingFailure(
	ctx context.Context,
	set *SubmissionSet,
	stages []api.StageEntry,
	cause error,
) error {
	errorID := uuid.NewString()

	if set.UserEmail != "" {
		userBody := fmt.Sprintf(
			"<p>Your submission for facility %s (ORIS %d) could not be completed. "+
				"The affected records have been returned to you for resubmission.</p>"+
				"<p>Error ID: %s</p>",
			set.FacName, set.OrisCode, errorID)
		if err := n.email.SendEmail(ctx, set.UserEmail, "", "Submission Failure - "+set.FacName, userBody); err != nil {
			n.logger.Error("failed to send user failure email",
				zap.String("setId", set.ID), zap.Error(err))
		}
	}

	support := n.supportEmail()
	if support == "" {
		return nil
	}
	supportBody := fmt.Sprintf(
		"<p>Processing failed for set %s (plan %s, facility %s).</p><p>Error ID: %s</p><p>Error: %s</p>%s%s",
		set.ID, set.MonPlanID, set.FacName, errorID, cause.Error(), stageTable(stages), argumentDump(set, set.UserID))
	return n.email.SendEmail(ctx, support, "", "Submission Failure - "+errorID, supportBody)
}

// SendErrorEmail re-drives the failure notification for a set whose emails
// could not be delivered when it originally failed.
func (n *Notifier) SendErrorEmail(ctx context.Context, req api.ErrorEmailRequest) error {
	set, err := n.db.GetSet(nil, req.SubmissionSetID)
	if err != nil {
		return err
	}
	if set == nil {
		return &NotFoundError{Entity: "Submission set", ID: req.SubmissionSetID}
	}

	cause := fmt.Errorf("%s", req.RootError)
	if req.RootError == "" && set.Note != "" {
		cause = fmt.Errorf("%s", set.Note)
	}
	return n.SendProcessingFailure(ctx, set, req.Stages, cause)
}
