package submission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Document is one generated copy-of-record waiting for signing.
type Document struct {
	Title   string
	Content []byte
}

// PromotionOp is a deferred workspace-to-official copy. Ops are accumulated
// while records are prepared and executed later in one transaction, in the
// order they were queued.
type PromotionOp struct {
	Command string
	Params  []interface{}
}

type Processor struct {
	logger   *zap.Logger
	db       Database
	renderer RendererClient
	signer   SigningGateway
	store    ObjectStore
	notifier *Notifier

	scratchRoot string
}

func NewProcessor(
	logger *zap.Logger,
	db Database,
	renderer RendererClient,
	signer SigningGateway,
	store ObjectStore,
	notifier *Notifier,
	scratchRoot string,
) *Processor {
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Processor{
		logger:      logger.Named("processor"),
		db:          db,
		renderer:    renderer,
		signer:      signer,
		store:       store,
		notifier:    notifier,
		scratchRoot: scratchRoot,
	}
}

// setBuild accumulates everything one processing run produces before the
// commit: rendered documents, deferred promotion ops, and the scratch folder
// the signing payload is staged in.
type setBuild struct {
	folder    string
	documents []Document
	ops       []PromotionOp
}

type recordHandler func(p *Processor, ctx context.Context, set *SubmissionSet, rec *SubmissionQueue, build *setBuild) error

// recordHandlers is the closed dispatch table over process codes. A queue
// record with a code outside this table is a data corruption error.
var recordHandlers = map[ProcessCode]recordHandler{
	ProcessMonitorPlan: (*Processor).prepareMonitorPlan,
	ProcessQA:          (*Processor).prepareQA,
	ProcessEmissions:   (*Processor).prepareEmissions,
	ProcessMATS:        (*Processor).prepareMATS,
}

// Process drives one queued set through document generation, signing, and
// promotion. Records are handled strictly in priority order MP, QA, EM, MATS:
// downstream promotion operations assume upstream copies exist.
func (p *Processor) Process(ctx context.Context, setID string) error {
	p.logger.Info("processing copy of record", zap.String("setId", setID))

	set, err := p.db.GetSet(nil, setID)
	if err != nil {
		return err
	}
	if set == nil {
		return &NotFoundError{Entity: "Submission set", ID: setID}
	}

	// statuses move one way: a set that already reached a terminal state must
	// never re-run signing or the promotion procedures
	if set.StatusCode == StatusComplete || set.StatusCode == StatusError {
		return &PreconditionError{
			Message: fmt.Sprintf("submission set %s is already %s and cannot be reprocessed", set.ID, set.StatusCode),
		}
	}

	now := time.Now()
	set.StatusCode = StatusWIP
	set.StartedTime = &now
	if err := p.db.Save(nil, set); err != nil {
		return err
	}

	records, err := p.db.ListQueueRecords(nil, setID)
	if err != nil {
		return p.failProcessing(ctx, set, records, nil, err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return processPriority[records[i].ProcessCode] < processPriority[records[j].ProcessCode]
	})

	stages := &stageTrail{}
	stages.add("PROCESSING_STARTED")

	// The scratch folder belongs to this run alone; the token makes it safe
	// against concurrent sets.
	build := &setBuild{folder: filepath.Join(p.scratchRoot, uuid.NewString())}
	if err := os.MkdirAll(build.folder, 0o755); err != nil {
		return p.failProcessing(ctx, set, records, stages.entries, err)
	}
	defer os.RemoveAll(build.folder)

	for i := range records {
		rec := &records[i]

		started := time.Now()
		rec.StatusCode = StatusWIP
		rec.StartedTime = &started
		if err := p.db.Save(nil, rec); err != nil {
			return p.failProcessing(ctx, set, records, stages.entries, err)
		}

		handler, ok := recordHandlers[rec.ProcessCode]
		if !ok {
			return p.failProcessing(ctx, set, records, stages.entries,
				fmt.Errorf("unknown process code %q on submission %d", rec.ProcessCode, rec.ID))
		}
		if err := handler(p, ctx, set, rec, build); err != nil {
			return p.failProcessing(ctx, set, records, stages.entries, err)
		}
		stages.add(string(rec.ProcessCode) + "_PROCESSED")
	}

	for _, doc := range build.documents {
		if err := os.WriteFile(filepath.Join(build.folder, doc.Title+".html"), doc.Content, 0o644); err != nil {
			return p.failProcessing(ctx, set, records, stages.entries, err)
		}
	}

	if err := p.signer.Submit(ctx, build.folder, set.ActivityID); err != nil {
		return p.failProcessing(ctx, set, records, stages.entries, err)
	}
	stages.add("SIGNING_ACCEPTED")

	return p.commit(ctx, set, records, build.ops, stages)
}

func (p *Processor) prepareMonitorPlan(ctx context.Context, set *SubmissionSet, rec *SubmissionQueue, build *setBuild) error {
	params := ReportParams{
		ReportCode:    "MPP",
		FacilityID:    set.FacID,
		MonitorPlanID: set.MonPlanID,
	}
	build.ops = append(build.ops, PromotionOp{
		Command: "CALL camdecmps.copy_monitor_plan_from_workspace_to_global(?)",
		Params:  []interface{}{set.MonPlanID},
	})
	return p.renderDocument(ctx, set, "MP_"+set.MonPlanID, params, build)
}

func (p *Processor) prepareQA(ctx context.Context, set *SubmissionSet, rec *SubmissionQueue, build *setBuild) error {
	params := ReportParams{FacilityID: set.FacID}
	var titleContext string

	switch {
	case rec.TestSumID != nil:
		params.ReportCode = "TEST_DETAIL"
		params.TestID = *rec.TestSumID
		titleContext = "TEST_" + *rec.TestSumID
		build.ops = append(build.ops, PromotionOp{
			Command: "CALL camdecmps.copy_qa_test_summary_from_workspace_to_global(?)",
			Params:  []interface{}{*rec.TestSumID},
		})
	case rec.QaCertEventID != nil:
		params.ReportCode = "QCE"
		params.QceID = *rec.QaCertEventID
		titleContext = "QCE_" + *rec.QaCertEventID
		build.ops = append(build.ops, PromotionOp{
			Command: "CALL camdecmps.copy_qa_qce_data_from_workspace_to_global(?)",
			Params:  []interface{}{*rec.QaCertEventID},
		})
	case rec.TestExtensionExemptionID != nil:
		params.ReportCode = "TEE"
		params.TeeID = *rec.TestExtensionExemptionID
		titleContext = "TEE_" + *rec.TestExtensionExemptionID
		build.ops = append(build.ops, PromotionOp{
			Command: "CALL camdecmps.copy_qa_tee_data_from_workspace_to_global(?)",
			Params:  []interface{}{*rec.TestExtensionExemptionID},
		})
	default:
		return fmt.Errorf("QA record %d carries no discriminating id", rec.ID)
	}

	return p.renderDocument(ctx, set, titleContext, params, build)
}

func (p *Processor) prepareEmissions(ctx context.Context, set *SubmissionSet, rec *SubmissionQueue, build *setBuild) error {
	if rec.RptPeriodID == nil {
		return fmt.Errorf("EM record %d carries no reporting period", rec.ID)
	}

	rp, err := p.db.GetReportingPeriod(nil, *rec.RptPeriodID)
	if err != nil {
		return err
	}
	if rp == nil {
		return &NotFoundError{Entity: "Reporting period", ID: fmt.Sprintf("%d", *rec.RptPeriodID)}
	}

	params := ReportParams{
		ReportCode:    "EM",
		FacilityID:    set.FacID,
		MonitorPlanID: set.MonPlanID,
		Year:          rp.CalendarYear,
		Quarter:       rp.Quarter,
	}
	build.ops = append(build.ops, PromotionOp{
		Command: "CALL camdecmps.copy_emissions_from_workspace_to_global(?, ?)",
		Params:  []interface{}{set.MonPlanID, *rec.RptPeriodID},
	})

	titleContext := fmt.Sprintf("EM_%s_%dq%d", set.MonPlanID, rp.CalendarYear, rp.Quarter)
	return p.renderDocument(ctx, set, titleContext, params, build)
}

// prepareMATS transfers the bulk file from the import bucket to the official
// archive and stages a local copy for signing. The transfer itself is the
// promotion, so no operation is queued.
func (p *Processor) prepareMATS(ctx context.Context, set *SubmissionSet, rec *SubmissionQueue, build *setBuild) error {
	if rec.MatsBulkFileID == nil {
		return fmt.Errorf("MATS record %d carries no bulk file id", rec.ID)
	}

	mf, err := p.db.GetMatsBulkFile(nil, *rec.MatsBulkFileID)
	if err != nil {
		return err
	}
	if mf == nil {
		return &NotFoundError{Entity: "MATS bulk file", ID: fmt.Sprintf("%d", *rec.MatsBulkFileID)}
	}

	key := fmt.Sprintf("%s/%s/%s", set.MonPlanID, mf.TestNumber, mf.FileName)
	body, err := p.store.GetImportObject(ctx, key)
	if err != nil {
		return err
	}

	local := fmt.Sprintf("MATS_%s_%s_%s", set.MonPlanID, mf.TestNumber, mf.FileName)
	if err := os.WriteFile(filepath.Join(build.folder, local), body, 0o644); err != nil {
		return err
	}

	return p.store.PutArchiveObject(ctx, key, body)
}

func (p *Processor) renderDocument(ctx context.Context, set *SubmissionSet, titleContext string, params ReportParams, build *setBuild) error {
	content, err := p.renderer.Render(ctx, params)
	if err != nil {
		return err
	}
	build.documents = append(build.documents, Document{
		Title:   fmt.Sprintf("%d_%s", set.FacID, titleContext),
		Content: content,
	})
	return nil
}
