package submission

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	orm *gorm.DB
}

func NewDatabase(orm *gorm.DB) Database {
	return Database{orm: orm}
}

func (db Database) Initialize() error {
	return db.orm.AutoMigrate(
		&SubmissionSet{},
		&SubmissionQueue{},
		&MonitorPlan{},
		&MonitorLocation{},
		&MonitorPlanLocation{},
		&Plant{},
		&QaSuppData{},
		&QaCertEvent{},
		&QaTee{},
		&ReportingPeriod{},
		&EmissionEvaluation{},
		&MatsBulkFile{},
		&CheckSession{},
		&ClientConfig{},
		&EmissionEvaluationGlobal{},
	)
}

func (db Database) Conn() *gorm.DB { return db.orm }

func (db Database) Transaction(fn func(tx *gorm.DB) error) error {
	return db.orm.Transaction(fn)
}

func (db Database) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db.orm
}

func (db Database) GetMonitorPlan(tx *gorm.DB, monPlanID string) (*MonitorPlan, error) {
	var mp MonitorPlan
	err := db.conn(tx).Where("mon_plan_id = ?", monPlanID).First(&mp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mp, nil
}

func (db Database) GetFacility(tx *gorm.DB, facID int64) (*Plant, error) {
	var p Plant
	err := db.conn(tx).Where("fac_id = ?", facID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (db Database) PlanLocationIDs(tx *gorm.DB, monPlanID string) ([]string, error) {
	var ids []string
	err := db.conn(tx).Model(&MonitorPlanLocation{}).
		Where("mon_plan_id = ?", monPlanID).
		Pluck("mon_loc_id", &ids).Error
	return ids, err
}

// PlanConfiguration aggregates the plan's unit names into the display string
// stored on the set (e.g. "1, 2, CS0AAN").
func (db Database) PlanConfiguration(tx *gorm.DB, monPlanID string) (string, error) {
	var units []string
	err := db.conn(tx).Model(&MonitorLocation{}).
		Joins("JOIN monitor_plan_location mpl ON mpl.mon_loc_id = monitor_location.mon_loc_id").
		Where("mpl.mon_plan_id = ?", monPlanID).
		Order("monitor_location.unit_name").
		Pluck("monitor_location.unit_name", &units).Error
	if err != nil {
		return "", err
	}
	return strings.Join(units, ", "), nil
}

// CountUnsubmittedSiblingPlans counts other plans of the same facility that
// share a location with the given plan and are not yet in UPDATED state.
func (db Database) CountUnsubmittedSiblingPlans(tx *gorm.DB, plan *MonitorPlan, locIDs []string) (int64, error) {
	if len(locIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := db.conn(tx).Model(&MonitorPlan{}).
		Distinct("monitor_plan.mon_plan_id").
		Joins("JOIN monitor_plan_location mpl ON mpl.mon_plan_id = monitor_plan.mon_plan_id").
		Where("mpl.mon_loc_id IN ?", locIDs).
		Where("monitor_plan.fac_id = ?", plan.FacID).
		Where("monitor_plan.mon_plan_id <> ?", plan.ID).
		Where("monitor_plan.submission_availability_cd <> ?", AvailabilityUpdated).
		Count(&count).Error
	return count, err
}

func (db Database) severity(q *gorm.DB) (string, error) {
	var cs CheckSession
	err := q.First(&cs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SeverityNone, nil
		}
		return "", err
	}
	if cs.SeverityCode == "" {
		return SeverityNone, nil
	}
	return cs.SeverityCode, nil
}

// SeverityForPlan looks up the plan-level check session: all sub-record
// discriminators must be null.
func (db Database) SeverityForPlan(tx *gorm.DB, monPlanID string) (string, error) {
	return db.severity(db.conn(tx).
		Where("mon_plan_id = ?", monPlanID).
		Where("process_cd = ?", ProcessMonitorPlan).
		Where("test_sum_id IS NULL").
		Where("qa_cert_event_id IS NULL").
		Where("test_extension_exemption_id IS NULL").
		Where("rpt_period_id IS NULL"))
}

func (db Database) SeverityForTest(tx *gorm.DB, testSumID string) (string, error) {
	return db.severity(db.conn(tx).Where("test_sum_id = ?", testSumID))
}

func (db Database) SeverityForCertEvent(tx *gorm.DB, qceID string) (string, error) {
	return db.severity(db.conn(tx).Where("qa_cert_event_id = ?", qceID))
}

func (db Database) SeverityForTee(tx *gorm.DB, teeID string) (string, error) {
	return db.severity(db.conn(tx).Where("test_extension_exemption_id = ?", teeID))
}

func (db Database) SeverityForEmissions(tx *gorm.DB, monPlanID string, rptPeriodID int64) (string, error) {
	return db.severity(db.conn(tx).
		Where("mon_plan_id = ?", monPlanID).
		Where("rpt_period_id = ?", rptPeriodID))
}

func (db Database) GetQaSupp(tx *gorm.DB, testSumID string) (*QaSuppData, error) {
	var ts QaSuppData
	err := db.conn(tx).Where("test_sum_id = ?", testSumID).First(&ts).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ts, nil
}

func (db Database) ListQaSupp(tx *gorm.DB, testSumIDs []string) ([]QaSuppData, error) {
	var rows []QaSuppData
	err := db.conn(tx).Where("test_sum_id IN ?", testSumIDs).Find(&rows).Error
	return rows, err
}

func (db Database) GetQaCertEvent(tx *gorm.DB, qceID string) (*QaCertEvent, error) {
	var qce QaCertEvent
	err := db.conn(tx).Where("qa_cert_event_id = ?", qceID).First(&qce).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &qce, nil
}

func (db Database) GetQaTee(tx *gorm.DB, teeID string) (*QaTee, error) {
	var tee QaTee
	err := db.conn(tx).Where("test_extension_exemption_id = ?", teeID).First(&tee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tee, nil
}

func (db Database) GetReportingPeriodByAbbreviation(tx *gorm.DB, abbrev string) (*ReportingPeriod, error) {
	var rp ReportingPeriod
	err := db.conn(tx).Where("period_abbreviation = ?", abbrev).First(&rp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rp, nil
}

func (db Database) GetReportingPeriod(tx *gorm.DB, rptPeriodID int64) (*ReportingPeriod, error) {
	var rp ReportingPeriod
	err := db.conn(tx).Where("rpt_period_id = ?", rptPeriodID).First(&rp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rp, nil
}

func (db Database) GetEmissionEvaluation(tx *gorm.DB, monPlanID string, rptPeriodID int64) (*EmissionEvaluation, error) {
	var ee EmissionEvaluation
	err := db.conn(tx).
		Where("mon_plan_id = ?", monPlanID).
		Where("rpt_period_id = ?", rptPeriodID).
		First(&ee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ee, nil
}

func (db Database) GetMatsBulkFile(tx *gorm.DB, id int64) (*MatsBulkFile, error) {
	var mf MatsBulkFile
	err := db.conn(tx).Where("mats_bulk_file_id = ?", id).First(&mf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mf, nil
}

func (db Database) GetSet(tx *gorm.DB, setID string) (*SubmissionSet, error) {
	var set SubmissionSet
	err := db.conn(tx).Where("submission_set_id = ?", setID).First(&set).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &set, nil
}

func (db Database) GetQueueRecord(tx *gorm.DB, id int64) (*SubmissionQueue, error) {
	var rec SubmissionQueue
	err := db.conn(tx).Where("submission_id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (db Database) ListQueueRecords(tx *gorm.DB, setID string) ([]SubmissionQueue, error) {
	var rows []SubmissionQueue
	err := db.conn(tx).Where("submission_set_id = ?", setID).
		Order("submission_id").Find(&rows).Error
	return rows, err
}

func (db Database) Save(tx *gorm.DB, value interface{}) error {
	return db.conn(tx).Save(value).Error
}

func (db Database) Create(tx *gorm.DB, value interface{}) error {
	return db.conn(tx).Create(value).Error
}

func (db Database) GetClientConfig(tx *gorm.DB, name string) (*ClientConfig, error) {
	var cc ClientConfig
	err := db.conn(tx).Where("name = ?", name).First(&cc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cc, nil
}

// ListCompletedEmissionSetsSince feeds the last-updated endpoint: sets holding
// at least one EM record that reached COMPLETE after the given time.
func (db Database) ListCompletedEmissionSetsSince(since time.Time) ([]SubmissionSet, error) {
	var sets []SubmissionSet
	err := db.orm.Model(&SubmissionSet{}).
		Distinct("submission_set.*").
		Joins("JOIN submission_queue sq ON sq.submission_set_id = submission_set.submission_set_id").
		Where("sq.process_cd = ?", ProcessEmissions).
		Where("submission_set.status_cd = ?", StatusComplete).
		Where("submission_set.completed_time >= ?", since).
		Find(&sets).Error
	return sets, err
}

func (db Database) ListGlobalEmissionsUpdatedSince(since time.Time) ([]EmissionEvaluationGlobal, error) {
	var rows []EmissionEvaluationGlobal
	err := db.orm.Where("last_updated >= ?", since).Find(&rows).Error
	return rows, err
}
