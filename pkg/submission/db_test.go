package submission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanConfiguration(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.Create(nil, &MonitorLocation{ID: "loc-b", UnitName: "2"}))
	require.NoError(t, db.Create(nil, &MonitorLocation{ID: "loc-a", UnitName: "1"}))
	require.NoError(t, db.Create(nil, &MonitorLocation{ID: "loc-c", UnitName: "CS0AAN"}))
	for _, loc := range []string{"loc-a", "loc-b", "loc-c"} {
		require.NoError(t, db.Create(nil, &MonitorPlanLocation{MonPlanID: "MP1", MonLocID: loc}))
	}

	got, err := db.PlanConfiguration(nil, "MP1")
	require.NoError(t, err)
	require.Equal(t, "1, 2, CS0AAN", got)

	got, err = db.PlanConfiguration(nil, "MP-EMPTY")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSeverityDefaultsToNone(t *testing.T) {
	db := newTestDatabase(t)

	got, err := db.SeverityForTest(nil, "TS-UNCHECKED")
	require.NoError(t, err)
	require.Equal(t, SeverityNone, got)

	// a session with a blank severity also reads as NONE
	require.NoError(t, db.Create(nil, &CheckSession{
		MonPlanID:   "MP1",
		ProcessCode: ProcessQA,
		TestSumID:   strPtr("TS-BLANK"),
	}))
	got, err = db.SeverityForTest(nil, "TS-BLANK")
	require.NoError(t, err)
	require.Equal(t, SeverityNone, got)

	require.NoError(t, db.Create(nil, &CheckSession{
		MonPlanID:    "MP1",
		ProcessCode:  ProcessQA,
		TestSumID:    strPtr("TS-CRIT"),
		SeverityCode: "CRIT1",
	}))
	got, err = db.SeverityForTest(nil, "TS-CRIT")
	require.NoError(t, err)
	require.Equal(t, "CRIT1", got)
}

func TestSeverityForPlanIgnoresChildSessions(t *testing.T) {
	db := newTestDatabase(t)

	// a test-level session must not bleed into the plan-level lookup
	require.NoError(t, db.Create(nil, &CheckSession{
		MonPlanID:    "MP1",
		ProcessCode:  ProcessMonitorPlan,
		TestSumID:    strPtr("TS-1"),
		SeverityCode: "CRIT1",
	}))

	got, err := db.SeverityForPlan(nil, "MP1")
	require.NoError(t, err)
	require.Equal(t, SeverityNone, got)

	require.NoError(t, db.Create(nil, &CheckSession{
		MonPlanID:    "MP1",
		ProcessCode:  ProcessMonitorPlan,
		SeverityCode: "ADMNOVR",
	}))
	got, err = db.SeverityForPlan(nil, "MP1")
	require.NoError(t, err)
	require.Equal(t, "ADMNOVR", got)
}

func TestCountUnsubmittedSiblingPlans(t *testing.T) {
	db := newTestDatabase(t)

	plan := &MonitorPlan{ID: "MP1", FacID: 100, SubmissionAvailabilityCode: AvailabilityRequire}
	require.NoError(t, db.Create(nil, plan))
	require.NoError(t, db.Create(nil, &MonitorPlanLocation{MonPlanID: "MP1", MonLocID: "loc-1"}))

	// no shared locations, nothing to count
	count, err := db.CountUnsubmittedSiblingPlans(nil, plan, nil)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, db.Create(nil, &MonitorPlan{
		ID:                         "MP-OLD",
		FacID:                      100,
		SubmissionAvailabilityCode: AvailabilityRequire,
	}))
	require.NoError(t, db.Create(nil, &MonitorPlanLocation{MonPlanID: "MP-OLD", MonLocID: "loc-1"}))

	count, err = db.CountUnsubmittedSiblingPlans(nil, plan, []string{"loc-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// submitted siblings stop counting
	require.NoError(t, db.Conn().Model(&MonitorPlan{}).
		Where("mon_plan_id = ?", "MP-OLD").
		Update("submission_availability_cd", AvailabilityUpdated).Error)

	count, err = db.CountUnsubmittedSiblingPlans(nil, plan, []string{"loc-1"})
	require.NoError(t, err)
	require.Zero(t, count)
}
