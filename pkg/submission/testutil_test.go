package submission

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDatabase(t *testing.T) Database {
	orm, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open sqlite")

	db := NewDatabase(orm)
	require.NoError(t, db.Initialize(), "migrate schema")
	return db
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeEmailService struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmailService) SendEmail(_ context.Context, to, _, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) PublishProcess(_ context.Context, setID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, setID)
	return nil
}

type fakeRenderer struct {
	calls []ReportParams
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, params ReportParams) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, params)
	return []byte(fmt.Sprintf("<html>%s</html>", params.ReportCode)), nil
}

type fakeSigner struct {
	folder     string
	activityID string
	files      []string
	calls      int
	err        error
}

func (f *fakeSigner) Submit(_ context.Context, folder, activityID string) error {
	f.calls++
	f.folder = folder
	f.activityID = activityID

	// capture the staged payload before the processor tears the folder down
	entries, err := os.ReadDir(folder)
	if err != nil {
		return err
	}
	f.files = nil
	for _, entry := range entries {
		f.files = append(f.files, entry.Name())
	}
	return f.err
}

type fakeObjectStore struct {
	imports  map[string][]byte
	archived map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		imports:  map[string][]byte{},
		archived: map[string][]byte{},
	}
}

func (f *fakeObjectStore) GetImportObject(_ context.Context, key string) ([]byte, error) {
	body, ok := f.imports[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return body, nil
}

func (f *fakeObjectStore) PutArchiveObject(_ context.Context, key string, body []byte) error {
	f.archived[key] = body
	return nil
}

func testLogger(t *testing.T) *zap.Logger {
	return zap.NewNop()
}

// extractErrorID pulls the generated error id out of a notification body.
func extractErrorID(t *testing.T, body string) string {
	const marker = "Error ID: "
	idx := strings.Index(body, marker)
	require.Greater(t, idx, -1, "body carries no error id")
	id := body[idx+len(marker):]
	if end := strings.IndexAny(id, "<\n"); end >= 0 {
		id = id[:end]
	}
	require.NotEmpty(t, id)
	return id
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

// seedPlan inserts a facility, a one-unit monitoring plan, and their join row.
func seedPlan(t *testing.T, db Database, monPlanID string, facID int64) *MonitorPlan {
	require.NoError(t, db.Create(nil, &Plant{
		FacID:        facID,
		OrisCode:     facID * 10,
		FacilityName: fmt.Sprintf("Plant %d", facID),
		State:        "OH",
	}))
	require.NoError(t, db.Create(nil, &MonitorLocation{
		ID:       monPlanID + "-loc1",
		UnitName: "1",
	}))
	require.NoError(t, db.Create(nil, &MonitorPlanLocation{
		MonPlanID: monPlanID,
		MonLocID:  monPlanID + "-loc1",
	}))
	mp := &MonitorPlan{
		ID:                         monPlanID,
		FacID:                      facID,
		SubmissionAvailabilityCode: AvailabilityRequire,
		EvalStatusCode:             "EVAL",
	}
	require.NoError(t, db.Create(nil, mp))
	return mp
}
