package services

import (
	stdcontext "context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/model"
	"github.com/saathi-legal/saathi_api/services/repositories"
	"github.com/saathi-legal/saathi_api/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock safe for use from request goroutines.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestConsentStore(t *testing.T) *repositories.ConsentRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repositories.NewConsentRepository(db)
	require.NoError(t, repo.Migrate())
	return repo
}

type failingConsentStore struct{}

func (failingConsentStore) Append(stdcontext.Context, *model.ConsentDecision) error {
	return errors.New("disk I/O error")
}

func (failingConsentStore) Latest(stdcontext.Context, string) (*model.ConsentDecision, error) {
	return nil, errors.New("disk I/O error")
}

func (failingConsentStore) History(stdcontext.Context, string, int) ([]model.ConsentDecision, error) {
	return nil, errors.New("disk I/O error")
}

func grant(identifier string) dto.RecordConsentRequest {
	return dto.RecordConsentRequest{
		Identifier: identifier,
		Scope:      map[string]bool{shared.ScopeStoreMessages: true, shared.ScopeStoreDocuments: true},
	}
}

func TestRecordConsentLatestDecisionWins(t *testing.T) {
	clock := newTestClock()
	svc := NewConsentService(newTestConsentStore(t), nil, clock.Now)
	ctx := stdcontext.Background()

	granted, err := svc.RecordConsent(ctx, grant("anon-1"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionGranted, granted.Decision)
	assert.Equal(t, model.SourcePrompt, granted.Source)
	assert.NotEmpty(t, granted.ID)

	latest, err := svc.LatestDecision(ctx, "anon-1")
	require.NoError(t, err)
	assert.True(t, latest.Effective())

	clock.Advance(time.Second)
	decline := grant("anon-1")
	decline.Decision = string(model.DecisionDeclined)
	_, err = svc.RecordConsent(ctx, decline)
	require.NoError(t, err, "contradicting decisions are accepted")

	latest, err = svc.LatestDecision(ctx, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionDeclined, latest.Decision)
	assert.False(t, latest.Effective())

	history, err := svc.History(ctx, "anon-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2, "earlier decisions are kept for audit")
	assert.Equal(t, model.DecisionDeclined, history[0].Decision)
	assert.Equal(t, model.DecisionGranted, history[1].Decision)
}

type recordedDecision struct{ decision, source string }

type fakeConsentRecorder struct{ recorded []recordedDecision }

func (r *fakeConsentRecorder) ConsentRecorded(decision, source string) {
	r.recorded = append(r.recorded, recordedDecision{decision, source})
}

func TestRecordConsentNotifiesRecorder(t *testing.T) {
	svc := NewConsentService(newTestConsentStore(t), nil, newTestClock().Now)
	recorder := &fakeConsentRecorder{}
	svc.recorder = recorder

	_, err := svc.RecordConsent(stdcontext.Background(), grant("anon-1"))
	require.NoError(t, err)

	migrated := grant("anon-1")
	migrated.Source = string(model.SourceLegacyMigration)
	_, err = svc.RecordConsent(stdcontext.Background(), migrated)
	require.NoError(t, err)

	assert.Equal(t, []recordedDecision{
		{"granted", "prompt"},
		{"granted", "legacy_migration"},
	}, recorder.recorded)

	failing := NewConsentService(failingConsentStore{}, nil, nil)
	failing.recorder = recorder
	_, err = failing.RecordConsent(stdcontext.Background(), grant("anon-2"))
	require.Error(t, err)
	assert.Len(t, recorder.recorded, 2, "failed appends are not counted")
}

func TestRecordConsentRetryIsIdempotentInEffect(t *testing.T) {
	svc := NewConsentService(newTestConsentStore(t), nil, newTestClock().Now)
	ctx := stdcontext.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordConsent(ctx, grant("anon-1"))
		require.NoError(t, err)
	}

	latest, err := svc.LatestDecision(ctx, "anon-1")
	require.NoError(t, err)
	assert.True(t, latest.Effective())
}

func TestRecordConsentRecordsEveryScopeFlag(t *testing.T) {
	svc := NewConsentService(newTestConsentStore(t), nil, newTestClock().Now)

	decision, err := svc.RecordConsent(stdcontext.Background(), dto.RecordConsentRequest{
		Identifier: "anon-1",
		Scope:      map[string]bool{shared.ScopeStoreMessages: true},
	})
	require.NoError(t, err)

	assert.Equal(t, model.ScopeFlags{
		shared.ScopeStoreMessages:  true,
		shared.ScopeStoreDocuments: false,
	}, decision.Scope)
}

func TestRecordConsentRejectsMalformedPayloads(t *testing.T) {
	svc := NewConsentService(newTestConsentStore(t), nil, newTestClock().Now)

	tests := []struct {
		name string
		req  dto.RecordConsentRequest
	}{
		{"missing identifier", dto.RecordConsentRequest{Scope: map[string]bool{}}},
		{"identifier with spaces", dto.RecordConsentRequest{Identifier: "anon 1", Scope: map[string]bool{}}},
		{"missing scope", dto.RecordConsentRequest{Identifier: "anon-1"}},
		{"unknown decision", dto.RecordConsentRequest{Identifier: "anon-1", Scope: map[string]bool{}, Decision: "maybe"}},
		{"unknown source", dto.RecordConsentRequest{Identifier: "anon-1", Scope: map[string]bool{}, Source: "cookie"}},
		{"unknown scope flag", dto.RecordConsentRequest{Identifier: "anon-1", Scope: map[string]bool{"sell_data": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordConsent(stdcontext.Background(), tt.req)
			require.Error(t, err)

			appErr, ok := shared.GetAppError(err)
			require.True(t, ok)
			assert.Equal(t, 400, appErr.StatusCode)
		})
	}
}

func TestRecordConsentStoreFailure(t *testing.T) {
	svc := NewConsentService(failingConsentStore{}, nil, nil)

	_, err := svc.RecordConsent(stdcontext.Background(), grant("anon-1"))
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 500, appErr.StatusCode)
}

func TestLatestDecisionWithoutIdentifier(t *testing.T) {
	svc := NewConsentService(failingConsentStore{}, nil, nil)

	latest, err := svc.LatestDecision(stdcontext.Background(), "")
	require.NoError(t, err, "store is not consulted")
	assert.Nil(t, latest)
}

func TestConsentServiceCustomScopeFlags(t *testing.T) {
	svc := NewConsentService(newTestConsentStore(t), []string{"store_messages"}, newTestClock().Now)
	assert.Equal(t, []string{"store_messages"}, svc.ScopeFlags())

	_, err := svc.RecordConsent(stdcontext.Background(), dto.RecordConsentRequest{
		Identifier: "anon-1",
		Scope:      map[string]bool{shared.ScopeStoreDocuments: true},
	})
	require.Error(t, err)
}
