package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSessions struct {
	idle        []uuid.UUID
	listErr     error
	cutoff      time.Time
	deactivated []uuid.UUID
}

func (f *fakeSessions) ListIdleSessions(_ context.Context, idleSince time.Time) ([]uuid.UUID, error) {
	f.cutoff = idleSince
	return f.idle, f.listErr
}

func (f *fakeSessions) DeactivateSession(_ context.Context, id uuid.UUID) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

type fakeEnqueuer struct {
	calls [][]string
}

func (f *fakeEnqueuer) Enqueue(name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.CronJobLog{}, &model.JWTTokenBlacklist{}, &model.BroadcastPayload{}))
	return db
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestSweepIdleSessions(t *testing.T) {
	db := newTestDB(t)
	id := uuid.New()
	sessions := &fakeSessions{idle: []uuid.UUID{id}}
	enq := &fakeEnqueuer{}

	m := NewCronManager(db, sessions, enq, 2*time.Hour, nil)
	m.now = fixedNow
	m.SweepIdleSessions()

	assert.Equal(t, fixedNow().Add(-2*time.Hour), sessions.cutoff)
	assert.Equal(t, []uuid.UUID{id}, sessions.deactivated)
	assert.Equal(t, [][]string{{tasks.GenerateChatSummary, id.String()}}, enq.calls)

	var logs []model.CronJobLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, JobSweepIdleSessions, logs[0].JobName)
	assert.Equal(t, "completed", logs[0].Status)
	assert.Contains(t, logs[0].Message, "Closed 1 idle sessions")
	assert.NotNil(t, logs[0].CompletedAt)
}

func TestSweepIdleSessionsRecordsFailure(t *testing.T) {
	db := newTestDB(t)
	sessions := &fakeSessions{listErr: errors.New("db gone")}

	m := NewCronManager(db, sessions, &fakeEnqueuer{}, time.Hour, nil)
	m.SweepIdleSessions()

	var cronLog model.CronJobLog
	require.NoError(t, db.First(&cronLog).Error)
	assert.Equal(t, "failed", cronLog.Status)
	assert.Contains(t, cronLog.ErrorMsg, "db gone")
}

func TestCleanupOldData(t *testing.T) {
	db := newTestDB(t)
	now := fixedNow()
	require.NoError(t, db.Create(&[]model.CronJobLog{
		{JobName: "old", Status: "completed", StartedAt: now.Add(-40 * 24 * time.Hour)},
		{JobName: "recent", Status: "completed", StartedAt: now.Add(-time.Hour)},
	}).Error)

	m := NewCronManager(db, &fakeSessions{}, &fakeEnqueuer{}, time.Hour, nil)
	m.now = func() time.Time { return now }
	require.NoError(t, db.Create(&[]model.JWTTokenBlacklist{
		{Token: "expired", UserID: 1, Reason: "logout", ExpiresAt: now.Add(-24 * time.Hour)},
		{Token: "live", UserID: 1, Reason: "logout", ExpiresAt: now.Add(24 * time.Hour)},
	}).Error)

	require.NoError(t, db.Create(&[]model.BroadcastPayload{
		{Channel: "session_old", Payload: "stale", CreatedAt: now.Add(-2 * time.Hour)},
		{Channel: "session_new", Payload: "fresh", CreatedAt: now.Add(-time.Minute)},
	}).Error)

	m.CleanupOldData()

	var names []string
	require.NoError(t, db.Model(&model.CronJobLog{}).Order("id").Pluck("job_name", &names).Error)
	assert.Equal(t, []string{"recent", JobCleanupOldData}, names)

	var tokens []string
	require.NoError(t, db.Model(&model.JWTTokenBlacklist{}).Pluck("token", &tokens).Error)
	assert.Equal(t, []string{"live"}, tokens)

	var payloads []string
	require.NoError(t, db.Model(&model.BroadcastPayload{}).Pluck("payload", &payloads).Error)
	assert.Equal(t, []string{"fresh"}, payloads)
}

func TestRegisterJobs(t *testing.T) {
	m := NewCronManager(newTestDB(t), &fakeSessions{}, &fakeEnqueuer{}, time.Hour, nil)
	require.NoError(t, m.registerJobs())
	assert.Len(t, m.cron.Entries(), 2)
}
