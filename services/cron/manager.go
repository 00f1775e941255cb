package cron

import (
	"context"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobSweepIdleSessions = "sweep_idle_sessions"
	JobCleanupOldData    = "cleanup_old_data"

	cronLogRetention = 30 * 24 * time.Hour
	// stored broadcast payloads are read within seconds of the NOTIFY
	broadcastPayloadRetention = time.Hour
)

// SessionStore is what the session sweep needs from storage
type SessionStore interface {
	ListIdleSessions(ctx context.Context, idleSince time.Time) ([]uuid.UUID, error)
	DeactivateSession(ctx context.Context, id uuid.UUID) error
}

// Enqueuer schedules background tasks
type Enqueuer interface {
	Enqueue(name string, args ...string) error
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron        *cron.Cron
	db          *gorm.DB
	sessions    SessionStore
	tasks       Enqueuer
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, sessions SessionStore, tasks Enqueuer, idleTimeout time.Duration, logger *zap.Logger) *CronManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:        c,
		db:          db,
		sessions:    sessions,
		tasks:       tasks,
		idleTimeout: idleTimeout,
		logger:      logger.Named("cron"),
		now:         time.Now,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	m.logger.Info("Starting cron jobs")

	// Register all jobs
	if err := m.registerJobs(); err != nil {
		return err
	}

	// Start the cron scheduler
	m.cron.Start()

	m.logger.Info("Cron jobs started", zap.Int("jobs", len(m.cron.Entries())))
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (m *CronManager) Stop() {
	m.logger.Info("Stopping cron jobs")
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Every 10 minutes: close sessions nobody is talking in any more
	_, err := m.cron.AddFunc("0 */10 * * * *", func() {
		m.SweepIdleSessions()
	})
	if err != nil {
		return err
	}

	// Daily at 3 AM: drop old job logs and expired revocations
	_, err = m.cron.AddFunc("0 0 3 * * *", func() {
		m.CleanupOldData()
	})
	if err != nil {
		return err
	}

	return nil
}

// logJobStart records the start of a job and returns its log row
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	m.logger.Info("Starting job", zap.String("job", jobName))

	cronLog := &model.CronJobLog{
		JobName:   jobName,
		Status:    "running",
		StartedAt: m.now(),
	}
	if err := m.db.Create(cronLog).Error; err != nil {
		m.logger.Warn("Failed to record job start", zap.String("job", jobName), zap.Error(err))
	}
	return cronLog
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(cronLog *model.CronJobLog, message string) {
	m.logger.Info("Completed job", zap.String("job", cronLog.JobName), zap.String("result", message))
	m.finish(cronLog, map[string]interface{}{
		"status":  "completed",
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(cronLog *model.CronJobLog, err error) {
	m.logger.Error("Job failed", zap.String("job", cronLog.JobName), zap.Error(err))
	m.finish(cronLog, map[string]interface{}{
		"status":    "failed",
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finish(cronLog *model.CronJobLog, updates map[string]interface{}) {
	if cronLog.ID == 0 {
		return
	}
	completed := m.now()
	updates["completed_at"] = completed
	updates["duration"] = completed.Sub(cronLog.StartedAt).Milliseconds()

	if err := m.db.Model(cronLog).Updates(updates).Error; err != nil {
		m.logger.Warn("Failed to record job result", zap.String("job", cronLog.JobName), zap.Error(err))
	}
}
