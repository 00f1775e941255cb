package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/services/tasks"
	"go.uber.org/zap"
)

// SweepIdleSessions deactivates active sessions with no activity for longer
// than the idle timeout and schedules their summaries.
// Runs every 10 minutes so abandoned sockets still get summarised.
func (m *CronManager) SweepIdleSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cronLog := m.logJobStart(JobSweepIdleSessions)

	ids, err := m.sessions.ListIdleSessions(ctx, m.now().Add(-m.idleTimeout))
	if err != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to list idle sessions: %w", err))
		return
	}

	if len(ids) == 0 {
		m.logJobComplete(cronLog, "No idle sessions")
		return
	}

	closed, failed := 0, 0
	for _, id := range ids {
		if err := m.sessions.DeactivateSession(ctx, id); err != nil {
			m.logger.Warn("Failed to deactivate idle session", zap.String("session_id", id.String()), zap.Error(err))
			failed++
			continue
		}
		if err := m.tasks.Enqueue(tasks.GenerateChatSummary, id.String()); err != nil {
			m.logger.Warn("Failed to schedule summary", zap.String("session_id", id.String()), zap.Error(err))
		}
		closed++
	}

	m.logJobComplete(cronLog, fmt.Sprintf("Closed %d idle sessions, failed %d", closed, failed))
}

// CleanupOldData removes job logs older than 30 days, revoked tokens that
// have expired anyway and stored broadcast payloads nobody will read again
func (m *CronManager) CleanupOldData() {
	cronLog := m.logJobStart(JobCleanupOldData)
	now := m.now()

	logs := m.db.Where("started_at < ? AND id <> ?", now.Add(-cronLogRetention), cronLog.ID).Delete(&model.CronJobLog{})
	if logs.Error != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to prune cron logs: %w", logs.Error))
		return
	}

	tokens := m.db.Where("expires_at < ?", now).Delete(&model.JWTTokenBlacklist{})
	if tokens.Error != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to prune revoked tokens: %w", tokens.Error))
		return
	}

	payloads := m.db.Where("created_at < ?", now.Add(-broadcastPayloadRetention)).Delete(&model.BroadcastPayload{})
	if payloads.Error != nil {
		m.logJobError(cronLog, fmt.Errorf("failed to prune broadcast payloads: %w", payloads.Error))
		return
	}

	m.logJobComplete(cronLog, fmt.Sprintf("Deleted %d old cron logs, %d expired revoked tokens and %d broadcast payloads",
		logs.RowsAffected, tokens.RowsAffected, payloads.RowsAffected))
}
