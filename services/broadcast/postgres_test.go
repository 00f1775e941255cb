package broadcast

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestPayloadRef(t *testing.T) {
	id, ok := parsePayloadRef(payloadRef(42))
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)

	for _, extra := range []string{
		string(Envelope{Content: "ref:1", Source: "helper"}.Bytes()),
		"ref:",
		"ref:abc",
		"",
	} {
		_, ok := parsePayloadRef(extra)
		assert.False(t, ok, extra)
	}
}

// Needs a reachable PostgreSQL, e.g.
// POSTGRES_TEST_DSN="host=localhost user=postgres password=postgres dbname=agentsphere_test sslmode=disable"
func TestPostgresGroup(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.BroadcastPayload{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	g := NewPostgresGroup(dsn, sqlDB, nil)
	t.Cleanup(func() { _ = g.Close() })

	ctx := context.Background()
	group := model.SessionGroupName(uuid.New())
	t.Cleanup(func() { db.Where("channel = ?", group).Delete(&model.BroadcastPayload{}) })

	sub, err := g.Join(ctx, group)
	require.NoError(t, err)

	small := Envelope{Content: "hello", Source: "helper"}.Bytes()
	require.NoError(t, g.Publish(ctx, group, small))
	assert.Equal(t, small, receive(t, sub))

	large := Envelope{Content: strings.Repeat("long answer ", 1000), Source: "helper"}.Bytes()
	require.Greater(t, len(large), maxNotifyPayload)
	require.NoError(t, g.Publish(ctx, group, large))
	assert.Equal(t, large, receive(t, sub))

	var stored int64
	require.NoError(t, db.Model(&model.BroadcastPayload{}).Where("channel = ?", group).Count(&stored).Error)
	assert.Equal(t, int64(1), stored)

	sub.Close()
	g.mu.Lock()
	_, listening := g.listening[group]
	g.mu.Unlock()
	assert.False(t, listening)

	_, open := <-sub.Messages()
	assert.False(t, open)
}
