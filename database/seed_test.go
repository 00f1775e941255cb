package database

import (
	"context"
	"testing"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAllIsRepeatable(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, testSecret)
	seeder := NewSeeder(db, repo, nil)
	ctx := context.Background()

	opts := DefaultSeedOptions()
	opts.APIKey = "sk-seed"

	first, err := seeder.SeedAll(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first.AgentIDs, 3)

	second, err := seeder.SeedAll(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assertCount(t, db, &model.Organization{}, 1)
	assertCount(t, db, &model.Agent{}, 3)
	assertCount(t, db, &model.LLM{}, 1)

	members, err := repo.GetAgentsForGroupChat(ctx, first.GroupChatID)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	details, err := repo.GetLLMDetails(ctx, first.AgentIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "sk-seed", details.APIKey)
	assert.Equal(t, model.APITypeOllama, details.APIType)

	_, err = repo.CreateSession(ctx, first.UserID, model.ChatTypeGroup, first.GroupChatID, &first.LLMID)
	require.NoError(t, err)
}
