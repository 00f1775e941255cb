package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentsphere/agentsphere-api/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SeedOptions describes the demo tenant created by the seeder
type SeedOptions struct {
	OrganizationName string
	UserEmail        string
	UserName         string

	LLMName   string
	APIType   model.APIType
	BaseURL   string
	Model     string
	MaxTokens int
	APIKey    string
}

// DefaultSeedOptions returns a local Ollama backed demo tenant
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		OrganizationName: "AgentSphere Demo",
		UserEmail:        "demo@agentsphere.local",
		UserName:         "Demo User",
		LLMName:          "default",
		APIType:          model.APITypeOllama,
		BaseURL:          "http://localhost:11434",
		Model:            "llama3.1",
		MaxTokens:        4096,
	}
}

// SeedResult holds the ids of everything the seeder created or found
type SeedResult struct {
	OrganizationID uint
	UserID         uint
	LLMID          uint
	AgentIDs       []uint
	SingleChatID   uint
	GroupChatID    uint
}

var demoAgents = []model.Agent{
	{
		Name:         "Researcher",
		Description:  "Finds facts and background for the question at hand",
		SystemPrompt: "You research the user's question and report the relevant facts concisely.",
	},
	{
		Name:         "Critic",
		Description:  "Challenges weak arguments and points out gaps",
		SystemPrompt: "You review what the other agents said and point out mistakes, gaps and risks.",
	},
	{
		Name:         "Writer",
		Description:  "Turns the discussion into a clear final answer",
		SystemPrompt: "You turn the discussion into a clear, well structured answer for the user.",
	},
}

// Seeder handles database seeding operations
type Seeder struct {
	db     *gorm.DB
	repo   *Repository
	logger *zap.Logger
}

// NewSeeder creates a new seeder instance. repo seals the LLM API key.
func NewSeeder(db *gorm.DB, repo *Repository, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: db, repo: repo, logger: logger}
}

// SeedAll creates the demo tenant. Running it again finds the existing rows.
func (s *Seeder) SeedAll(ctx context.Context, opts SeedOptions) (*SeedResult, error) {
	s.logger.Info("Starting database seeding", zap.String("organization", opts.OrganizationName))
	res := &SeedResult{}

	org := model.Organization{Name: opts.OrganizationName}
	if err := s.firstOrCreate(ctx, &org, "name = ?", org.Name); err != nil {
		return nil, fmt.Errorf("failed to seed organization: %w", err)
	}
	res.OrganizationID = org.ID

	user := model.User{Email: opts.UserEmail, Name: opts.UserName, OrganizationID: org.ID}
	if err := s.firstOrCreate(ctx, &user, "email = ?", user.Email); err != nil {
		return nil, fmt.Errorf("failed to seed user: %w", err)
	}
	res.UserID = user.ID

	llmID, err := s.seedLLM(ctx, org.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to seed llm: %w", err)
	}
	res.LLMID = llmID

	agents := make([]model.Agent, 0, len(demoAgents))
	for _, a := range demoAgents {
		a.OrganizationID = org.ID
		a.LLMID = &llmID
		if err := s.firstOrCreate(ctx, &a, "organization_id = ? AND name = ?", org.ID, a.Name); err != nil {
			return nil, fmt.Errorf("failed to seed agent %s: %w", a.Name, err)
		}
		agents = append(agents, a)
		res.AgentIDs = append(res.AgentIDs, a.ID)
	}

	single := model.SingleChat{UserID: user.ID, AgentID: agents[0].ID}
	if err := s.firstOrCreate(ctx, &single, "user_id = ? AND agent_id = ?", user.ID, agents[0].ID); err != nil {
		return nil, fmt.Errorf("failed to seed single chat: %w", err)
	}
	res.SingleChatID = single.ID

	group := model.GroupChat{UserID: user.ID, Name: "Council"}
	if err := s.firstOrCreate(ctx, &group, "user_id = ? AND name = ?", user.ID, group.Name); err != nil {
		return nil, fmt.Errorf("failed to seed group chat: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&group).Association("Agents").Replace(agents); err != nil {
		return nil, fmt.Errorf("failed to seed group members: %w", err)
	}
	res.GroupChatID = group.ID

	s.logger.Info("Database seeding completed",
		zap.Uint("organization_id", res.OrganizationID),
		zap.Uint("user_id", res.UserID),
		zap.Int("agents", len(res.AgentIDs)))
	return res, nil
}

func (s *Seeder) seedLLM(ctx context.Context, orgID uint, opts SeedOptions) (uint, error) {
	var existing model.LLM
	err := s.db.WithContext(ctx).Where("organization_id = ? AND name = ?", orgID, opts.LLMName).First(&existing).Error
	if err == nil {
		s.logger.Info("LLM already exists, skipping", zap.String("name", opts.LLMName))
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	row := &model.LLM{
		OrganizationID: orgID,
		Name:           opts.LLMName,
		APIType:        opts.APIType,
		BaseURL:        opts.BaseURL,
		Model:          opts.Model,
		MaxTokens:      opts.MaxTokens,
	}
	if err := s.repo.CreateLLM(ctx, row, opts.APIKey); err != nil {
		return 0, err
	}
	return row.ID, nil
}

// firstOrCreate loads the row matching the condition into dst, or creates dst
func (s *Seeder) firstOrCreate(ctx context.Context, dst interface{}, query string, args ...interface{}) error {
	return s.db.WithContext(ctx).Where(query, args...).FirstOrCreate(dst).Error
}
