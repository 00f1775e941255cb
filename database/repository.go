package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/utils/crypto"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrActiveSessionExists = errors.New("chat already has an active session")
	ErrUnknownChatType     = errors.New("unknown chat type")
)

// Repository is the GORM backed storage for the conversation core
type Repository struct {
	db     *gorm.DB
	secret string
}

// NewRepository creates a repository. secret is the server secret stored API keys are sealed with.
func NewRepository(db *gorm.DB, encryptionSecret string) *Repository {
	return &Repository{db: db, secret: encryptionSecret}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func chatColumn(chatType model.ChatType) (string, error) {
	switch chatType {
	case model.ChatTypeSingle:
		return "single_chat_id", nil
	case model.ChatTypeGroup:
		return "group_chat_id", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChatType, chatType)
}

// Sessions

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// CreateSession opens a session on a chat owned by userID. A chat can have
// only one active session at a time.
func (r *Repository) CreateSession(ctx context.Context, userID uint, chatType model.ChatType, chatID uint, llmID *uint) (*model.Session, error) {
	column, err := chatColumn(chatType)
	if err != nil {
		return nil, err
	}

	session := &model.Session{IsActive: true, LLMID: llmID}
	if chatType == model.ChatTypeSingle {
		session.SingleChatID = &chatID
	} else {
		session.GroupChatID = &chatID
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner uint
		var chat interface{} = &model.SingleChat{}
		if chatType == model.ChatTypeGroup {
			chat = &model.GroupChat{}
		}
		if err := tx.Model(chat).Select("user_id").Where("id = ?", chatID).Scan(&owner).Error; err != nil {
			return err
		}
		if owner == 0 || owner != userID {
			return ErrNotFound
		}

		var active int64
		if err := tx.Model(&model.Session{}).Where(column+" = ? AND is_active = ?", chatID, true).Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveSessionExists
		}

		if llmID != nil {
			var n int64
			if err := tx.Model(&model.LLM{}).Where("id = ?", *llmID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("llm %d: %w", *llmID, ErrNotFound)
			}
		}

		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeactivateSession marks a session inactive. Deactivating twice is a no-op.
func (r *Repository) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND is_active = ?", id, true).
		UpdateColumns(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}

// ListIdleSessions returns active sessions with no activity since idleSince
func (r *Repository) ListIdleSessions(ctx context.Context, idleSince time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("is_active = ? AND updated_at < ?", true, idleSince).
		Pluck("id", &ids).Error
	return ids, err
}

// GetChatInfo resolves the chat a session belongs to
func (r *Repository) GetChatInfo(ctx context.Context, sessionID uuid.UUID) (*model.ChatInfo, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return r.chatInfo(ctx, session.ChatType(), session.ChatID())
}

func (r *Repository) chatInfo(ctx context.Context, chatType model.ChatType, chatID uint) (*model.ChatInfo, error) {
	db := r.db.WithContext(ctx)

	switch chatType {
	case model.ChatTypeSingle:
		var chat model.SingleChat
		if err := db.First(&chat, chatID).Error; err != nil {
			return nil, notFound(err)
		}
		return &model.ChatInfo{Type: chatType, SingleChat: &chat}, nil
	case model.ChatTypeGroup:
		var chat model.GroupChat
		if err := db.First(&chat, chatID).Error; err != nil {
			return nil, notFound(err)
		}
		return &model.ChatInfo{Type: chatType, GroupChat: &chat}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChatType, chatType)
}

// GetChat loads a chat by type and id
func (r *Repository) GetChat(ctx context.Context, chatType model.ChatType, chatID uint) (*model.ChatInfo, error) {
	return r.chatInfo(ctx, chatType, chatID)
}

// UpdateChatSummary replaces the chat summary and nothing else
func (r *Repository) UpdateChatSummary(ctx context.Context, chatType model.ChatType, chatID uint, summary string) error {
	var chat interface{}
	switch chatType {
	case model.ChatTypeSingle:
		chat = &model.SingleChat{}
	case model.ChatTypeGroup:
		chat = &model.GroupChat{}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChatType, chatType)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(chat).Where("id = ?", chatID).UpdateColumn("summary", summary)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Messages

// SaveMessage stores a message on the session and its chat and marks the session as active now
func (r *Repository) SaveMessage(ctx context.Context, session *model.Session, content string, sender model.SenderKind, userID, agentID *uint) (*model.Message, error) {
	msg := &model.Message{
		SessionID:    session.ID,
		SingleChatID: session.SingleChatID,
		GroupChatID:  session.GroupChatID,
		Sender:       sender,
		UserID:       userID,
		AgentID:      agentID,
		Content:      content,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Session{}).Where("id = ?", session.ID).UpdateColumn("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Repository) messages(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Message{}).Preload("User").Preload("Agent")
}

// GetPreviousMessages returns up to limit of the latest messages of the
// session's chat, across its sessions, oldest first
func (r *Repository) GetPreviousMessages(ctx context.Context, session *model.Session, limit int) ([]model.Message, error) {
	column, err := chatColumn(session.ChatType())
	if err != nil {
		return nil, err
	}

	var msgs []model.Message
	err = r.messages(ctx).
		Where(column+" = ?", session.ChatID()).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// ListChatMessages returns every message of a chat, oldest first
func (r *Repository) ListChatMessages(ctx context.Context, chatType model.ChatType, chatID uint) ([]model.Message, error) {
	column, err := chatColumn(chatType)
	if err != nil {
		return nil, err
	}

	var msgs []model.Message
	err = r.messages(ctx).Where(column+" = ?", chatID).Order("created_at ASC, id ASC").Find(&msgs).Error
	return msgs, err
}

// ListSessionMessages returns a session's messages, newest first
func (r *Repository) ListSessionMessages(ctx context.Context, sessionID uuid.UUID) ([]model.Message, error) {
	var msgs []model.Message
	err := r.messages(ctx).Where("session_id = ?", sessionID).Order("created_at DESC, id DESC").Find(&msgs).Error
	return msgs, err
}

// Agents and models

func (r *Repository) GetAgent(ctx context.Context, id uint) (*model.Agent, error) {
	var agent model.Agent
	if err := r.db.WithContext(ctx).First(&agent, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &agent, nil
}

// GetAgentsForGroupChat returns a group's members in a stable order
func (r *Repository) GetAgentsForGroupChat(ctx context.Context, groupChatID uint) ([]model.Agent, error) {
	var agents []model.Agent
	err := r.db.WithContext(ctx).
		Joins("JOIN group_chat_agents ON group_chat_agents.agent_id = agents.id").
		Where("group_chat_agents.group_chat_id = ?", groupChatID).
		Order("agents.id ASC").
		Find(&agents).Error
	return agents, err
}

// GetMCPServers returns the tool servers attached to an agent
func (r *Repository) GetMCPServers(ctx context.Context, agentID uint) ([]model.MCPServer, error) {
	var servers []model.MCPServer
	err := r.db.WithContext(ctx).
		Joins("JOIN agent_mcp_servers ON agent_mcp_servers.mcp_server_id = mcp_servers.id").
		Where("agent_mcp_servers.agent_id = ?", agentID).
		Order("mcp_servers.id ASC").
		Find(&servers).Error
	return servers, err
}

// UpdateMCPServerTools records the tool names a server listed
func (r *Repository) UpdateMCPServerTools(ctx context.Context, serverID uint, tools []string) error {
	return r.db.WithContext(ctx).
		Model(&model.MCPServer{}).
		Where("id = ?", serverID).
		UpdateColumn("tools", datatypes.JSONSlice[string](tools)).Error
}

// GetLLMDetails resolves the model configuration of an agent
func (r *Repository) GetLLMDetails(ctx context.Context, agentID uint) (*model.LLMDetails, error) {
	agent, err := r.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.LLMID == nil {
		return nil, fmt.Errorf("agent %d has no llm: %w", agentID, ErrNotFound)
	}
	return r.GetLLMDetailsByLLMID(ctx, *agent.LLMID)
}

// GetLLMDetailsByLLMID loads an LLM configuration and decrypts its API key
func (r *Repository) GetLLMDetailsByLLMID(ctx context.Context, llmID uint) (*model.LLMDetails, error) {
	var row model.LLM
	if err := r.db.WithContext(ctx).First(&row, llmID).Error; err != nil {
		return nil, notFound(err)
	}

	details := &model.LLMDetails{
		APIType:   row.APIType,
		BaseURL:   row.BaseURL,
		Model:     row.Model,
		MaxTokens: row.MaxTokens,
	}

	if row.HasAPIKey() {
		key, err := crypto.Open(crypto.SealedSecret{
			Ciphertext: row.APIKeyEncrypted,
			Nonce:      row.APIKeyNonce,
			Salt:       row.APIKeySalt,
		}, r.secret)
		if err != nil {
			return nil, fmt.Errorf("llm %d api key: %w", llmID, err)
		}
		details.APIKey = key
	}
	return details, nil
}

// CreateLLM stores an LLM configuration, sealing apiKey when one is given
func (r *Repository) CreateLLM(ctx context.Context, llm *model.LLM, apiKey string) error {
	if apiKey != "" {
		sealed, err := crypto.Seal(apiKey, r.secret)
		if err != nil {
			return err
		}
		llm.APIKeyEncrypted = sealed.Ciphertext
		llm.APIKeyNonce = sealed.Nonce
		llm.APIKeySalt = sealed.Salt
	}
	return r.db.WithContext(ctx).Create(llm).Error
}
