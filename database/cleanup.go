package database

import (
	"context"

	"github.com/agentsphere/agentsphere-api/model"
	"gorm.io/gorm"
)

// Join tables and dependent rows are removed explicitly so cleanup behaves the
// same whether or not the driver enforces foreign keys.

// DeleteAgentsInOrganization removes every agent of an organization
func (r *Repository) DeleteAgentsInOrganization(ctx context.Context, orgID uint) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&model.Agent{}).Select("id").Where("organization_id = ?", orgID)

		if err := tx.Exec("DELETE FROM agent_mcp_servers WHERE agent_id IN (?)", ids).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM group_chat_agents WHERE agent_id IN (?)", ids).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Message{}).Where("agent_id IN (?)", ids).UpdateColumn("agent_id", nil).Error; err != nil {
			return err
		}

		result := tx.Where("organization_id = ?", orgID).Delete(&model.Agent{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// DeleteLLMsInOrganization removes every LLM configuration of an organization.
// Agents and sessions pointing at them lose their model.
func (r *Repository) DeleteLLMsInOrganization(ctx context.Context, orgID uint) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&model.LLM{}).Select("id").Where("organization_id = ?", orgID)

		if err := tx.Model(&model.Agent{}).Where("llm_id IN (?)", ids).UpdateColumn("llm_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Session{}).Where("llm_id IN (?)", ids).UpdateColumn("llm_id", nil).Error; err != nil {
			return err
		}

		result := tx.Where("organization_id = ?", orgID).Delete(&model.LLM{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// DeleteMCPServersInOrganization removes every tool server of an organization
func (r *Repository) DeleteMCPServersInOrganization(ctx context.Context, orgID uint) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&model.MCPServer{}).Select("id").Where("organization_id = ?", orgID)

		if err := tx.Exec("DELETE FROM agent_mcp_servers WHERE mcp_server_id IN (?)", ids).Error; err != nil {
			return err
		}

		result := tx.Where("organization_id = ?", orgID).Delete(&model.MCPServer{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// DeleteChatsInOrganization removes the chats of every user in an organization,
// with their sessions and messages
func (r *Repository) DeleteChatsInOrganization(ctx context.Context, orgID uint) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := tx.Model(&model.User{}).Select("id").Where("organization_id = ?", orgID)
		singles := tx.Model(&model.SingleChat{}).Select("id").Where("user_id IN (?)", users)
		groups := tx.Model(&model.GroupChat{}).Select("id").Where("user_id IN (?)", users)

		steps := []*gorm.DB{
			tx.Where("single_chat_id IN (?) OR group_chat_id IN (?)", singles, groups).Delete(&model.Message{}),
			tx.Where("single_chat_id IN (?) OR group_chat_id IN (?)", singles, groups).Delete(&model.Session{}),
			tx.Exec("DELETE FROM group_chat_agents WHERE group_chat_id IN (?)", groups),
		}
		for _, step := range steps {
			if step.Error != nil {
				return step.Error
			}
		}

		s := tx.Where("user_id IN (?)", users).Delete(&model.SingleChat{})
		if s.Error != nil {
			return s.Error
		}
		g := tx.Where("user_id IN (?)", users).Delete(&model.GroupChat{})
		if g.Error != nil {
			return g.Error
		}
		deleted = s.RowsAffected + g.RowsAffected
		return nil
	})
	return deleted, err
}
