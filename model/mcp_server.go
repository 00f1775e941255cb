package model

import (
	"time"

	"gorm.io/datatypes"
)

// MCPServer is an external tool server reached over SSE
type MCPServer struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	OrganizationID uint                        `gorm:"not null;index" json:"organization_id"`
	Name           string                      `gorm:"type:varchar(255);not null" json:"name"`
	URL            string                      `gorm:"type:varchar(1024);not null" json:"url"`
	Tools          datatypes.JSONSlice[string] `json:"tools"` // names seen on the last successful listing
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

func (MCPServer) TableName() string {
	return "mcp_servers"
}
