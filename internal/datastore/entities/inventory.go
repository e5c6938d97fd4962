package entities

// Agent is a remote collector process reporting telemetry for its resources.
type Agent struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;not null;uniqueIndex" json:"name"`
}

// TableName returns the table name for GORM.
func (Agent) TableName() string {
	return "agents"
}

// Resource is a managed host, service or platform owned by one agent.
type Resource struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	AgentID        uint   `gorm:"not null;index" json:"agent_id"`
	ResourceTypeID uint   `gorm:"not null;index" json:"resource_type_id"`
	Name           string `gorm:"size:255;not null" json:"name"`
	Agent          Agent  `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (Resource) TableName() string {
	return "resources"
}
