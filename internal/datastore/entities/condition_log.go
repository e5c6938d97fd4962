package entities

import "time"

// Condition log kinds.
const (
	ConditionLogActivate   = "activate"
	ConditionLogDeactivate = "deactivate"
)

// ConditionLog records each activation or deactivation emitted by the cache.
type ConditionLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ConditionID uint      `gorm:"not null;index:idx_condition_log_cond_fired,priority:1" json:"condition_id"`
	Kind        string    `gorm:"size:12;not null" json:"kind"`
	Value       string    `gorm:"size:4000;default:''" json:"value"`
	Detail      string    `gorm:"type:text;default:''" json:"detail"`
	FiredAt     time.Time `gorm:"not null;index:idx_condition_log_cond_fired,priority:2;index" json:"fired_at"`
}

// TableName returns the table name for GORM.
func (ConditionLog) TableName() string {
	return "condition_log"
}
