package entities

// ConditionCategory is the kind of telemetry an alert condition watches.
type ConditionCategory string

const (
	CategoryThreshold      ConditionCategory = "THRESHOLD"
	CategoryBaseline       ConditionCategory = "BASELINE"
	CategoryChange         ConditionCategory = "CHANGE"
	CategoryTrait          ConditionCategory = "TRAIT"
	CategoryControl        ConditionCategory = "CONTROL"
	CategoryAvailability   ConditionCategory = "AVAILABILITY"
	CategoryEvent          ConditionCategory = "EVENT"
	CategoryResourceConfig ConditionCategory = "RESOURCE_CONFIG"
)

// AllCategories lists every category in load order.
var AllCategories = []ConditionCategory{
	CategoryThreshold,
	CategoryBaseline,
	CategoryChange,
	CategoryTrait,
	CategoryControl,
	CategoryAvailability,
	CategoryEvent,
	CategoryResourceConfig,
}

// AlertDefinition groups the conditions attached to one resource.
// Only enabled, non-deleted definitions without a recovery link are cached.
type AlertDefinition struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	ResourceID uint             `gorm:"not null;index" json:"resource_id"`
	Name       string           `gorm:"size:255;not null" json:"name"`
	Enabled    bool             `gorm:"not null;index" json:"enabled"`
	Deleted    bool             `gorm:"not null;default:false" json:"deleted"`
	RecoveryID *uint            `json:"recovery_id,omitempty"`
	Resource   Resource         `gorm:"foreignKey:ResourceID;constraint:OnDelete:CASCADE" json:"-"`
	Conditions []AlertCondition `gorm:"foreignKey:AlertDefinitionID;constraint:OnDelete:CASCADE" json:"conditions"`
}

// TableName returns the table name for GORM.
func (AlertDefinition) TableName() string {
	return "alert_definitions"
}

// AlertCondition is a single persisted rule.
//
// Field use depends on Category:
//   - THRESHOLD: Comparator ("<", ">", "="), Threshold
//   - BASELINE: Comparator, Threshold (percent), Option ("min", "mean", "max")
//   - TRAIT: Comparator "regex" with the pattern in Option, otherwise change detection
//   - CONTROL: Name (operation name), Option (request status)
//   - AVAILABILITY: Option ("DOWN" or "UP")
//   - EVENT: Name (minimum severity), Option (optional detail regex)
type AlertCondition struct {
	ID                      uint              `gorm:"primaryKey" json:"id"`
	AlertDefinitionID       uint              `gorm:"not null;index" json:"alert_definition_id"`
	Category                ConditionCategory `gorm:"size:20;not null;index" json:"category"`
	Name                    string            `gorm:"size:255;default:''" json:"name"`
	Comparator              string            `gorm:"size:10;default:''" json:"comparator"`
	Option                  string            `gorm:"column:option_value;size:500;default:''" json:"option"`
	Threshold               *float64          `json:"threshold,omitempty"`
	MeasurementDefinitionID *uint             `gorm:"index" json:"measurement_definition_id,omitempty"`
}

// TableName returns the table name for GORM.
func (AlertCondition) TableName() string {
	return "alert_conditions"
}
