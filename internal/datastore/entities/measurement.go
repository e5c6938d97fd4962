package entities

import "time"

// Measurement schedule data types.
const (
	DataTypeMeasurement = "measurement"
	DataTypeTrait       = "trait"
)

// MeasurementSchedule binds a measurement definition to a resource.
type MeasurementSchedule struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	ResourceID   uint     `gorm:"not null;uniqueIndex:idx_schedule_resource_def,priority:1" json:"resource_id"`
	DefinitionID uint     `gorm:"not null;uniqueIndex:idx_schedule_resource_def,priority:2" json:"definition_id"`
	DataType     string   `gorm:"size:20;not null;default:'measurement'" json:"data_type"`
	Resource     Resource `gorm:"foreignKey:ResourceID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (MeasurementSchedule) TableName() string {
	return "measurement_schedules"
}

// MeasurementBaseline holds the computed statistics for one schedule.
type MeasurementBaseline struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	ScheduleID uint     `gorm:"not null;uniqueIndex" json:"schedule_id"`
	Min        *float64 `gorm:"column:min_value" json:"min,omitempty"`
	Mean       *float64 `gorm:"column:mean_value" json:"mean,omitempty"`
	Max        *float64 `gorm:"column:max_value" json:"max,omitempty"`
}

// TableName returns the table name for GORM.
func (MeasurementBaseline) TableName() string {
	return "measurement_baselines"
}

// MeasurementDataNumeric is one numeric sample. The newest row per schedule is current.
type MeasurementDataNumeric struct {
	ID         uint      `gorm:"primaryKey"`
	ScheduleID uint      `gorm:"not null;index:idx_numeric_schedule_time,priority:1"`
	Timestamp  time.Time `gorm:"not null;index:idx_numeric_schedule_time,priority:2"`
	Value      float64   `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (MeasurementDataNumeric) TableName() string {
	return "measurement_data_numeric"
}

// MeasurementDataTrait is one trait sample. The newest row per schedule is current.
type MeasurementDataTrait struct {
	ID         uint      `gorm:"primaryKey"`
	ScheduleID uint      `gorm:"not null;index:idx_trait_schedule_time,priority:1"`
	Timestamp  time.Time `gorm:"not null;index:idx_trait_schedule_time,priority:2"`
	Value      string    `gorm:"size:4000;not null"`
}

// TableName returns the table name for GORM.
func (MeasurementDataTrait) TableName() string {
	return "measurement_data_trait"
}
