package entities

import "time"

// Availability types.
const (
	AvailabilityUp       = "UP"
	AvailabilityDown     = "DOWN"
	AvailabilityDisabled = "DISABLED"
	AvailabilityUnknown  = "UNKNOWN"
)

// Availability is one availability interval. The open interval (nil EndTime) is current.
type Availability struct {
	ID         uint       `gorm:"primaryKey"`
	ResourceID uint       `gorm:"not null;index"`
	Type       string     `gorm:"size:10;not null"`
	StartTime  time.Time  `gorm:"not null"`
	EndTime    *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM.
func (Availability) TableName() string {
	return "availability"
}
