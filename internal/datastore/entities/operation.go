package entities

// OperationDefinition names an operation that resources of a type support.
type OperationDefinition struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ResourceTypeID uint   `gorm:"not null;uniqueIndex:idx_opdef_type_name,priority:1" json:"resource_type_id"`
	Name           string `gorm:"size:255;not null;uniqueIndex:idx_opdef_type_name,priority:2" json:"name"`
}

// TableName returns the table name for GORM.
func (OperationDefinition) TableName() string {
	return "operation_definitions"
}
