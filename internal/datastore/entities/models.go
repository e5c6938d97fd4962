package entities

// All returns every entity in migration order.
func All() []any {
	return []any{
		&Agent{},
		&Resource{},
		&AlertDefinition{},
		&AlertCondition{},
		&MeasurementSchedule{},
		&MeasurementBaseline{},
		&MeasurementDataNumeric{},
		&MeasurementDataTrait{},
		&OperationDefinition{},
		&Availability{},
		&ResourceConfiguration{},
		&ConditionLog{},
	}
}
