package models

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Campaign{},
		&Lead{},
		&Report{},
		&MetricSnapshot{},
		&Insight{},
		&Automation{},
		&AutomationExecution{},
	}
}
