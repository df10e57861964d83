package models

// All lists every persisted model in dependency order. Used by sqlite
// auto-migration in local mode and in tests.
func All() []any {
	return []any{
		&Organiser{},
		&Charity{},
		&Event{},
		&EventBeneficiary{},
		&Order{},
		&Ticket{},
		&OutboxEvent{},
		&AuditLog{},
	}
}
