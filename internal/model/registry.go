package model

// AllModels returns every model subject to migration.
// Add new tables here instead of touching main.go.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&FundingAccount{},
		&ProofSubmission{},
		&PaymentRecord{},
		&OutboxMessage{},
	}
}
