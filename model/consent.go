package model

import "time"

type Decision string

const (
	DecisionGranted  Decision = "granted"
	DecisionDeclined Decision = "declined"
)

func (d Decision) Valid() bool {
	return d == DecisionGranted || d == DecisionDeclined
}

type DecisionSource string

const (
	SourcePrompt          DecisionSource = "prompt"
	SourceLegacyMigration DecisionSource = "legacy_migration"
)

// ScopeFlags are the named permissions decided together in one submission.
type ScopeFlags map[string]bool

// Allows reports whether the named flag was granted.
func (s ScopeFlags) Allows(flag string) bool {
	return s != nil && s[flag]
}

// ConsentDecision rows are append-only. Seq is assigned by the database and
// breaks ties between decisions sharing a DecidedAt value in arrival order.
type ConsentDecision struct {
	Seq        uint64         `json:"-" gorm:"primaryKey;autoIncrement"`
	ID         string         `json:"id" gorm:"uniqueIndex;size:36;not null"`
	Identifier string         `json:"identifier" gorm:"not null;index:idx_consent_identifier_decided,priority:1;size:128"`
	Scope      ScopeFlags     `json:"scope" gorm:"serializer:json;type:text;not null"`
	Decision   Decision       `json:"decision" gorm:"not null;size:16"`
	Source     DecisionSource `json:"source" gorm:"not null;size:32"`
	DecidedAt  time.Time      `json:"decided_at" gorm:"not null;index:idx_consent_identifier_decided,priority:2"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null"`
}

func (ConsentDecision) TableName() string {
	return "consent_decisions"
}

// Effective reports whether the decision unblocks feature access.
func (c *ConsentDecision) Effective() bool {
	return c != nil && c.Decision == DecisionGranted
}
