package consentgate

import (
	"strings"
	"time"

	"github.com/saathi-legal/saathi_api/model"
)

// LegacyKeys are the storage keys earlier releases wrote consent under, in
// the order they are consulted.
var LegacyKeys = []string{"consentGiven", "privacyAccepted", "cookie_consent"}

var legacyAccepted = map[string]struct{}{
	"true":     {},
	"1":        {},
	"yes":      {},
	"accepted": {},
	"granted":  {},
}

// LegacyFlags maps legacy storage keys to their raw values.
type LegacyFlags map[string]string

// Decision is a consent decision as the client stores it.
type Decision struct {
	Decision  model.Decision       `json:"decision"`
	Scope     map[string]bool      `json:"scope"`
	Source    model.DecisionSource `json:"source"`
	DecidedAt time.Time            `json:"decided_at"`
}

// MigrateLegacy returns the granted decision implied by a legacy "accepted"
// flag, or nil when none of the legacy keys carries one. Legacy consent was
// all-or-nothing, so every scope flag is granted.
func MigrateLegacy(flags LegacyFlags, scopeFlags []string, now time.Time) *Decision {
	for _, key := range LegacyKeys {
		raw, ok := flags[key]
		if !ok {
			continue
		}
		if _, accepted := legacyAccepted[strings.ToLower(strings.TrimSpace(raw))]; !accepted {
			continue
		}

		scope := make(map[string]bool, len(scopeFlags))
		for _, flag := range scopeFlags {
			scope[flag] = true
		}
		return &Decision{
			Decision:  model.DecisionGranted,
			Scope:     scope,
			Source:    model.SourceLegacyMigration,
			DecidedAt: now.UTC(),
		}
	}
	return nil
}
