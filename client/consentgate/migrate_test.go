package consentgate

import (
	"testing"
	"time"

	"github.com/saathi-legal/saathi_api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateLegacy(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.FixedZone("IST", 19800))
	scope := []string{"store_messages", "store_documents"}

	tests := []struct {
		name    string
		flags   LegacyFlags
		migrate bool
	}{
		{"no flags", LegacyFlags{}, false},
		{"nil flags", nil, false},
		{"accepted true", LegacyFlags{"consentGiven": "true"}, true},
		{"accepted mixed case", LegacyFlags{"privacyAccepted": " Yes "}, true},
		{"accepted numeric", LegacyFlags{"cookie_consent": "1"}, true},
		{"declined", LegacyFlags{"consentGiven": "false"}, false},
		{"garbage", LegacyFlags{"consentGiven": "maybe"}, false},
		{"unrelated key", LegacyFlags{"theme": "true"}, false},
		{"later key accepted", LegacyFlags{"consentGiven": "false", "cookie_consent": "accepted"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := MigrateLegacy(tt.flags, scope, now)
			if !tt.migrate {
				assert.Nil(t, d)
				return
			}
			require.NotNil(t, d)
			assert.Equal(t, model.DecisionGranted, d.Decision)
			assert.Equal(t, model.SourceLegacyMigration, d.Source)
			assert.Equal(t, map[string]bool{"store_messages": true, "store_documents": true}, d.Scope)
			assert.Equal(t, time.UTC, d.DecidedAt.Location())
			assert.True(t, d.DecidedAt.Equal(now))
		})
	}
}
