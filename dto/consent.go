package dto

import (
	"time"

	"github.com/saathi-legal/saathi_api/model"
)

type RecordConsentRequest struct {
	Identifier string          `json:"identifier" validate:"required,anonymous_id"`
	Scope      map[string]bool `json:"scope" validate:"required"`
	Decision   string          `json:"decision,omitempty" validate:"omitempty,oneof=granted declined"`
	Source     string          `json:"source,omitempty" validate:"omitempty,oneof=prompt legacy_migration"`
}

func (r RecordConsentRequest) Validate() error {
	return GetValidator().Struct(r)
}

// DecisionOrDefault treats an omitted decision as an acceptance.
func (r RecordConsentRequest) DecisionOrDefault() model.Decision {
	if r.Decision == "" {
		return model.DecisionGranted
	}
	return model.Decision(r.Decision)
}

func (r RecordConsentRequest) SourceOrDefault() model.DecisionSource {
	if r.Source == "" {
		return model.SourcePrompt
	}
	return model.DecisionSource(r.Source)
}

type ConsentDecisionResponse struct {
	ID         string          `json:"id"`
	Identifier string          `json:"identifier"`
	Scope      map[string]bool `json:"scope"`
	Decision   string          `json:"decision"`
	Source     string          `json:"source"`
	DecidedAt  time.Time       `json:"decided_at"`
}

func NewConsentDecisionResponse(d *model.ConsentDecision) ConsentDecisionResponse {
	return ConsentDecisionResponse{
		ID:         d.ID,
		Identifier: d.Identifier,
		Scope:      d.Scope,
		Decision:   string(d.Decision),
		Source:     string(d.Source),
		DecidedAt:  d.DecidedAt,
	}
}

// ConsentDenial is the body of a consent-gated rejection.
type ConsentDenial struct {
	Error    string `json:"error"`
	Reason   string `json:"reason"`
	Redirect string `json:"redirect,omitempty"`
}
