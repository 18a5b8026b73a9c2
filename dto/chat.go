package dto

import "time"

type ChatRequest struct {
	Message   string `json:"message" validate:"required,max=1000"`
	Language  string `json:"language,omitempty" validate:"omitempty,max=32"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

func (r ChatRequest) Validate() error {
	return GetValidator().Struct(r)
}

type ChatResponse struct {
	Reply     string            `json:"reply"`
	Language  string            `json:"language"`
	SessionID string            `json:"session_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RateLimit *RateLimitSummary `json:"rate_limit,omitempty"`
}

type GenerateDocumentRequest struct {
	TemplateID string            `json:"template_id" validate:"required,template_id"`
	Fields     map[string]string `json:"fields" validate:"required"`
}

func (r GenerateDocumentRequest) Validate() error {
	return GetValidator().Struct(r)
}

type GateConfigResponse struct {
	RateLimitMaxRequests   int      `json:"rate_limit_max_requests"`
	RateLimitWindowSeconds int      `json:"rate_limit_window_seconds"`
	ConsentScopeFlags      []string `json:"consent_scope_flags"`
	IdentifierHeader       string   `json:"identifier_header"`
}
