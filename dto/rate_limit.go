package dto

// RateLimitDenial is returned with a 429. Identifier is the anonymous id that
// was throttled, empty when the caller was keyed by network address.
type RateLimitDenial struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after"`
	Limit             int    `json:"limit"`
	Identifier        string `json:"identifier,omitempty"`
	KeySource         string `json:"key_source"`
}

// RateLimitSummary mirrors the rate_limit block of a successful chat reply.
type RateLimitSummary struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
	ResetIn   int `json:"reset_in"`
}
