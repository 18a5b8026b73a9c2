package model

import "time"

// RateLimitConfig is the ceiling and window applied to one class of routes.
type RateLimitConfig struct {
	EndpointType string        `json:"endpoint_type"`
	MaxRequests  int           `json:"max_requests"`
	WindowSize   time.Duration `json:"window_size"`
	Description  string        `json:"description"`
	IsActive     bool          `json:"is_active"`
}
