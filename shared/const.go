package shared

const (
	// Locals keys set by the gate middleware.
	AnonymousID  = "anonymous_id"
	RateLimitKey = "rate_limit_key"
	KeySource    = "rate_limit_key_source"

	// HeaderAnonymousID carries the client-resolved anonymous identifier.
	HeaderAnonymousID = "X-Anonymous-ID"

	KeySourceIdentifier = "identifier"
	KeySourceNetwork    = "network"

	ScopeStoreMessages  = "store_messages"
	ScopeStoreDocuments = "store_documents"

	// DeclinedPath is the explanatory page shown after consent is declined.
	DeclinedPath = "/consent-declined.html"
)

const (
	// Locals keys holding the gate's findings for downstream handlers.
	ConsentDecision   = "consent_decision"
	RateLimitDecision = "rate_limit_decision"
)

// DefaultScopeFlags are the permissions decided in one consent submission.
var DefaultScopeFlags = []string{ScopeStoreMessages, ScopeStoreDocuments}
