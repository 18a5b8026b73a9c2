package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/model"
	"github.com/saathi-legal/saathi_api/services/ratelimit"
	"github.com/saathi-legal/saathi_api/shared"
	log "github.com/sirupsen/logrus"
)

const (
	ReasonConsentRequired = "consent_required"
	ReasonConsentDeclined = "consent_declined"
	ReasonConsentLookup   = "consent_unavailable"
)

type ConsentChecker interface {
	LatestDecision(ctx context.Context, identifier string) (*model.ConsentDecision, error)
}

type Admitter interface {
	Admit(ctx context.Context, key string) (ratelimit.Decision, error)
	FailOpen() bool
}

// GateObserver receives one call per rejection, typically for metrics.
type GateObserver interface {
	ConsentDenied(reason string)
	RateLimited(route, keySource string)
	RateLimitError(failOpen bool)
}

type noopObserver struct{}

func (noopObserver) ConsentDenied(string)       {}
func (noopObserver) RateLimited(string, string) {}
func (noopObserver) RateLimitError(bool)        {}

// Gate runs the checks every feature request passes before its handler:
// identity extraction, the consent check and the rate limit, in that order.
type Gate struct {
	consent  ConsentChecker
	limiter  Admitter
	observer GateObserver
}

func NewGate(consent ConsentChecker, limiter Admitter, observer GateObserver) *Gate {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Gate{
		consent:  consent,
		limiter:  limiter,
		observer: observer,
	}
}

// Protect returns the handler chain for a gated route.
func (g *Gate) Protect(route string, requireConsent bool, handler fiber.Handler) []fiber.Handler {
	chain := []fiber.Handler{g.Identify()}
	if requireConsent {
		chain = append(chain, g.RequireConsent(route))
	}
	return append(chain, g.RateLimit(route), handler)
}

// Identify reads the anonymous identifier header. A malformed value is
// treated as absent and the caller is keyed by network address.
func (g *Gate) Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(shared.HeaderAnonymousID)
		if id != "" && !dto.ValidAnonymousID(id) {
			log.WithFields(log.Fields{
				"path":   c.Path(),
				"length": len(id),
			}).Debug("Ignoring malformed anonymous identifier")
			id = ""
		}

		c.Locals(shared.AnonymousID, id)
		if id != "" {
			c.Locals(shared.RateLimitKey, id)
			c.Locals(shared.KeySource, shared.KeySourceIdentifier)
		} else {
			c.Locals(shared.RateLimitKey, ClientIP(c))
			c.Locals(shared.KeySource, shared.KeySourceNetwork)
		}

		return c.Next()
	}
}

// RequireConsent rejects the request unless the latest decision recorded for
// the caller is a grant. Lookup failures reject as well.
func (g *Gate) RequireConsent(route string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := AnonymousIDFrom(c)

		var decision *model.ConsentDecision
		if id != "" {
			var err error
			decision, err = g.consent.LatestDecision(c.UserContext(), id)
			if err != nil {
				g.observer.ConsentDenied(ReasonConsentLookup)
				log.WithFields(log.Fields{
					"anonymous_id": id,
					"route":        route,
					"error":        err.Error(),
				}).Error("Consent lookup failed")
				return shared.ResponseJSON(c, http.StatusServiceUnavailable, "Consent status unavailable", dto.ConsentDenial{
					Error:  "CONSENT_UNAVAILABLE",
					Reason: ReasonConsentLookup,
				})
			}
		}

		switch {
		case decision == nil:
			return g.denyConsent(c, route, id, ReasonConsentRequired, dto.ConsentDenial{
				Error:  "CONSENT_REQUIRED",
				Reason: ReasonConsentRequired,
			})
		case !decision.Effective():
			return g.denyConsent(c, route, id, ReasonConsentDeclined, dto.ConsentDenial{
				Error:    "CONSENT_DECLINED",
				Reason:   ReasonConsentDeclined,
				Redirect: shared.DeclinedPath,
			})
		}

		c.Locals(shared.ConsentDecision, decision)
		return c.Next()
	}
}

func (g *Gate) denyConsent(c *fiber.Ctx, route, id, reason string, body dto.ConsentDenial) error {
	g.observer.ConsentDenied(reason)
	log.WithFields(log.Fields{
		"anonymous_id": id,
		"route":        route,
		"reason":       reason,
	}).Info("Request rejected by consent gate")
	return shared.ResponseJSON(c, http.StatusForbidden, "Consent required", body)
}

// RateLimit admits the request against the caller's key and sets the
// X-RateLimit-* headers.
func (g *Gate) RateLimit(route string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, _ := c.Locals(shared.RateLimitKey).(string)
		source, _ := c.Locals(shared.KeySource).(string)
		if key == "" {
			key = ClientIP(c)
			source = shared.KeySourceNetwork
		}

		decision, err := g.limiter.Admit(c.UserContext(), key)
		if err != nil {
			failOpen := g.limiter.FailOpen()
			g.observer.RateLimitError(failOpen)
			entry := log.WithFields(log.Fields{
				"rate_limit_key": key,
				"key_source":     source,
				"route":          route,
				"error":          err.Error(),
			})
			if failOpen {
				entry.Warn("Rate limiter unavailable, admitting request")
				return c.Next()
			}
			entry.Error("Rate limiter unavailable, rejecting request")
			return shared.ResponseJSON(c, http.StatusServiceUnavailable, "Rate limiter unavailable", fiber.Map{
				"error": "RATE_LIMIT_UNAVAILABLE",
			})
		}

		addRateLimitHeaders(c, decision)

		if !decision.Allowed {
			retryAfter := retryAfterSeconds(decision)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

			g.observer.RateLimited(route, source)
			log.WithFields(log.Fields{
				"anonymous_id":   AnonymousIDFrom(c),
				"rate_limit_key": key,
				"key_source":     source,
				"route":          route,
				"retry_after":    retryAfter,
			}).Info("Request rejected by rate limiter")

			denial := dto.RateLimitDenial{
				Error:             "RATE_LIMIT_EXCEEDED",
				Message:           "Too many requests. Please try again later.",
				RetryAfterSeconds: retryAfter,
				Limit:             decision.Limit,
				KeySource:         source,
			}
			if source == shared.KeySourceIdentifier {
				denial.Identifier = key
			}
			return shared.ResponseJSON(c, http.StatusTooManyRequests, denial.Message, denial)
		}

		c.Locals(shared.RateLimitDecision, decision)
		return c.Next()
	}
}

func addRateLimitHeaders(c *fiber.Ctx, d ratelimit.Decision) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// retryAfterSeconds rounds up so a client that waits the hinted time is
// admitted.
func retryAfterSeconds(d ratelimit.Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// AnonymousIDFrom returns the identifier extracted by Identify, empty when the
// caller sent none.
func AnonymousIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(shared.AnonymousID).(string)
	return id
}

// ConsentFrom returns the decision that let the request through, nil on
// routes without a consent check.
func ConsentFrom(c *fiber.Ctx) *model.ConsentDecision {
	d, _ := c.Locals(shared.ConsentDecision).(*model.ConsentDecision)
	return d
}

func RateLimitDecisionFrom(c *fiber.Ctx) (ratelimit.Decision, bool) {
	d, ok := c.Locals(shared.RateLimitDecision).(ratelimit.Decision)
	return d, ok
}
