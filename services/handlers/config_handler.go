package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/shared"
)

type ConfigHandler struct {
	consentSvc   ConsentServiceInterface
	rateLimitSvc RateLimitServiceInterface
}

func NewConfigHandler(consentSvc ConsentServiceInterface, rateLimitSvc RateLimitServiceInterface) *ConfigHandler {
	return &ConfigHandler{
		consentSvc:   consentSvc,
		rateLimitSvc: rateLimitSvc,
	}
}

// GetConfig exposes the gate settings the client needs to render its prompt
// and pace its requests.
func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	cfg := h.rateLimitSvc.Config()
	return shared.ResponseOK(c, dto.GateConfigResponse{
		RateLimitMaxRequests:   cfg.MaxRequests,
		RateLimitWindowSeconds: int(cfg.WindowSize.Seconds()),
		ConsentScopeFlags:      h.consentSvc.ScopeFlags(),
		IdentifierHeader:       shared.HeaderAnonymousID,
	})
}
