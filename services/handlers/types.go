package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/model"
	"github.com/saathi-legal/saathi_api/shared"
)

type ConsentServiceInterface interface {
	RecordConsent(ctx context.Context, req dto.RecordConsentRequest) (*model.ConsentDecision, error)
	LatestDecision(ctx context.Context, identifier string) (*model.ConsentDecision, error)
	History(ctx context.Context, identifier string, limit int) ([]model.ConsentDecision, error)
	ScopeFlags() []string
}

type RateLimitServiceInterface interface {
	Config() model.RateLimitConfig
}

type ChatCompleter interface {
	Complete(ctx context.Context, req dto.ChatRequest) (string, error)
}

type DocumentRenderer interface {
	Render(ctx context.Context, req dto.GenerateDocumentRequest) ([]byte, error)
}

type DocumentArchive interface {
	Archive(ctx context.Context, identifier string, document []byte) (string, error)
}

// parseBody decodes and validates a JSON request body.
func parseBody(c *fiber.Ctx, req dto.Validator) error {
	if err := c.BodyParser(req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := req.Validate(); err != nil {
		return shared.NewBadRequestError(err, "Validation failed").
			WithData(dto.CreateValidationErrorResponse(err))
	}
	return nil
}
