package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/shared"
)

const historyLimit = 20

type ConsentHandler struct {
	consentSvc ConsentServiceInterface
}

func NewConsentHandler(consentSvc ConsentServiceInterface) *ConsentHandler {
	return &ConsentHandler{
		consentSvc: consentSvc,
	}
}

// RecordConsent appends a decision to the audit trail. Contradicting and
// repeated submissions are accepted.
func (h *ConsentHandler) RecordConsent(c *fiber.Ctx) error {
	var req dto.RecordConsentRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	decision, err := h.consentSvc.RecordConsent(c.UserContext(), req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusCreated, "Consent recorded", dto.NewConsentDecisionResponse(decision))
}

// GetConsent returns the authoritative decision for an identifier.
func (h *ConsentHandler) GetConsent(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	if !dto.ValidAnonymousID(identifier) {
		return shared.NewBadRequestError(errors.New("malformed identifier"), "Invalid identifier")
	}

	decision, err := h.consentSvc.LatestDecision(c.UserContext(), identifier)
	if err != nil {
		return shared.NewServiceUnavailableError(err, "Consent status unavailable")
	}
	if decision == nil {
		return shared.NewNotFoundError(nil, "No consent decision recorded")
	}

	return shared.ResponseOK(c, dto.NewConsentDecisionResponse(decision))
}

// GetHistory lists every decision recorded for an identifier, newest first.
func (h *ConsentHandler) GetHistory(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	if !dto.ValidAnonymousID(identifier) {
		return shared.NewBadRequestError(errors.New("malformed identifier"), "Invalid identifier")
	}

	decisions, err := h.consentSvc.History(c.UserContext(), identifier, c.QueryInt("limit", historyLimit))
	if err != nil {
		return shared.NewServiceUnavailableError(err, "Consent history unavailable")
	}

	resp := make([]dto.ConsentDecisionResponse, 0, len(decisions))
	for i := range decisions {
		resp = append(resp, dto.NewConsentDecisionResponse(&decisions[i]))
	}
	return shared.ResponseOK(c, resp)
}
